package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/jimyag/vdm/internal/vdm/repository/model"
)

// VMStatusRepository 桌面状态的数据访问接口
type VMStatusRepository interface {
	Create(ctx context.Context, status *model.VMStatus) error
	GetByID(ctx context.Context, id uint) (*model.VMStatus, error)
	Update(ctx context.Context, status *model.VMStatus) error
	// GetLatest 返回用户在某桌面类型下的最新状态，没有则返回 (nil, nil)
	GetLatest(ctx context.Context, username, operatingSystem string) (*model.VMStatus, error)
	// GetByInstance 返回某实例的最新状态记录
	// allowMissing 为 true 时找不到返回 (nil, nil)，否则返回错误
	GetByInstance(ctx context.Context, instanceID string, allowMissing bool) (*model.VMStatus, error)
	// GetByVolume 返回某卷上最近实例的最新状态，没有则返回 (nil, nil)
	GetByVolume(ctx context.Context, volumeID string) (*model.VMStatus, error)
}

type vmStatusRepository struct {
	db *gorm.DB
}

// NewVMStatusRepository 创建桌面状态数据访问层
func NewVMStatusRepository(db *gorm.DB) VMStatusRepository {
	return &vmStatusRepository{db: db}
}

func (r *vmStatusRepository) Create(ctx context.Context, status *model.VMStatus) error {
	return r.db.WithContext(ctx).Create(status).Error
}

func (r *vmStatusRepository) GetByID(ctx context.Context, id uint) (*model.VMStatus, error) {
	var status model.VMStatus
	if err := r.db.WithContext(ctx).First(&status, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &status, nil
}

func (r *vmStatusRepository) Update(ctx context.Context, status *model.VMStatus) error {
	return r.db.WithContext(ctx).Save(status).Error
}

func (r *vmStatusRepository) GetLatest(ctx context.Context, username, operatingSystem string) (*model.VMStatus, error) {
	var status model.VMStatus
	err := r.db.WithContext(ctx).
		Where("username = ? AND operating_system = ?", username, operatingSystem).
		Order("created_at DESC, id DESC").
		First(&status).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &status, nil
}

func (r *vmStatusRepository) GetByInstance(ctx context.Context, instanceID string, allowMissing bool) (*model.VMStatus, error) {
	var status model.VMStatus
	err := r.db.WithContext(ctx).
		Where("instance_id = ?", instanceID).
		Order("created_at DESC, id DESC").
		First(&status).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if allowMissing {
			return nil, nil
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	return &status, nil
}

func (r *vmStatusRepository) GetByVolume(ctx context.Context, volumeID string) (*model.VMStatus, error) {
	var status model.VMStatus
	err := r.db.WithContext(ctx).
		Where("instance_id IN (?)", r.db.Model(&model.Instance{}).
			Select("id").
			Where("boot_volume_id = ?", volumeID)).
		Order("created_at DESC, id DESC").
		First(&status).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &status, nil
}
