package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/jimyag/vdm/internal/vdm/repository/model"
)

// VolumeRepository 启动卷的数据访问接口
type VolumeRepository interface {
	Create(ctx context.Context, volume *model.Volume) error
	GetByID(ctx context.Context, id string) (*model.Volume, error)
	Update(ctx context.Context, volume *model.Volume) error
	// GetCurrent 返回用户在某桌面类型下的活跃卷，没有则返回 (nil, nil)
	GetCurrent(ctx context.Context, username, operatingSystem string) (*model.Volume, error)
	// GetByHostnameID 按主机名 ID 查找活跃卷，没有则返回 (nil, nil)
	GetByHostnameID(ctx context.Context, hostnameID string) (*model.Volume, error)
	// ListShelvedExpired 返回已搁置且过期时间早于 now 的卷
	ListShelvedExpired(ctx context.Context, now time.Time) ([]*model.Volume, error)
	// ListWithBackup 返回仍持有归档备份的卷（含已删除的）
	ListWithBackup(ctx context.Context) ([]*model.Volume, error)
	SetError(ctx context.Context, id string, message string, at time.Time) error
	SetMarkedForDeletion(ctx context.Context, id string, at time.Time) error
}

type volumeRepository struct {
	db *gorm.DB
}

// NewVolumeRepository 创建启动卷数据访问层
func NewVolumeRepository(db *gorm.DB) VolumeRepository {
	return &volumeRepository{db: db}
}

func (r *volumeRepository) Create(ctx context.Context, volume *model.Volume) error {
	return r.db.WithContext(ctx).Create(volume).Error
}

func (r *volumeRepository) GetByID(ctx context.Context, id string) (*model.Volume, error) {
	var volume model.Volume
	if err := r.db.WithContext(ctx).First(&volume, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &volume, nil
}

func (r *volumeRepository) Update(ctx context.Context, volume *model.Volume) error {
	return r.db.WithContext(ctx).Save(volume).Error
}

func (r *volumeRepository) GetCurrent(ctx context.Context, username, operatingSystem string) (*model.Volume, error) {
	var volume model.Volume
	err := r.db.WithContext(ctx).
		Where("username = ? AND operating_system = ?", username, operatingSystem).
		Where("deleted IS NULL AND marked_for_deletion IS NULL").
		Order("created_at DESC").
		First(&volume).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &volume, nil
}

func (r *volumeRepository) GetByHostnameID(ctx context.Context, hostnameID string) (*model.Volume, error) {
	var volume model.Volume
	err := r.db.WithContext(ctx).
		Where("hostname_id = ?", hostnameID).
		Where("deleted IS NULL AND marked_for_deletion IS NULL").
		Order("created_at DESC").
		First(&volume).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &volume, nil
}

func (r *volumeRepository) ListShelvedExpired(ctx context.Context, now time.Time) ([]*model.Volume, error) {
	var volumes []*model.Volume
	err := r.db.WithContext(ctx).
		Where("shelved_at IS NOT NULL AND archived_at IS NULL").
		Where("deleted IS NULL AND marked_for_deletion IS NULL").
		Where("expires IS NOT NULL AND expires <= ?", now).
		Order("created_at ASC").
		Find(&volumes).Error
	if err != nil {
		return nil, err
	}
	return volumes, nil
}

func (r *volumeRepository) ListWithBackup(ctx context.Context) ([]*model.Volume, error) {
	var volumes []*model.Volume
	err := r.db.WithContext(ctx).
		Where("backup_id IS NOT NULL AND backup_id != ''").
		Order("created_at ASC").
		Find(&volumes).Error
	if err != nil {
		return nil, err
	}
	return volumes, nil
}

func (r *volumeRepository) SetError(ctx context.Context, id string, message string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Volume{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"error_at":      at,
			"error_message": message,
		}).Error
}

func (r *volumeRepository) SetMarkedForDeletion(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Volume{}).
		Where("id = ?", id).
		Update("marked_for_deletion", at).Error
}
