package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/jimyag/vdm/internal/vdm/repository/model"
	"github.com/jimyag/vdm/pkg/apierror"
)

// InstanceRepository 实例的数据访问接口
type InstanceRepository interface {
	Create(ctx context.Context, instance *model.Instance) error
	GetByID(ctx context.Context, id string) (*model.Instance, error)
	Update(ctx context.Context, instance *model.Instance) error
	// GetCurrent 返回用户在某桌面类型下的存活实例，没有则返回 (nil, nil)
	GetCurrent(ctx context.Context, username, operatingSystem string) (*model.Instance, error)
	// GetLatestForVolume 返回某卷最近一次的实例（含已删除），没有则返回 (nil, nil)
	GetLatestForVolume(ctx context.Context, volumeID string) (*model.Instance, error)
	// ListExpired 返回已过期但仍存活且未标记删除的实例
	ListExpired(ctx context.Context, now time.Time) ([]*model.Instance, error)
	// GetByUntrustedID 校验外部传入的实例 ID 属于该用户且存活，
	// 不匹配时返回 apierror.ErrNotFound，不泄露是否存在
	GetByUntrustedID(ctx context.Context, id, username string) (*model.Instance, error)
	SetError(ctx context.Context, id string, message string, at time.Time, gone bool) error
	SetMarkedForDeletion(ctx context.Context, id string, at time.Time) error
	SetDeleted(ctx context.Context, id string, at time.Time) error
}

type instanceRepository struct {
	db *gorm.DB
}

// NewInstanceRepository 创建实例数据访问层
func NewInstanceRepository(db *gorm.DB) InstanceRepository {
	return &instanceRepository{db: db}
}

func (r *instanceRepository) Create(ctx context.Context, instance *model.Instance) error {
	return r.db.WithContext(ctx).Create(instance).Error
}

func (r *instanceRepository) GetByID(ctx context.Context, id string) (*model.Instance, error) {
	var instance model.Instance
	if err := r.db.WithContext(ctx).First(&instance, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &instance, nil
}

func (r *instanceRepository) Update(ctx context.Context, instance *model.Instance) error {
	return r.db.WithContext(ctx).Save(instance).Error
}

func (r *instanceRepository) GetCurrent(ctx context.Context, username, operatingSystem string) (*model.Instance, error) {
	var instance model.Instance
	err := r.db.WithContext(ctx).
		Where("deleted IS NULL").
		Where("boot_volume_id IN (?)", r.db.Model(&model.Volume{}).
			Select("id").
			Where("username = ? AND operating_system = ?", username, operatingSystem).
			Where("deleted IS NULL AND marked_for_deletion IS NULL")).
		Order("created_at DESC").
		First(&instance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &instance, nil
}

func (r *instanceRepository) GetLatestForVolume(ctx context.Context, volumeID string) (*model.Instance, error) {
	var instance model.Instance
	err := r.db.WithContext(ctx).
		Where("boot_volume_id = ?", volumeID).
		Order("created_at DESC").
		First(&instance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &instance, nil
}

func (r *instanceRepository) ListExpired(ctx context.Context, now time.Time) ([]*model.Instance, error) {
	var instances []*model.Instance
	err := r.db.WithContext(ctx).
		Where("deleted IS NULL AND marked_for_deletion IS NULL AND error_at IS NULL").
		Where("expires IS NOT NULL AND expires <= ?", now).
		Order("created_at ASC").
		Find(&instances).Error
	if err != nil {
		return nil, err
	}
	return instances, nil
}

func (r *instanceRepository) GetByUntrustedID(ctx context.Context, id, username string) (*model.Instance, error) {
	var instance model.Instance
	err := r.db.WithContext(ctx).
		Where("id = ? AND owner = ? AND deleted IS NULL", id, username).
		First(&instance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierror.WrapError(apierror.ErrNotFound, "instance not found", err)
	}
	if err != nil {
		return nil, err
	}
	return &instance, nil
}

func (r *instanceRepository) SetError(ctx context.Context, id string, message string, at time.Time, gone bool) error {
	updates := map[string]any{
		"error_at":      at,
		"error_message": message,
	}
	// gone 表示远端服务器已经不存在，记录随之视为删除
	if gone {
		updates["deleted"] = at
	}
	return r.db.WithContext(ctx).Model(&model.Instance{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *instanceRepository) SetMarkedForDeletion(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Instance{}).
		Where("id = ?", id).
		Update("marked_for_deletion", at).Error
}

func (r *instanceRepository) SetDeleted(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Instance{}).
		Where("id = ?", id).
		Update("deleted", at).Error
}
