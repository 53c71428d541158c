package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/jimyag/vdm/internal/vdm/repository/model"
)

// ResizeRepository 规格调整台账的数据访问接口
type ResizeRepository interface {
	Create(ctx context.Context, resize *model.Resize) error
	GetByID(ctx context.Context, id uint) (*model.Resize, error)
	Update(ctx context.Context, resize *model.Resize) error
	// GetCurrentByInstance 返回某实例当前未回退的 Resize，没有则返回 (nil, nil)
	GetCurrentByInstance(ctx context.Context, instanceID string) (*model.Resize, error)
	// ListExpired 返回已到期且尚未回退的 Resize
	ListExpired(ctx context.Context, now time.Time) ([]*model.Resize, error)
	SetReverted(ctx context.Context, id uint, at time.Time) error
}

type resizeRepository struct {
	db *gorm.DB
}

// NewResizeRepository 创建规格调整数据访问层
func NewResizeRepository(db *gorm.DB) ResizeRepository {
	return &resizeRepository{db: db}
}

func (r *resizeRepository) Create(ctx context.Context, resize *model.Resize) error {
	return r.db.WithContext(ctx).Create(resize).Error
}

func (r *resizeRepository) GetByID(ctx context.Context, id uint) (*model.Resize, error) {
	var resize model.Resize
	if err := r.db.WithContext(ctx).First(&resize, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &resize, nil
}

func (r *resizeRepository) Update(ctx context.Context, resize *model.Resize) error {
	return r.db.WithContext(ctx).Save(resize).Error
}

func (r *resizeRepository) GetCurrentByInstance(ctx context.Context, instanceID string) (*model.Resize, error) {
	var resize model.Resize
	err := r.db.WithContext(ctx).
		Where("instance_id = ? AND reverted IS NULL", instanceID).
		Order("requested DESC, id DESC").
		First(&resize).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &resize, nil
}

func (r *resizeRepository) ListExpired(ctx context.Context, now time.Time) ([]*model.Resize, error) {
	var resizes []*model.Resize
	err := r.db.WithContext(ctx).
		Where("reverted IS NULL").
		Where("expires IS NOT NULL AND expires <= ?", now).
		Order("requested ASC").
		Find(&resizes).Error
	if err != nil {
		return nil, err
	}
	return resizes, nil
}

func (r *resizeRepository) SetReverted(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Resize{}).
		Where("id = ?", id).
		Update("reverted", at).Error
}
