package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/jimyag/vdm/internal/vdm/repository/model"
)

// ExpirationRepository 过期记录的数据访问接口
type ExpirationRepository interface {
	Create(ctx context.Context, exp *model.Expiration) error
	GetByID(ctx context.Context, id uint) (*model.Expiration, error)
	Update(ctx context.Context, exp *model.Expiration) error
	// AdvanceStage 将记录从 EXPIRING 推进到目标阶段并刷新 stage_date，
	// 只有当前仍处于 EXPIRING 时才生效，保证至多推进一次
	AdvanceStage(ctx context.Context, id uint, stage string, at time.Time) (bool, error)
}

type expirationRepository struct {
	db *gorm.DB
}

// NewExpirationRepository 创建过期记录数据访问层
func NewExpirationRepository(db *gorm.DB) ExpirationRepository {
	return &expirationRepository{db: db}
}

func (r *expirationRepository) Create(ctx context.Context, exp *model.Expiration) error {
	return r.db.WithContext(ctx).Create(exp).Error
}

func (r *expirationRepository) GetByID(ctx context.Context, id uint) (*model.Expiration, error) {
	var exp model.Expiration
	if err := r.db.WithContext(ctx).First(&exp, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &exp, nil
}

func (r *expirationRepository) Update(ctx context.Context, exp *model.Expiration) error {
	return r.db.WithContext(ctx).Save(exp).Error
}

func (r *expirationRepository) AdvanceStage(ctx context.Context, id uint, stage string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.Expiration{}).
		Where("id = ? AND stage = ?", id, model.ExpStageExpiring).
		Updates(map[string]any{
			"stage":      stage,
			"stage_date": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
