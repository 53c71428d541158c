package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/jimyag/vdm/internal/vdm/repository/model"
)

// GuacConnectionRepository 远程桌面网关连接的数据访问接口
type GuacConnectionRepository interface {
	Create(ctx context.Context, conn *model.GuacConnection) error
	GetByID(ctx context.Context, id uint) (*model.GuacConnection, error)
	Delete(ctx context.Context, id uint) error
}

type guacConnectionRepository struct {
	db *gorm.DB
}

// NewGuacConnectionRepository 创建网关连接数据访问层
func NewGuacConnectionRepository(db *gorm.DB) GuacConnectionRepository {
	return &guacConnectionRepository{db: db}
}

func (r *guacConnectionRepository) Create(ctx context.Context, conn *model.GuacConnection) error {
	return r.db.WithContext(ctx).Create(conn).Error
}

func (r *guacConnectionRepository) GetByID(ctx context.Context, id uint) (*model.GuacConnection, error) {
	var conn model.GuacConnection
	if err := r.db.WithContext(ctx).First(&conn, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &conn, nil
}

func (r *guacConnectionRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&model.GuacConnection{}, "id = ?", id).Error
}
