package repository

import (
	"context"
	"database/sql"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"github.com/jimyag/vdm/internal/vdm/repository/model"
)

// Repository 数据库访问层
type Repository struct {
	db *gorm.DB
}

// New 创建数据库连接并完成建表
// 使用纯 Go 的 sqlite 驱动，不依赖 cgo
func New(dbPath string) (*Repository, error) {
	sqlDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db, err := gorm.Open(sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        dbPath,
		Conn:       sqlDB,
	}, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm database: %w", err)
	}

	if err = db.AutoMigrate(
		&model.Volume{},
		&model.Instance{},
		&model.VMStatus{},
		&model.Resize{},
		&model.Expiration{},
		&model.GuacConnection{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	if err = createPartialIndexes(db); err != nil {
		return nil, fmt.Errorf("create partial indexes: %w", err)
	}

	return &Repository{db: db}, nil
}

// createPartialIndexes 创建部分唯一索引
// AutoMigrate 不支持带 WHERE 的索引，这两条约束由数据库兜底：
// 同一 (用户, 桌面类型) 至多一个活跃卷；同一启动卷至多一个存活实例
func createPartialIndexes(db *gorm.DB) error {
	stmts := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS uniq_active_volume
			ON volumes (username, operating_system)
			WHERE deleted IS NULL AND marked_for_deletion IS NULL`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uniq_live_instance
			ON instances (boot_volume_id)
			WHERE deleted IS NULL`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

// DB 返回底层的 gorm DB
func (r *Repository) DB() *gorm.DB {
	return r.db
}

// WithContext 返回带 context 的 gorm DB
func (r *Repository) WithContext(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

// Close 关闭数据库连接
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
