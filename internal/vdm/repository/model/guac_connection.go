package model

import (
	"time"
)

// GuacConnection 远程桌面网关连接记录
// 随实例创建，实例删除/搁置时移除
type GuacConnection struct {
	ID             uint      `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	ConnectionName string    `gorm:"type:text;not null;column:connection_name" json:"connection_name"` // 连接展示名
	CreatedAt      time.Time `gorm:"type:datetime;not null;column:created_at" json:"created_at"`
	UpdatedAt      time.Time `gorm:"type:datetime;not null;column:updated_at" json:"updated_at"`
}

// TableName 指定表名
func (GuacConnection) TableName() string {
	return "guac_connections"
}
