package model

import (
	"time"
)

// Instance 实例表
// ID 即远端服务器 ID。一个启动卷同一时刻只能有一个存活实例，
// 历史实例（重建）保留在表中
type Instance struct {
	ID                string     `gorm:"primaryKey;type:text;column:id" json:"id"`                                              // 远端服务器 ID
	Owner             string     `gorm:"type:text;not null;index:idx_instances_owner;column:owner" json:"owner"`                // 所属用户
	BootVolumeID      string     `gorm:"type:text;not null;index:idx_instances_boot_volume;column:boot_volume_id" json:"boot_volume_id"` // 关联 volumes.id
	GuacConnectionID  *uint      `gorm:"column:guac_connection_id" json:"guac_connection_id,omitempty"`                         // 关联 guac_connections.id
	Username          string     `gorm:"type:text;column:username" json:"username"`                                             // 桌面登录用户名（跨重建沿用）
	Password          string     `gorm:"type:text;column:password" json:"-"`                                                    // 桌面登录密码（跨重建沿用）
	ConsoleAddr       string     `gorm:"type:text;column:console_addr" json:"console_addr"`                                     // 远程桌面地址
	ConsolePort       int        `gorm:"type:integer;column:console_port" json:"console_port"`                                  // 远程桌面端口
	Expires           *time.Time `gorm:"type:datetime;column:expires" json:"expires,omitempty"`                                 // 实例过期时间
	ExpirationID      *uint      `gorm:"column:expiration_id" json:"expiration_id,omitempty"`                                   // 关联 expirations.id
	MarkedForDeletion *time.Time `gorm:"type:datetime;column:marked_for_deletion" json:"marked_for_deletion,omitempty"`         // 标记删除时间
	Deleted           *time.Time `gorm:"type:datetime;index:idx_instances_deleted;column:deleted" json:"deleted,omitempty"`     // 远端删除完成时间
	ErrorAt           *time.Time `gorm:"type:datetime;column:error_at" json:"error_at,omitempty"`                               // 出错时间
	ErrorMessage      string     `gorm:"type:text;column:error_message" json:"error_message"`                                   // 运维诊断信息
	CreatedAt         time.Time  `gorm:"type:datetime;not null;index:idx_instances_created_at;column:created_at" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"type:datetime;not null;column:updated_at" json:"updated_at"`
}

// TableName 指定表名
func (Instance) TableName() string {
	return "instances"
}

// IsLive 是否是存活实例（远端尚未确认删除）
func (i *Instance) IsLive() bool {
	return i.Deleted == nil
}
