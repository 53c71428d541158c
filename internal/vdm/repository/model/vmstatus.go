package model

import (
	"time"
)

// 桌面的用户可见状态（封闭集合）
const (
	StatusNoVM       = "NO_VM"         // 没有桌面
	StatusWaiting    = "VM_WAITING"    // 等待长时间操作完成
	StatusCreating   = "VM_CREATING"   // 创建中
	StatusOkay       = "VM_OKAY"       // 正常运行
	StatusResizing   = "VM_RESIZING"   // 规格调整中
	StatusSupersized = "VM_SUPERSIZED" // 运行在加大规格上
	StatusShelved    = "VM_SHELVED"    // 已搁置（服务器删除、卷保留）
	StatusError      = "VM_ERROR"      // 出错，需要运维介入
	StatusMissing    = "VM_MISSING"    // 远端实例丢失
	StatusDeleted    = "VM_DELETED"    // 已删除
)

// VMStatus 桌面状态表
// 独立于 Instance/Volume 的派生视图，实例尚不存在时（创建中）
// 也可以有状态记录。同一 (用户, 桌面类型) 只看最新一条
type VMStatus struct {
	ID                uint       `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	Username          string     `gorm:"type:text;not null;index:idx_vm_statuses_user;column:username" json:"username"`       // 用户名
	OperatingSystem   string     `gorm:"type:text;not null;index:idx_vm_statuses_user;column:operating_system" json:"operating_system"` // 桌面类型 ID
	RequestingFeature string     `gorm:"type:text;not null;column:requesting_feature" json:"requesting_feature"`              // 功能域
	InstanceID        *string    `gorm:"type:text;index:idx_vm_statuses_instance;column:instance_id" json:"instance_id,omitempty"` // 关联实例（可为空）
	Status            string     `gorm:"type:text;not null;column:status" json:"status"`                                      // 状态
	StatusProgress    int        `gorm:"type:integer;not null;default:0;column:status_progress" json:"status_progress"`       // 进度（0-100）
	StatusMessage     string     `gorm:"type:text;column:status_message" json:"status_message"`                               // 人类可读消息
	WaitTime          *time.Time `gorm:"type:datetime;column:wait_time" json:"wait_time,omitempty"`                           // 前端等待提示截止时间
	CreatedAt         time.Time  `gorm:"type:datetime;not null;index:idx_vm_statuses_created_at;column:created_at" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"type:datetime;not null;column:updated_at" json:"updated_at"`
}

// TableName 指定表名
func (VMStatus) TableName() string {
	return "vm_statuses"
}
