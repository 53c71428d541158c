package model

import (
	"time"
)

// Resize 一次 supersize/downsize 周期的台账
// 同一实例同一时刻至多一条未回退（reverted 为空）的记录
type Resize struct {
	ID           uint       `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	InstanceID   string     `gorm:"type:text;not null;index:idx_resizes_instance;column:instance_id" json:"instance_id"` // 关联 instances.id
	Requested    time.Time  `gorm:"type:datetime;not null;column:requested" json:"requested"`                            // 请求时间
	Expires      *time.Time `gorm:"type:datetime;column:expires" json:"expires,omitempty"`                               // 过期日期
	Reverted     *time.Time `gorm:"type:datetime;column:reverted" json:"reverted,omitempty"`                             // 回退时间
	ExpirationID *uint      `gorm:"column:expiration_id" json:"expiration_id,omitempty"`                                 // 关联 expirations.id
	CreatedAt    time.Time  `gorm:"type:datetime;not null;column:created_at" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"type:datetime;not null;column:updated_at" json:"updated_at"`
}

// TableName 指定表名
func (Resize) TableName() string {
	return "resizes"
}

// IsCurrent 是否是当前生效的 Resize（尚未回退）
func (r *Resize) IsCurrent() bool {
	return r.Reverted == nil
}
