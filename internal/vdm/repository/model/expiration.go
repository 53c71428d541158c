package model

import (
	"time"
)

// Expiration 的阶段（封闭集合）
// 阶段只由删除/归档工作流的终结步骤推进，且每次运行至多推进一次
const (
	ExpStageExpiring        = "EXPIRING"               // 过期处理中
	ExpStageCompleted       = "EXPIRY_COMPLETED"       // 过期处理完成
	ExpStageFailed          = "EXPIRY_FAILED"          // 过期处理失败（永久）
	ExpStageFailedRetryable = "EXPIRY_FAILED_RETRYABLE" // 过期处理失败（可重试）
)

// Expiration 过期/退役记录
// 由 Volume、Resize 或 Instance 以 1:1 方式持有
type Expiration struct {
	ID        uint      `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	Stage     string    `gorm:"type:text;not null;column:stage" json:"stage"`           // 阶段
	StageDate time.Time `gorm:"type:datetime;not null;column:stage_date" json:"stage_date"` // 阶段变更时间
	Expires   time.Time `gorm:"type:datetime;not null;column:expires" json:"expires"`   // 过期时间
	CreatedAt time.Time `gorm:"type:datetime;not null;column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:datetime;not null;column:updated_at" json:"updated_at"`
}

// TableName 指定表名
func (Expiration) TableName() string {
	return "expirations"
}
