package model

import (
	"time"
)

// Volume 启动卷表
// ID 即远端卷 ID。远端生命周期状态（shelved/archived/deleted 等）
// 是业务数据，用显式的可空时间戳列表达，记录只软删除、从不物理删除
type Volume struct {
	ID                 string     `gorm:"primaryKey;type:text;column:id" json:"id"`                                                        // 远端卷 ID
	Username           string     `gorm:"type:text;not null;index:idx_volumes_username;column:username" json:"username"`                   // 所属用户
	RequestingFeature  string     `gorm:"type:text;not null;column:requesting_feature" json:"requesting_feature"`                          // 请求来源的功能域
	OperatingSystem    string     `gorm:"type:text;not null;column:operating_system" json:"operating_system"`                              // 桌面类型 ID
	Zone               string     `gorm:"type:text;column:zone" json:"zone"`                                                               // 可用区
	FlavorID           string     `gorm:"type:text;column:flavor_id" json:"flavor_id"`                                                     // 默认规格 ID
	SourceVolumeID     string     `gorm:"type:text;column:source_volume_id" json:"source_volume_id"`                                       // 克隆来源的镜像卷 ID
	HostnameID         string     `gorm:"type:text;column:hostname_id" json:"hostname_id"`                                                 // 主机名 ID
	BackupID           string     `gorm:"type:text;column:backup_id" json:"backup_id"`                                                     // 归档备份 ID（可为空）
	Expires            *time.Time `gorm:"type:datetime;column:expires" json:"expires,omitempty"`                                           // 搁置卷的过期时间
	ExpirationID       *uint      `gorm:"column:expiration_id" json:"expiration_id,omitempty"`                                             // 关联 expirations.id
	BackupExpirationID *uint      `gorm:"column:backup_expiration_id" json:"backup_expiration_id,omitempty"`                               // 备份过期记录
	ShelvedAt          *time.Time `gorm:"type:datetime;column:shelved_at" json:"shelved_at,omitempty"`                                     // 搁置时间
	ArchivedAt         *time.Time `gorm:"type:datetime;column:archived_at" json:"archived_at,omitempty"`                                   // 归档时间
	RebootedAt         *time.Time `gorm:"type:datetime;column:rebooted_at" json:"rebooted_at,omitempty"`                                   // 最近重启时间
	Deleted            *time.Time `gorm:"type:datetime;index:idx_volumes_deleted;column:deleted" json:"deleted,omitempty"`                 // 远端删除完成时间
	MarkedForDeletion  *time.Time `gorm:"type:datetime;column:marked_for_deletion" json:"marked_for_deletion,omitempty"`                   // 标记删除时间
	ErrorAt            *time.Time `gorm:"type:datetime;column:error_at" json:"error_at,omitempty"`                                         // 出错时间
	ErrorMessage       string     `gorm:"type:text;column:error_message" json:"error_message"`                                             // 运维诊断信息
	CreatedAt          time.Time  `gorm:"type:datetime;not null;index:idx_volumes_created_at;column:created_at" json:"created_at"`         // 创建时间
	UpdatedAt          time.Time  `gorm:"type:datetime;not null;column:updated_at" json:"updated_at"`
}

// TableName 指定表名
func (Volume) TableName() string {
	return "volumes"
}

// IsActive 是否是活跃卷（未删除且未标记删除）
func (v *Volume) IsActive() bool {
	return v.Deleted == nil && v.MarkedForDeletion == nil
}
