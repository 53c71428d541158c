// Package entity 定义业务实体
package entity

// User 桌面所属的用户
// 认证和用户管理由外部系统负责，这里只携带编排需要的字段
type User struct {
	Username string `json:"username"` // 用户名，跨系统唯一
	Email    string `json:"email"`    // 邮箱（用于通知，可为空）
	Timezone string `json:"timezone"` // 用户偏好时区（为空则使用服务默认时区）
}
