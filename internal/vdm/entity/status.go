package entity

// DesktopStatusView 桌面当前状态的只读视图
// 由最新的 VMStatus 记录转换而来，供状态查询接口返回
type DesktopStatusView struct {
	Username       string `json:"username"`        // 用户名
	DesktopID      string `json:"desktop_id"`      // 桌面类型 ID
	Status         string `json:"status"`          // 状态（如：VM_Okay）
	StatusProgress int    `json:"status_progress"` // 进度（0-100）
	StatusMessage  string `json:"status_message"`  // 人类可读的状态消息
	InstanceID     string `json:"instance_id,omitempty"` // 关联的实例 ID（可为空）
	CreatedAt      string `json:"created_at"`      // 记录创建时间
}

// PhoneHomeRequest 虚拟机首次启动完成后的回调请求
// cloud-init phone_home 模块以 form 编码发送
type PhoneHomeRequest struct {
	InstanceID string `json:"instance_id" form:"instance_id"` // 远端实例 ID
	Hostname   string `json:"hostname" form:"hostname"`       // 虚拟机主机名
	FQDN       string `json:"fqdn" form:"fqdn"`               // 完整域名（可为空）
}

// NotifyRequest 虚拟机状态上报请求
type NotifyRequest struct {
	Hostname string `json:"hostname" form:"hostname"` // 虚拟机主机名
	State    string `json:"state" form:"state"`       // 上报的状态（如：started）
	Address  string `json:"address" form:"address"`   // 远程桌面服务地址（可为空）
	Port     int    `json:"port" form:"port"`         // 远程桌面服务端口（可为空）
}
