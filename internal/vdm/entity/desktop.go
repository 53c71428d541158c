package entity

// DesktopType 桌面类型定义
// 从配置的桌面目录加载，决定创建虚拟机时的镜像、规格和安全组
type DesktopType struct {
	ID              string   `json:"id" yaml:"id"`                             // 桌面类型 ID（如：generic）
	Name            string   `json:"name" yaml:"name"`                         // 展示名称
	Feature         string   `json:"feature" yaml:"feature"`                   // 所属功能域（如：researcher_desktop）
	ImageNamePrefix string   `json:"image_name_prefix" yaml:"image_name_prefix"` // 源镜像 Volume 名称前缀
	DefaultFlavorID string   `json:"default_flavor_id" yaml:"default_flavor_id"` // 默认规格 ID
	BigFlavorID     string   `json:"big_flavor_id" yaml:"big_flavor_id"`       // 加大规格 ID（supersize 使用）
	VolumeSizeGB    int      `json:"volume_size_gb" yaml:"volume_size_gb"`     // 启动盘大小（GB）
	SecurityGroups  []string `json:"security_groups" yaml:"security_groups"`   // 安全组列表
}

// AvailabilityZone 可用区及其接入网络
type AvailabilityZone struct {
	Name      string `json:"name" yaml:"name"`             // 可用区名称
	NetworkID string `json:"network_id" yaml:"network_id"` // 创建虚拟机时挂接的网络 ID
	ZoneWeight int   `json:"zone_weight" yaml:"zone_weight"` // 选择权重，越小越优先
}
