package cloud

// Server 云端服务器镜像对象
type Server struct {
	ID          string            `json:"id"`          // 远端服务器 ID
	Name        string            `json:"name"`        // 名称
	Description string            `json:"description"` // 描述
	Metadata    map[string]string `json:"metadata"`    // 元数据
	Zone        string            `json:"zone"`        // 可用区
}

// Volume 云端块存储卷镜像对象
type Volume struct {
	ID          string            `json:"id"`          // 远端卷 ID
	Name        string            `json:"name"`        // 名称
	Description string            `json:"description"` // 描述
	Metadata    map[string]string `json:"metadata"`    // 元数据
	Bootable    bool              `json:"bootable"`    // 是否可启动
	Zone        string            `json:"zone"`        // 可用区
}

// VolumeBackup 云端卷备份镜像对象
type VolumeBackup struct {
	ID          string            `json:"id"`          // 远端备份 ID
	Name        string            `json:"name"`        // 名称
	Description string            `json:"description"` // 描述
	Metadata    map[string]string `json:"metadata"`    // 元数据
	Zone        string            `json:"zone"`        // 可用区
}

// Flavor 服务器规格
type Flavor struct {
	ID       string `json:"id"`        // 规格 ID
	Name     string `json:"name"`      // 名称
	RAMMB    int    `json:"ram_mb"`    // 内存（MB）
	DiskGB   int    `json:"disk_gb"`   // 磁盘（GB）
	NumVCPUs int    `json:"num_vcpus"` // 虚拟 CPU 数量
}

// Network 云端网络
type Network struct {
	ID   string `json:"id"`   // 网络 ID
	Name string `json:"name"` // 名称
}

// ConsoleProtocol 控制台协议
type ConsoleProtocol string

const (
	ConsoleProtocolVNC   ConsoleProtocol = "vnc"
	ConsoleProtocolSPICE ConsoleProtocol = "spice"
)

// ConsoleInfo 服务器控制台连接信息
type ConsoleInfo struct {
	Protocol ConsoleProtocol `json:"protocol"` // 协议
	Host     string          `json:"host"`     // 地址
	Port     int             `json:"port"`     // 端口
}

// ServerStatus 服务器的内部状态枚举（封闭集合）
type ServerStatus string

const (
	// 默认状态
	ServerStatusUnknown ServerStatus = "UNKNOWN"

	// 故障状态
	ServerStatusError   ServerStatus = "ERROR"
	ServerStatusDeleted ServerStatus = "DELETED"

	// 进行中状态
	ServerStatusActive       ServerStatus = "ACTIVE"
	ServerStatusBuild        ServerStatus = "BUILD"
	ServerStatusRebuild      ServerStatus = "REBUILD"
	ServerStatusResize       ServerStatus = "RESIZE"
	ServerStatusVerifyResize ServerStatus = "VERIFY_RESIZE"
	ServerStatusMigrating    ServerStatus = "MIGRATING"

	// 其他状态
	ServerStatusRescue           ServerStatus = "RESCUE"
	ServerStatusRevertResize     ServerStatus = "REVERT_RESIZE"
	ServerStatusShelved          ServerStatus = "SHELVED"
	ServerStatusShelvedOffloaded ServerStatus = "SHELVED_OFFLOADED"
	ServerStatusSoftDeleted      ServerStatus = "SOFT_DELETED"
	ServerStatusPaused           ServerStatus = "PAUSED"
	ServerStatusSuspended        ServerStatus = "SUSPENDED"
	ServerStatusShutoff          ServerStatus = "SHUTOFF"
	ServerStatusReboot           ServerStatus = "REBOOT"
	ServerStatusHardReboot       ServerStatus = "HARD_REBOOT"
	ServerStatusPassword         ServerStatus = "PASSWORD"
)

// VolumeStatus 卷的内部状态枚举（封闭集合）
type VolumeStatus string

const (
	// 默认状态
	VolumeStatusUnknown VolumeStatus = "UNKNOWN"

	// 主要状态
	VolumeStatusCreating  VolumeStatus = "CREATING"
	VolumeStatusAvailable VolumeStatus = "AVAILABLE"
	VolumeStatusInUse     VolumeStatus = "IN_USE"
	VolumeStatusDeleting  VolumeStatus = "DELETING"

	// 故障状态
	VolumeStatusError          VolumeStatus = "ERROR"
	VolumeStatusErrorDeleting  VolumeStatus = "ERROR_DELETING"
	VolumeStatusErrorManaging  VolumeStatus = "ERROR_MANAGING"
	VolumeStatusErrorRestoring VolumeStatus = "ERROR_RESTORING"
	VolumeStatusErrorBackingUp VolumeStatus = "ERROR_BACKING_UP"
	VolumeStatusErrorExtending VolumeStatus = "ERROR_EXTENDING"

	// 其他状态
	VolumeStatusManaging         VolumeStatus = "MANAGING"
	VolumeStatusAttaching        VolumeStatus = "ATTACHING"
	VolumeStatusDetaching        VolumeStatus = "DETACHING"
	VolumeStatusMaintenance      VolumeStatus = "MAINTENANCE"
	VolumeStatusRestoringBackup  VolumeStatus = "RESTORING_BACKUP"
	VolumeStatusReserved         VolumeStatus = "RESERVED"
	VolumeStatusAwaitingTransfer VolumeStatus = "AWAITING_TRANSFER"
	VolumeStatusBackingUp        VolumeStatus = "BACKING_UP"
	VolumeStatusDownloading      VolumeStatus = "DOWNLOADING"
	VolumeStatusUploading        VolumeStatus = "UPLOADING"
	VolumeStatusRetyping         VolumeStatus = "RETYPING"
	VolumeStatusExtending        VolumeStatus = "EXTENDING"
)

// BackupStatus 卷备份的内部状态枚举（封闭集合）
type BackupStatus string

const (
	BackupStatusUnknown   BackupStatus = "UNKNOWN"
	BackupStatusCreating  BackupStatus = "CREATING"
	BackupStatusAvailable BackupStatus = "AVAILABLE"
	BackupStatusDeleting  BackupStatus = "DELETING"
	BackupStatusError     BackupStatus = "ERROR"
	BackupStatusRestoring BackupStatus = "RESTORING"
)

// Existence 存在性查询的三值结果
// Unknown 表示远端调用本身失败，必须与 Absent 区分处理
type Existence int

const (
	ExistenceUnknown Existence = iota // 远端调用失败，结果未知
	ExistencePresent                  // 资源存在
	ExistenceAbsent                   // 确认不存在
)

// String 实现 fmt.Stringer
func (e Existence) String() string {
	switch e {
	case ExistencePresent:
		return "present"
	case ExistenceAbsent:
		return "absent"
	default:
		return "unknown"
	}
}
