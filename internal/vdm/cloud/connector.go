package cloud

import (
	"context"
	"fmt"
)

// RebootLevel 重启级别
type RebootLevel string

const (
	RebootSoft RebootLevel = "SOFT" // 软重启（操作系统内重启）
	RebootHard RebootLevel = "HARD" // 硬重启（电源级重启）
)

// CreateServerRequest 创建服务器请求
type CreateServerRequest struct {
	Name           string            // 服务器名称
	FlavorID       string            // 规格 ID
	BootVolume     *Volume           // 启动卷
	Description    string            // 描述
	Metadata       map[string]string // 元数据
	UserData       string            // cloud-init userdata
	Networks       []*Network        // 挂接的网络
	SecurityGroups []string          // 安全组
	KeyName        string            // 密钥对名称（可为空）
	Zone           string            // 可用区
}

// CreateVolumeRequest 创建卷请求
type CreateVolumeRequest struct {
	Name         string            // 卷名称
	SizeGB       int               // 大小（GB）
	SourceVolume *Volume           // 源卷（从该卷克隆，可为空）
	Description  string            // 描述
	Metadata     map[string]string // 元数据
	Zone         string            // 可用区
	ReadOnly     bool              // 只读
	Bootable     bool              // 可启动
}

// CreateVolumeBackupRequest 创建卷备份请求
type CreateVolumeBackupRequest struct {
	Volume      *Volume           // 源卷
	Name        string            // 备份名称
	Description string            // 描述
	Metadata    map[string]string // 元数据
	Zone        string            // 可用区
}

// Connector 云平台能力接口
//
// 副作用操作（创建/删除）对编排逻辑是幂等的：
// 删除一个已删除的资源返回成功而不是错误。
// 存在性查询返回 Existence 三值结果，Unknown 时附带失败原因。
type Connector interface {
	// 服务器操作
	CreateServer(ctx context.Context, req *CreateServerRequest) (*Server, error)
	GetServerList(ctx context.Context) ([]*Server, error)
	GetServerFlavor(ctx context.Context, server *Server) (*Flavor, error)
	GetServerStatus(ctx context.Context, server *Server) (ServerStatus, error)
	ResizeServer(ctx context.Context, server *Server, flavor *Flavor) error
	ConfirmResize(ctx context.Context, server *Server) error
	RebootServer(ctx context.Context, server *Server, level RebootLevel) error
	StopServer(ctx context.Context, server *Server) error
	GetServerZone(ctx context.Context, server *Server) (string, error)
	IsServerCreated(ctx context.Context, server *Server) (Existence, error)
	DeleteServer(ctx context.Context, server *Server) error
	GetConsoleInfo(ctx context.Context, server *Server) (*ConsoleInfo, error)

	// 卷操作
	CreateVolume(ctx context.Context, req *CreateVolumeRequest) (*Volume, error)
	GetVolumeList(ctx context.Context) ([]*Volume, error)
	GetVolumeStatus(ctx context.Context, volume *Volume) (VolumeStatus, error)
	GetVolumeZone(ctx context.Context, volume *Volume) (string, error)
	IsVolumeCreated(ctx context.Context, volume *Volume) (Existence, error)
	DeleteVolume(ctx context.Context, volume *Volume) error

	// 备份操作
	CreateVolumeBackup(ctx context.Context, req *CreateVolumeBackupRequest) (*VolumeBackup, error)
	GetBackupStatus(ctx context.Context, backup *VolumeBackup) (BackupStatus, error)
	IsBackupCreated(ctx context.Context, backup *VolumeBackup) (Existence, error)
	DeleteVolumeBackup(ctx context.Context, backup *VolumeBackup) error
}

// Error 连接器错误
// 表示请求本身不合法（属性组合非法、参数格式错误），
// 区别于存在性查询的三值信号和瞬时远端失败
type Error struct {
	Op      string // 出错的操作（如：CreateServer）
	Message string // 错误描述
	Err     error  // 底层错误（可为空）
}

// Error 实现 error 接口
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cloud: %s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("cloud: %s: %s", e.Op, e.Message)
}

// Unwrap 返回底层错误
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError 创建连接器错误
func NewError(op, message string, err error) *Error {
	return &Error{Op: op, Message: message, Err: err}
}
