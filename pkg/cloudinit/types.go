package cloudinit

// DesktopConfig 桌面虚拟机的 cloud-init 配置
type DesktopConfig struct {
	Hostname     string   // 主机名
	Username     string   // 桌面登录用户名
	Password     string   // 桌面登录密码（明文，会被 bcrypt 哈希）
	Timezone     string   // 时区（如：Australia/Melbourne）
	PhoneHomeURL string   // 虚拟机启动完成后回调的 URL
	NotifyURL    string   // 虚拟机状态变化时回调的 URL
	Packages     []string // 要安装的软件包
	Commands     []string // 启动后执行的命令
	WriteFiles   []File   // 要写入的文件
}

// File 要写入的文件
type File struct {
	Path        string // 文件路径
	Content     string // 文件内容
	Owner       string // 文件所有者（默认：root:root）
	Permissions string // 文件权限（默认：0644）
}

// ============================================================================
// 标准的 cloud-init 数据结构（可直接序列化为 YAML）
// ============================================================================

// MetaData 标准的 cloud-init meta-data 结构
type MetaData struct {
	InstanceID    string `yaml:"instance-id"`
	LocalHostname string `yaml:"local-hostname"`
}

// UserData 标准的 cloud-init user-data 结构
// 可直接序列化为 YAML 格式
type UserData struct {
	Hostname    string      `yaml:"hostname,omitempty"`     // 主机名
	FQDN        string      `yaml:"fqdn,omitempty"`         // 完整域名
	Users       []any       `yaml:"users,omitempty"`        // 用户列表：可包含 "default" 字符串和 User 对象
	DisableRoot bool        `yaml:"disable_root,omitempty"` // 禁用 root 登录
	Timezone    string      `yaml:"timezone,omitempty"`     // 时区
	Packages    []string    `yaml:"packages,omitempty"`     // 要安装的软件包列表
	RunCmd      []string    `yaml:"runcmd,omitempty"`       // 启动后执行的命令
	WriteFiles  []WriteFile `yaml:"write_files,omitempty"`  // 要写入的文件列表
	SSHPwauth   *bool       `yaml:"ssh_pwauth,omitempty"`   // 启用 SSH 密码认证
	ChPasswd    *ChPasswd   `yaml:"chpasswd,omitempty"`     // 修改用户密码
	PhoneHome   *PhoneHome  `yaml:"phone_home,omitempty"`   // 启动完成后的回调
}

// User cloud-init 用户配置
type User struct {
	Name              string   `yaml:"name,omitempty"`                // 用户登录名
	Gecos             string   `yaml:"gecos,omitempty"`               // 用户全名/描述
	Groups            string   `yaml:"groups,omitempty"`              // 附加组，逗号分隔
	LockPasswd        *bool    `yaml:"lock_passwd,omitempty"`         // 锁定密码登录
	Passwd            string   `yaml:"passwd,omitempty"`              // 密码哈希
	Sudo              any      `yaml:"sudo,omitempty"`                // sudo 规则：string, []string 或 false
	Shell             string   `yaml:"shell,omitempty"`               // 登录 Shell
	SSHAuthorizedKeys []string `yaml:"ssh_authorized_keys,omitempty"` // SSH 公钥列表
}

// WriteFile cloud-init write_files 条目
type WriteFile struct {
	Path        string `yaml:"path"`
	Content     string `yaml:"content"`
	Owner       string `yaml:"owner,omitempty"`
	Permissions string `yaml:"permissions,omitempty"`
}

// ChPasswd 密码修改配置
type ChPasswd struct {
	Expire bool     `yaml:"expire"`          // 首次登录时强制修改密码
	List   []string `yaml:"list,omitempty"`  // 用户：密码 列表
}

// PhoneHome cloud-init phone_home 模块配置
// 虚拟机完成首次启动后向 URL 发送 POST 请求
type PhoneHome struct {
	URL   string   `yaml:"url"`
	Post  []string `yaml:"post,omitempty"`
	Tries int      `yaml:"tries,omitempty"`
}
