package cloudinit

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// Generator cloud-init 配置生成器
type Generator struct{}

// NewGenerator 创建新的 cloud-init 生成器
func NewGenerator() *Generator {
	return &Generator{}
}

// GenerateMetaData 生成 meta-data 文件内容
func (g *Generator) GenerateMetaData(hostname string) (string, error) {
	if hostname == "" {
		hostname = "localhost"
	}

	instanceID, err := generateInstanceID()
	if err != nil {
		return "", err
	}

	metaData := &MetaData{
		InstanceID:    instanceID,
		LocalHostname: hostname,
	}

	yamlData, err := yaml.Marshal(metaData)
	if err != nil {
		return "", fmt.Errorf("failed to marshal meta-data to YAML: %v", err)
	}

	return string(yamlData), nil
}

// GenerateUserDataFromStruct 直接从 UserData 结构生成 user-data 文件内容
// 这个方法提供最大的灵活性，允许调用方完全控制输出
func (g *Generator) GenerateUserDataFromStruct(userData *UserData) (string, error) {
	if userData == nil {
		return "", fmt.Errorf("userData is required")
	}

	yamlData, err := yaml.Marshal(userData)
	if err != nil {
		return "", fmt.Errorf("failed to marshal user-data to YAML: %v", err)
	}

	// 添加 cloud-config header
	result := "#cloud-config\n" + string(yamlData)
	return result, nil
}

// GenerateDesktopUserData 生成桌面虚拟机的 user-data 文件内容
// 自动处理密码哈希、启动回调和状态上报命令
func (g *Generator) GenerateDesktopUserData(config *DesktopConfig) (string, error) {
	if config == nil {
		return "", fmt.Errorf("config is required")
	}
	if config.Hostname == "" {
		return "", fmt.Errorf("hostname is required")
	}
	if config.Username == "" {
		return "", fmt.Errorf("username is required")
	}

	userData := &UserData{
		Hostname: config.Hostname,
		Timezone: config.Timezone,
		Packages: config.Packages,
	}

	lockPasswd := false
	desktopUser := User{
		Name:       config.Username,
		Gecos:      "Virtual Desktop User",
		Groups:     "sudo",
		Shell:      "/bin/bash",
		Sudo:       []string{"ALL=(ALL) NOPASSWD:ALL"},
		LockPasswd: &lockPasswd,
	}
	if config.Password != "" {
		hashedPassword, err := HashPassword(config.Password)
		if err != nil {
			return "", fmt.Errorf("failed to hash password for user %s: %v", config.Username, err)
		}
		desktopUser.Passwd = hashedPassword
	}
	userData.Users = []any{"default", desktopUser}

	// 启动完成后向编排服务回调，携带实例 ID 与主机名
	if config.PhoneHomeURL != "" {
		userData.PhoneHome = &PhoneHome{
			URL:   config.PhoneHomeURL,
			Post:  []string{"instance_id", "hostname", "fqdn"},
			Tries: 10,
		}
	}

	// 状态变化时的上报命令先于调用方自定义命令执行
	var commands []string
	if config.NotifyURL != "" {
		commands = append(commands, fmt.Sprintf(
			`curl -fsS -X POST -d "hostname=$(hostname)&state=started" %s || true`,
			config.NotifyURL))
	}
	commands = append(commands, config.Commands...)
	userData.RunCmd = commands

	if len(config.WriteFiles) > 0 {
		for _, file := range config.WriteFiles {
			owner := file.Owner
			if owner == "" {
				owner = "root:root"
			}
			permissions := file.Permissions
			if permissions == "" {
				permissions = "0644"
			}

			userData.WriteFiles = append(userData.WriteFiles, WriteFile{
				Path:        file.Path,
				Content:     file.Content,
				Owner:       owner,
				Permissions: permissions,
			})
		}
	}

	return g.GenerateUserDataFromStruct(userData)
}

// HashPassword 使用 bcrypt 加密密码
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// 密码字符集不包含易混淆字符（0/O、1/l/I）
const passwordAlphabet = "abcdefghjkmnpqrstuvwxyzABCDEFGHJKMNPQRSTUVWXYZ23456789"

// GeneratePassword 生成随机桌面登录密码
func GeneratePassword(length int) (string, error) {
	if length <= 0 {
		length = 20
	}
	buf := make([]byte, length)
	max := big.NewInt(int64(len(passwordAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate password: %w", err)
		}
		buf[i] = passwordAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// generateInstanceID 生成随机的 instance-id
func generateInstanceID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return fmt.Sprintf("i-%x", b), nil
}
