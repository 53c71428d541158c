// Package environment 提供部署环境相关的命名、密码和时钟策略
//
// 编排逻辑通过 Environment 接口取得服务器名、主机名、随机密码
// 和当前时间，接口可注入假实现使工作流测试完全确定。
package environment

import (
	"fmt"
	"time"

	"github.com/jimyag/vdm/pkg/cloudinit"
)

// Environment 环境策略接口
type Environment interface {
	// GenerateServerName 生成服务器名：{username}_{desktopID}
	GenerateServerName(username, desktopID string) string
	// GenerateHostname 生成虚拟机主机名
	GenerateHostname(hostnameID, desktopID string) string
	// GetDomain 返回用户所在的域名
	GetDomain(username string) string
	// Now 返回当前时间
	Now() time.Time
	// AfterTime 返回当前时间加 d
	AfterTime(d time.Duration) time.Time
	// GeneratePassword 生成随机桌面登录密码
	GeneratePassword() (string, error)
}

// Standard 标准环境策略
type Standard struct {
	Domain         string // 桌面所在域名
	PasswordLength int    // 生成密码的长度
}

var _ Environment = (*Standard)(nil)

// NewStandard 创建标准环境策略
func NewStandard(domain string) *Standard {
	return &Standard{
		Domain:         domain,
		PasswordLength: 20,
	}
}

// GenerateServerName 生成服务器名：{username}_{desktopID}
func (s *Standard) GenerateServerName(username, desktopID string) string {
	return fmt.Sprintf("%s_%s", username, desktopID)
}

// GenerateHostname 生成主机名：vd{桌面类型首字母}-{hostnameID}
func (s *Standard) GenerateHostname(hostnameID, desktopID string) string {
	prefix := "x"
	if desktopID != "" {
		prefix = desktopID[:1]
	}
	return fmt.Sprintf("vd%s-%s", prefix, hostnameID)
}

// GetDomain 返回用户所在的域名
func (s *Standard) GetDomain(username string) string {
	return s.Domain
}

// Now 返回当前时间（UTC）
func (s *Standard) Now() time.Time {
	return time.Now().UTC()
}

// AfterTime 返回当前时间加 d
func (s *Standard) AfterTime(d time.Duration) time.Time {
	return s.Now().Add(d)
}

// GeneratePassword 生成随机桌面登录密码
func (s *Standard) GeneratePassword() (string, error) {
	return cloudinit.GeneratePassword(s.PasswordLength)
}
