package environment

import (
	"sync"
	"time"
)

// Fake 测试用环境策略，时钟可手动拨动
type Fake struct {
	mu       sync.Mutex
	now      time.Time
	Domain   string
	Password string // GeneratePassword 的固定返回值
}

var _ Environment = (*Fake)(nil)

// NewFake 创建假环境，时钟从 now 开始
func NewFake(now time.Time) *Fake {
	return &Fake{
		now:      now,
		Domain:   "test",
		Password: "fake-password",
	}
}

// Advance 拨动时钟
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// SetNow 直接设置当前时间
func (f *Fake) SetNow(now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = now
}

// GenerateServerName 与标准实现一致
func (f *Fake) GenerateServerName(username, desktopID string) string {
	return (&Standard{}).GenerateServerName(username, desktopID)
}

// GenerateHostname 与标准实现一致
func (f *Fake) GenerateHostname(hostnameID, desktopID string) string {
	return (&Standard{}).GenerateHostname(hostnameID, desktopID)
}

// GetDomain 返回固定域名
func (f *Fake) GetDomain(username string) string {
	return f.Domain
}

// Now 返回假时钟的当前时间
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// AfterTime 返回假时钟的当前时间加 d
func (f *Fake) AfterTime(d time.Duration) time.Time {
	return f.Now().Add(d)
}

// GeneratePassword 返回固定密码
func (f *Fake) GeneratePassword() (string, error) {
	return f.Password, nil
}
