package idgen

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sony/sonyflake"
)

// Generator 递增 ID 生成器
// 使用 Sonyflake 算法生成全局唯一且递增的 ID
type Generator struct {
	sf *sonyflake.Sonyflake
}

var (
	defaultGenerator     *Generator
	defaultGeneratorOnce sync.Once
)

// initDefaultGenerator 初始化默认生成器
func initDefaultGenerator() {
	defaultGenerator = New()
}

// DefaultGenerator 返回默认的 ID 生成器
func DefaultGenerator() *Generator {
	defaultGeneratorOnce.Do(initDefaultGenerator)
	return defaultGenerator
}

// New 创建新的 ID 生成器
func New() *Generator {
	// 使用默认设置创建 Sonyflake
	// 如果需要自定义机器 ID，可以通过 Settings 配置
	sf := sonyflake.NewSonyflake(sonyflake.Settings{
		StartTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), // 起始时间
	})
	if sf == nil {
		// 如果创建失败，使用当前时间作为起始时间
		sf = sonyflake.NewSonyflake(sonyflake.Settings{
			StartTime: time.Now(),
		})
	}

	return &Generator{
		sf: sf,
	}
}

// GenerateHostnameID 生成主机名 ID（base36 编码，小写字母和数字）
// 结果可直接拼入 DNS 主机名
func (g *Generator) GenerateHostnameID() (string, error) {
	id, err := g.sf.NextID()
	if err != nil {
		return "", fmt.Errorf("generate hostname ID: %w", err)
	}
	return strconv.FormatUint(id, 36), nil
}

// GenerateRequestID 生成请求 ID（格式：req-{递增数字}）
func (g *Generator) GenerateRequestID() (string, error) {
	id, err := g.sf.NextID()
	if err != nil {
		return "", fmt.Errorf("generate request ID: %w", err)
	}
	return fmt.Sprintf("req-%d", id), nil
}

// GenerateID 生成通用递增 ID
func (g *Generator) GenerateID() (uint64, error) {
	return g.sf.NextID()
}

// 包级别的便捷函数，使用默认生成器

// GenerateHostnameID 使用默认生成器生成主机名 ID
func GenerateHostnameID() (string, error) {
	return DefaultGenerator().GenerateHostnameID()
}

// GenerateRequestID 使用默认生成器生成请求 ID
func GenerateRequestID() (string, error) {
	return DefaultGenerator().GenerateRequestID()
}

// GenerateID 使用默认生成器生成通用递增 ID
func GenerateID() (uint64, error) {
	return DefaultGenerator().GenerateID()
}
