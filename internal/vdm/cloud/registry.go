package cloud

import (
	"fmt"
	"sort"
	"sync"
)

// Kind 连接器类型标识，来自配置
type Kind string

// Factory 连接器构造函数
type Factory func() (Connector, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[Kind]Factory)
)

// Register 注册连接器构造函数
// 同一 Kind 重复注册会 panic，应在包 init 中调用一次
func Register(kind Kind, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if factory == nil {
		panic("cloud: Register factory is nil")
	}
	if _, dup := registry[kind]; dup {
		panic(fmt.Sprintf("cloud: Register called twice for connector %q", kind))
	}
	registry[kind] = factory
}

// New 按类型构造连接器，启动时解析一次
func New(kind Kind) (Connector, error) {
	registryMu.RLock()
	factory, ok := registry[kind]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("cloud: unknown connector %q (registered: %v)", kind, Kinds())
	}
	return factory()
}

// Kinds 返回已注册的连接器类型，按名称排序
func Kinds() []Kind {
	registryMu.RLock()
	defer registryMu.RUnlock()

	kinds := make([]Kind, 0, len(registry))
	for kind := range registry {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
