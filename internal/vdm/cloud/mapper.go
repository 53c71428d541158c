package cloud

// StatusMapper 远端状态到内部状态的封闭映射表
// 任何不在表内的远端值都映射到显式的默认值，
// 隔离远端 API 状态词汇的演化
type StatusMapper[S comparable, T any] struct {
	mapping      map[S]T
	defaultValue T
}

// NewStatusMapper 创建状态映射表
func NewStatusMapper[S comparable, T any](mapping map[S]T, defaultValue T) *StatusMapper[S, T] {
	m := make(map[S]T, len(mapping))
	for k, v := range mapping {
		m[k] = v
	}
	return &StatusMapper[S, T]{
		mapping:      m,
		defaultValue: defaultValue,
	}
}

// Get 返回远端状态对应的内部状态，未知值返回默认值
func (m *StatusMapper[S, T]) Get(status S) T {
	if value, ok := m.mapping[status]; ok {
		return value
	}
	return m.defaultValue
}
