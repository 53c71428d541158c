// Package idgen 提供递增 ID 生成器
//
// 使用 Sonyflake 算法生成全局唯一且递增的 ID。
// Sonyflake 是 Snowflake 算法的改进版本，生成的 ID 具有以下特性：
//   - 全局唯一
//   - 时间有序（递增）
//   - 64 位整数
//   - 分布式友好
//
// 生成的 ID 格式：
//   - 主机名 ID: {base36 递增数字}，用于拼接桌面虚拟机的主机名
//   - 请求 ID: req-{递增数字}，用于回调请求的追踪
//
// 使用方式：
//
// 方式一：使用包级别的便捷函数（推荐，使用默认生成器）
//
//	hostnameID, err := idgen.GenerateHostnameID()
//	// hostnameID: "k3x9f2a"
//
// 方式二：创建自定义生成器
//
//	gen := idgen.New()
//	hostnameID, err := gen.GenerateHostnameID()
package idgen
