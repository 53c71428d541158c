// Package cloud 定义云平台能力接口和云端镜像对象
//
// Connector 把远端云平台的 server/volume/backup 操作和状态词汇
// 归一化成一组封闭的内部枚举，编排逻辑只依赖这个接口。
// 镜像对象（Server、Volume 等）只携带 id 和元数据，按需构造，
// 从不持久化。
//
// 存在性查询返回三值结果 Existence：
//   - Present：资源存在
//   - Absent：确认不存在
//   - Unknown：远端调用本身失败（瞬时错误，不等于不存在）
//
// 调用方必须区分 Unknown 和 Absent：Unknown 重试同一检查，
// Absent 进入下一步（删除流程中视为成功）。
package cloud
