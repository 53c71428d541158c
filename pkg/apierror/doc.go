// Package apierror 提供带错误码的错误类型，用于所有服务的统一错误处理
//
// 错误包含对外的 Code/Message 和仅用于服务端排查的 RawError。
// 支持 errors.Is / errors.As / errors.Unwrap 的标准错误链语义。
package apierror
