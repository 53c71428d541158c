package ginx

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// hasJSONBody 检查请求是否携带 JSON body
func hasJSONBody(ctx *gin.Context) bool {
	contentType := ctx.GetHeader("Content-Type")
	return strings.Contains(contentType, "application/json")
}

// bindArgs 绑定请求参数到 args 结构体
// 优先级：JSON Body > URI 参数 > Query 参数 > Form 参数
func bindArgs(ctx *gin.Context, args interface{}) error {
	// 1. 尝试从 JSON body 绑定
	// 只在 Content-Type 是 JSON 时尝试，避免消耗 form body
	if hasJSONBody(ctx) {
		if err := ctx.ShouldBindJSON(args); err == nil {
			// JSON 绑定成功，同时尝试绑定 URI 和 Query 参数
			_ = ctx.ShouldBindUri(args)
			_ = ctx.ShouldBindQuery(args)
			return nil
		}
	}

	// 2. 尝试从 URI 参数绑定
	if err := ctx.ShouldBindUri(args); err == nil {
		// URI 绑定成功，同时绑定 Query 参数
		_ = ctx.ShouldBindQuery(args)
		// Form 参数也可能携带字段（cloud-init phone_home 使用 form 编码）
		_ = ctx.ShouldBind(args)
		return nil
	}

	// 3. 尝试从 Query 参数绑定
	if err := ctx.ShouldBindQuery(args); err == nil {
		return nil
	}

	// 4. 尝试从 Form 绑定
	return ctx.ShouldBind(args)
}
