package api

import (
	"github.com/gin-gonic/gin"

	"github.com/jimyag/vdm/internal/vdm/entity"
	"github.com/jimyag/vdm/internal/vdm/workflow"
	"github.com/jimyag/vdm/pkg/apierror"
	"github.com/jimyag/vdm/pkg/ginx"
)

// Callback 虚拟机内部发起的回调接口
// cloud-init 在首次启动完成后 phone-home，agent 上报状态变化
type Callback struct {
	orch *workflow.Orchestrator
}

// NewCallback 创建回调接口
func NewCallback(orch *workflow.Orchestrator) *Callback {
	return &Callback{orch: orch}
}

// RegisterRoutes 注册回调路由
func (c *Callback) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("/phone-home", ginx.Adapt4(c.PhoneHome))
	group.POST("/notify", ginx.Adapt4(c.Notify))
}

// PhoneHome 虚拟机首次启动完成
// cloud-init phone_home 模块以 form 编码发送 instance_id 和主机名
func (c *Callback) PhoneHome(ctx *gin.Context, req *entity.PhoneHomeRequest) error {
	if req.InstanceID == "" {
		return apierror.WrapError(apierror.ErrInvalidParameter, "instance_id is required", nil)
	}
	return c.orch.CompleteBoot(ctx.Request.Context(), req.InstanceID)
}

// Notify 虚拟机内 agent 上报状态变化
func (c *Callback) Notify(ctx *gin.Context, req *entity.NotifyRequest) error {
	if req.Hostname == "" {
		return apierror.WrapError(apierror.ErrInvalidParameter, "hostname is required", nil)
	}
	return c.orch.NotifyState(ctx.Request.Context(), req.Hostname, req.State)
}
