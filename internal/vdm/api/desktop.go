package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/copier"

	"github.com/jimyag/vdm/internal/vdm/cloud"
	"github.com/jimyag/vdm/internal/vdm/entity"
	"github.com/jimyag/vdm/internal/vdm/repository/model"
	"github.com/jimyag/vdm/internal/vdm/workflow"
	"github.com/jimyag/vdm/pkg/ginx"
)

// Desktop 桌面生命周期相关的接口
type Desktop struct {
	orch *workflow.Orchestrator
}

// NewDesktop 创建桌面接口
func NewDesktop(orch *workflow.Orchestrator) *Desktop {
	return &Desktop{orch: orch}
}

// RegisterRoutes 注册桌面路由
func (d *Desktop) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("/desktops", ginx.Adapt5(d.Launch))
	group.DELETE("/desktops/:user/:desktop", ginx.Adapt5(d.Delete))
	group.POST("/desktops/:user/:desktop/shelve", ginx.Adapt5(d.Shelve))
	group.POST("/desktops/:user/:desktop/reboot", ginx.Adapt5(d.Reboot))
	group.POST("/desktops/:user/:desktop/supersize", ginx.Adapt5(d.Supersize))
	group.POST("/desktops/:user/:desktop/downsize", ginx.Adapt5(d.Downsize))
	group.POST("/desktops/:user/:desktop/extend", ginx.Adapt5(d.ExtendBoost))
	group.POST("/desktops/:user/:desktop/extend-instance", ginx.Adapt5(d.ExtendInstance))
	group.GET("/desktops/:user/:desktop/status", ginx.Adapt5(d.Status))
}

// LaunchRequest 创建桌面请求
type LaunchRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Timezone  string `json:"timezone"`
	DesktopID string `json:"desktop_id"`
	Feature   string `json:"feature"`
}

// IsValid 校验请求参数
func (r *LaunchRequest) IsValid() error {
	if r.Username == "" {
		return errors.New("username is required")
	}
	if r.DesktopID == "" {
		return errors.New("desktop_id is required")
	}
	if r.Feature == "" {
		r.Feature = "desktops"
	}
	return nil
}

// Launch 创建桌面虚拟机
func (d *Desktop) Launch(ctx *gin.Context, req *LaunchRequest) (*entity.DesktopStatusView, error) {
	user := &entity.User{
		Username: req.Username,
		Email:    req.Email,
		Timezone: req.Timezone,
	}
	status, err := d.orch.LaunchDesktop(ctx.Request.Context(), user, req.DesktopID, req.Feature)
	if err != nil {
		return nil, err
	}
	return statusView(status), nil
}

// DesktopRequest 按用户和桌面类型定位桌面的请求
type DesktopRequest struct {
	Username  string `uri:"user"`
	DesktopID string `uri:"desktop"`
}

// IsValid 校验请求参数
func (r *DesktopRequest) IsValid() error {
	if r.Username == "" || r.DesktopID == "" {
		return errors.New("user and desktop are required")
	}
	return nil
}

// Delete 删除桌面
func (d *Desktop) Delete(ctx *gin.Context, req *DesktopRequest) (*entity.DesktopStatusView, error) {
	status, err := d.orch.DeleteDesktop(ctx.Request.Context(), &entity.User{Username: req.Username}, req.DesktopID)
	if err != nil {
		return nil, err
	}
	return statusView(status), nil
}

// Shelve 搁置桌面
func (d *Desktop) Shelve(ctx *gin.Context, req *DesktopRequest) (*entity.DesktopStatusView, error) {
	status, err := d.orch.ShelveDesktop(ctx.Request.Context(), &entity.User{Username: req.Username}, req.DesktopID)
	if err != nil {
		return nil, err
	}
	return statusView(status), nil
}

// RebootRequest 重启请求
type RebootRequest struct {
	Username  string `uri:"user"`
	DesktopID string `uri:"desktop"`
	Level     string `json:"level"`
}

// IsValid 校验请求参数
func (r *RebootRequest) IsValid() error {
	if r.Username == "" || r.DesktopID == "" {
		return errors.New("user and desktop are required")
	}
	switch r.Level {
	case "", string(cloud.RebootSoft), string(cloud.RebootHard):
		return nil
	}
	return fmt.Errorf("invalid reboot level %q", r.Level)
}

// Reboot 重启桌面，默认软重启
func (d *Desktop) Reboot(ctx *gin.Context, req *RebootRequest) (*entity.DesktopStatusView, error) {
	level := cloud.RebootSoft
	if req.Level == string(cloud.RebootHard) {
		level = cloud.RebootHard
	}
	status, err := d.orch.RebootDesktop(ctx.Request.Context(), &entity.User{Username: req.Username}, req.DesktopID, level)
	if err != nil {
		return nil, err
	}
	return statusView(status), nil
}

// SupersizeResponse 加大规格的响应
type SupersizeResponse struct {
	ResizeID uint   `json:"resize_id"`
	Expires  string `json:"expires"`
}

// Supersize 把桌面切到加大规格
func (d *Desktop) Supersize(ctx *gin.Context, req *DesktopRequest) (*SupersizeResponse, error) {
	resize, err := d.orch.SupersizeDesktop(ctx.Request.Context(), &entity.User{Username: req.Username}, req.DesktopID)
	if err != nil {
		return nil, err
	}
	resp := &SupersizeResponse{ResizeID: resize.ID}
	if resize.Expires != nil {
		resp.Expires = resize.Expires.Format(time.DateOnly)
	}
	return resp, nil
}

// Downsize 把桌面切回默认规格
func (d *Desktop) Downsize(ctx *gin.Context, req *DesktopRequest) (*entity.DesktopStatusView, error) {
	status, err := d.orch.DownsizeDesktop(ctx.Request.Context(), &entity.User{Username: req.Username}, req.DesktopID)
	if err != nil {
		return nil, err
	}
	return statusView(status), nil
}

// ExtendBoostRequest 延长加大规格请求
type ExtendBoostRequest struct {
	Username   string `uri:"user"`
	DesktopID  string `uri:"desktop"`
	InstanceID string `json:"instance_id"`
}

// IsValid 校验请求参数
func (r *ExtendBoostRequest) IsValid() error {
	if r.Username == "" || r.InstanceID == "" {
		return errors.New("user and instance_id are required")
	}
	return nil
}

// ExtendBoost 延长加大规格的期限
func (d *Desktop) ExtendBoost(ctx *gin.Context, req *ExtendBoostRequest) (string, error) {
	return d.orch.ExtendBoost(ctx.Request.Context(), &entity.User{Username: req.Username}, req.InstanceID)
}

// ExtendInstance 延长实例自身的生存期
func (d *Desktop) ExtendInstance(ctx *gin.Context, req *ExtendBoostRequest) (string, error) {
	return d.orch.ExtendInstance(ctx.Request.Context(), &entity.User{Username: req.Username}, req.InstanceID)
}

// Status 查询桌面当前状态
func (d *Desktop) Status(ctx *gin.Context, req *DesktopRequest) (*entity.DesktopStatusView, error) {
	status, err := d.orch.GetDesktopStatus(ctx.Request.Context(), req.Username, req.DesktopID)
	if err != nil {
		return nil, err
	}
	return statusView(status), nil
}

// statusView 把状态记录转换成对外视图
func statusView(status *model.VMStatus) *entity.DesktopStatusView {
	view := &entity.DesktopStatusView{}
	_ = copier.Copy(view, status)
	view.DesktopID = status.OperatingSystem
	if status.InstanceID != nil {
		view.InstanceID = *status.InstanceID
	}
	if !status.CreatedAt.IsZero() {
		view.CreatedAt = status.CreatedAt.UTC().Format(time.RFC3339)
	}
	return view
}
