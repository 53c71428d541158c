package api

import (
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/jimyag/vdm/internal/vdm/workflow"
	"github.com/jimyag/vdm/pkg/apierror"
	"github.com/jimyag/vdm/pkg/consoleproxy"
	"github.com/jimyag/vdm/pkg/ginx"
)

// Console 桌面控制台的 WebSocket 接入
type Console struct {
	orch     *workflow.Orchestrator
	upgrader websocket.Upgrader
}

// NewConsole 创建控制台接口
func NewConsole(orch *workflow.Orchestrator) *Console {
	return &Console{
		orch: orch,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  32768,
			WriteBufferSize: 32768,
		},
	}
}

// RegisterRoutes 注册控制台路由
func (c *Console) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/desktops/:user/:desktop/console", ginx.Adapt1(c.Connect))
}

// Connect 升级到 WebSocket 并转发控制台流量
// 错误在升级前通过 renderError 返回，升级后只能断开连接
func (c *Console) Connect(ctx *gin.Context) error {
	req := &DesktopRequest{}
	if err := ctx.ShouldBindUri(req); err != nil {
		return apierror.WrapError(apierror.ErrInvalidParameter, "invalid console request", err)
	}
	if err := req.IsValid(); err != nil {
		return apierror.WrapError(apierror.ErrInvalidParameter, err.Error(), nil)
	}

	endpoint, err := c.orch.GetConsoleEndpoint(ctx.Request.Context(), req.Username, req.DesktopID)
	if err != nil {
		return err
	}

	wsConn, err := c.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		return err
	}

	// 升级之后连接已被接管，错误只能记录并断开
	proxy := consoleproxy.New(endpoint, wsConn)
	if err := proxy.Start(ctx.Request.Context()); err != nil {
		zerolog.Ctx(ctx.Request.Context()).Warn().Err(err).
			Str("username", req.Username).
			Str("desktop_id", req.DesktopID).
			Msg("console proxy ended with error")
		wsConn.Close()
	}
	return nil
}
