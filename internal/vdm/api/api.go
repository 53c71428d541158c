package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jimyag/vdm/internal/vdm/workflow"
)

// API HTTP 接口层
type API struct {
	engine *gin.Engine
	server *http.Server

	desktop  *Desktop
	callback *Callback
	console  *Console
}

// New 创建 API，注册所有路由
func New(addr string, orch *workflow.Orchestrator) (*API, error) {
	engine := gin.New()
	engine.Use(gin.Recovery())

	api := &API{
		engine:   engine,
		desktop:  NewDesktop(orch),
		callback: NewCallback(orch),
		console:  NewConsole(orch),
	}
	apiGroup := engine.Group("/api")
	api.desktop.RegisterRoutes(apiGroup)
	api.console.RegisterRoutes(apiGroup)
	api.callback.RegisterRoutes(engine.Group("/callback"))
	engine.GET("/health", api.health)

	api.server = &http.Server{
		Addr:    addr,
		Handler: engine,
	}
	return api, nil
}

func (a *API) health(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Engine 返回底层的 gin engine，测试用
func (a *API) Engine() *gin.Engine {
	return a.engine
}

// Name 实现 grace.Grace 接口
func (a *API) Name() string {
	return "VDM API"
}

// Run 实现 grace.Grace 接口
func (a *API) Run(ctx context.Context) error {
	err := a.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown 实现 grace.Grace 接口
func (a *API) Shutdown(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}
