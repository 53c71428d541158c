// Package vdm 提供虚拟桌面编排服务的主入口和初始化逻辑
package vdm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jimmicro/grace"
	"github.com/rs/zerolog"

	"github.com/jimyag/vdm/internal/vdm/api"
	"github.com/jimyag/vdm/internal/vdm/cloud"
	"github.com/jimyag/vdm/internal/vdm/cloud/environment"
	_ "github.com/jimyag/vdm/internal/vdm/cloud/mock" // 注册 mock 连接器
	"github.com/jimyag/vdm/internal/vdm/config"
	"github.com/jimyag/vdm/internal/vdm/repository"
	"github.com/jimyag/vdm/internal/vdm/scheduler"
	"github.com/jimyag/vdm/internal/vdm/workflow"
)

type Server struct {
	cfg   *config.Config
	api   *api.API
	sched *scheduler.Timer
	orch  *workflow.Orchestrator
	repo  *repository.Repository
}

func New(cfg *config.Config) (*Server, error) {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &logger

	// 1. 打开系统记录数据库
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	repo, err := repository.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}
	logger.Info().Str("path", cfg.DBPath).Msg("Repository opened")

	// 2. 加载桌面目录
	catalog, err := cfg.LoadCatalog()
	if err != nil {
		return nil, err
	}
	logger.Info().
		Int("desktop_types", len(catalog.DesktopTypes)).
		Int("zones", len(catalog.Zones)).
		Msg("Desktop catalog loaded")

	// 3. 创建云连接器
	connector, err := cloud.New(cloud.Kind(cfg.CloudConnector))
	if err != nil {
		return nil, err
	}
	logger.Info().Str("connector", cfg.CloudConnector).Msg("Cloud connector ready")

	// 4. 创建调度器和编排器
	sched := scheduler.NewTimer()
	orch := workflow.New(workflow.Params{
		Repo:      repo,
		Connector: connector,
		Env:       environment.NewStandard(cfg.Domain),
		Scheduler: sched,
		Catalog:   catalog,
		SiteURL:   cfg.SiteURL,
	})

	// 5. 创建 API
	apiInstance, err := api.New(cfg.Address, orch)
	if err != nil {
		return nil, err
	}

	server := &Server{
		cfg:   cfg,
		api:   apiInstance,
		sched: sched,
		orch:  orch,
		repo:  repo,
	}
	return server, nil
}

func (s *Server) Run(ctx context.Context) error {
	s.scheduleExpiryScan()

	// 使用 grace.Shepherd 管理服务生命周期
	services := []grace.Grace{
		s.api,
		s.sched,
	}

	shepherd := grace.NewShepherd(
		services,
		grace.WithTimeout(30*time.Second),
		grace.WithLogger(&zerologLogger{}),
	)

	shepherd.Start(ctx)
	return nil
}

// scheduleExpiryScan 周期运行过期扫描
// 每轮跑完后重新排下一轮
func (s *Server) scheduleExpiryScan() {
	interval := time.Duration(s.cfg.ExpiryCheckIntervalMinutes) * time.Minute

	var scan scheduler.Task
	scan = func(ctx context.Context) {
		s.orch.ProcessExpirations(ctx)
		s.sched.Schedule(interval, scan)
	}
	s.sched.Schedule(interval, scan)
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.api.Shutdown(ctx); err != nil {
		return err
	}
	if err := s.sched.Shutdown(ctx); err != nil {
		return err
	}
	return s.repo.Close()
}

// Name 实现 grace.Grace 接口
func (s *Server) Name() string {
	return "VDM Server"
}

// zerologLogger 实现 grace.Logger 接口
type zerologLogger struct{}

func (l *zerologLogger) Info(msg string, args ...interface{}) {
	logger := zerolog.DefaultContextLogger.Info()
	if len(args) > 0 {
		logger.Msgf(msg, args...)
	} else {
		logger.Msg(msg)
	}
}

func (l *zerologLogger) Error(msg string, args ...interface{}) {
	logger := zerolog.DefaultContextLogger.Error()
	if len(args) > 0 {
		logger.Msgf(msg, args...)
	} else {
		logger.Msg(msg)
	}
}
