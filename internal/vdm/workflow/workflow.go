// Package workflow 实现虚拟桌面的生命周期编排
//
// 每个长操作（创建/删除/调整规格/重启/搁置）被拆成一串短步骤，
// 步骤之间通过 scheduler 延迟衔接。每个步骤进入时按 ID 重新加载
// 数据库记录，不在内存里跨步骤携带过期状态。
package workflow

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/jimyag/vdm/internal/vdm/cloud"
	"github.com/jimyag/vdm/internal/vdm/cloud/environment"
	"github.com/jimyag/vdm/internal/vdm/entity"
	"github.com/jimyag/vdm/internal/vdm/repository"
	"github.com/jimyag/vdm/internal/vdm/repository/model"
	"github.com/jimyag/vdm/internal/vdm/scheduler"
)

// Result 一个工作流步骤的结束方式
type Result int

const (
	ResultContinue Result = iota // 继续下一步
	ResultSuccess                // 整个工作流成功结束
	ResultFail                   // 永久失败，需要运维介入
	ResultRetry                  // 失败但可以整体重试
	ResultSkip                   // 前置条件不满足，本次不做
	ResultStarted                // 已发起异步操作，等待收敛
)

// String 实现 fmt.Stringer
func (r Result) String() string {
	switch r {
	case ResultContinue:
		return "continue"
	case ResultSuccess:
		return "success"
	case ResultFail:
		return "fail"
	case ResultRetry:
		return "retry"
	case ResultSkip:
		return "skip"
	case ResultStarted:
		return "started"
	default:
		return "unknown"
	}
}

// 云端操作的收敛参数
// 删除类轮询用重试计数，创建/归档类轮询用墙上时钟截止时间
const (
	// VolumeCreationTimeout 等待卷可用的最长时间
	VolumeCreationTimeout = 120 * time.Second
	// InstanceLaunchTimeout 等待服务器 ACTIVE 的最长时间
	InstanceLaunchTimeout = 300 * time.Second
	// CloudPollInterval 创建类轮询的间隔
	CloudPollInterval = 5 * time.Second

	// ShutoffCheckInterval 等待服务器关机的轮询间隔
	ShutoffCheckInterval = 10 * time.Second
	// ShutoffRetries 等待关机的重试次数，用尽后仍继续删除
	ShutoffRetries = 3

	// InstanceDeletionRetryInterval 确认服务器删除的轮询间隔
	InstanceDeletionRetryInterval = 5 * time.Minute
	// InstanceDeletionRetries 确认服务器删除的重试次数
	InstanceDeletionRetries = 10

	// VolumeDeletionRetryInterval 确认卷删除的轮询间隔
	VolumeDeletionRetryInterval = 10 * time.Second
	// VolumeDeletionRetries 确认卷删除的重试次数
	VolumeDeletionRetries = 10

	// BackupDeletionRetryInterval 确认备份删除的轮询间隔
	BackupDeletionRetryInterval = 30 * time.Second
	// BackupDeletionRetries 确认备份删除的重试次数
	BackupDeletionRetries = 10

	// ResizeConfirmWait 等待进入 VERIFY_RESIZE 的最长时间
	ResizeConfirmWait = 300 * time.Second

	// RebootConfirmInterval 等待重启完成的轮询间隔
	RebootConfirmInterval = 20 * time.Second
	// RebootConfirmRetries 等待重启完成的重试次数
	RebootConfirmRetries = 10

	// ArchivePollInterval 等待归档备份可用的轮询间隔
	ArchivePollInterval = 30 * time.Second
	// ArchiveWait 等待归档备份可用的最长时间
	ArchiveWait = 3600 * time.Second
)

// 生命周期策略
const (
	// InstanceLifetime 实例创建后多久过期（过期后强制搁置）
	InstanceLifetime = 45 * 24 * time.Hour
	// ShelvedVolumeLifetime 搁置卷多久后归档删除
	ShelvedVolumeLifetime = 90 * 24 * time.Hour
	// BackupLifetime 归档备份保留时长
	BackupLifetime = 30 * 24 * time.Hour
	// BoostPeriod 加大规格一次维持的时长
	BoostPeriod = 7 * 24 * time.Hour
	// BoostExtensionCap 加大规格从首次请求起最长维持的时长
	BoostExtensionCap = 14 * 24 * time.Hour
)

// 前端等待提示：状态行的 wait_time 超过后界面提示操作可能卡住
const (
	CreateWaitTime         = 10 * time.Minute
	DeleteWaitTime         = 5 * time.Minute
	ResizeWaitTime         = 10 * time.Minute
	RebootWaitTime         = 5 * time.Minute
	ShelveWaitTime         = 10 * time.Minute
	ForcedShelveWaitTime   = 15 * time.Minute
	ForcedDownsizeWaitTime = 15 * time.Minute
)

// DefaultDesktopUsername 桌面虚拟机的默认登录用户名
const DefaultDesktopUsername = "vdiuser"

// SourceVolumeBuildKey 源镜像卷上记录构建号的元数据键
const SourceVolumeBuildKey = "build"

// Orchestrator 桌面生命周期编排器
// 所有依赖显式注入，不持有全局状态
type Orchestrator struct {
	volumes     repository.VolumeRepository
	instances   repository.InstanceRepository
	statuses    repository.VMStatusRepository
	resizes     repository.ResizeRepository
	expirations repository.ExpirationRepository
	guacs       repository.GuacConnectionRepository
	connector   cloud.Connector
	env         environment.Environment
	sched       scheduler.Scheduler
	catalog     *entity.Catalog
	siteURL     string
}

// Params 编排器依赖
type Params struct {
	Repo      *repository.Repository
	Connector cloud.Connector
	Env       environment.Environment
	Scheduler scheduler.Scheduler
	Catalog   *entity.Catalog
	SiteURL   string
}

// New 创建编排器
func New(p Params) *Orchestrator {
	db := p.Repo.DB()
	return &Orchestrator{
		volumes:     repository.NewVolumeRepository(db),
		instances:   repository.NewInstanceRepository(db),
		statuses:    repository.NewVMStatusRepository(db),
		resizes:     repository.NewResizeRepository(db),
		expirations: repository.NewExpirationRepository(db),
		guacs:       repository.NewGuacConnectionRepository(db),
		connector:   p.Connector,
		env:         p.Env,
		sched:       p.Scheduler,
		catalog:     p.Catalog,
		siteURL:     p.SiteURL,
	}
}

func (o *Orchestrator) logger(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}

// setStatus 更新状态行的状态、进度和消息
func (o *Orchestrator) setStatus(ctx context.Context, statusID uint, state string, progress int, message string) {
	status, err := o.statuses.GetByID(ctx, statusID)
	if err != nil {
		o.logger(ctx).Error().Err(err).Uint("status_id", statusID).Msg("load vm status")
		return
	}
	status.Status = state
	status.StatusProgress = progress
	status.StatusMessage = message
	if err = o.statuses.Update(ctx, status); err != nil {
		o.logger(ctx).Error().Err(err).Uint("status_id", statusID).Msg("update vm status")
	}
}

// bindStatusInstance 把状态行关联到实例
func (o *Orchestrator) bindStatusInstance(ctx context.Context, statusID uint, instanceID string) {
	status, err := o.statuses.GetByID(ctx, statusID)
	if err != nil {
		o.logger(ctx).Error().Err(err).Uint("status_id", statusID).Msg("load vm status")
		return
	}
	status.InstanceID = &instanceID
	if err = o.statuses.Update(ctx, status); err != nil {
		o.logger(ctx).Error().Err(err).Uint("status_id", statusID).Msg("bind vm status instance")
	}
}

// advanceExpiration 按工作流结果推进过期记录，至多推进一次
func (o *Orchestrator) advanceExpiration(ctx context.Context, expirationID *uint, result Result) {
	if expirationID == nil {
		return
	}
	var stage string
	switch result {
	case ResultSuccess:
		stage = model.ExpStageCompleted
	case ResultRetry:
		stage = model.ExpStageFailedRetryable
	default:
		stage = model.ExpStageFailed
	}
	advanced, err := o.expirations.AdvanceStage(ctx, *expirationID, stage, o.env.Now())
	if err != nil {
		o.logger(ctx).Error().Err(err).Uint("expiration_id", *expirationID).Msg("advance expiration stage")
		return
	}
	if !advanced {
		o.logger(ctx).Debug().Uint("expiration_id", *expirationID).Msg("expiration stage already advanced")
	}
}

// newVMStatus 为一次操作创建新的状态行
func (o *Orchestrator) newVMStatus(ctx context.Context, username, operatingSystem, feature, state, message string, wait time.Duration) (*model.VMStatus, error) {
	waitTime := o.env.AfterTime(wait)
	status := &model.VMStatus{
		Username:          username,
		OperatingSystem:   operatingSystem,
		RequestingFeature: feature,
		Status:            state,
		StatusMessage:     message,
		WaitTime:          &waitTime,
	}
	if err := o.statuses.Create(ctx, status); err != nil {
		return nil, err
	}
	return status, nil
}
