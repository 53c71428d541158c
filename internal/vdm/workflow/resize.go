package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/jimyag/vdm/internal/vdm/cloud"
	"github.com/jimyag/vdm/internal/vdm/entity"
	"github.com/jimyag/vdm/internal/vdm/repository/model"
	"github.com/jimyag/vdm/pkg/apierror"
)

// resizeJob 贯穿规格调整工作流各步骤的不可变参数
type resizeJob struct {
	statusID     uint
	instanceID   string
	targetFlavor string
	finalState   string // 成功后的桌面状态：加大→VM_SUPERSIZED，回退→VM_OKAY
	resizeID     uint
	expirationID *uint // 由过期回退触发时非空
}

// SupersizeDesktop 把桌面切到加大规格，维持 BoostPeriod
func (o *Orchestrator) SupersizeDesktop(ctx context.Context, user *entity.User, desktopID string) (*model.Resize, error) {
	instance, desktop, err := o.currentInstanceAndDesktop(ctx, user.Username, desktopID)
	if err != nil {
		return nil, err
	}
	if desktop.BigFlavorID == "" {
		return nil, apierror.WrapError(apierror.ErrInvalidParameter,
			fmt.Sprintf("desktop type %q has no big flavor", desktopID), nil)
	}

	now := o.env.Now()
	expires := o.supersizeExpirationDate(now)
	expiration := &model.Expiration{
		Stage:     model.ExpStageExpiring,
		StageDate: now,
		Expires:   expires,
	}
	if err = o.expirations.Create(ctx, expiration); err != nil {
		return nil, err
	}

	resize := &model.Resize{
		InstanceID:   instance.ID,
		Requested:    now,
		Expires:      &expires,
		ExpirationID: &expiration.ID,
	}
	if err = o.resizes.Create(ctx, resize); err != nil {
		return nil, err
	}

	status, err := o.newVMStatus(ctx, user.Username, desktopID, desktop.Feature,
		model.StatusResizing, "Resize initiated; waiting to confirm", ResizeWaitTime)
	if err != nil {
		return nil, err
	}
	o.bindStatusInstance(ctx, status.ID, instance.ID)

	job := resizeJob{
		statusID:     status.ID,
		instanceID:   instance.ID,
		targetFlavor: desktop.BigFlavorID,
		finalState:   model.StatusSupersized,
		resizeID:     resize.ID,
	}
	o.sched.Schedule(0, func(ctx context.Context) {
		o.resizeServer(ctx, job)
	})
	return resize, nil
}

// DownsizeDesktop 把桌面切回默认规格
func (o *Orchestrator) DownsizeDesktop(ctx context.Context, user *entity.User, desktopID string) (*model.VMStatus, error) {
	instance, desktop, err := o.currentInstanceAndDesktop(ctx, user.Username, desktopID)
	if err != nil {
		return nil, err
	}
	resize, err := o.resizes.GetCurrentByInstance(ctx, instance.ID)
	if err != nil {
		return nil, err
	}
	if resize == nil {
		return nil, apierror.WrapError(apierror.ErrInvalidParameter,
			fmt.Sprintf("No Resize is current for instance %s", instance.ID), nil)
	}
	return o.downsize(ctx, instance, desktop, resize, nil, ResizeWaitTime)
}

func (o *Orchestrator) downsize(ctx context.Context, instance *model.Instance, desktop *entity.DesktopType, resize *model.Resize, expirationID *uint, wait time.Duration) (*model.VMStatus, error) {
	// Resize 台账在发起时就关闭，同一实例不会被重复挑中回退
	if err := o.resizes.SetReverted(ctx, resize.ID, o.env.Now()); err != nil {
		return nil, err
	}

	status, err := o.newVMStatus(ctx, instance.Owner, desktop.ID, desktop.Feature,
		model.StatusResizing, "Resize initiated; waiting to confirm", wait)
	if err != nil {
		return nil, err
	}
	o.bindStatusInstance(ctx, status.ID, instance.ID)

	job := resizeJob{
		statusID:     status.ID,
		instanceID:   instance.ID,
		targetFlavor: desktop.DefaultFlavorID,
		finalState:   model.StatusOkay,
		resizeID:     resize.ID,
		expirationID: expirationID,
	}
	o.sched.Schedule(0, func(ctx context.Context) {
		o.resizeServer(ctx, job)
	})
	return status, nil
}

// resizeServer 发起规格调整
// 服务器已经是目标规格时跳过，直接落到最终状态
func (o *Orchestrator) resizeServer(ctx context.Context, job resizeJob) {
	instance, err := o.instances.GetByID(ctx, job.instanceID)
	if err != nil {
		o.endResize(ctx, job, ResultFail, "instance record disappeared")
		return
	}
	server := &cloud.Server{ID: instance.ID}

	flavor, err := o.connector.GetServerFlavor(ctx, server)
	if err != nil {
		o.endResize(ctx, job, ResultRetry, fmt.Sprintf("get server flavor: %v", err))
		return
	}
	if flavor.ID == job.targetFlavor {
		message := fmt.Sprintf("Instance %s already has flavor %s. Skipping the resize.", instance.ID, flavor.ID)
		o.logger(ctx).Info().Str("instance_id", instance.ID).Str("flavor", flavor.ID).Msg(message)
		o.endResize(ctx, job, ResultSkip, message)
		return
	}

	if err = o.connector.ResizeServer(ctx, server, &cloud.Flavor{ID: job.targetFlavor}); err != nil {
		o.endResize(ctx, job, ResultRetry, fmt.Sprintf("resize request failed: %v", err))
		return
	}

	deadline := o.env.AfterTime(ResizeConfirmWait)
	o.sched.Schedule(CloudPollInterval, func(ctx context.Context) {
		o.waitToConfirmResize(ctx, job, deadline)
	})
}

// waitToConfirmResize 等待进入 VERIFY_RESIZE 并确认
// ACTIVE 时检查实际规格判断是已被外部确认还是悄悄失败
func (o *Orchestrator) waitToConfirmResize(ctx context.Context, job resizeJob, deadline time.Time) {
	server := &cloud.Server{ID: job.instanceID}
	status, err := o.connector.GetServerStatus(ctx, server)
	if err != nil {
		// 瞬时查询失败只记日志，本步就此打住，不重排也不算失败
		o.logger(ctx).Warn().Err(err).Str("instance_id", job.instanceID).Msg("poll server status during resize")
		return
	}

	switch status {
	case cloud.ServerStatusVerifyResize:
		if err = o.connector.ConfirmResize(ctx, server); err != nil {
			o.endResize(ctx, job, ResultRetry, fmt.Sprintf("confirm resize failed: %v", err))
			return
		}
		o.setStatus(ctx, job.statusID, model.StatusResizing, 66, "Resize completed; waiting for reboot")
		o.endResize(ctx, job, ResultSuccess, "")
	case cloud.ServerStatusResize:
		if !o.env.Now().Before(deadline) {
			o.endResize(ctx, job, ResultFail, "resize took too long to complete")
			return
		}
		o.sched.Schedule(CloudPollInterval, func(ctx context.Context) {
			o.waitToConfirmResize(ctx, job, deadline)
		})
	case cloud.ServerStatusActive:
		flavor, ferr := o.connector.GetServerFlavor(ctx, server)
		if ferr == nil && flavor.ID == job.targetFlavor {
			o.endResize(ctx, job, ResultSuccess, "")
			return
		}
		o.endResize(ctx, job, ResultFail, "resize failed; instance is ACTIVE with wrong flavor")
	default:
		o.endResize(ctx, job, ResultFail,
			fmt.Sprintf("unexpected server status %s during resize", status))
	}
}

// endResize 规格调整工作流的唯一终结点
func (o *Orchestrator) endResize(ctx context.Context, job resizeJob, result Result, message string) {
	logger := o.logger(ctx)

	switch result {
	case ResultSuccess, ResultSkip:
		statusMessage := "Instance ready"
		if result == ResultSkip && message != "" {
			statusMessage = message
		}
		o.setStatus(ctx, job.statusID, job.finalState, 100, statusMessage)
		logger.Info().Str("instance_id", job.instanceID).
			Str("target_flavor", job.targetFlavor).Str("result", result.String()).
			Msg("resize finished")
	default:
		o.setStatus(ctx, job.statusID, model.StatusError, 0, message)
		// 失败记在实例和启动卷两边，排查时不用跨表找
		now := o.env.Now()
		if err := o.instances.SetError(ctx, job.instanceID, message, now, false); err != nil {
			logger.Error().Err(err).Str("instance_id", job.instanceID).Msg("mark instance error")
		}
		if instance, ierr := o.instances.GetByID(ctx, job.instanceID); ierr == nil {
			if verr := o.volumes.SetError(ctx, instance.BootVolumeID, message, now); verr != nil {
				logger.Error().Err(verr).Str("volume_id", instance.BootVolumeID).Msg("mark volume error")
			}
		}
		logger.Error().Str("instance_id", job.instanceID).
			Str("result", result.String()).Str("reason", message).
			Msg("resize failed")
	}

	if result == ResultSkip {
		// 前置条件不满足时过期记录保持原样，等下一轮扫描
		return
	}
	o.advanceExpiration(ctx, job.expirationID, result)
}

// ExtendBoost 延长一次生效中的加大规格
// 新期限从今天起算，但不得超出首次请求后的上限
func (o *Orchestrator) ExtendBoost(ctx context.Context, user *entity.User, instanceID string) (string, error) {
	instance, err := o.instances.GetByUntrustedID(ctx, instanceID, user.Username)
	if err != nil {
		return "", err
	}

	resize, err := o.resizes.GetCurrentByInstance(ctx, instance.ID)
	if err != nil {
		return "", err
	}
	if resize == nil {
		return "", apierror.WrapError(apierror.ErrInvalidParameter,
			fmt.Sprintf("No Resize is current for instance %s", instance.ID), nil)
	}

	now := o.env.Now()
	newExpires := o.supersizeExpirationDate(now)
	limit := resize.Requested.Add(BoostExtensionCap)
	if newExpires.After(limit) {
		return "", apierror.WrapError(apierror.ErrInvalidParameter,
			fmt.Sprintf("Resize (id %d) date too far in future: %s", resize.ID, newExpires.Format("2006-01-02")), nil)
	}

	resize.Expires = &newExpires
	if err = o.resizes.Update(ctx, resize); err != nil {
		return "", err
	}
	if resize.ExpirationID != nil {
		expiration, eerr := o.expirations.GetByID(ctx, *resize.ExpirationID)
		if eerr == nil {
			expiration.Expires = newExpires
			if eerr = o.expirations.Update(ctx, expiration); eerr != nil {
				o.logger(ctx).Error().Err(eerr).Uint("expiration_id", expiration.ID).Msg("extend resize expiration")
			}
		}
	}

	return fmt.Sprintf("Resize (Current) of Instance (%s) requested on %s",
		instance.ID, resize.Requested.Format("2006-01-02")), nil
}

// DownsizeExpired 扫描到期的加大规格并逐个回退，返回发起的回退数
// 只处理当前确实处于 VM_SUPERSIZED 的桌面，其余留给人工排查
func (o *Orchestrator) DownsizeExpired(ctx context.Context) (int, error) {
	expired, err := o.resizes.ListExpired(ctx, o.env.Now())
	if err != nil {
		return 0, err
	}

	count := 0
	for _, resize := range expired {
		status, serr := o.statuses.GetByInstance(ctx, resize.InstanceID, true)
		if serr != nil {
			return count, serr
		}
		if status == nil || status.Status != model.StatusSupersized {
			o.logger(ctx).Warn().Str("instance_id", resize.InstanceID).
				Uint("resize_id", resize.ID).
				Msg("expired resize but desktop is not supersized")
			continue
		}

		instance, ierr := o.instances.GetByID(ctx, resize.InstanceID)
		if ierr != nil {
			o.logger(ctx).Error().Err(ierr).Str("instance_id", resize.InstanceID).Msg("load instance for downsize")
			continue
		}
		volume, verr := o.volumes.GetByID(ctx, instance.BootVolumeID)
		if verr != nil {
			o.logger(ctx).Error().Err(verr).Str("volume_id", instance.BootVolumeID).Msg("load volume for downsize")
			continue
		}
		desktop, ok := o.catalog.DesktopType(volume.OperatingSystem)
		if !ok {
			o.logger(ctx).Error().Str("desktop_type", volume.OperatingSystem).Msg("unknown desktop type for downsize")
			continue
		}

		if _, derr := o.downsize(ctx, instance, desktop, resize, resize.ExpirationID, ForcedDownsizeWaitTime); derr != nil {
			o.logger(ctx).Error().Err(derr).Str("instance_id", instance.ID).Msg("start forced downsize")
			continue
		}
		count++
	}
	return count, nil
}

// supersizeExpirationDate 计算从 from 起的加大规格到期日（按天对齐）
func (o *Orchestrator) supersizeExpirationDate(from time.Time) time.Time {
	return from.Add(BoostPeriod).Truncate(24 * time.Hour)
}

func (o *Orchestrator) currentInstanceAndDesktop(ctx context.Context, username, desktopID string) (*model.Instance, *entity.DesktopType, error) {
	desktop, ok := o.catalog.DesktopType(desktopID)
	if !ok {
		return nil, nil, apierror.WrapError(apierror.ErrInvalidParameter,
			fmt.Sprintf("unknown desktop type %q", desktopID), nil)
	}
	instance, err := o.instances.GetCurrent(ctx, username, desktopID)
	if err != nil {
		return nil, nil, err
	}
	if instance == nil {
		return nil, nil, apierror.WrapError(apierror.ErrNotFound,
			fmt.Sprintf("user %s has no running %s desktop", username, desktopID), nil)
	}
	return instance, desktop, nil
}
