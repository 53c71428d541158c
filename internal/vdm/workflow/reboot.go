package workflow

import (
	"context"
	"fmt"

	"github.com/jimyag/vdm/internal/vdm/cloud"
	"github.com/jimyag/vdm/internal/vdm/entity"
	"github.com/jimyag/vdm/internal/vdm/repository/model"
)

// RebootDesktop 重启用户的桌面虚拟机
// 服务器已经关机时软重启无效，自动升级成硬重启
func (o *Orchestrator) RebootDesktop(ctx context.Context, user *entity.User, desktopID string, level cloud.RebootLevel) (*model.VMStatus, error) {
	instance, desktop, err := o.currentInstanceAndDesktop(ctx, user.Username, desktopID)
	if err != nil {
		return nil, err
	}

	status, err := o.newVMStatus(ctx, user.Username, desktopID, desktop.Feature,
		model.StatusWaiting, "Reboot request sent; waiting for restart", RebootWaitTime)
	if err != nil {
		return nil, err
	}
	o.bindStatusInstance(ctx, status.ID, instance.ID)

	statusID := status.ID
	instanceID := instance.ID
	o.sched.Schedule(0, func(ctx context.Context) {
		o.rebootServer(ctx, statusID, instanceID, level)
	})
	return status, nil
}

// rebootServer 核对电源状态后发起重启
// ACTIVE 正常重启；SHUTOFF 软重启无效，强制硬重启；其他状态
// 不能自动处理，记错在实例上等人工排查
func (o *Orchestrator) rebootServer(ctx context.Context, statusID uint, instanceID string, level cloud.RebootLevel) {
	instance, err := o.instances.GetByID(ctx, instanceID)
	if err != nil {
		o.setStatus(ctx, statusID, model.StatusError, 0, "instance record disappeared")
		return
	}
	server := &cloud.Server{ID: instance.ID}

	state, err := o.connector.GetServerStatus(ctx, server)
	if err != nil {
		o.logger(ctx).Warn().Err(err).Str("instance_id", instance.ID).Msg("poll server status before reboot")
	}
	switch state {
	case cloud.ServerStatusActive:
	case cloud.ServerStatusShutoff:
		if level == cloud.RebootSoft {
			o.logger(ctx).Info().Str("instance_id", instance.ID).Msg("server is SHUTOFF, forcing hard reboot")
		}
		level = cloud.RebootHard
	default:
		o.failReboot(ctx, statusID, instance.ID,
			fmt.Sprintf("cannot reboot instance %s in state %s", instance.ID, state))
		return
	}

	if err = o.connector.RebootServer(ctx, server, level); err != nil {
		o.failReboot(ctx, statusID, instance.ID, fmt.Sprintf("reboot request failed: %v", err))
		return
	}

	o.markVolumeRebooted(ctx, instance.BootVolumeID)
	o.setStatus(ctx, statusID, model.StatusWaiting, 33, "Reboot issued; waiting for instance")

	o.sched.Schedule(RebootConfirmInterval, func(ctx context.Context) {
		o.waitForReboot(ctx, statusID, instanceID, RebootConfirmRetries)
	})
}

// failReboot 重启工作流永久失败的出口
func (o *Orchestrator) failReboot(ctx context.Context, statusID uint, instanceID, message string) {
	if err := o.instances.SetError(ctx, instanceID, message, o.env.Now(), false); err != nil {
		o.logger(ctx).Error().Err(err).Str("instance_id", instanceID).Msg("mark instance error")
	}
	o.setStatus(ctx, statusID, model.StatusError, 0, message)
}

func (o *Orchestrator) markVolumeRebooted(ctx context.Context, volumeID string) {
	volume, err := o.volumes.GetByID(ctx, volumeID)
	if err != nil {
		o.logger(ctx).Error().Err(err).Str("volume_id", volumeID).Msg("load volume for reboot marker")
		return
	}
	now := o.env.Now()
	volume.RebootedAt = &now
	if err = o.volumes.Update(ctx, volume); err != nil {
		o.logger(ctx).Error().Err(err).Str("volume_id", volumeID).Msg("mark volume rebooted")
	}
}

// waitForReboot 轮询到服务器重新 ACTIVE
// 重启常出现在 supersize 确认之后，这里顺带把还挂着的
// 规格调整过期记录收尾
func (o *Orchestrator) waitForReboot(ctx context.Context, statusID uint, instanceID string, retriesLeft int) {
	state, err := o.connector.GetServerStatus(ctx, &cloud.Server{ID: instanceID})
	if err != nil {
		o.logger(ctx).Warn().Err(err).Str("instance_id", instanceID).Msg("poll server status after reboot")
	}

	if state == cloud.ServerStatusActive {
		o.setStatus(ctx, statusID, model.StatusWaiting, 66, "Instance rebooted; finalizing")
		finalState := model.StatusOkay
		resize, rerr := o.resizes.GetCurrentByInstance(ctx, instanceID)
		if rerr != nil {
			o.logger(ctx).Error().Err(rerr).Str("instance_id", instanceID).Msg("look up current resize after reboot")
		}
		if resize != nil {
			finalState = model.StatusSupersized
			// 重启确认等于 supersize 尘埃落定，推进还挂着的过期记录
			o.advanceExpiration(ctx, resize.ExpirationID, ResultSuccess)
		}
		o.setStatus(ctx, statusID, finalState, 100, "Instance ready")
		return
	}

	if retriesLeft <= 0 {
		o.failReboot(ctx, statusID, instanceID, "instance did not come back after reboot")
		return
	}
	o.sched.Schedule(RebootConfirmInterval, func(ctx context.Context) {
		o.waitForReboot(ctx, statusID, instanceID, retriesLeft-1)
	})
}
