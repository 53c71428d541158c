package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/jimyag/vdm/internal/vdm/cloud"
	"github.com/jimyag/vdm/internal/vdm/entity"
	"github.com/jimyag/vdm/internal/vdm/repository/model"
)

// shelveJob 贯穿搁置工作流各步骤的不可变参数
type shelveJob struct {
	statusID     uint
	instanceID   string
	volumeID     string
	expirationID *uint // 由实例过期触发时非空
}

// ShelveDesktop 搁置用户的桌面：删掉服务器，保留启动卷
// 之后再创建同类型桌面会在原卷上解除搁置
func (o *Orchestrator) ShelveDesktop(ctx context.Context, user *entity.User, desktopID string) (*model.VMStatus, error) {
	instance, desktop, err := o.currentInstanceAndDesktop(ctx, user.Username, desktopID)
	if err != nil {
		return nil, err
	}
	return o.shelve(ctx, instance, desktop, nil, ShelveWaitTime)
}

func (o *Orchestrator) shelve(ctx context.Context, instance *model.Instance, desktop *entity.DesktopType, expirationID *uint, wait time.Duration) (*model.VMStatus, error) {
	status, err := o.newVMStatus(ctx, instance.Owner, desktop.ID, desktop.Feature,
		model.StatusWaiting, "Instance stopping", wait)
	if err != nil {
		return nil, err
	}
	o.bindStatusInstance(ctx, status.ID, instance.ID)

	if err = o.instances.SetMarkedForDeletion(ctx, instance.ID, o.env.Now()); err != nil {
		return nil, err
	}

	job := shelveJob{
		statusID:     status.ID,
		instanceID:   instance.ID,
		volumeID:     instance.BootVolumeID,
		expirationID: expirationID,
	}
	o.sched.Schedule(0, func(ctx context.Context) {
		o.stopForShelve(ctx, job)
	})
	return status, nil
}

func (o *Orchestrator) stopForShelve(ctx context.Context, job shelveJob) {
	if err := o.connector.StopServer(ctx, &cloud.Server{ID: job.instanceID}); err != nil {
		o.logger(ctx).Warn().Err(err).Str("instance_id", job.instanceID).Msg("stop server before shelve")
	}
	o.sched.Schedule(ShutoffCheckInterval, func(ctx context.Context) {
		o.waitShutoffForShelve(ctx, job, ShutoffRetries)
	})
}

// waitShutoffForShelve 等待关机，重试用尽仍继续搁置
func (o *Orchestrator) waitShutoffForShelve(ctx context.Context, job shelveJob, retriesLeft int) {
	state, err := o.connector.GetServerStatus(ctx, &cloud.Server{ID: job.instanceID})
	if err != nil {
		o.logger(ctx).Warn().Err(err).Str("instance_id", job.instanceID).Msg("poll server status before shelve")
	}

	if state != cloud.ServerStatusShutoff && retriesLeft > 0 {
		o.sched.Schedule(ShutoffCheckInterval, func(ctx context.Context) {
			o.waitShutoffForShelve(ctx, job, retriesLeft-1)
		})
		return
	}
	if state != cloud.ServerStatusShutoff {
		o.logger(ctx).Warn().Str("instance_id", job.instanceID).
			Msg("server did not reach SHUTOFF, shelving anyway")
	}

	o.setStatus(ctx, job.statusID, model.StatusWaiting, 50, "Instance shelving")
	o.sched.Schedule(0, func(ctx context.Context) {
		o.deleteServerForShelve(ctx, job)
	})
}

func (o *Orchestrator) deleteServerForShelve(ctx context.Context, job shelveJob) {
	instance, err := o.instances.GetByID(ctx, job.instanceID)
	if err != nil {
		o.endShelve(ctx, job, ResultFail, "instance record disappeared")
		return
	}

	o.removeGuacConnection(ctx, instance)

	if err = o.connector.DeleteServer(ctx, &cloud.Server{ID: instance.ID}); err != nil {
		o.endShelve(ctx, job, ResultRetry, fmt.Sprintf("server deletion request failed: %v", err))
		return
	}
	o.sched.Schedule(InstanceDeletionRetryInterval, func(ctx context.Context) {
		o.waitServerDeletedForShelve(ctx, job, InstanceDeletionRetries)
	})
}

func (o *Orchestrator) waitServerDeletedForShelve(ctx context.Context, job shelveJob, retriesLeft int) {
	existence, err := o.connector.IsServerCreated(ctx, &cloud.Server{ID: job.instanceID})
	switch existence {
	case cloud.ExistenceAbsent:
		if err = o.instances.SetDeleted(ctx, job.instanceID, o.env.Now()); err != nil {
			o.logger(ctx).Error().Err(err).Str("instance_id", job.instanceID).Msg("mark instance deleted")
		}
		o.endShelve(ctx, job, ResultSuccess, "")
	case cloud.ExistenceUnknown:
		o.logger(ctx).Warn().Err(err).Str("instance_id", job.instanceID).Msg("server existence unknown")
		fallthrough
	default:
		if retriesLeft <= 0 {
			o.endShelve(ctx, job, ResultRetry, "server did not delete in time")
			return
		}
		o.sched.Schedule(InstanceDeletionRetryInterval, func(ctx context.Context) {
			o.waitServerDeletedForShelve(ctx, job, retriesLeft-1)
		})
	}
}

// endShelve 搁置工作流的唯一终结点
// 成功时给卷打搁置标记并挂上保留期限
func (o *Orchestrator) endShelve(ctx context.Context, job shelveJob, result Result, message string) {
	logger := o.logger(ctx)

	if result != ResultSuccess {
		o.setStatus(ctx, job.statusID, model.StatusError, 0, message)
		logger.Error().Str("instance_id", job.instanceID).
			Str("result", result.String()).Str("reason", message).
			Msg("desktop shelve failed")
		o.advanceExpiration(ctx, job.expirationID, result)
		return
	}

	volume, err := o.volumes.GetByID(ctx, job.volumeID)
	if err != nil {
		o.setStatus(ctx, job.statusID, model.StatusError, 0, "volume record disappeared")
		o.advanceExpiration(ctx, job.expirationID, ResultFail)
		return
	}

	now := o.env.Now()
	expires := now.Add(ShelvedVolumeLifetime)
	volumeExp := &model.Expiration{
		Stage:     model.ExpStageExpiring,
		StageDate: now,
		Expires:   expires,
	}
	if err = o.expirations.Create(ctx, volumeExp); err != nil {
		logger.Error().Err(err).Str("volume_id", volume.ID).Msg("create shelved volume expiration")
	} else {
		volume.ExpirationID = &volumeExp.ID
	}
	volume.ShelvedAt = &now
	volume.Expires = &expires
	if err = o.volumes.Update(ctx, volume); err != nil {
		logger.Error().Err(err).Str("volume_id", volume.ID).Msg("mark volume shelved")
	}

	o.setStatus(ctx, job.statusID, model.StatusShelved, 100, "Instance shelved")
	logger.Info().Str("instance_id", job.instanceID).Str("volume_id", job.volumeID).
		Msg("desktop shelved")
	o.advanceExpiration(ctx, job.expirationID, ResultSuccess)
}
