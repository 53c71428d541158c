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

// deleteJob 贯穿删除工作流各步骤的不可变参数
// 可变状态（重试计数、截止时间）作为步骤参数显式传递
type deleteJob struct {
	statusID     uint
	instanceID   string
	volumeID     string
	archive      bool  // 删卷前先做备份归档
	expirationID *uint // 由过期策略触发时非空，终结步骤推进它
}

// DeleteDesktop 删除用户的桌面虚拟机和启动卷
func (o *Orchestrator) DeleteDesktop(ctx context.Context, user *entity.User, desktopID string) (*model.VMStatus, error) {
	return o.deleteDesktop(ctx, user.Username, desktopID, false, nil)
}

func (o *Orchestrator) deleteDesktop(ctx context.Context, username, desktopID string, archive bool, expirationID *uint) (*model.VMStatus, error) {
	volume, err := o.volumes.GetCurrent(ctx, username, desktopID)
	if err != nil {
		return nil, err
	}
	if volume == nil {
		return nil, apierror.WrapError(apierror.ErrNotFound,
			fmt.Sprintf("user %s has no %s desktop", username, desktopID), nil)
	}

	instance, err := o.instances.GetCurrent(ctx, username, desktopID)
	if err != nil {
		return nil, err
	}

	now := o.env.Now()
	if err = o.volumes.SetMarkedForDeletion(ctx, volume.ID, now); err != nil {
		return nil, err
	}
	if instance != nil {
		if err = o.instances.SetMarkedForDeletion(ctx, instance.ID, now); err != nil {
			return nil, err
		}
	}

	status, err := o.newVMStatus(ctx, username, desktopID, volume.RequestingFeature,
		model.StatusWaiting, "Instance deleting", DeleteWaitTime)
	if err != nil {
		return nil, err
	}

	job := deleteJob{
		statusID:     status.ID,
		volumeID:     volume.ID,
		archive:      archive,
		expirationID: expirationID,
	}
	if instance != nil {
		job.instanceID = instance.ID
		instanceID := instance.ID
		o.sched.Schedule(0, func(ctx context.Context) {
			o.stopForDelete(ctx, job, instanceID)
		})
	} else {
		// 搁置桌面：没有实例，直接进入卷处理
		o.sched.Schedule(0, func(ctx context.Context) {
			o.archiveOrDeleteVolume(ctx, job)
		})
	}
	return status, nil
}

// stopForDelete 删除前先核对远端电源状态
// 服务器已不存在直接进入卷处理；ACTIVE 先关机给客户机一个干净
// 落盘的机会；SHUTOFF 直接删；其他状态不能自动处理，停止工作流
// 等人工排查
func (o *Orchestrator) stopForDelete(ctx context.Context, job deleteJob, instanceID string) {
	instance, err := o.instances.GetByID(ctx, instanceID)
	if err != nil {
		o.endDelete(ctx, job, ResultFail, "instance record disappeared")
		return
	}
	server := &cloud.Server{ID: instance.ID}

	existence, err := o.connector.IsServerCreated(ctx, server)
	switch existence {
	case cloud.ExistenceAbsent:
		// 服务器在带外被删了，记录随之视为删除
		o.removeGuacConnection(ctx, instance)
		if err = o.instances.SetDeleted(ctx, instanceID, o.env.Now()); err != nil {
			o.logger(ctx).Error().Err(err).Str("instance_id", instanceID).Msg("mark instance deleted")
		}
		o.sched.Schedule(0, func(ctx context.Context) {
			o.archiveOrDeleteVolume(ctx, job)
		})
		return
	case cloud.ExistenceUnknown:
		o.logger(ctx).Warn().Err(err).Str("instance_id", instanceID).Msg("server existence unknown before delete")
		o.sched.Schedule(ShutoffCheckInterval, func(ctx context.Context) {
			o.stopForDelete(ctx, job, instanceID)
		})
		return
	}

	state, err := o.connector.GetServerStatus(ctx, server)
	if err != nil {
		o.logger(ctx).Warn().Err(err).Str("instance_id", instanceID).Msg("poll server status before delete")
		o.sched.Schedule(ShutoffCheckInterval, func(ctx context.Context) {
			o.stopForDelete(ctx, job, instanceID)
		})
		return
	}

	switch state {
	case cloud.ServerStatusActive:
		if err = o.connector.StopServer(ctx, server); err != nil {
			o.logger(ctx).Warn().Err(err).Str("instance_id", instance.ID).Msg("stop server before delete")
		}
		o.sched.Schedule(ShutoffCheckInterval, func(ctx context.Context) {
			o.waitForShutoff(ctx, job, instanceID, ShutoffRetries)
		})
	case cloud.ServerStatusShutoff:
		o.sched.Schedule(0, func(ctx context.Context) {
			o.deleteServer(ctx, job, instanceID)
		})
	default:
		message := fmt.Sprintf("instance %s is %s, needs manual cleanup", instanceID, state)
		if serr := o.instances.SetError(ctx, instanceID, message, o.env.Now(), false); serr != nil {
			o.logger(ctx).Error().Err(serr).Str("instance_id", instanceID).Msg("mark instance error")
		}
		o.endDelete(ctx, job, ResultFail, message)
	}
}

// waitForShutoff 等待服务器关机
// 重试用尽不算失败，照样继续删除
func (o *Orchestrator) waitForShutoff(ctx context.Context, job deleteJob, instanceID string, retriesLeft int) {
	status, err := o.connector.GetServerStatus(ctx, &cloud.Server{ID: instanceID})
	if err != nil {
		o.logger(ctx).Warn().Err(err).Str("instance_id", instanceID).Msg("poll server status before delete")
	}

	if status != cloud.ServerStatusShutoff && retriesLeft > 0 {
		o.sched.Schedule(ShutoffCheckInterval, func(ctx context.Context) {
			o.waitForShutoff(ctx, job, instanceID, retriesLeft-1)
		})
		return
	}
	if status != cloud.ServerStatusShutoff {
		o.logger(ctx).Warn().Str("instance_id", instanceID).
			Msg("server did not reach SHUTOFF, deleting anyway")
	}
	o.sched.Schedule(0, func(ctx context.Context) {
		o.deleteServer(ctx, job, instanceID)
	})
}

// deleteServer 删除服务器和网关连接
func (o *Orchestrator) deleteServer(ctx context.Context, job deleteJob, instanceID string) {
	instance, err := o.instances.GetByID(ctx, instanceID)
	if err != nil {
		o.endDelete(ctx, job, ResultFail, "instance record disappeared")
		return
	}

	o.removeGuacConnection(ctx, instance)

	if err = o.connector.DeleteServer(ctx, &cloud.Server{ID: instance.ID}); err != nil {
		o.endDelete(ctx, job, ResultRetry, fmt.Sprintf("server deletion request failed: %v", err))
		return
	}

	// 服务器删除可能要走整机迁出，轮询间隔按分钟算
	o.sched.Schedule(InstanceDeletionRetryInterval, func(ctx context.Context) {
		o.waitForServerDeleted(ctx, job, instanceID, InstanceDeletionRetries)
	})
}

func (o *Orchestrator) removeGuacConnection(ctx context.Context, instance *model.Instance) {
	if instance.GuacConnectionID == nil {
		return
	}
	if err := o.guacs.Delete(ctx, *instance.GuacConnectionID); err != nil {
		o.logger(ctx).Warn().Err(err).Uint("guac_connection_id", *instance.GuacConnectionID).
			Msg("delete guac connection")
	}
	instance.GuacConnectionID = nil
	if err := o.instances.Update(ctx, instance); err != nil {
		o.logger(ctx).Error().Err(err).Str("instance_id", instance.ID).Msg("clear guac connection")
	}
}

// waitForServerDeleted 轮询到远端确认服务器不存在
// Unknown（远端调用失败）按一次失败的重试处理，不当作 Absent
func (o *Orchestrator) waitForServerDeleted(ctx context.Context, job deleteJob, instanceID string, retriesLeft int) {
	existence, err := o.connector.IsServerCreated(ctx, &cloud.Server{ID: instanceID})
	switch existence {
	case cloud.ExistenceAbsent:
		if err = o.instances.SetDeleted(ctx, instanceID, o.env.Now()); err != nil {
			o.logger(ctx).Error().Err(err).Str("instance_id", instanceID).Msg("mark instance deleted")
		}
		o.sched.Schedule(0, func(ctx context.Context) {
			o.archiveOrDeleteVolume(ctx, job)
		})
	case cloud.ExistenceUnknown:
		o.logger(ctx).Warn().Err(err).Str("instance_id", instanceID).Msg("server existence unknown")
		fallthrough
	default:
		if retriesLeft <= 0 {
			o.endDelete(ctx, job, ResultRetry, "server did not delete in time")
			return
		}
		o.sched.Schedule(InstanceDeletionRetryInterval, func(ctx context.Context) {
			o.waitForServerDeleted(ctx, job, instanceID, retriesLeft-1)
		})
	}
}

// archiveOrDeleteVolume 服务器确认删除后的分叉点
func (o *Orchestrator) archiveOrDeleteVolume(ctx context.Context, job deleteJob) {
	if job.archive {
		o.archiveVolume(ctx, job)
		return
	}
	o.deleteVolume(ctx, job)
}

// archiveVolume 删卷前创建备份
func (o *Orchestrator) archiveVolume(ctx context.Context, job deleteJob) {
	volume, err := o.volumes.GetByID(ctx, job.volumeID)
	if err != nil {
		o.endDelete(ctx, job, ResultFail, "volume record disappeared")
		return
	}

	backup, err := o.connector.CreateVolumeBackup(ctx, &cloud.CreateVolumeBackupRequest{
		Volume: &cloud.Volume{ID: volume.ID},
		Name:   fmt.Sprintf("%s_%s_archive", volume.Username, volume.OperatingSystem),
		Zone:   volume.Zone,
	})
	if err != nil {
		o.endDelete(ctx, job, ResultRetry, fmt.Sprintf("backup creation failed: %v", err))
		return
	}

	volume.BackupID = backup.ID
	if err = o.volumes.Update(ctx, volume); err != nil {
		o.logger(ctx).Error().Err(err).Str("volume_id", volume.ID).Msg("record backup id")
	}

	deadline := o.env.AfterTime(ArchiveWait)
	o.sched.Schedule(ArchivePollInterval, func(ctx context.Context) {
		o.waitForBackup(ctx, job, backup.ID, deadline)
	})
}

// waitForBackup 轮询到备份可用
// 备份可能要搬很大的卷，这里用墙上时钟截止时间
func (o *Orchestrator) waitForBackup(ctx context.Context, job deleteJob, backupID string, deadline time.Time) {
	status, err := o.connector.GetBackupStatus(ctx, &cloud.VolumeBackup{ID: backupID})
	if err != nil {
		o.logger(ctx).Warn().Err(err).Str("backup_id", backupID).Msg("poll backup status")
	}

	switch {
	case status == cloud.BackupStatusAvailable:
		o.markArchived(ctx, job)
	case status == cloud.BackupStatusError:
		o.endDelete(ctx, job, ResultRetry, "backup entered ERROR")
	case !o.env.Now().Before(deadline):
		o.endDelete(ctx, job, ResultFail, "backup took too long to create")
	default:
		o.sched.Schedule(ArchivePollInterval, func(ctx context.Context) {
			o.waitForBackup(ctx, job, backupID, deadline)
		})
	}
}

// markArchived 记录归档完成和备份的保留期限
func (o *Orchestrator) markArchived(ctx context.Context, job deleteJob) {
	volume, err := o.volumes.GetByID(ctx, job.volumeID)
	if err != nil {
		o.endDelete(ctx, job, ResultFail, "volume record disappeared")
		return
	}

	now := o.env.Now()
	volume.ArchivedAt = &now

	backupExp := &model.Expiration{
		Stage:     model.ExpStageExpiring,
		StageDate: now,
		Expires:   now.Add(BackupLifetime),
	}
	if err = o.expirations.Create(ctx, backupExp); err != nil {
		o.logger(ctx).Error().Err(err).Str("volume_id", volume.ID).Msg("create backup expiration")
	} else {
		volume.BackupExpirationID = &backupExp.ID
	}
	if err = o.volumes.Update(ctx, volume); err != nil {
		o.logger(ctx).Error().Err(err).Str("volume_id", volume.ID).Msg("mark volume archived")
	}

	o.sched.Schedule(0, func(ctx context.Context) {
		o.deleteVolume(ctx, job)
	})
}

// deleteVolume 删除启动卷
func (o *Orchestrator) deleteVolume(ctx context.Context, job deleteJob) {
	if err := o.connector.DeleteVolume(ctx, &cloud.Volume{ID: job.volumeID}); err != nil {
		o.endDelete(ctx, job, ResultRetry, fmt.Sprintf("volume deletion request failed: %v", err))
		return
	}
	o.sched.Schedule(VolumeDeletionRetryInterval, func(ctx context.Context) {
		o.waitForVolumeDeleted(ctx, job, VolumeDeletionRetries)
	})
}

// waitForVolumeDeleted 轮询到远端确认卷不存在
func (o *Orchestrator) waitForVolumeDeleted(ctx context.Context, job deleteJob, retriesLeft int) {
	existence, err := o.connector.IsVolumeCreated(ctx, &cloud.Volume{ID: job.volumeID})
	switch existence {
	case cloud.ExistenceAbsent:
		volume, loadErr := o.volumes.GetByID(ctx, job.volumeID)
		if loadErr != nil {
			o.endDelete(ctx, job, ResultFail, "volume record disappeared")
			return
		}
		now := o.env.Now()
		volume.Deleted = &now
		if loadErr = o.volumes.Update(ctx, volume); loadErr != nil {
			o.logger(ctx).Error().Err(loadErr).Str("volume_id", volume.ID).Msg("mark volume deleted")
		}
		o.endDelete(ctx, job, ResultSuccess, "")
	case cloud.ExistenceUnknown:
		o.logger(ctx).Warn().Err(err).Str("volume_id", job.volumeID).Msg("volume existence unknown")
		fallthrough
	default:
		if retriesLeft <= 0 {
			o.endDelete(ctx, job, ResultRetry, "volume did not delete in time")
			return
		}
		o.sched.Schedule(VolumeDeletionRetryInterval, func(ctx context.Context) {
			o.waitForVolumeDeleted(ctx, job, retriesLeft-1)
		})
	}
}

// endDelete 删除工作流的唯一终结点
// 负责最终状态行和过期记录的推进，过期记录至多推进一次
func (o *Orchestrator) endDelete(ctx context.Context, job deleteJob, result Result, message string) {
	logger := o.logger(ctx)

	switch result {
	case ResultSuccess:
		o.setStatus(ctx, job.statusID, model.StatusDeleted, 100, "Desktop deleted")
		logger.Info().Str("volume_id", job.volumeID).Msg("desktop deleted")
	default:
		o.setStatus(ctx, job.statusID, model.StatusError, 0, message)
		if job.volumeID != "" {
			if err := o.volumes.SetError(ctx, job.volumeID, message, o.env.Now()); err != nil {
				logger.Error().Err(err).Str("volume_id", job.volumeID).Msg("mark volume error")
			}
		}
		logger.Error().Str("volume_id", job.volumeID).
			Str("result", result.String()).Str("reason", message).
			Msg("desktop deletion failed")
	}

	o.advanceExpiration(ctx, job.expirationID, result)
}
