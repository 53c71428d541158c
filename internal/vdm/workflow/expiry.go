package workflow

import (
	"context"
	"fmt"

	"github.com/jimyag/vdm/internal/vdm/cloud"
	"github.com/jimyag/vdm/internal/vdm/entity"
	"github.com/jimyag/vdm/internal/vdm/repository/model"
)

// ProcessExpirations 管理侧的周期任务：推进所有到期的资源
// 四类资源互相独立，一类失败不影响其余
func (o *Orchestrator) ProcessExpirations(ctx context.Context) {
	logger := o.logger(ctx)

	if n, err := o.ShelveExpiredInstances(ctx); err != nil {
		logger.Error().Err(err).Msg("shelve expired instances")
	} else if n > 0 {
		logger.Info().Int("count", n).Msg("forced shelves started")
	}

	if n, err := o.ArchiveExpiredVolumes(ctx); err != nil {
		logger.Error().Err(err).Msg("archive expired volumes")
	} else if n > 0 {
		logger.Info().Int("count", n).Msg("volume archives started")
	}

	if n, err := o.DownsizeExpired(ctx); err != nil {
		logger.Error().Err(err).Msg("downsize expired resizes")
	} else if n > 0 {
		logger.Info().Int("count", n).Msg("forced downsizes started")
	}

	if n, err := o.DeleteExpiredBackups(ctx); err != nil {
		logger.Error().Err(err).Msg("delete expired backups")
	} else if n > 0 {
		logger.Info().Int("count", n).Msg("expired backups deleted")
	}
}

// ExtendInstance 延长实例自身的生存期
// 新期限从今天起按完整生存期重新计算，未知或他人的实例返回 404
func (o *Orchestrator) ExtendInstance(ctx context.Context, user *entity.User, instanceID string) (string, error) {
	instance, err := o.instances.GetByUntrustedID(ctx, instanceID, user.Username)
	if err != nil {
		return "", err
	}

	expires := o.env.AfterTime(InstanceLifetime)
	instance.Expires = &expires
	if err = o.instances.Update(ctx, instance); err != nil {
		return "", err
	}
	if instance.ExpirationID != nil {
		expiration, eerr := o.expirations.GetByID(ctx, *instance.ExpirationID)
		if eerr == nil {
			expiration.Expires = expires
			if eerr = o.expirations.Update(ctx, expiration); eerr != nil {
				o.logger(ctx).Error().Err(eerr).Uint("expiration_id", expiration.ID).Msg("extend instance expiration")
			}
		}
	}

	return fmt.Sprintf("Instance (%s) expiry extended to %s",
		instance.ID, expires.Format("2006-01-02")), nil
}

// ShelveExpiredInstances 把过期的实例强制搁置，返回发起的搁置数
func (o *Orchestrator) ShelveExpiredInstances(ctx context.Context) (int, error) {
	expired, err := o.instances.ListExpired(ctx, o.env.Now())
	if err != nil {
		return 0, err
	}

	count := 0
	for _, instance := range expired {
		volume, verr := o.volumes.GetByID(ctx, instance.BootVolumeID)
		if verr != nil {
			o.logger(ctx).Error().Err(verr).Str("volume_id", instance.BootVolumeID).Msg("load volume for forced shelve")
			continue
		}
		desktop, ok := o.catalog.DesktopType(volume.OperatingSystem)
		if !ok {
			o.logger(ctx).Error().Str("desktop_type", volume.OperatingSystem).Msg("unknown desktop type for forced shelve")
			continue
		}

		now := o.env.Now()
		expiration := &model.Expiration{
			Stage:     model.ExpStageExpiring,
			StageDate: now,
			Expires:   *instance.Expires,
		}
		if cerr := o.expirations.Create(ctx, expiration); cerr != nil {
			o.logger(ctx).Error().Err(cerr).Str("instance_id", instance.ID).Msg("create instance expiration")
			continue
		}
		instance.ExpirationID = &expiration.ID
		if uerr := o.instances.Update(ctx, instance); uerr != nil {
			o.logger(ctx).Error().Err(uerr).Str("instance_id", instance.ID).Msg("bind instance expiration")
		}

		if _, serr := o.shelve(ctx, instance, desktop, &expiration.ID, ForcedShelveWaitTime); serr != nil {
			o.logger(ctx).Error().Err(serr).Str("instance_id", instance.ID).Msg("start forced shelve")
			continue
		}
		count++
	}
	return count, nil
}

// ArchiveExpiredVolumes 把过期的搁置卷归档后删除，返回发起的归档数
// 归档前复核桌面确实还处于 VM_SHELVED，中途被解除搁置的不动
func (o *Orchestrator) ArchiveExpiredVolumes(ctx context.Context) (int, error) {
	expired, err := o.volumes.ListShelvedExpired(ctx, o.env.Now())
	if err != nil {
		return 0, err
	}

	count := 0
	for _, volume := range expired {
		status, serr := o.statuses.GetByVolume(ctx, volume.ID)
		if serr != nil {
			return count, serr
		}
		if status == nil || status.Status != model.StatusShelved {
			o.logger(ctx).Warn().Str("volume_id", volume.ID).
				Msg("expired volume but desktop is not shelved")
			continue
		}

		if _, derr := o.deleteDesktop(ctx, volume.Username, volume.OperatingSystem, true, volume.ExpirationID); derr != nil {
			o.logger(ctx).Error().Err(derr).Str("volume_id", volume.ID).Msg("start volume archive")
			continue
		}
		count++
	}
	return count, nil
}

// DeleteExpiredBackups 删除保留期已过的归档备份，返回删除数
func (o *Orchestrator) DeleteExpiredBackups(ctx context.Context) (int, error) {
	withBackup, err := o.volumes.ListWithBackup(ctx)
	if err != nil {
		return 0, err
	}

	now := o.env.Now()
	count := 0
	for _, volume := range withBackup {
		if volume.BackupExpirationID == nil {
			continue
		}
		expiration, eerr := o.expirations.GetByID(ctx, *volume.BackupExpirationID)
		if eerr != nil {
			o.logger(ctx).Error().Err(eerr).Str("volume_id", volume.ID).Msg("load backup expiration")
			continue
		}
		if expiration.Stage != model.ExpStageExpiring || expiration.Expires.After(now) {
			continue
		}

		backupID := volume.BackupID
		if derr := o.connector.DeleteVolumeBackup(ctx, &cloud.VolumeBackup{ID: backupID}); derr != nil {
			o.logger(ctx).Error().Err(derr).Str("backup_id", backupID).Msg("delete expired backup")
			o.advanceExpiration(ctx, volume.BackupExpirationID, ResultRetry)
			continue
		}

		// 删除请求是幂等的，确认不存在后再清账
		expirationID := volume.BackupExpirationID
		volumeID := volume.ID
		o.sched.Schedule(BackupDeletionRetryInterval, func(ctx context.Context) {
			o.waitForBackupDeleted(ctx, volumeID, backupID, expirationID, BackupDeletionRetries)
		})
		count++
	}
	return count, nil
}

// waitForBackupDeleted 轮询到远端确认备份不存在后清账
func (o *Orchestrator) waitForBackupDeleted(ctx context.Context, volumeID, backupID string, expirationID *uint, retriesLeft int) {
	existence, err := o.connector.IsBackupCreated(ctx, &cloud.VolumeBackup{ID: backupID})
	switch existence {
	case cloud.ExistenceAbsent:
		volume, verr := o.volumes.GetByID(ctx, volumeID)
		if verr != nil {
			o.logger(ctx).Error().Err(verr).Str("volume_id", volumeID).Msg("load volume after backup delete")
			return
		}
		volume.BackupID = ""
		if verr = o.volumes.Update(ctx, volume); verr != nil {
			o.logger(ctx).Error().Err(verr).Str("volume_id", volumeID).Msg("clear backup id")
		}
		o.advanceExpiration(ctx, expirationID, ResultSuccess)
	case cloud.ExistenceUnknown:
		o.logger(ctx).Warn().Err(err).Str("backup_id", backupID).Msg("backup existence unknown")
		fallthrough
	default:
		if retriesLeft <= 0 {
			o.advanceExpiration(ctx, expirationID, ResultRetry)
			return
		}
		o.sched.Schedule(BackupDeletionRetryInterval, func(ctx context.Context) {
			o.waitForBackupDeleted(ctx, volumeID, backupID, expirationID, retriesLeft-1)
		})
	}
}
