// Package openstack 提供 OpenStack 状态词汇到内部状态的封闭映射表
//
// 只做状态归一化，不包含具体的 API 绑定。
// 远端词汇之外的任何值都映射到 UNKNOWN。
package openstack

import (
	"github.com/jimyag/vdm/internal/vdm/cloud"
)

// Nova 服务器状态词汇
const (
	ServerUnknown          = "UNKNOWN"
	ServerError            = "ERROR"
	ServerDeleted          = "DELETED"
	ServerActive           = "ACTIVE"
	ServerBuild            = "BUILD"
	ServerRebuild          = "REBUILD"
	ServerResize           = "RESIZE"
	ServerVerifyResize     = "VERIFY_RESIZE"
	ServerMigrating        = "MIGRATING"
	ServerRescue           = "RESCUE"
	ServerRevertResize     = "REVERT_RESIZE"
	ServerShelved          = "SHELVED"
	ServerShelvedOffloaded = "SHELVED_OFFLOADED"
	ServerSoftDeleted      = "SOFT_DELETED"
	ServerPaused           = "PAUSED"
	ServerSuspended        = "SUSPENDED"
	ServerShutoff          = "SHUTOFF"
	ServerReboot           = "REBOOT"
	ServerHardReboot       = "HARD_REBOOT"
	ServerPassword         = "PASSWORD"
)

// Cinder 卷状态词汇（小写）
const (
	VolumeCreating         = "creating"
	VolumeAvailable        = "available"
	VolumeInUse            = "in-use"
	VolumeDeleting         = "deleting"
	VolumeError            = "error"
	VolumeErrorDeleting    = "error_deleting"
	VolumeErrorManaging    = "error_managing"
	VolumeErrorRestoring   = "error_restoring"
	VolumeErrorBackingUp   = "error_backing-up"
	VolumeErrorExtending   = "error_extending"
	VolumeManaging         = "managing"
	VolumeAttaching        = "attaching"
	VolumeDetaching        = "detaching"
	VolumeMaintenance      = "maintenance"
	VolumeRestoringBackup  = "restoring-backup"
	VolumeReserved         = "reserved"
	VolumeAwaitingTransfer = "awaiting-transfer"
	VolumeBackingUp        = "backing-up"
	VolumeDownloading      = "downloading"
	VolumeUploading        = "uploading"
	VolumeRetyping         = "retyping"
	VolumeExtending        = "extending"
)

// Cinder 备份状态词汇（小写）
const (
	BackupCreating  = "creating"
	BackupAvailable = "available"
	BackupDeleting  = "deleting"
	BackupError     = "error"
	BackupRestoring = "restoring"
)

// ServerStatusMapper Nova 服务器状态映射表
var ServerStatusMapper = cloud.NewStatusMapper(map[string]cloud.ServerStatus{
	// 默认状态
	ServerUnknown: cloud.ServerStatusUnknown,
	// 故障状态
	ServerError:   cloud.ServerStatusError,
	ServerDeleted: cloud.ServerStatusDeleted,
	// 进行中状态
	ServerActive:       cloud.ServerStatusActive,
	ServerBuild:        cloud.ServerStatusBuild,
	ServerRebuild:      cloud.ServerStatusRebuild,
	ServerResize:       cloud.ServerStatusResize,
	ServerVerifyResize: cloud.ServerStatusVerifyResize,
	ServerMigrating:    cloud.ServerStatusMigrating,
	// 其他状态
	ServerRescue:           cloud.ServerStatusRescue,
	ServerRevertResize:     cloud.ServerStatusRevertResize,
	ServerShelved:          cloud.ServerStatusShelved,
	ServerShelvedOffloaded: cloud.ServerStatusShelvedOffloaded,
	ServerSoftDeleted:      cloud.ServerStatusSoftDeleted,
	ServerPaused:           cloud.ServerStatusPaused,
	ServerSuspended:        cloud.ServerStatusSuspended,
	ServerShutoff:          cloud.ServerStatusShutoff,
	ServerReboot:           cloud.ServerStatusReboot,
	ServerHardReboot:       cloud.ServerStatusHardReboot,
	ServerPassword:         cloud.ServerStatusPassword,
}, cloud.ServerStatusUnknown)

// VolumeStatusMapper Cinder 卷状态映射表
var VolumeStatusMapper = cloud.NewStatusMapper(map[string]cloud.VolumeStatus{
	// 主要状态
	VolumeCreating:  cloud.VolumeStatusCreating,
	VolumeAvailable: cloud.VolumeStatusAvailable,
	VolumeInUse:     cloud.VolumeStatusInUse,
	VolumeDeleting:  cloud.VolumeStatusDeleting,
	// 故障状态
	VolumeError:          cloud.VolumeStatusError,
	VolumeErrorDeleting:  cloud.VolumeStatusErrorDeleting,
	VolumeErrorManaging:  cloud.VolumeStatusErrorManaging,
	VolumeErrorRestoring: cloud.VolumeStatusErrorRestoring,
	VolumeErrorBackingUp: cloud.VolumeStatusErrorBackingUp,
	VolumeErrorExtending: cloud.VolumeStatusErrorExtending,
	// 其他状态
	VolumeManaging:         cloud.VolumeStatusManaging,
	VolumeAttaching:        cloud.VolumeStatusAttaching,
	VolumeDetaching:        cloud.VolumeStatusDetaching,
	VolumeMaintenance:      cloud.VolumeStatusMaintenance,
	VolumeRestoringBackup:  cloud.VolumeStatusRestoringBackup,
	VolumeReserved:         cloud.VolumeStatusReserved,
	VolumeAwaitingTransfer: cloud.VolumeStatusAwaitingTransfer,
	VolumeBackingUp:        cloud.VolumeStatusBackingUp,
	VolumeDownloading:      cloud.VolumeStatusDownloading,
	VolumeUploading:        cloud.VolumeStatusUploading,
	VolumeRetyping:         cloud.VolumeStatusRetyping,
	VolumeExtending:        cloud.VolumeStatusExtending,
}, cloud.VolumeStatusUnknown)

// BackupStatusMapper Cinder 备份状态映射表
var BackupStatusMapper = cloud.NewStatusMapper(map[string]cloud.BackupStatus{
	BackupCreating:  cloud.BackupStatusCreating,
	BackupAvailable: cloud.BackupStatusAvailable,
	BackupDeleting:  cloud.BackupStatusDeleting,
	BackupError:     cloud.BackupStatusError,
	BackupRestoring: cloud.BackupStatusRestoring,
}, cloud.BackupStatusUnknown)
