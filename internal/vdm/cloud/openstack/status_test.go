package openstack

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jimyag/vdm/internal/vdm/cloud"
)

func TestServerStatusMapper(t *testing.T) {
	t.Parallel()

	testcases := []struct {
		remote string
		want   cloud.ServerStatus
	}{
		{ServerActive, cloud.ServerStatusActive},
		{ServerBuild, cloud.ServerStatusBuild},
		{ServerShutoff, cloud.ServerStatusShutoff},
		{ServerVerifyResize, cloud.ServerStatusVerifyResize},
		{ServerResize, cloud.ServerStatusResize},
		{ServerShelvedOffloaded, cloud.ServerStatusShelvedOffloaded},
		{ServerError, cloud.ServerStatusError},
		{ServerDeleted, cloud.ServerStatusDeleted},
		// 词汇表之外的值映射到 UNKNOWN
		{"NOT_A_REAL_STATUS", cloud.ServerStatusUnknown},
		{"", cloud.ServerStatusUnknown},
		// 大小写敏感：Nova 状态是大写的
		{"active", cloud.ServerStatusUnknown},
	}

	for _, tc := range testcases {
		assert.Equal(t, tc.want, ServerStatusMapper.Get(tc.remote),
			"remote status %q", tc.remote)
	}
}

func TestVolumeStatusMapper(t *testing.T) {
	t.Parallel()

	testcases := []struct {
		remote string
		want   cloud.VolumeStatus
	}{
		{VolumeCreating, cloud.VolumeStatusCreating},
		{VolumeAvailable, cloud.VolumeStatusAvailable},
		{VolumeInUse, cloud.VolumeStatusInUse},
		{VolumeBackingUp, cloud.VolumeStatusBackingUp},
		{VolumeErrorBackingUp, cloud.VolumeStatusErrorBackingUp},
		{VolumeDeleting, cloud.VolumeStatusDeleting},
		// 词汇表之外的值映射到 UNKNOWN
		{"frobnicating", cloud.VolumeStatusUnknown},
		// 大小写敏感：Cinder 状态是小写的
		{"AVAILABLE", cloud.VolumeStatusUnknown},
	}

	for _, tc := range testcases {
		assert.Equal(t, tc.want, VolumeStatusMapper.Get(tc.remote),
			"remote status %q", tc.remote)
	}
}

func TestBackupStatusMapper(t *testing.T) {
	t.Parallel()

	assert.Equal(t, cloud.BackupStatusCreating, BackupStatusMapper.Get(BackupCreating))
	assert.Equal(t, cloud.BackupStatusAvailable, BackupStatusMapper.Get(BackupAvailable))
	assert.Equal(t, cloud.BackupStatusError, BackupStatusMapper.Get(BackupError))
	assert.Equal(t, cloud.BackupStatusUnknown, BackupStatusMapper.Get("mystery"))
}
