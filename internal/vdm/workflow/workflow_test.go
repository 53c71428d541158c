package workflow

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jimyag/vdm/internal/vdm/cloud"
	"github.com/jimyag/vdm/internal/vdm/cloud/environment"
	"github.com/jimyag/vdm/internal/vdm/cloud/mock"
	"github.com/jimyag/vdm/internal/vdm/entity"
	"github.com/jimyag/vdm/internal/vdm/repository"
	"github.com/jimyag/vdm/internal/vdm/repository/model"
	"github.com/jimyag/vdm/internal/vdm/scheduler"
	"github.com/jimyag/vdm/pkg/apierror"
)

type harness struct {
	repo      *repository.Repository
	conn      *mock.Connector
	env       *environment.Fake
	sched     *scheduler.Manual
	orch      *Orchestrator
	volumes   repository.VolumeRepository
	instances repository.InstanceRepository
	statuses  repository.VMStatusRepository
	resizes   repository.ResizeRepository
	exps      repository.ExpirationRepository
}

var testUser = &entity.User{
	Username: "alice",
	Email:    "alice@example.edu",
	Timezone: "Australia/Melbourne",
}

func testCatalog() *entity.Catalog {
	return &entity.Catalog{
		DesktopTypes: []entity.DesktopType{
			{
				ID:              "linux",
				Name:            "Linux Desktop",
				Feature:         "desktops",
				ImageNamePrefix: "img-linux",
				DefaultFlavorID: "m1.medium",
				BigFlavorID:     "m1.xlarge",
				VolumeSizeGB:    30,
				SecurityGroups:  []string{"default"},
			},
		},
		Zones: []entity.AvailabilityZone{
			{Name: "zone-a", NetworkID: "net-1", ZoneWeight: 0},
		},
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	repo, err := repository.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	conn := mock.New()
	env := environment.NewFake(time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC))
	sched := scheduler.NewManual()

	orch := New(Params{
		Repo:      repo,
		Connector: conn,
		Env:       env,
		Scheduler: sched,
		Catalog:   testCatalog(),
		SiteURL:   "http://vdm.test",
	})

	db := repo.DB()
	return &harness{
		repo:      repo,
		conn:      conn,
		env:       env,
		sched:     sched,
		orch:      orch,
		volumes:   repository.NewVolumeRepository(db),
		instances: repository.NewInstanceRepository(db),
		statuses:  repository.NewVMStatusRepository(db),
		resizes:   repository.NewResizeRepository(db),
		exps:      repository.NewExpirationRepository(db),
	}
}

// addSourceImage 在 mock 云上准备一个可克隆的源镜像卷
func (h *harness) addSourceImage(build string) {
	h.conn.AddVolume(&cloud.Volume{
		ID:       "src-" + build,
		Name:     "img-linux-" + build,
		Zone:     "zone-a",
		Metadata: map[string]string{SourceVolumeBuildKey: build},
		Bootable: true,
	}, "available")
}

// createDesktop 驱动完整创建流程直到 VM_OKAY，返回卷和实例 ID
func (h *harness) createDesktop(t *testing.T, ctx context.Context) (string, string) {
	t.Helper()
	h.addSourceImage("42")

	status, err := h.orch.LaunchDesktop(ctx, testUser, "linux", "desktops")
	require.NoError(t, err)
	require.Equal(t, model.StatusCreating, status.Status)

	// 创建卷
	require.True(t, h.sched.RunNext(ctx))
	volume, err := h.volumes.GetCurrent(ctx, testUser.Username, "linux")
	require.NoError(t, err)
	require.NotNil(t, volume)

	// 卷就绪，启动实例
	h.conn.SetVolumeStatus(volume.ID, "available")
	require.True(t, h.sched.RunNext(ctx))
	require.True(t, h.sched.RunNext(ctx))
	instance, err := h.instances.GetCurrent(ctx, testUser.Username, "linux")
	require.NoError(t, err)
	require.NotNil(t, instance)

	// 服务器 ACTIVE，phone-home 收尾
	h.conn.SetServerStatus(instance.ID, "ACTIVE")
	require.True(t, h.sched.RunNext(ctx))
	require.NoError(t, h.orch.CompleteBoot(ctx, instance.ID))

	final, err := h.statuses.GetLatest(ctx, testUser.Username, "linux")
	require.NoError(t, err)
	require.Equal(t, model.StatusOkay, final.Status)
	require.Equal(t, 100, final.StatusProgress)
	return volume.ID, instance.ID
}

func TestLaunchDesktop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("full create flow", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		volumeID, instanceID := h.createDesktop(t, ctx)

		volume, err := h.volumes.GetByID(ctx, volumeID)
		require.NoError(t, err)
		assert.Equal(t, "src-42", volume.SourceVolumeID)
		assert.Equal(t, "zone-a", volume.Zone)
		assert.Equal(t, "m1.medium", volume.FlavorID)
		assert.NotEmpty(t, volume.HostnameID)

		instance, err := h.instances.GetByID(ctx, instanceID)
		require.NoError(t, err)
		assert.Equal(t, DefaultDesktopUsername, instance.Username)
		assert.NotEmpty(t, instance.Password)
		assert.NotEmpty(t, instance.ConsoleAddr)
		assert.NotZero(t, instance.ConsolePort)
		require.NotNil(t, instance.GuacConnectionID)
		require.NotNil(t, instance.Expires)

		final, err := h.statuses.GetLatest(ctx, testUser.Username, "linux")
		require.NoError(t, err)
		assert.Equal(t, "Instance ready", final.StatusMessage)
	})

	t.Run("picks newest source build", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.addSourceImage("7")
		h.addSourceImage("41")
		h.addSourceImage("9")

		_, err := h.orch.LaunchDesktop(ctx, testUser, "linux", "desktops")
		require.NoError(t, err)
		require.True(t, h.sched.RunNext(ctx))

		volume, err := h.volumes.GetCurrent(ctx, testUser.Username, "linux")
		require.NoError(t, err)
		require.NotNil(t, volume)
		assert.Equal(t, "src-41", volume.SourceVolumeID)
	})

	t.Run("no source volume fails", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)

		_, err := h.orch.LaunchDesktop(ctx, testUser, "linux", "desktops")
		require.NoError(t, err)
		require.True(t, h.sched.RunNext(ctx))

		status, err := h.statuses.GetLatest(ctx, testUser.Username, "linux")
		require.NoError(t, err)
		assert.Equal(t, model.StatusNoVM, status.Status)
		assert.Contains(t, status.StatusMessage, "no source volume")
	})

	t.Run("conflict when desktop exists", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.createDesktop(t, ctx)

		_, err := h.orch.LaunchDesktop(ctx, testUser, "linux", "desktops")
		assert.ErrorIs(t, err, apierror.ErrVMConflict)
	})

	t.Run("unknown desktop type", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		_, err := h.orch.LaunchDesktop(ctx, testUser, "solaris", "desktops")
		assert.ErrorIs(t, err, apierror.ErrInvalidParameter)
	})

	t.Run("volume timeout", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.addSourceImage("42")

		_, err := h.orch.LaunchDesktop(ctx, testUser, "linux", "desktops")
		require.NoError(t, err)
		require.True(t, h.sched.RunNext(ctx))

		// 卷一直卡在 creating，超过截止时间
		h.env.Advance(VolumeCreationTimeout + time.Second)
		require.True(t, h.sched.RunNext(ctx))

		// 创建没成功就没有桌面，回到 NO_VM 让用户可以重来
		status, err := h.statuses.GetLatest(ctx, testUser.Username, "linux")
		require.NoError(t, err)
		assert.Equal(t, model.StatusNoVM, status.Status)
		assert.Equal(t, "Volume took too long to create", status.StatusMessage)

		volume, err := h.volumes.GetCurrent(ctx, testUser.Username, "linux")
		require.NoError(t, err)
		require.NotNil(t, volume.ErrorAt)
	})

	t.Run("instance launch timeout", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.addSourceImage("42")

		_, err := h.orch.LaunchDesktop(ctx, testUser, "linux", "desktops")
		require.NoError(t, err)
		require.True(t, h.sched.RunNext(ctx))
		volume, err := h.volumes.GetCurrent(ctx, testUser.Username, "linux")
		require.NoError(t, err)
		h.conn.SetVolumeStatus(volume.ID, "available")
		require.True(t, h.sched.RunNext(ctx))
		require.True(t, h.sched.RunNext(ctx))

		// 服务器一直 BUILD
		h.env.Advance(InstanceLaunchTimeout + time.Second)
		require.True(t, h.sched.RunNext(ctx))

		status, err := h.statuses.GetLatest(ctx, testUser.Username, "linux")
		require.NoError(t, err)
		assert.Equal(t, model.StatusNoVM, status.Status)
		assert.Equal(t, "Instance took too long to launch", status.StatusMessage)
	})

	t.Run("password reused across relaunch on same volume", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		volumeID, instanceID := h.createDesktop(t, ctx)

		first, err := h.instances.GetByID(ctx, instanceID)
		require.NoError(t, err)

		// 搁置后重新启动
		_, err = h.orch.ShelveDesktop(ctx, testUser, "linux")
		require.NoError(t, err)
		h.sched.RunAll(ctx, 50)

		_, err = h.orch.LaunchDesktop(ctx, testUser, "linux", "desktops")
		require.NoError(t, err)
		require.True(t, h.sched.RunNext(ctx))

		second, err := h.instances.GetCurrent(ctx, testUser.Username, "linux")
		require.NoError(t, err)
		require.NotNil(t, second)
		assert.NotEqual(t, first.ID, second.ID)
		assert.Equal(t, first.Password, second.Password)
		assert.Equal(t, volumeID, second.BootVolumeID)

		volume, err := h.volumes.GetByID(ctx, volumeID)
		require.NoError(t, err)
		assert.Nil(t, volume.ShelvedAt)
		assert.Nil(t, volume.Expires)
	})

	t.Run("relaunch stops when shelved volume is gone", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		volumeID, _ := h.createDesktop(t, ctx)

		_, err := h.orch.ShelveDesktop(ctx, testUser, "linux")
		require.NoError(t, err)
		h.sched.RunAll(ctx, 50)

		// 卷在云端被带外删掉，台账还认为它搁置着
		require.NoError(t, h.conn.DeleteVolume(ctx, &cloud.Volume{ID: volumeID}))

		_, err = h.orch.LaunchDesktop(ctx, testUser, "linux", "desktops")
		require.NoError(t, err)
		require.True(t, h.sched.RunNext(ctx))

		status, err := h.statuses.GetLatest(ctx, testUser.Username, "linux")
		require.NoError(t, err)
		assert.Equal(t, model.StatusError, status.Status)
		assert.Contains(t, status.StatusMessage, "needs manual cleanup")

		volume, err := h.volumes.GetByID(ctx, volumeID)
		require.NoError(t, err)
		require.NotNil(t, volume.ErrorAt)
		assert.Contains(t, volume.ErrorMessage, "needs manual cleanup")

		// 核实不过不会继续启动实例
		instance, err := h.instances.GetCurrent(ctx, testUser.Username, "linux")
		require.NoError(t, err)
		assert.Nil(t, instance)
	})

	t.Run("relaunch repolls while volume existence is unknown", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		_, _ = h.createDesktop(t, ctx)

		_, err := h.orch.ShelveDesktop(ctx, testUser, "linux")
		require.NoError(t, err)
		h.sched.RunAll(ctx, 50)

		_, err = h.orch.LaunchDesktop(ctx, testUser, "linux", "desktops")
		require.NoError(t, err)

		// 存在性未知按瞬时失败处理：重排同一步，不当作卷已删除
		h.conn.FailNext("IsVolumeCreated", assert.AnError)
		require.True(t, h.sched.RunNext(ctx))
		instance, err := h.instances.GetCurrent(ctx, testUser.Username, "linux")
		require.NoError(t, err)
		assert.Nil(t, instance)

		require.True(t, h.sched.RunNext(ctx))
		instance, err = h.instances.GetCurrent(ctx, testUser.Username, "linux")
		require.NoError(t, err)
		require.NotNil(t, instance)
	})
}

func TestDeleteDesktop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("full delete flow", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		volumeID, instanceID := h.createDesktop(t, ctx)

		status, err := h.orch.DeleteDesktop(ctx, testUser, "linux")
		require.NoError(t, err)
		assert.Equal(t, model.StatusWaiting, status.Status)
		assert.Equal(t, "Instance deleting", status.StatusMessage)

		h.sched.RunAll(ctx, 50)

		final, err := h.statuses.GetLatest(ctx, testUser.Username, "linux")
		require.NoError(t, err)
		assert.Equal(t, model.StatusDeleted, final.Status)
		assert.Equal(t, 100, final.StatusProgress)

		instance, err := h.instances.GetByID(ctx, instanceID)
		require.NoError(t, err)
		assert.NotNil(t, instance.Deleted)
		assert.Nil(t, instance.GuacConnectionID)

		volume, err := h.volumes.GetByID(ctx, volumeID)
		require.NoError(t, err)
		assert.NotNil(t, volume.Deleted)
		assert.NotNil(t, volume.MarkedForDeletion)

		assert.False(t, h.conn.HasServer(instanceID))
		assert.False(t, h.conn.HasVolume(volumeID))
	})

	t.Run("proceeds when shutoff never happens", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		_, instanceID := h.createDesktop(t, ctx)

		// 关机请求失败，服务器一直 ACTIVE
		h.conn.FailNext("StopServer", assert.AnError)

		_, err := h.orch.DeleteDesktop(ctx, testUser, "linux")
		require.NoError(t, err)
		h.sched.RunAll(ctx, 50)

		final, err := h.statuses.GetLatest(ctx, testUser.Username, "linux")
		require.NoError(t, err)
		assert.Equal(t, model.StatusDeleted, final.Status)
		assert.False(t, h.conn.HasServer(instanceID))
	})

	t.Run("delete without desktop", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		_, err := h.orch.DeleteDesktop(ctx, testUser, "linux")
		assert.ErrorIs(t, err, apierror.ErrNotFound)
	})

	t.Run("skips stop when server already gone", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		volumeID, instanceID := h.createDesktop(t, ctx)

		// 服务器在云端被带外删掉，删除流程直接进入卷处理
		require.NoError(t, h.conn.DeleteServer(ctx, &cloud.Server{ID: instanceID}))

		_, err := h.orch.DeleteDesktop(ctx, testUser, "linux")
		require.NoError(t, err)
		h.sched.RunAll(ctx, 50)

		final, err := h.statuses.GetLatest(ctx, testUser.Username, "linux")
		require.NoError(t, err)
		assert.Equal(t, model.StatusDeleted, final.Status)

		instance, err := h.instances.GetByID(ctx, instanceID)
		require.NoError(t, err)
		assert.NotNil(t, instance.Deleted)
		assert.False(t, h.conn.HasVolume(volumeID))
	})

	t.Run("unexpected power state needs manual cleanup", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		volumeID, instanceID := h.createDesktop(t, ctx)

		h.conn.SetServerStatus(instanceID, "PAUSED")
		_, err := h.orch.DeleteDesktop(ctx, testUser, "linux")
		require.NoError(t, err)
		h.sched.RunAll(ctx, 50)

		final, err := h.statuses.GetLatest(ctx, testUser.Username, "linux")
		require.NoError(t, err)
		assert.Equal(t, model.StatusError, final.Status)
		assert.Contains(t, final.StatusMessage, "needs manual cleanup")

		instance, err := h.instances.GetByID(ctx, instanceID)
		require.NoError(t, err)
		assert.Contains(t, instance.ErrorMessage, "needs manual cleanup")

		// 不自动重试，服务器和卷原地不动
		assert.True(t, h.conn.HasServer(instanceID))
		assert.True(t, h.conn.HasVolume(volumeID))
	})

	t.Run("repolls while server existence is unknown", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		volumeID, instanceID := h.createDesktop(t, ctx)

		_, err := h.orch.DeleteDesktop(ctx, testUser, "linux")
		require.NoError(t, err)
		require.True(t, h.sched.RunNext(ctx)) // 关机
		require.True(t, h.sched.RunNext(ctx)) // 确认 SHUTOFF
		require.True(t, h.sched.RunNext(ctx)) // 发起服务器删除

		// 存在性未知不等于已删除：记录不动，再排一次轮询
		h.conn.FailNext("IsServerCreated", assert.AnError)
		require.True(t, h.sched.RunNext(ctx))
		instance, err := h.instances.GetByID(ctx, instanceID)
		require.NoError(t, err)
		assert.Nil(t, instance.Deleted)

		require.True(t, h.sched.RunNext(ctx))
		instance, err = h.instances.GetByID(ctx, instanceID)
		require.NoError(t, err)
		assert.NotNil(t, instance.Deleted)

		// 卷的存在性查询同样处理
		require.True(t, h.sched.RunNext(ctx)) // 发起卷删除
		h.conn.FailNext("IsVolumeCreated", assert.AnError)
		require.True(t, h.sched.RunNext(ctx))
		volume, err := h.volumes.GetByID(ctx, volumeID)
		require.NoError(t, err)
		assert.Nil(t, volume.Deleted)

		require.True(t, h.sched.RunNext(ctx))
		volume, err = h.volumes.GetByID(ctx, volumeID)
		require.NoError(t, err)
		assert.NotNil(t, volume.Deleted)

		final, err := h.statuses.GetLatest(ctx, testUser.Username, "linux")
		require.NoError(t, err)
		assert.Equal(t, model.StatusDeleted, final.Status)
		assert.False(t, h.sched.RunNext(ctx))
	})
}

func TestShelveDesktop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("full shelve flow", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		volumeID, instanceID := h.createDesktop(t, ctx)

		status, err := h.orch.ShelveDesktop(ctx, testUser, "linux")
		require.NoError(t, err)
		assert.Equal(t, "Instance stopping", status.StatusMessage)

		h.sched.RunAll(ctx, 50)

		final, err := h.statuses.GetLatest(ctx, testUser.Username, "linux")
		require.NoError(t, err)
		assert.Equal(t, model.StatusShelved, final.Status)
		assert.Equal(t, "Instance shelved", final.StatusMessage)

		// 服务器删了，卷留着
		assert.False(t, h.conn.HasServer(instanceID))
		assert.True(t, h.conn.HasVolume(volumeID))

		volume, err := h.volumes.GetByID(ctx, volumeID)
		require.NoError(t, err)
		require.NotNil(t, volume.ShelvedAt)
		require.NotNil(t, volume.Expires)
		require.NotNil(t, volume.ExpirationID)
		assert.Nil(t, volume.Deleted)
	})

	t.Run("forced shelve of expired instances", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		volumeID, instanceID := h.createDesktop(t, ctx)

		h.env.Advance(InstanceLifetime + time.Hour)
		count, err := h.orch.ShelveExpiredInstances(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		h.sched.RunAll(ctx, 50)

		final, err := h.statuses.GetLatest(ctx, testUser.Username, "linux")
		require.NoError(t, err)
		assert.Equal(t, model.StatusShelved, final.Status)
		assert.False(t, h.conn.HasServer(instanceID))
		assert.True(t, h.conn.HasVolume(volumeID))

		// 实例的过期记录恰好推进一次
		instance, err := h.instances.GetByID(ctx, instanceID)
		require.NoError(t, err)
		require.NotNil(t, instance.ExpirationID)
		exp, err := h.exps.GetByID(ctx, *instance.ExpirationID)
		require.NoError(t, err)
		assert.Equal(t, model.ExpStageCompleted, exp.Stage)

		// 再扫一遍不会重复搁置
		count, err = h.orch.ShelveExpiredInstances(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})
}

func TestArchiveExpiredVolumes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("archive then delete", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		volumeID, _ := h.createDesktop(t, ctx)

		_, err := h.orch.ShelveDesktop(ctx, testUser, "linux")
		require.NoError(t, err)
		h.sched.RunAll(ctx, 50)

		h.env.Advance(ShelvedVolumeLifetime + time.Hour)
		count, err := h.orch.ArchiveExpiredVolumes(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, count)

		// 备份创建中，先把链跑到等备份的那一步
		require.True(t, h.sched.RunNext(ctx))
		volume, err := h.volumes.GetByID(ctx, volumeID)
		require.NoError(t, err)
		require.NotEmpty(t, volume.BackupID)

		h.conn.SetBackupStatus(volume.BackupID, "available")
		h.sched.RunAll(ctx, 50)

		volume, err = h.volumes.GetByID(ctx, volumeID)
		require.NoError(t, err)
		assert.NotNil(t, volume.ArchivedAt)
		assert.NotNil(t, volume.Deleted)
		require.NotNil(t, volume.BackupExpirationID)
		assert.True(t, h.conn.HasBackup(volume.BackupID))
		assert.False(t, h.conn.HasVolume(volumeID))

		// 卷的过期记录收尾
		require.NotNil(t, volume.ExpirationID)
		exp, err := h.exps.GetByID(ctx, *volume.ExpirationID)
		require.NoError(t, err)
		assert.Equal(t, model.ExpStageCompleted, exp.Stage)

		final, err := h.statuses.GetLatest(ctx, testUser.Username, "linux")
		require.NoError(t, err)
		assert.Equal(t, model.StatusDeleted, final.Status)
	})

	t.Run("skips volume that is no longer shelved", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		volumeID, _ := h.createDesktop(t, ctx)

		_, err := h.orch.ShelveDesktop(ctx, testUser, "linux")
		require.NoError(t, err)
		h.sched.RunAll(ctx, 50)

		// 手工把过期时间改到过去，但状态已不是 SHELVED
		volume, err := h.volumes.GetByID(ctx, volumeID)
		require.NoError(t, err)
		past := h.env.Now().Add(-time.Hour)
		volume.Expires = &past
		require.NoError(t, h.volumes.Update(ctx, volume))

		status, err := h.statuses.GetLatest(ctx, testUser.Username, "linux")
		require.NoError(t, err)
		status.Status = model.StatusCreating
		require.NoError(t, h.statuses.Update(ctx, status))

		count, err := h.orch.ArchiveExpiredVolumes(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
		assert.True(t, h.conn.HasVolume(volumeID))
	})
}

func TestDeleteExpiredBackups(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	h := newHarness(t)
	volumeID, _ := h.createDesktop(t, ctx)

	_, err := h.orch.ShelveDesktop(ctx, testUser, "linux")
	require.NoError(t, err)
	h.sched.RunAll(ctx, 50)

	h.env.Advance(ShelvedVolumeLifetime + time.Hour)
	_, err = h.orch.ArchiveExpiredVolumes(ctx)
	require.NoError(t, err)
	require.True(t, h.sched.RunNext(ctx))
	volume, err := h.volumes.GetByID(ctx, volumeID)
	require.NoError(t, err)
	h.conn.SetBackupStatus(volume.BackupID, "available")
	h.sched.RunAll(ctx, 50)

	backupID := volume.BackupID

	// 保留期内不删
	count, err := h.orch.DeleteExpiredBackups(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.True(t, h.conn.HasBackup(backupID))

	// 过了保留期删掉并清账
	h.env.Advance(BackupLifetime + time.Hour)
	count, err = h.orch.DeleteExpiredBackups(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	h.sched.RunAll(ctx, 50)

	assert.False(t, h.conn.HasBackup(backupID))
	volume, err = h.volumes.GetByID(ctx, volumeID)
	require.NoError(t, err)
	assert.Empty(t, volume.BackupID)

	exp, err := h.exps.GetByID(ctx, *volume.BackupExpirationID)
	require.NoError(t, err)
	assert.Equal(t, model.ExpStageCompleted, exp.Stage)
}

func TestResizeDesktop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	supersize := func(t *testing.T, h *harness, instanceID string) *model.Resize {
		t.Helper()
		resize, err := h.orch.SupersizeDesktop(ctx, testUser, "linux")
		require.NoError(t, err)
		require.True(t, h.sched.RunNext(ctx))
		h.conn.SetServerStatus(instanceID, "VERIFY_RESIZE")
		require.True(t, h.sched.RunNext(ctx))
		return resize
	}

	t.Run("supersize flow", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		_, instanceID := h.createDesktop(t, ctx)

		resize := supersize(t, h, instanceID)
		require.NotNil(t, resize.Expires)

		final, err := h.statuses.GetLatest(ctx, testUser.Username, "linux")
		require.NoError(t, err)
		assert.Equal(t, model.StatusSupersized, final.Status)
		assert.Equal(t, 100, final.StatusProgress)
		assert.Equal(t, "m1.xlarge", h.conn.ServerFlavorID(instanceID))

		current, err := h.resizes.GetCurrentByInstance(ctx, instanceID)
		require.NoError(t, err)
		require.NotNil(t, current)
		assert.Equal(t, resize.ID, current.ID)
	})

	t.Run("skip when already at target flavor", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		_, instanceID := h.createDesktop(t, ctx)
		supersize(t, h, instanceID)

		// 第二次 supersize 发现规格已经是目标，跳过但不报错
		_, err := h.orch.SupersizeDesktop(ctx, testUser, "linux")
		require.NoError(t, err)
		require.True(t, h.sched.RunNext(ctx))

		final, err := h.statuses.GetLatest(ctx, testUser.Username, "linux")
		require.NoError(t, err)
		assert.Equal(t, model.StatusSupersized, final.Status)
		assert.Contains(t, final.StatusMessage, "Skipping the resize")
	})

	t.Run("downsize flow reverts resize", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		_, instanceID := h.createDesktop(t, ctx)
		resize := supersize(t, h, instanceID)

		_, err := h.orch.DownsizeDesktop(ctx, testUser, "linux")
		require.NoError(t, err)
		require.True(t, h.sched.RunNext(ctx))
		h.conn.SetServerStatus(instanceID, "VERIFY_RESIZE")
		require.True(t, h.sched.RunNext(ctx))

		final, err := h.statuses.GetLatest(ctx, testUser.Username, "linux")
		require.NoError(t, err)
		assert.Equal(t, model.StatusOkay, final.Status)
		assert.Equal(t, "m1.medium", h.conn.ServerFlavorID(instanceID))

		got, err := h.resizes.GetByID(ctx, resize.ID)
		require.NoError(t, err)
		assert.NotNil(t, got.Reverted)
	})

	t.Run("downsize without current resize", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.createDesktop(t, ctx)

		_, err := h.orch.DownsizeDesktop(ctx, testUser, "linux")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "No Resize is current")
	})

	t.Run("resize timeout", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		volumeID, instanceID := h.createDesktop(t, ctx)

		_, err := h.orch.SupersizeDesktop(ctx, testUser, "linux")
		require.NoError(t, err)
		require.True(t, h.sched.RunNext(ctx))

		// 一直卡在 RESIZE
		h.env.Advance(ResizeConfirmWait + time.Second)
		require.True(t, h.sched.RunNext(ctx))

		final, err := h.statuses.GetLatest(ctx, testUser.Username, "linux")
		require.NoError(t, err)
		assert.Equal(t, model.StatusError, final.Status)

		// 失败原因同时落在实例和启动卷两边
		instance, err := h.instances.GetByID(ctx, instanceID)
		require.NoError(t, err)
		assert.Contains(t, instance.ErrorMessage, "resize took too long")
		volume, err := h.volumes.GetByID(ctx, volumeID)
		require.NoError(t, err)
		assert.Contains(t, volume.ErrorMessage, "resize took too long")
	})

	t.Run("transient status poll stops the step quietly", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		_, _ = h.createDesktop(t, ctx)

		_, err := h.orch.SupersizeDesktop(ctx, testUser, "linux")
		require.NoError(t, err)
		require.True(t, h.sched.RunNext(ctx))

		// 查询本身抛错只记日志，本步停住：不报错也不再排下一次轮询
		h.conn.FailNext("GetServerStatus", assert.AnError)
		require.True(t, h.sched.RunNext(ctx))

		final, err := h.statuses.GetLatest(ctx, testUser.Username, "linux")
		require.NoError(t, err)
		assert.Equal(t, model.StatusResizing, final.Status)
		assert.False(t, h.sched.RunNext(ctx))
	})

	t.Run("forced downsize of expired resizes", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		_, instanceID := h.createDesktop(t, ctx)
		resize := supersize(t, h, instanceID)

		h.env.Advance(BoostPeriod + 24*time.Hour)
		count, err := h.orch.DownsizeExpired(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, count)

		// 回退在发起时就记账，不等工作流收敛
		got, err := h.resizes.GetByID(ctx, resize.ID)
		require.NoError(t, err)
		require.NotNil(t, got.Reverted)

		require.True(t, h.sched.RunNext(ctx))
		h.conn.SetServerStatus(instanceID, "VERIFY_RESIZE")
		require.True(t, h.sched.RunNext(ctx))

		final, err := h.statuses.GetLatest(ctx, testUser.Username, "linux")
		require.NoError(t, err)
		assert.Equal(t, model.StatusOkay, final.Status)
		assert.Equal(t, "m1.medium", h.conn.ServerFlavorID(instanceID))

		got, err = h.resizes.GetByID(ctx, resize.ID)
		require.NoError(t, err)
		assert.NotNil(t, got.Reverted)
		require.NotNil(t, got.ExpirationID)
		exp, err := h.exps.GetByID(ctx, *got.ExpirationID)
		require.NoError(t, err)
		assert.Equal(t, model.ExpStageCompleted, exp.Stage)

		// 再扫不会重复回退
		count, err = h.orch.DownsizeExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})
}

func TestExtendBoost(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	setup := func(t *testing.T) (*harness, string, *model.Resize) {
		t.Helper()
		h := newHarness(t)
		_, instanceID := h.createDesktop(t, ctx)
		resize, err := h.orch.SupersizeDesktop(ctx, testUser, "linux")
		require.NoError(t, err)
		require.True(t, h.sched.RunNext(ctx))
		h.conn.SetServerStatus(instanceID, "VERIFY_RESIZE")
		require.True(t, h.sched.RunNext(ctx))
		return h, instanceID, resize
	}

	t.Run("unknown instance id", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.createDesktop(t, ctx)
		_, err := h.orch.ExtendBoost(ctx, testUser, "srv-bogus")
		assert.ErrorIs(t, err, apierror.ErrNotFound)
	})

	t.Run("no current resize", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		_, instanceID := h.createDesktop(t, ctx)
		_, err := h.orch.ExtendBoost(ctx, testUser, instanceID)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "No Resize is current")
	})

	t.Run("extend within window", func(t *testing.T) {
		t.Parallel()
		h, instanceID, resize := setup(t)

		h.env.Advance(3 * 24 * time.Hour)
		msg, err := h.orch.ExtendBoost(ctx, testUser, instanceID)
		require.NoError(t, err)
		assert.Contains(t, msg, "Resize (Current) of Instance")

		got, err := h.resizes.GetByID(ctx, resize.ID)
		require.NoError(t, err)
		require.NotNil(t, got.Expires)
		assert.True(t, got.Expires.After(*resize.Expires))
	})

	t.Run("too far in future leaves resize untouched", func(t *testing.T) {
		t.Parallel()
		h, instanceID, resize := setup(t)

		h.env.Advance(10 * 24 * time.Hour)
		_, err := h.orch.ExtendBoost(ctx, testUser, instanceID)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "date too far in future")

		got, err := h.resizes.GetByID(ctx, resize.ID)
		require.NoError(t, err)
		assert.Equal(t, resize.Expires.Unix(), got.Expires.Unix())
	})
}

func TestExtendInstance(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("unknown instance id", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.createDesktop(t, ctx)
		_, err := h.orch.ExtendInstance(ctx, testUser, "srv-bogus")
		assert.ErrorIs(t, err, apierror.ErrNotFound)
	})

	t.Run("recomputes expiry from today", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		_, instanceID := h.createDesktop(t, ctx)

		before, err := h.instances.GetByID(ctx, instanceID)
		require.NoError(t, err)
		require.NotNil(t, before.Expires)

		h.env.Advance(10 * 24 * time.Hour)
		msg, err := h.orch.ExtendInstance(ctx, testUser, instanceID)
		require.NoError(t, err)
		assert.Contains(t, msg, "expiry extended")

		after, err := h.instances.GetByID(ctx, instanceID)
		require.NoError(t, err)
		require.NotNil(t, after.Expires)
		assert.True(t, after.Expires.After(*before.Expires))
		assert.Equal(t, h.env.Now().Add(InstanceLifetime).Unix(), after.Expires.Unix())
	})
}

func TestRebootDesktop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("soft reboot flow", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		volumeID, instanceID := h.createDesktop(t, ctx)

		_, err := h.orch.RebootDesktop(ctx, testUser, "linux", cloud.RebootSoft)
		require.NoError(t, err)
		require.True(t, h.sched.RunNext(ctx))

		// 重启已发出，进度 33
		status, err := h.statuses.GetLatest(ctx, testUser.Username, "linux")
		require.NoError(t, err)
		assert.Equal(t, 33, status.StatusProgress)

		// 重启中再 ACTIVE
		require.True(t, h.sched.RunNext(ctx))
		h.conn.SetServerStatus(instanceID, "ACTIVE")
		require.True(t, h.sched.RunNext(ctx))

		final, err := h.statuses.GetLatest(ctx, testUser.Username, "linux")
		require.NoError(t, err)
		assert.Equal(t, model.StatusOkay, final.Status)
		assert.Equal(t, "Instance ready", final.StatusMessage)

		volume, err := h.volumes.GetByID(ctx, volumeID)
		require.NoError(t, err)
		assert.NotNil(t, volume.RebootedAt)
	})

	t.Run("soft reboot of shutoff server is forced hard", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		_, instanceID := h.createDesktop(t, ctx)

		h.conn.SetServerStatus(instanceID, "SHUTOFF")
		_, err := h.orch.RebootDesktop(ctx, testUser, "linux", cloud.RebootSoft)
		require.NoError(t, err)
		require.True(t, h.sched.RunNext(ctx))

		status, err := h.conn.GetServerStatus(ctx, &cloud.Server{ID: instanceID})
		require.NoError(t, err)
		assert.Equal(t, cloud.ServerStatusHardReboot, status)
	})

	t.Run("supersized desktop returns to supersized", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		_, instanceID := h.createDesktop(t, ctx)

		resize, err := h.orch.SupersizeDesktop(ctx, testUser, "linux")
		require.NoError(t, err)
		require.True(t, h.sched.RunNext(ctx))
		h.conn.SetServerStatus(instanceID, "VERIFY_RESIZE")
		require.True(t, h.sched.RunNext(ctx))

		_, err = h.orch.RebootDesktop(ctx, testUser, "linux", cloud.RebootHard)
		require.NoError(t, err)
		require.True(t, h.sched.RunNext(ctx))
		h.conn.SetServerStatus(instanceID, "ACTIVE")
		require.True(t, h.sched.RunNext(ctx))

		final, err := h.statuses.GetLatest(ctx, testUser.Username, "linux")
		require.NoError(t, err)
		assert.Equal(t, model.StatusSupersized, final.Status)

		// 重启确认顺带把还挂着的 supersize 过期记录收尾
		require.NotNil(t, resize.ExpirationID)
		exp, err := h.exps.GetByID(ctx, *resize.ExpirationID)
		require.NoError(t, err)
		assert.Equal(t, model.ExpStageCompleted, exp.Stage)
	})

	t.Run("unexpected power state is a permanent error", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		_, instanceID := h.createDesktop(t, ctx)

		h.conn.SetServerStatus(instanceID, "PAUSED")
		_, err := h.orch.RebootDesktop(ctx, testUser, "linux", cloud.RebootSoft)
		require.NoError(t, err)
		require.True(t, h.sched.RunNext(ctx))

		final, err := h.statuses.GetLatest(ctx, testUser.Username, "linux")
		require.NoError(t, err)
		assert.Equal(t, model.StatusError, final.Status)
		assert.Contains(t, final.StatusMessage, "cannot reboot")

		instance, err := h.instances.GetByID(ctx, instanceID)
		require.NoError(t, err)
		assert.Contains(t, instance.ErrorMessage, "cannot reboot")

		// 永久失败不再排后续确认
		assert.False(t, h.sched.RunNext(ctx))
	})

	t.Run("retry exhaustion records instance error", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		_, instanceID := h.createDesktop(t, ctx)

		_, err := h.orch.RebootDesktop(ctx, testUser, "linux", cloud.RebootSoft)
		require.NoError(t, err)
		// 服务器一直没有回到 ACTIVE，确认重试用尽
		h.sched.RunAll(ctx, 50)

		final, err := h.statuses.GetLatest(ctx, testUser.Username, "linux")
		require.NoError(t, err)
		assert.Equal(t, model.StatusError, final.Status)

		instance, err := h.instances.GetByID(ctx, instanceID)
		require.NoError(t, err)
		assert.Contains(t, instance.ErrorMessage, "did not come back after reboot")
	})
}

func TestGetDesktopStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	h := newHarness(t)
	status, err := h.orch.GetDesktopStatus(ctx, testUser.Username, "linux")
	require.NoError(t, err)
	assert.Equal(t, model.StatusNoVM, status.Status)

	h.createDesktop(t, ctx)
	status, err = h.orch.GetDesktopStatus(ctx, testUser.Username, "linux")
	require.NoError(t, err)
	assert.Equal(t, model.StatusOkay, status.Status)
}

func TestGetConsoleEndpoint(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	h := newHarness(t)
	_, err := h.orch.GetConsoleEndpoint(ctx, testUser.Username, "linux")
	assert.ErrorIs(t, err, apierror.ErrNotFound)

	_, instanceID := h.createDesktop(t, ctx)
	instance, err := h.instances.GetByID(ctx, instanceID)
	require.NoError(t, err)

	endpoint, err := h.orch.GetConsoleEndpoint(ctx, testUser.Username, "linux")
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%s:%d", instance.ConsoleAddr, instance.ConsolePort), endpoint)
}

func TestNotifyState(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	h := newHarness(t)
	volumeID, _ := h.createDesktop(t, ctx)
	volume, err := h.volumes.GetByID(ctx, volumeID)
	require.NoError(t, err)

	err = h.orch.NotifyState(ctx, "vdl-"+volume.HostnameID, "started")
	assert.NoError(t, err)

	err = h.orch.NotifyState(ctx, "vdl-nonexistent", "started")
	assert.ErrorIs(t, err, apierror.ErrNotFound)
}
