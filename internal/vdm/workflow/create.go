package workflow

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jimyag/vdm/internal/vdm/cloud"
	"github.com/jimyag/vdm/internal/vdm/entity"
	"github.com/jimyag/vdm/internal/vdm/repository/model"
	"github.com/jimyag/vdm/pkg/apierror"
	"github.com/jimyag/vdm/pkg/cloudinit"
	"github.com/jimyag/vdm/pkg/idgen"
)

// LaunchDesktop 为用户创建一台桌面虚拟机
// 同步只做校验和建账，卷创建和服务器启动由调度器异步推进。
// 如果用户已有该类型的搁置卷，则跳过卷创建直接在原卷上启动（解除搁置）。
func (o *Orchestrator) LaunchDesktop(ctx context.Context, user *entity.User, desktopID, feature string) (*model.VMStatus, error) {
	desktop, ok := o.catalog.DesktopType(desktopID)
	if !ok {
		return nil, apierror.WrapError(apierror.ErrInvalidParameter,
			fmt.Sprintf("unknown desktop type %q", desktopID), nil)
	}

	existing, err := o.instances.GetCurrent(ctx, user.Username, desktopID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apierror.WrapError(apierror.ErrVMConflict,
			fmt.Sprintf("user %s already has a %s desktop", user.Username, desktopID), nil)
	}

	volume, err := o.volumes.GetCurrent(ctx, user.Username, desktopID)
	if err != nil {
		return nil, err
	}

	status, err := o.newVMStatus(ctx, user.Username, desktopID, feature,
		model.StatusCreating, "Creating volume", CreateWaitTime)
	if err != nil {
		return nil, err
	}

	if volume != nil {
		// 搁置卷：先向云端核实卷还能用，再在原卷上启动
		volumeID := volume.ID
		timezone := user.Timezone
		o.sched.Schedule(0, func(ctx context.Context) {
			o.relaunchOnShelvedVolume(ctx, status.ID, volumeID, timezone)
		})
		return status, nil
	}

	timezone := user.Timezone
	username := user.Username
	o.sched.Schedule(0, func(ctx context.Context) {
		o.createVolume(ctx, status.ID, username, timezone, desktop, feature)
	})
	return status, nil
}

// relaunchOnShelvedVolume 在搁置卷上重新启动实例
// 启动前向云端核实卷确实还在、可用且在原可用区；对不上的卷
// 不能自动处理，停止工作流等人工排查
func (o *Orchestrator) relaunchOnShelvedVolume(ctx context.Context, statusID uint, volumeID, timezone string) {
	volume, err := o.volumes.GetByID(ctx, volumeID)
	if err != nil {
		o.failCreate(ctx, statusID, volumeID, "volume record disappeared")
		return
	}
	if volume.ArchivedAt != nil {
		o.failShelvedRelaunch(ctx, statusID, volume.ID, "volume is archived")
		return
	}

	existence, err := o.connector.IsVolumeCreated(ctx, &cloud.Volume{ID: volume.ID})
	switch existence {
	case cloud.ExistenceAbsent:
		o.failShelvedRelaunch(ctx, statusID, volume.ID, "volume no longer exists on the cloud")
		return
	case cloud.ExistenceUnknown:
		o.logger(ctx).Warn().Err(err).Str("volume_id", volume.ID).Msg("volume existence unknown before relaunch")
		o.sched.Schedule(CloudPollInterval, func(ctx context.Context) {
			o.relaunchOnShelvedVolume(ctx, statusID, volumeID, timezone)
		})
		return
	}

	status, err := o.connector.GetVolumeStatus(ctx, &cloud.Volume{ID: volume.ID})
	if err != nil {
		o.logger(ctx).Warn().Err(err).Str("volume_id", volume.ID).Msg("poll volume status before relaunch")
		o.sched.Schedule(CloudPollInterval, func(ctx context.Context) {
			o.relaunchOnShelvedVolume(ctx, statusID, volumeID, timezone)
		})
		return
	}
	if status != cloud.VolumeStatusAvailable {
		o.failShelvedRelaunch(ctx, statusID, volume.ID, fmt.Sprintf("volume is %s, expected available", status))
		return
	}

	zone, err := o.connector.GetVolumeZone(ctx, &cloud.Volume{ID: volume.ID})
	if err != nil {
		o.logger(ctx).Warn().Err(err).Str("volume_id", volume.ID).Msg("get volume zone before relaunch")
		o.sched.Schedule(CloudPollInterval, func(ctx context.Context) {
			o.relaunchOnShelvedVolume(ctx, statusID, volumeID, timezone)
		})
		return
	}
	if zone != volume.Zone {
		o.failShelvedRelaunch(ctx, statusID, volume.ID,
			fmt.Sprintf("volume is in zone %s, expected %s", zone, volume.Zone))
		return
	}

	o.setStatus(ctx, statusID, model.StatusCreating, 50, "Volume created, launching instance")
	o.launchInstance(ctx, statusID, volume.ID, timezone)
}

// failShelvedRelaunch 搁置卷核实不过时的终结点
// 与一般创建失败不同，这类卷的账目需要人工介入，状态落到 VM_ERROR
func (o *Orchestrator) failShelvedRelaunch(ctx context.Context, statusID uint, volumeID, reason string) {
	message := fmt.Sprintf("shelved volume %s needs manual cleanup: %s", volumeID, reason)
	o.logger(ctx).Error().Str("volume_id", volumeID).Str("reason", reason).Msg("shelved volume relaunch failed")
	if err := o.volumes.SetError(ctx, volumeID, message, o.env.Now()); err != nil {
		o.logger(ctx).Error().Err(err).Str("volume_id", volumeID).Msg("mark volume error")
	}
	o.setStatus(ctx, statusID, model.StatusError, 0, message)
}

// createVolume 从最新构建的源镜像卷克隆出启动卷
func (o *Orchestrator) createVolume(ctx context.Context, statusID uint, username, timezone string, desktop *entity.DesktopType, feature string) {
	logger := o.logger(ctx)

	zone, ok := o.catalog.PreferredZone()
	if !ok {
		o.failCreate(ctx, statusID, "", "no availability zone configured")
		return
	}

	source, err := o.findSourceVolume(ctx, desktop.ImageNamePrefix, zone.Name)
	if err != nil {
		o.failCreate(ctx, statusID, "", err.Error())
		return
	}

	hostnameID, err := idgen.GenerateHostnameID()
	if err != nil {
		o.failCreate(ctx, statusID, "", "failed to generate hostname id")
		return
	}
	req := &cloud.CreateVolumeRequest{
		Name:         o.env.GenerateServerName(username, desktop.ID),
		SizeGB:       desktop.VolumeSizeGB,
		SourceVolume: source,
		Description:  fmt.Sprintf("boot volume for %s desktop of %s", desktop.ID, username),
		Metadata: map[string]string{
			"user":          username,
			"hostname_id":   hostnameID,
			"desktop_type":  desktop.ID,
			"source_volume": source.ID,
		},
		Zone:     zone.Name,
		Bootable: true,
	}
	remote, err := o.connector.CreateVolume(ctx, req)
	if err != nil {
		o.failCreate(ctx, statusID, "", fmt.Sprintf("volume creation failed: %v", err))
		return
	}

	volume := &model.Volume{
		ID:                remote.ID,
		Username:          username,
		RequestingFeature: feature,
		OperatingSystem:   desktop.ID,
		Zone:              zone.Name,
		FlavorID:          desktop.DefaultFlavorID,
		SourceVolumeID:    source.ID,
		HostnameID:        hostnameID,
	}
	if err = o.volumes.Create(ctx, volume); err != nil {
		logger.Error().Err(err).Str("volume_id", remote.ID).Msg("record volume")
		o.failCreate(ctx, statusID, "", "failed to record volume")
		return
	}

	o.setStatus(ctx, statusID, model.StatusCreating, 25, "Creating volume")
	deadline := o.env.AfterTime(VolumeCreationTimeout)
	o.sched.Schedule(CloudPollInterval, func(ctx context.Context) {
		o.waitForVolume(ctx, statusID, volume.ID, timezone, deadline)
	})
}

// findSourceVolume 在可用区内按镜像名前缀查找构建号最大的源卷
func (o *Orchestrator) findSourceVolume(ctx context.Context, prefix, zone string) (*cloud.Volume, error) {
	all, err := o.connector.GetVolumeList(ctx)
	if err != nil {
		return nil, fmt.Errorf("list volumes: %w", err)
	}
	var candidates []*cloud.Volume
	for _, v := range all {
		if strings.HasPrefix(v.Name, prefix) && v.Zone == zone {
			candidates = append(candidates, v)
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no source volume with image names starting with %q in availability zone %s", prefix, zone)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return sourceBuild(candidates[i]) > sourceBuild(candidates[j])
	})
	return candidates[0], nil
}

func sourceBuild(v *cloud.Volume) int {
	n, err := strconv.Atoi(v.Metadata[SourceVolumeBuildKey])
	if err != nil {
		return -1
	}
	return n
}

// waitForVolume 轮询到卷可用后启动实例
// 用墙上时钟截止时间而不是重试计数
func (o *Orchestrator) waitForVolume(ctx context.Context, statusID uint, volumeID, timezone string, deadline time.Time) {
	volume, err := o.volumes.GetByID(ctx, volumeID)
	if err != nil {
		o.failCreate(ctx, statusID, volumeID, "volume record disappeared")
		return
	}

	status, err := o.connector.GetVolumeStatus(ctx, &cloud.Volume{ID: volume.ID})
	if err != nil {
		o.logger(ctx).Warn().Err(err).Str("volume_id", volume.ID).Msg("poll volume status")
	}

	switch {
	case status == cloud.VolumeStatusAvailable:
		o.setStatus(ctx, statusID, model.StatusCreating, 50, "Volume created, launching instance")
		o.sched.Schedule(0, func(ctx context.Context) {
			o.launchInstance(ctx, statusID, volume.ID, timezone)
		})
	case isVolumeError(status):
		o.failCreate(ctx, statusID, volume.ID, fmt.Sprintf("volume entered status %s", status))
	case !o.env.Now().Before(deadline):
		o.failCreate(ctx, statusID, volume.ID, "Volume took too long to create")
	default:
		o.sched.Schedule(CloudPollInterval, func(ctx context.Context) {
			o.waitForVolume(ctx, statusID, volumeID, timezone, deadline)
		})
	}
}

func isVolumeError(status cloud.VolumeStatus) bool {
	switch status {
	case cloud.VolumeStatusError, cloud.VolumeStatusErrorDeleting,
		cloud.VolumeStatusErrorManaging, cloud.VolumeStatusErrorRestoring,
		cloud.VolumeStatusErrorBackingUp, cloud.VolumeStatusErrorExtending:
		return true
	}
	return false
}

// launchInstance 在启动卷上创建服务器
// 密码沿用该卷上一个实例的密码，没有则新生成
func (o *Orchestrator) launchInstance(ctx context.Context, statusID uint, volumeID, timezone string) {
	logger := o.logger(ctx)

	volume, err := o.volumes.GetByID(ctx, volumeID)
	if err != nil {
		o.failCreate(ctx, statusID, volumeID, "volume record disappeared")
		return
	}
	desktop, ok := o.catalog.DesktopType(volume.OperatingSystem)
	if !ok {
		o.failCreate(ctx, statusID, volumeID, fmt.Sprintf("unknown desktop type %q", volume.OperatingSystem))
		return
	}

	username := DefaultDesktopUsername
	var password string
	last, err := o.instances.GetLatestForVolume(ctx, volume.ID)
	if err != nil {
		o.failCreate(ctx, statusID, volumeID, "failed to look up previous instance")
		return
	}
	if last != nil && last.Password != "" {
		username = last.Username
		password = last.Password
	} else {
		password, err = o.env.GeneratePassword()
		if err != nil {
			o.failCreate(ctx, statusID, volumeID, "failed to generate password")
			return
		}
	}

	hostname := o.env.GenerateHostname(volume.HostnameID, volume.OperatingSystem)
	userData, err := cloudinit.NewGenerator().GenerateDesktopUserData(&cloudinit.DesktopConfig{
		Hostname:     hostname,
		Username:     username,
		Password:     password,
		Timezone:     timezone,
		PhoneHomeURL: o.siteURL + "/callback/phone-home",
		NotifyURL:    o.siteURL + "/callback/notify",
	})
	if err != nil {
		o.failCreate(ctx, statusID, volumeID, fmt.Sprintf("generate user data: %v", err))
		return
	}

	var networks []*cloud.Network
	for _, z := range o.catalog.Zones {
		if z.Name == volume.Zone {
			networks = append(networks, &cloud.Network{ID: z.NetworkID})
			break
		}
	}

	server, err := o.connector.CreateServer(ctx, &cloud.CreateServerRequest{
		Name:           o.env.GenerateServerName(volume.Username, volume.OperatingSystem),
		FlavorID:       volume.FlavorID,
		BootVolume:     &cloud.Volume{ID: volume.ID},
		Description:    fmt.Sprintf("%s desktop of %s", volume.OperatingSystem, volume.Username),
		Metadata:       map[string]string{"hostname": hostname},
		UserData:       userData,
		Networks:       networks,
		SecurityGroups: desktop.SecurityGroups,
		Zone:           volume.Zone,
	})
	if err != nil {
		o.failCreate(ctx, statusID, volumeID, fmt.Sprintf("server creation failed: %v", err))
		return
	}

	guac := &model.GuacConnection{
		ConnectionName: o.env.GenerateServerName(volume.Username, volume.OperatingSystem),
	}
	if err = o.guacs.Create(ctx, guac); err != nil {
		logger.Error().Err(err).Msg("create guac connection")
	}

	instance := &model.Instance{
		ID:           server.ID,
		Owner:        volume.Username,
		BootVolumeID: volume.ID,
		Username:     username,
		Password:     password,
	}
	if guac.ID != 0 {
		instance.GuacConnectionID = &guac.ID
	}
	expires := o.env.AfterTime(InstanceLifetime)
	instance.Expires = &expires
	if err = o.instances.Create(ctx, instance); err != nil {
		logger.Error().Err(err).Str("server_id", server.ID).Msg("record instance")
		o.failCreate(ctx, statusID, volumeID, "failed to record instance")
		return
	}

	// 解除搁置时复用原卷，清掉搁置标记
	if volume.ShelvedAt != nil {
		volume.ShelvedAt = nil
		volume.Expires = nil
		volume.ExpirationID = nil
		if err = o.volumes.Update(ctx, volume); err != nil {
			logger.Error().Err(err).Str("volume_id", volume.ID).Msg("clear shelve marker")
		}
	}

	o.bindStatusInstance(ctx, statusID, instance.ID)
	o.setStatus(ctx, statusID, model.StatusCreating, 75, "Instance launched; waiting for boot")

	deadline := o.env.AfterTime(InstanceLaunchTimeout)
	o.sched.Schedule(CloudPollInterval, func(ctx context.Context) {
		o.waitForActive(ctx, statusID, instance.ID, deadline)
	})
}

// waitForActive 轮询到服务器 ACTIVE
// 进度停在 75，最后一跳由虚拟机 phone-home 回调完成
func (o *Orchestrator) waitForActive(ctx context.Context, statusID uint, instanceID string, deadline time.Time) {
	instance, err := o.instances.GetByID(ctx, instanceID)
	if err != nil {
		o.failCreate(ctx, statusID, "", "instance record disappeared")
		return
	}

	status, err := o.connector.GetServerStatus(ctx, &cloud.Server{ID: instance.ID})
	if err != nil {
		o.logger(ctx).Warn().Err(err).Str("instance_id", instance.ID).Msg("poll server status")
	}

	switch {
	case status == cloud.ServerStatusActive:
		o.recordConsoleInfo(ctx, instance)
	case status == cloud.ServerStatusError:
		now := o.env.Now()
		if err = o.instances.SetError(ctx, instance.ID, "server entered ERROR during launch", now, false); err != nil {
			o.logger(ctx).Error().Err(err).Str("instance_id", instance.ID).Msg("mark instance error")
		}
		o.setStatus(ctx, statusID, model.StatusNoVM, 0, "Instance launch failed")
	case !o.env.Now().Before(deadline):
		now := o.env.Now()
		if err = o.instances.SetError(ctx, instance.ID, "Instance took too long to launch", now, false); err != nil {
			o.logger(ctx).Error().Err(err).Str("instance_id", instance.ID).Msg("mark instance error")
		}
		o.setStatus(ctx, statusID, model.StatusNoVM, 0, "Instance took too long to launch")
	default:
		o.sched.Schedule(CloudPollInterval, func(ctx context.Context) {
			o.waitForActive(ctx, statusID, instanceID, deadline)
		})
	}
}

// recordConsoleInfo 记录远程桌面的连接信息
func (o *Orchestrator) recordConsoleInfo(ctx context.Context, instance *model.Instance) {
	info, err := o.connector.GetConsoleInfo(ctx, &cloud.Server{ID: instance.ID})
	if err != nil {
		o.logger(ctx).Warn().Err(err).Str("instance_id", instance.ID).Msg("get console info")
		return
	}
	instance.ConsoleAddr = info.Host
	instance.ConsolePort = info.Port
	if err = o.instances.Update(ctx, instance); err != nil {
		o.logger(ctx).Error().Err(err).Str("instance_id", instance.ID).Msg("record console info")
	}
}

// CompleteBoot 虚拟机 phone-home 回调：启动流程的最后一跳
// 状态推到 100，有生效的 supersize 则回到 VM_SUPERSIZED
func (o *Orchestrator) CompleteBoot(ctx context.Context, instanceID string) error {
	instance, err := o.instances.GetByID(ctx, instanceID)
	if err != nil {
		return apierror.WrapError(apierror.ErrNotFound, "instance not found", err)
	}

	status, err := o.statuses.GetByInstance(ctx, instance.ID, false)
	if err != nil {
		return apierror.WrapError(apierror.ErrNotFound, "no status for instance", err)
	}

	o.recordConsoleInfo(ctx, instance)

	finalState := model.StatusOkay
	resize, err := o.resizes.GetCurrentByInstance(ctx, instance.ID)
	if err != nil {
		return err
	}
	if resize != nil {
		finalState = model.StatusSupersized
	}

	o.setStatus(ctx, status.ID, finalState, 100, "Instance ready")
	return nil
}

// failCreate 创建流程失败的统一出口
// 创建没有成功就没有可用的桌面，状态回到 NO_VM 而不是 VM_ERROR，
// 用户可以直接重新发起创建
func (o *Orchestrator) failCreate(ctx context.Context, statusID uint, volumeID, message string) {
	o.logger(ctx).Error().Str("volume_id", volumeID).Str("reason", message).Msg("desktop creation failed")
	if volumeID != "" {
		if err := o.volumes.SetError(ctx, volumeID, message, o.env.Now()); err != nil {
			o.logger(ctx).Error().Err(err).Str("volume_id", volumeID).Msg("mark volume error")
		}
	}
	o.setStatus(ctx, statusID, model.StatusNoVM, 0, message)
}
