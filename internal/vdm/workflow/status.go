package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/jimyag/vdm/internal/vdm/repository/model"
	"github.com/jimyag/vdm/pkg/apierror"
)

// GetDesktopStatus 返回用户某桌面类型的最新状态
// 从未创建过时合成一条 NO_VM，不返回 404
func (o *Orchestrator) GetDesktopStatus(ctx context.Context, username, desktopID string) (*model.VMStatus, error) {
	status, err := o.statuses.GetLatest(ctx, username, desktopID)
	if err != nil {
		return nil, err
	}
	if status == nil {
		return &model.VMStatus{
			Username:        username,
			OperatingSystem: desktopID,
			Status:          model.StatusNoVM,
		}, nil
	}
	return status, nil
}

// GetConsoleEndpoint 返回用户某桌面当前实例的控制台 host:port
func (o *Orchestrator) GetConsoleEndpoint(ctx context.Context, username, desktopID string) (string, error) {
	instance, err := o.instances.GetCurrent(ctx, username, desktopID)
	if err != nil {
		return "", err
	}
	if instance == nil {
		return "", apierror.WrapError(apierror.ErrNotFound,
			fmt.Sprintf("no desktop instance for user %s and desktop %s", username, desktopID), nil)
	}
	if instance.ConsoleAddr == "" || instance.ConsolePort == 0 {
		return "", apierror.WrapError(apierror.ErrInvalidParameter,
			fmt.Sprintf("instance %s has no console endpoint yet", instance.ID), nil)
	}
	return fmt.Sprintf("%s:%d", instance.ConsoleAddr, instance.ConsolePort), nil
}

// NotifyState 虚拟机内 agent 上报的状态变化
// 主机名形如 vdX-{hostnameID}，按 hostnameID 找回对应桌面
func (o *Orchestrator) NotifyState(ctx context.Context, hostname, state string) error {
	hostnameID := hostname
	if i := strings.IndexByte(hostname, '-'); i >= 0 {
		hostnameID = hostname[i+1:]
	}
	// FQDN 里可能带域名后缀
	if i := strings.IndexByte(hostnameID, '.'); i >= 0 {
		hostnameID = hostnameID[:i]
	}

	volume, err := o.volumes.GetByHostnameID(ctx, hostnameID)
	if err != nil {
		return err
	}
	if volume == nil {
		return apierror.WrapError(apierror.ErrNotFound,
			fmt.Sprintf("no desktop with hostname %q", hostname), nil)
	}

	o.logger(ctx).Info().
		Str("hostname", hostname).
		Str("volume_id", volume.ID).
		Str("username", volume.Username).
		Str("state", state).
		Msg("desktop state notification")
	return nil
}
