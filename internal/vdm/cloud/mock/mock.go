// Package mock 提供内存实现的云连接器，用于开发和测试
//
// 内部保存远端词汇的状态字符串，读取时经由 openstack 映射表
// 翻译成内部枚举，行为与真实连接器一致：
//   - 创建/删除幂等，删除不存在的资源返回成功
//   - 可注入一次性失败模拟瞬时远端错误（存在性查询返回 Unknown）
//   - 状态不会自动推进，由测试通过 SetXXXStatus 控制
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/jimyag/vdm/internal/vdm/cloud"
	"github.com/jimyag/vdm/internal/vdm/cloud/openstack"
	"github.com/jimyag/vdm/pkg/idgen"
)

// Kind 注册到连接器注册表的类型名
const Kind cloud.Kind = "mock"

func init() {
	cloud.Register(Kind, func() (cloud.Connector, error) {
		return New(), nil
	})
}

type serverRecord struct {
	server   *cloud.Server
	status   string // 远端词汇（Nova）
	flavorID string
}

type volumeRecord struct {
	volume *cloud.Volume
	status string // 远端词汇（Cinder）
}

type backupRecord struct {
	backup *cloud.VolumeBackup
	status string // 远端词汇（Cinder backup）
}

// Connector 内存云连接器
type Connector struct {
	mu       sync.Mutex
	servers  map[string]*serverRecord
	volumes  map[string]*volumeRecord
	backups  map[string]*backupRecord
	failures map[string]error // 操作名 -> 注入的一次性失败
}

var _ cloud.Connector = (*Connector)(nil)

// New 创建空的内存连接器
func New() *Connector {
	return &Connector{
		servers:  make(map[string]*serverRecord),
		volumes:  make(map[string]*volumeRecord),
		backups:  make(map[string]*backupRecord),
		failures: make(map[string]error),
	}
}

// FailNext 注入一次性失败：下一次调用 op 返回 err
// 存在性查询表现为 Unknown，其他操作直接返回错误
func (c *Connector) FailNext(op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[op] = err
}

// takeFailure 消费注入的失败
func (c *Connector) takeFailure(op string) error {
	if err, ok := c.failures[op]; ok {
		delete(c.failures, op)
		return err
	}
	return nil
}

func nextID(prefix string) string {
	id, err := idgen.GenerateID()
	if err != nil {
		panic(fmt.Sprintf("mock: generate id: %v", err))
	}
	return fmt.Sprintf("%s-%d", prefix, id)
}

// ============================================================================
// 服务器操作
// ============================================================================

// CreateServer 创建服务器，初始状态 BUILD
func (c *Connector) CreateServer(ctx context.Context, req *cloud.CreateServerRequest) (*cloud.Server, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.takeFailure("CreateServer"); err != nil {
		return nil, err
	}
	if req == nil || req.Name == "" || req.FlavorID == "" || req.BootVolume == nil {
		return nil, cloud.NewError("CreateServer",
			fmt.Sprintf("failed to create server %q", reqName(req)), nil)
	}

	server := &cloud.Server{
		ID:          nextID("srv"),
		Name:        req.Name,
		Description: req.Description,
		Metadata:    req.Metadata,
		Zone:        req.Zone,
	}
	c.servers[server.ID] = &serverRecord{
		server:   server,
		status:   openstack.ServerBuild,
		flavorID: req.FlavorID,
	}
	return server, nil
}

func reqName(req *cloud.CreateServerRequest) string {
	if req == nil {
		return ""
	}
	return req.Name
}

// GetServerList 返回所有服务器
func (c *Connector) GetServerList(ctx context.Context) ([]*cloud.Server, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.takeFailure("GetServerList"); err != nil {
		return nil, err
	}
	servers := make([]*cloud.Server, 0, len(c.servers))
	for _, rec := range c.servers {
		servers = append(servers, rec.server)
	}
	return servers, nil
}

// GetServerFlavor 返回服务器当前规格
func (c *Connector) GetServerFlavor(ctx context.Context, server *cloud.Server) (*cloud.Flavor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.takeFailure("GetServerFlavor"); err != nil {
		return nil, err
	}
	rec, ok := c.servers[server.ID]
	if !ok {
		return nil, fmt.Errorf("mock: server %s not found", server.ID)
	}
	return &cloud.Flavor{ID: rec.flavorID}, nil
}

// GetServerStatus 返回服务器状态（经映射表翻译）
func (c *Connector) GetServerStatus(ctx context.Context, server *cloud.Server) (cloud.ServerStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.takeFailure("GetServerStatus"); err != nil {
		return cloud.ServerStatusUnknown, err
	}
	rec, ok := c.servers[server.ID]
	if !ok {
		return cloud.ServerStatusUnknown, fmt.Errorf("mock: server %s not found", server.ID)
	}
	return openstack.ServerStatusMapper.Get(rec.status), nil
}

// ResizeServer 调整服务器规格，状态进入 RESIZE
func (c *Connector) ResizeServer(ctx context.Context, server *cloud.Server, flavor *cloud.Flavor) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.takeFailure("ResizeServer"); err != nil {
		return err
	}
	rec, ok := c.servers[server.ID]
	if !ok {
		return fmt.Errorf("mock: server %s not found", server.ID)
	}
	if flavor == nil || flavor.ID == "" {
		return cloud.NewError("ResizeServer", "flavor is required", nil)
	}
	rec.flavorID = flavor.ID
	rec.status = openstack.ServerResize
	return nil
}

// ConfirmResize 确认规格调整，VERIFY_RESIZE 状态回到 ACTIVE
func (c *Connector) ConfirmResize(ctx context.Context, server *cloud.Server) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.takeFailure("ConfirmResize"); err != nil {
		return err
	}
	rec, ok := c.servers[server.ID]
	if !ok {
		return fmt.Errorf("mock: server %s not found", server.ID)
	}
	if rec.status != openstack.ServerVerifyResize {
		return cloud.NewError("ConfirmResize",
			fmt.Sprintf("server %s is not awaiting resize confirmation (status %s)", server.ID, rec.status), nil)
	}
	rec.status = openstack.ServerActive
	return nil
}

// RebootServer 重启服务器
func (c *Connector) RebootServer(ctx context.Context, server *cloud.Server, level cloud.RebootLevel) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.takeFailure("RebootServer"); err != nil {
		return err
	}
	rec, ok := c.servers[server.ID]
	if !ok {
		return fmt.Errorf("mock: server %s not found", server.ID)
	}
	if level == cloud.RebootHard {
		rec.status = openstack.ServerHardReboot
	} else {
		rec.status = openstack.ServerReboot
	}
	return nil
}

// StopServer 停止服务器
func (c *Connector) StopServer(ctx context.Context, server *cloud.Server) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.takeFailure("StopServer"); err != nil {
		return err
	}
	rec, ok := c.servers[server.ID]
	if !ok {
		return fmt.Errorf("mock: server %s not found", server.ID)
	}
	rec.status = openstack.ServerShutoff
	return nil
}

// GetServerZone 返回服务器所在可用区
func (c *Connector) GetServerZone(ctx context.Context, server *cloud.Server) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.takeFailure("GetServerZone"); err != nil {
		return "", err
	}
	rec, ok := c.servers[server.ID]
	if !ok {
		return "", fmt.Errorf("mock: server %s not found", server.ID)
	}
	return rec.server.Zone, nil
}

// IsServerCreated 三值存在性查询
func (c *Connector) IsServerCreated(ctx context.Context, server *cloud.Server) (cloud.Existence, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.takeFailure("IsServerCreated"); err != nil {
		return cloud.ExistenceUnknown, err
	}
	if _, ok := c.servers[server.ID]; ok {
		return cloud.ExistencePresent, nil
	}
	return cloud.ExistenceAbsent, nil
}

// DeleteServer 删除服务器，不存在时也返回成功
func (c *Connector) DeleteServer(ctx context.Context, server *cloud.Server) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.takeFailure("DeleteServer"); err != nil {
		return err
	}
	delete(c.servers, server.ID)
	return nil
}

// GetConsoleInfo 返回控制台连接信息
func (c *Connector) GetConsoleInfo(ctx context.Context, server *cloud.Server) (*cloud.ConsoleInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.takeFailure("GetConsoleInfo"); err != nil {
		return nil, err
	}
	if _, ok := c.servers[server.ID]; !ok {
		return nil, fmt.Errorf("mock: server %s not found", server.ID)
	}
	return &cloud.ConsoleInfo{
		Protocol: cloud.ConsoleProtocolVNC,
		Host:     "198.51.100.10",
		Port:     5900,
	}, nil
}

// ============================================================================
// 卷操作
// ============================================================================

// CreateVolume 创建卷，初始状态 creating
func (c *Connector) CreateVolume(ctx context.Context, req *cloud.CreateVolumeRequest) (*cloud.Volume, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.takeFailure("CreateVolume"); err != nil {
		return nil, err
	}
	if req == nil || req.Name == "" || req.SizeGB <= 0 {
		return nil, cloud.NewError("CreateVolume", "name and positive size are required", nil)
	}
	if req.SourceVolume != nil {
		if _, ok := c.volumes[req.SourceVolume.ID]; !ok {
			return nil, cloud.NewError("CreateVolume",
				fmt.Sprintf("source volume %s not found", req.SourceVolume.ID), nil)
		}
	}

	volume := &cloud.Volume{
		ID:          nextID("vol"),
		Name:        req.Name,
		Description: req.Description,
		Metadata:    req.Metadata,
		Bootable:    req.Bootable,
		Zone:        req.Zone,
	}
	c.volumes[volume.ID] = &volumeRecord{
		volume: volume,
		status: openstack.VolumeCreating,
	}
	return volume, nil
}

// GetVolumeList 返回所有卷
func (c *Connector) GetVolumeList(ctx context.Context) ([]*cloud.Volume, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.takeFailure("GetVolumeList"); err != nil {
		return nil, err
	}
	volumes := make([]*cloud.Volume, 0, len(c.volumes))
	for _, rec := range c.volumes {
		volumes = append(volumes, rec.volume)
	}
	return volumes, nil
}

// GetVolumeStatus 返回卷状态（经映射表翻译）
func (c *Connector) GetVolumeStatus(ctx context.Context, volume *cloud.Volume) (cloud.VolumeStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.takeFailure("GetVolumeStatus"); err != nil {
		return cloud.VolumeStatusUnknown, err
	}
	rec, ok := c.volumes[volume.ID]
	if !ok {
		return cloud.VolumeStatusUnknown, fmt.Errorf("mock: volume %s not found", volume.ID)
	}
	return openstack.VolumeStatusMapper.Get(rec.status), nil
}

// GetVolumeZone 返回卷所在可用区
func (c *Connector) GetVolumeZone(ctx context.Context, volume *cloud.Volume) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.takeFailure("GetVolumeZone"); err != nil {
		return "", err
	}
	rec, ok := c.volumes[volume.ID]
	if !ok {
		return "", fmt.Errorf("mock: volume %s not found", volume.ID)
	}
	return rec.volume.Zone, nil
}

// IsVolumeCreated 三值存在性查询
func (c *Connector) IsVolumeCreated(ctx context.Context, volume *cloud.Volume) (cloud.Existence, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.takeFailure("IsVolumeCreated"); err != nil {
		return cloud.ExistenceUnknown, err
	}
	if _, ok := c.volumes[volume.ID]; ok {
		return cloud.ExistencePresent, nil
	}
	return cloud.ExistenceAbsent, nil
}

// DeleteVolume 删除卷，不存在时也返回成功
func (c *Connector) DeleteVolume(ctx context.Context, volume *cloud.Volume) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.takeFailure("DeleteVolume"); err != nil {
		return err
	}
	delete(c.volumes, volume.ID)
	return nil
}

// ============================================================================
// 备份操作
// ============================================================================

// CreateVolumeBackup 创建卷备份，初始状态 creating
func (c *Connector) CreateVolumeBackup(ctx context.Context, req *cloud.CreateVolumeBackupRequest) (*cloud.VolumeBackup, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.takeFailure("CreateVolumeBackup"); err != nil {
		return nil, err
	}
	if req == nil || req.Volume == nil || req.Name == "" {
		return nil, cloud.NewError("CreateVolumeBackup", "volume and name are required", nil)
	}
	if _, ok := c.volumes[req.Volume.ID]; !ok {
		return nil, cloud.NewError("CreateVolumeBackup",
			fmt.Sprintf("source volume %s not found", req.Volume.ID), nil)
	}

	backup := &cloud.VolumeBackup{
		ID:          nextID("bak"),
		Name:        req.Name,
		Description: req.Description,
		Metadata:    req.Metadata,
		Zone:        req.Zone,
	}
	c.backups[backup.ID] = &backupRecord{
		backup: backup,
		status: openstack.BackupCreating,
	}
	return backup, nil
}

// GetBackupStatus 返回备份状态（经映射表翻译）
func (c *Connector) GetBackupStatus(ctx context.Context, backup *cloud.VolumeBackup) (cloud.BackupStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.takeFailure("GetBackupStatus"); err != nil {
		return cloud.BackupStatusUnknown, err
	}
	rec, ok := c.backups[backup.ID]
	if !ok {
		return cloud.BackupStatusUnknown, fmt.Errorf("mock: backup %s not found", backup.ID)
	}
	return openstack.BackupStatusMapper.Get(rec.status), nil
}

// IsBackupCreated 三值存在性查询
func (c *Connector) IsBackupCreated(ctx context.Context, backup *cloud.VolumeBackup) (cloud.Existence, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.takeFailure("IsBackupCreated"); err != nil {
		return cloud.ExistenceUnknown, err
	}
	if _, ok := c.backups[backup.ID]; ok {
		return cloud.ExistencePresent, nil
	}
	return cloud.ExistenceAbsent, nil
}

// DeleteVolumeBackup 删除备份，不存在时也返回成功
func (c *Connector) DeleteVolumeBackup(ctx context.Context, backup *cloud.VolumeBackup) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.takeFailure("DeleteVolumeBackup"); err != nil {
		return err
	}
	delete(c.backups, backup.ID)
	return nil
}

// ============================================================================
// 测试控制
// ============================================================================

// AddVolume 直接放入一个卷（用于准备源镜像卷等场景）
func (c *Connector) AddVolume(volume *cloud.Volume, remoteStatus string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.volumes[volume.ID] = &volumeRecord{volume: volume, status: remoteStatus}
}

// AddServer 直接放入一个服务器
func (c *Connector) AddServer(server *cloud.Server, remoteStatus, flavorID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.servers[server.ID] = &serverRecord{server: server, status: remoteStatus, flavorID: flavorID}
}

// SetServerStatus 设置服务器的远端状态
func (c *Connector) SetServerStatus(id, remoteStatus string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec, ok := c.servers[id]; ok {
		rec.status = remoteStatus
	}
}

// SetVolumeStatus 设置卷的远端状态
func (c *Connector) SetVolumeStatus(id, remoteStatus string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec, ok := c.volumes[id]; ok {
		rec.status = remoteStatus
	}
}

// SetBackupStatus 设置备份的远端状态
func (c *Connector) SetBackupStatus(id, remoteStatus string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec, ok := c.backups[id]; ok {
		rec.status = remoteStatus
	}
}

// ServerFlavorID 返回服务器当前规格 ID（测试断言用）
func (c *Connector) ServerFlavorID(id string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec, ok := c.servers[id]; ok {
		return rec.flavorID
	}
	return ""
}

// HasServer 判断服务器是否存在（测试断言用）
func (c *Connector) HasServer(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.servers[id]
	return ok
}

// HasVolume 判断卷是否存在（测试断言用）
func (c *Connector) HasVolume(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.volumes[id]
	return ok
}

// HasBackup 判断备份是否存在（测试断言用）
func (c *Connector) HasBackup(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.backups[id]
	return ok
}
