package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/jimyag/vdm/internal/vdm/entity"
)

type Config struct {
	// DBPath 是系统记录数据库（sqlite）的路径
	// 可以通过环境变量 VDM_DB_PATH 配置
	// 默认：~/.local/share/vdm/vdm.db
	DBPath string

	// Address 是 API 绑定地址
	// 可以通过环境变量 VDM_ADDRESS 配置
	Address string

	// CloudConnector 是云连接器类型（如：mock、openstack）
	// 可以通过环境变量 VDM_CLOUD_CONNECTOR 配置
	CloudConnector string

	// SiteURL 是本服务对虚拟机可见的外部地址
	// cloud-init 回调（phone-home / notify）指向这里
	// 可以通过环境变量 VDM_SITE_URL 配置
	SiteURL string

	// Domain 是虚拟机主机名使用的 DNS 域
	// 可以通过环境变量 VDM_DOMAIN 配置
	Domain string

	// CatalogPath 是桌面目录（yaml）的路径
	// 可以通过环境变量 VDM_CATALOG_PATH 配置
	CatalogPath string

	// ExpiryCheckIntervalMinutes 是过期扫描的周期（分钟）
	// 可以通过环境变量 VDM_EXPIRY_CHECK_INTERVAL_MINUTES 配置
	ExpiryCheckIntervalMinutes int
}

func New() (*Config, error) {
	cfg := &Config{
		DBPath:                     getDBPath(),
		Address:                    getAddress(),
		CloudConnector:             getCloudConnector(),
		SiteURL:                    getSiteURL(),
		Domain:                     getDomain(),
		CatalogPath:                getCatalogPath(),
		ExpiryCheckIntervalMinutes: 10,
	}
	return cfg, nil
}

// LoadCatalog 从 CatalogPath 加载桌面目录
func (c *Config) LoadCatalog() (*entity.Catalog, error) {
	data, err := os.ReadFile(c.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("read desktop catalog %s: %w", c.CatalogPath, err)
	}
	catalog := &entity.Catalog{}
	if err := yaml.Unmarshal(data, catalog); err != nil {
		return nil, fmt.Errorf("parse desktop catalog %s: %w", c.CatalogPath, err)
	}
	if len(catalog.DesktopTypes) == 0 {
		return nil, fmt.Errorf("desktop catalog %s has no desktop types", c.CatalogPath)
	}
	if len(catalog.Zones) == 0 {
		return nil, fmt.Errorf("desktop catalog %s has no availability zones", c.CatalogPath)
	}
	return catalog, nil
}

// getDBPath 获取数据库路径，优先使用环境变量 VDM_DB_PATH
func getDBPath() string {
	if path := os.Getenv("VDM_DB_PATH"); path != "" {
		return path
	}

	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "vdm", "vdm.db")
	}

	return filepath.Join(".", "vdm.db")
}

// getAddress 获取绑定地址，优先使用环境变量 VDM_ADDRESS
func getAddress() string {
	if addr := os.Getenv("VDM_ADDRESS"); addr != "" {
		return addr
	}

	return "0.0.0.0:8811"
}

// getCloudConnector 获取云连接器类型，优先使用环境变量 VDM_CLOUD_CONNECTOR
func getCloudConnector() string {
	if kind := os.Getenv("VDM_CLOUD_CONNECTOR"); kind != "" {
		return kind
	}

	return "mock"
}

// getSiteURL 获取回调地址，优先使用环境变量 VDM_SITE_URL
func getSiteURL() string {
	if site := os.Getenv("VDM_SITE_URL"); site != "" {
		return site
	}

	return "http://localhost:8811"
}

// getDomain 获取主机名域，优先使用环境变量 VDM_DOMAIN
func getDomain() string {
	if domain := os.Getenv("VDM_DOMAIN"); domain != "" {
		return domain
	}

	return "vdm.local"
}

// getCatalogPath 获取桌面目录路径，优先使用环境变量 VDM_CATALOG_PATH
func getCatalogPath() string {
	if path := os.Getenv("VDM_CATALOG_PATH"); path != "" {
		return path
	}

	return filepath.Join(".", "catalog.yaml")
}
