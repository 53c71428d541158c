package entity

import (
	"sort"
)

// Catalog 桌面目录：可创建的桌面类型和可用区
type Catalog struct {
	DesktopTypes []DesktopType      `json:"desktop_types" yaml:"desktop_types"`
	Zones        []AvailabilityZone `json:"zones" yaml:"zones"`
}

// DesktopType 按 ID 查找桌面类型
func (c *Catalog) DesktopType(id string) (*DesktopType, bool) {
	for i := range c.DesktopTypes {
		if c.DesktopTypes[i].ID == id {
			return &c.DesktopTypes[i], true
		}
	}
	return nil, false
}

// PreferredZone 返回权重最小的可用区
func (c *Catalog) PreferredZone() (*AvailabilityZone, bool) {
	if len(c.Zones) == 0 {
		return nil, false
	}
	zones := make([]AvailabilityZone, len(c.Zones))
	copy(zones, c.Zones)
	sort.SliceStable(zones, func(i, j int) bool {
		return zones[i].ZoneWeight < zones[j].ZoneWeight
	})
	return &zones[0], true
}
