package model

import "time"

// ControllerInfo identifies the controller a Snapshot was taken from.
type ControllerInfo struct {
	Name        string    `json:"name" yaml:"name"`
	Host        string    `json:"host" yaml:"host"`
	Port        int       `json:"port" yaml:"port"`
	APIVersion  string    `json:"api_version,omitempty" yaml:"api_version,omitempty"`
	GeneratedAt time.Time `json:"generated_at" yaml:"generated_at"`
}

// Snapshot is everything gathered from one controller in one run. It is
// built once by the aggregator and only read afterwards.
type Snapshot struct {
	Controller ControllerInfo `json:"controller" yaml:"controller"`
	Sites      []SiteSnapshot `json:"sites" yaml:"sites"`
	// SystemInfo is nil when the controller did not report it.
	SystemInfo Record `json:"system_info" yaml:"system_info"`
}

// SiteSnapshot holds one site's info and its twelve collections. Every
// collection is non-nil; a failed fetch is an empty slice.
type SiteSnapshot struct {
	Info             Record   `json:"info" yaml:"info"`
	Networks         []Record `json:"networks" yaml:"networks"`
	WirelessNetworks []Record `json:"wireless_networks" yaml:"wireless_networks"`
	WLANGroups       []Record `json:"wlan_groups" yaml:"wlan_groups"`
	Devices          []Record `json:"devices" yaml:"devices"`
	Clients          []Record `json:"clients" yaml:"clients"`
	KnownClients     []Record `json:"known_clients" yaml:"known_clients"`
	FirewallGroups   []Record `json:"firewall_groups" yaml:"firewall_groups"`
	FirewallRules    []Record `json:"firewall_rules" yaml:"firewall_rules"`
	PortForwards     []Record `json:"port_forwards" yaml:"port_forwards"`
	Settings         []Record `json:"settings" yaml:"settings"`
	Health           []Record `json:"health" yaml:"health"`
	DPIStats         []Record `json:"dpi_stats" yaml:"dpi_stats"`
}

// NewSiteSnapshot assembles a SiteSnapshot from collections indexed by
// ResourceKind. Missing collections become empty slices.
func NewSiteSnapshot(info Record, collections [NumResourceKinds][]Record) SiteSnapshot {
	if info == nil {
		info = Record{}
	}
	for i := range collections {
		if collections[i] == nil {
			collections[i] = []Record{}
		}
	}
	return SiteSnapshot{
		Info:             info,
		Networks:         collections[KindNetworks],
		WirelessNetworks: collections[KindWirelessNetworks],
		WLANGroups:       collections[KindWLANGroups],
		Devices:          collections[KindDevices],
		Clients:          collections[KindClients],
		KnownClients:     collections[KindKnownClients],
		FirewallGroups:   collections[KindFirewallGroups],
		FirewallRules:    collections[KindFirewallRules],
		PortForwards:     collections[KindPortForwards],
		Settings:         collections[KindSettings],
		Health:           collections[KindHealth],
		DPIStats:         collections[KindDPIStats],
	}
}

// Collection returns the collection for kind.
func (s SiteSnapshot) Collection(kind ResourceKind) []Record {
	switch kind {
	case KindNetworks:
		return s.Networks
	case KindWirelessNetworks:
		return s.WirelessNetworks
	case KindWLANGroups:
		return s.WLANGroups
	case KindDevices:
		return s.Devices
	case KindClients:
		return s.Clients
	case KindKnownClients:
		return s.KnownClients
	case KindFirewallGroups:
		return s.FirewallGroups
	case KindFirewallRules:
		return s.FirewallRules
	case KindPortForwards:
		return s.PortForwards
	case KindSettings:
		return s.Settings
	case KindHealth:
		return s.Health
	case KindDPIStats:
		return s.DPIStats
	default:
		return nil
	}
}

// ID returns the site's API identifier (its short name).
func (s SiteSnapshot) ID() string {
	return s.Info.Text("name", "default")
}

// DisplayName prefers the human description over the short name.
func (s SiteSnapshot) DisplayName() string {
	return s.Info.First("Unknown Site", "desc", "name")
}
