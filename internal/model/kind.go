package model

// ResourceKind enumerates the per-site collections fetched from a controller.
type ResourceKind int

const (
	KindNetworks ResourceKind = iota
	KindWirelessNetworks
	KindWLANGroups
	KindDevices
	KindClients
	KindKnownClients
	KindFirewallGroups
	KindFirewallRules
	KindPortForwards
	KindSettings
	KindHealth
	KindDPIStats

	kindCount
)

// NumResourceKinds is the number of collections in every SiteSnapshot.
const NumResourceKinds = int(kindCount)

var kindNames = [NumResourceKinds]string{
	KindNetworks:         "networks",
	KindWirelessNetworks: "wireless_networks",
	KindWLANGroups:       "wlan_groups",
	KindDevices:          "devices",
	KindClients:          "clients",
	KindKnownClients:     "known_clients",
	KindFirewallGroups:   "firewall_groups",
	KindFirewallRules:    "firewall_rules",
	KindPortForwards:     "port_forwards",
	KindSettings:         "settings",
	KindHealth:           "health",
	KindDPIStats:         "dpi_stats",
}

// String returns the snake_case name used in logs, metrics and dumps.
func (k ResourceKind) String() string {
	if k < 0 || k >= kindCount {
		return "unknown"
	}
	return kindNames[k]
}

// Valid reports whether k is one of the declared kinds.
func (k ResourceKind) Valid() bool {
	return k >= 0 && k < kindCount
}

// ResourceKinds returns every kind in fetch order.
func ResourceKinds() []ResourceKind {
	kinds := make([]ResourceKind, 0, NumResourceKinds)
	for k := ResourceKind(0); k < kindCount; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}
