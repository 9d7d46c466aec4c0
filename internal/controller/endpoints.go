package controller

import (
	"net/url"
	"strings"

	"github.com/loryanstrant/unifi-documenter/internal/model"
)

// API version names.
const (
	VersionUniFiOS = "unifi-os"
	VersionClassic = "classic"
)

// apiVersion is one path and auth flavour of the controller API. Login and
// logout paths are relative to the controller root, not the prefix.
type apiVersion struct {
	name       string
	prefix     string
	loginPath  string
	logoutPath string
}

var apiVersions = map[string]apiVersion{
	VersionUniFiOS: {
		name:       VersionUniFiOS,
		prefix:     "/proxy/network",
		loginPath:  "/api/auth/login",
		logoutPath: "/api/auth/logout",
	},
	VersionClassic: {
		name:       VersionClassic,
		loginPath:  "/api/login",
		logoutPath: "/api/logout",
	},
}

// fallbackOrder is tried after the configured version.
var fallbackOrder = []string{VersionUniFiOS, VersionClassic}

// candidates returns the versions to try, preferred first, without duplicates.
func candidates(preferred string) []apiVersion {
	preferred = strings.ToLower(strings.TrimSpace(preferred))
	order := append([]string{preferred}, fallbackOrder...)

	seen := make(map[string]bool, len(order))
	out := make([]apiVersion, 0, len(apiVersions))
	for _, name := range order {
		v, ok := apiVersions[name]
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, v)
	}
	return out
}

const (
	pathSites   = "/api/self/sites"
	pathSysinfo = "/api/s/default/stat/sysinfo"
	pathSystem  = "/api/system"
)

// kindEndpoints maps each per-site resource kind to its path below
// /api/s/{site}/.
var kindEndpoints = [model.NumResourceKinds]string{
	model.KindNetworks:         "rest/networkconf",
	model.KindWirelessNetworks: "rest/wlanconf",
	model.KindWLANGroups:       "rest/wlangroup",
	model.KindDevices:          "stat/device",
	model.KindClients:          "stat/sta",
	model.KindKnownClients:     "rest/user",
	model.KindFirewallGroups:   "rest/firewallgroup",
	model.KindFirewallRules:    "rest/firewallrule",
	model.KindPortForwards:     "rest/portforward",
	model.KindSettings:         "get/setting",
	model.KindHealth:           "stat/health",
	model.KindDPIStats:         "stat/dpi",
}

func (v apiVersion) sitePath(site string, kind model.ResourceKind) string {
	return v.prefix + "/api/s/" + url.PathEscape(site) + "/" + kindEndpoints[kind]
}
