package render

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/loryanstrant/unifi-documenter/internal/model"
)

// Truncation limits for the narrative document.
const (
	MaxActiveClients   = 20
	MaxKnownClients    = 10
	MaxSettingsInGroup = 10
)

// Markdown renders the narrative document. Output depends only on the
// snapshot, so rendering the same snapshot twice gives identical bytes.
type Markdown struct{}

// Format implements Renderer.
func (Markdown) Format() Format { return FormatMarkdown }

// Render implements Renderer.
func (Markdown) Render(snap *model.Snapshot) ([]byte, error) {
	w := &mdWriter{title: cases.Title(language.English)}

	w.header(snap.Controller)
	w.systemInfo(snap.SystemInfo)
	for _, site := range snap.Sites {
		w.site(site)
	}
	return w.buf.Bytes(), nil
}

type mdWriter struct {
	buf   bytes.Buffer
	title cases.Caser
}

func (w *mdWriter) printf(format string, args ...any) {
	fmt.Fprintf(&w.buf, format, args...)
}

func (w *mdWriter) line(s string) {
	w.buf.WriteString(s)
	w.buf.WriteByte('\n')
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func hostPort(c model.ControllerInfo) string {
	if strings.Contains(c.Host, "://") {
		return c.Host
	}
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (w *mdWriter) header(c model.ControllerInfo) {
	w.line("# UniFi Network Documentation")
	w.line("")
	w.printf("**Controller:** %s\n", orDefault(c.Name, "Unknown"))
	w.printf("**Host:** %s\n", hostPort(c))
	if c.APIVersion != "" {
		w.printf("**API Version:** %s\n", c.APIVersion)
	}
	w.printf("**Generated:** %s\n", c.GeneratedAt.UTC().Format(time.RFC3339))
	w.line("")
	w.line("---")
	w.line("")
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func (w *mdWriter) systemInfo(info model.Record) {
	if len(info) == 0 {
		return
	}
	w.line("## Controller Information")
	w.line("")
	if info.Has("hostname") {
		w.printf("**Hostname:** %s\n", info.Text("hostname", ""))
	}
	if info.Has("version") {
		w.printf("**Version:** %s\n", info.Text("version", ""))
	}
	if info.Has("build") {
		w.printf("**Build:** %s\n", info.Text("build", ""))
	}
	if info.Has("uptime") {
		w.printf("**Uptime:** %s seconds\n", info.Text("uptime", "0"))
	}
	w.line("")
}

func (w *mdWriter) site(site model.SiteSnapshot) {
	info := site.Info
	w.printf("## Site: %s\n\n", site.DisplayName())

	desc, name := info.Text("desc", ""), info.Text("name", "")
	if desc != "" && desc != name {
		w.printf("**Description:** %s\n", desc)
	}
	if name != "" {
		w.printf("**Site ID:** %s\n", name)
	}
	w.line("")

	w.networks(site.Networks)
	w.wireless(site.WirelessNetworks, site.WLANGroups)
	w.devices(site.Devices)
	w.clients(site.Clients, site.KnownClients)
	w.firewall(site.FirewallRules, site.FirewallGroups)
	w.portForwards(site.PortForwards)
	w.settings(site.Settings)
	w.health(site.Health)
}

func (w *mdWriter) networks(networks []model.Record) {
	if len(networks) == 0 {
		return
	}
	w.line("### Networks & VLANs")
	w.line("")
	for _, n := range networks {
		w.printf("#### %s\n\n", n.Text("name", "Unknown"))
		w.printf("- **Purpose:** %s\n", n.Text("purpose", "Unknown"))
		w.printf("- **VLAN ID:** %s\n", n.Text("vlan", "N/A"))
		if n.Truthy("ip_subnet") {
			w.printf("- **Subnet:** %s\n", n.Text("ip_subnet", ""))
		}
		if n.Truthy("dhcpd_enabled") || n.Truthy("dhcp_enabled") {
			w.line("- **DHCP Enabled:** Yes")
			start := n.First("", "dhcpd_start", "dhcp_start")
			stop := n.First("", "dhcpd_stop", "dhcp_stop")
			if start != "" && stop != "" {
				w.printf("- **DHCP Range:** %s - %s\n", start, stop)
			}
		}
		if n.Truthy("domain_name") {
			w.printf("- **Domain:** %s\n", n.Text("domain_name", ""))
		}
		w.line("")
	}
}

func (w *mdWriter) wireless(wlans, groups []model.Record) {
	if len(wlans) == 0 {
		return
	}
	w.line("### WiFi Networks")
	w.line("")

	groupNames := make(map[string]string, len(groups))
	for _, g := range groups {
		if id := g.ID(); id != "" {
			groupNames[id] = g.Text("name", "Unknown")
		}
	}

	for _, wlan := range wlans {
		name := wlan.Text("name", "Unknown")
		w.printf("#### %s\n\n", name)
		w.printf("- **Enabled:** %s\n", yesNo(wlan.Truthy("enabled")))
		ssid := name
		if wlan.Truthy("hide_ssid") {
			ssid = "Hidden"
		}
		w.printf("- **SSID:** %s\n", ssid)
		w.printf("- **Security:** %s\n", wlan.Text("security", "Unknown"))
		if wlan.Truthy("wpa_mode") {
			w.printf("- **WPA Mode:** %s\n", wlan.Text("wpa_mode", ""))
		}
		if wlan.Truthy("networkconf_id") {
			w.printf("- **Network ID:** %s\n", wlan.Text("networkconf_id", ""))
		}
		if wlan.Truthy("wlan_band") {
			w.printf("- **Band:** %s\n", wlan.Text("wlan_band", ""))
		}
		if wlan.Truthy("is_guest") {
			w.line("- **Guest Network:** Yes")
		}
		if group, ok := groupNames[wlan.Text("wlangroup_id", "")]; ok {
			w.printf("- **WLAN Group:** %s\n", group)
		}
		w.line("")
	}
}

func (w *mdWriter) devices(devices []model.Record) {
	if len(devices) == 0 {
		return
	}
	w.line("### UniFi Devices")
	w.line("")

	var order []string
	byType := make(map[string][]model.Record)
	for _, d := range devices {
		t := d.Text("type", "unknown")
		if _, seen := byType[t]; !seen {
			order = append(order, t)
		}
		byType[t] = append(byType[t], d)
	}

	for _, t := range order {
		w.printf("#### %s Devices\n\n", w.title.String(t))
		for _, d := range byType[t] {
			w.printf("**%s**\n", d.First("Unknown", "name", "model"))
			w.printf("- **Model:** %s\n", d.Text("model", "Unknown"))
			w.printf("- **IP Address:** %s\n", d.Text("ip", "Unknown"))
			w.printf("- **MAC Address:** %s\n", d.Text("mac", "Unknown"))
			w.printf("- **State:** %s\n", deviceState(d))
			if d.Truthy("version") {
				w.printf("- **Firmware:** %s\n", d.Text("version", ""))
			}
			if d.Truthy("uptime") {
				w.printf("- **Uptime:** %s seconds\n", d.Text("uptime", ""))
			}
			w.line("")
		}
	}
}

// deviceStates names the numeric device states the controller reports.
var deviceStates = map[string]string{
	"0":  "Disconnected",
	"1":  "Connected",
	"2":  "Pending Adoption",
	"4":  "Upgrading",
	"5":  "Provisioning",
	"6":  "Heartbeat Missed",
	"7":  "Adopting",
	"9":  "Adoption Error",
	"10": "Adoption Failed",
	"11": "Isolated",
}

func deviceState(d model.Record) string {
	state := d.Text("state", "Unknown")
	if name, ok := deviceStates[state]; ok {
		return fmt.Sprintf("%s (%s)", name, state)
	}
	return state
}

func (w *mdWriter) clients(active, known []model.Record) {
	if len(active) == 0 && len(known) == 0 {
		return
	}
	w.line("### Network Clients")
	w.line("")

	if len(active) > 0 {
		w.printf("#### Active Clients (%d)\n\n", len(active))
		for _, c := range active[:min(len(active), MaxActiveClients)] {
			w.printf("- **%s** (%s) - %s\n",
				c.First("Unknown", "hostname", "name"),
				c.Text("ip", "Unknown"),
				c.Text("mac", "Unknown"))
			if c.Truthy("network") {
				w.printf("  - Network: %s\n", c.Text("network", ""))
			}
			if c.Truthy("essid") {
				w.printf("  - WiFi: %s\n", c.Text("essid", ""))
			}
		}
		if extra := len(active) - MaxActiveClients; extra > 0 {
			w.printf("\n*...and %d more active clients*\n", extra)
		}
		w.line("")
	}

	if len(known) > 0 {
		w.printf("#### Known/Configured Clients (%d)\n\n", len(known))
		for _, c := range known[:min(len(known), MaxKnownClients)] {
			w.printf("- **%s** - %s\n", c.First("Unknown", "name", "hostname"), c.Text("mac", "Unknown"))
			if c.Truthy("fixed_ip") {
				w.printf("  - Fixed IP: %s\n", c.Text("fixed_ip", ""))
			}
			if c.Truthy("note") {
				w.printf("  - Note: %s\n", c.Text("note", ""))
			}
		}
		if extra := len(known) - MaxKnownClients; extra > 0 {
			w.printf("\n*...and %d more known clients*\n", extra)
		}
		w.line("")
	}
}

func (w *mdWriter) firewall(rules, groups []model.Record) {
	if len(rules) == 0 && len(groups) == 0 {
		return
	}
	w.line("### Firewall & Security")
	w.line("")

	if len(groups) > 0 {
		w.line("#### Firewall Groups")
		w.line("")
		for _, g := range groups {
			w.printf("- **%s** (%s)\n", g.Text("name", "Unknown"), g.Text("group_type", "Unknown"))
			if members := g.Strings("group_members"); len(members) > 0 {
				w.printf("  - Members: %s\n", strings.Join(members, ", "))
			}
		}
		w.line("")
	}

	if len(rules) > 0 {
		w.line("#### Firewall Rules")
		w.line("")
		for _, r := range rules {
			name := r.Text("name", "")
			if name == "" {
				name = "Rule " + r.Text("rule_index", "Unknown")
			}
			w.printf("**%s**\n", name)
			if r.Truthy("ruleset") {
				w.printf("- **Ruleset:** %s\n", r.Text("ruleset", ""))
			}
			w.printf("- **Action:** %s\n", r.Text("action", "Unknown"))
			w.printf("- **Enabled:** %s\n", yesNo(r.Truthy("enabled")))
			if r.Truthy("src_address") {
				w.printf("- **Source:** %s\n", r.Text("src_address", ""))
			}
			if r.Truthy("dst_address") {
				w.printf("- **Destination:** %s\n", r.Text("dst_address", ""))
			}
			if r.Truthy("dst_port") {
				w.printf("- **Port:** %s\n", r.Text("dst_port", ""))
			}
			if r.Truthy("protocol") {
				w.printf("- **Protocol:** %s\n", r.Text("protocol", ""))
			}
			w.line("")
		}
	}
}

func (w *mdWriter) portForwards(forwards []model.Record) {
	if len(forwards) == 0 {
		return
	}
	w.line("### Port Forwarding (NAT Rules)")
	w.line("")
	for _, f := range forwards {
		w.printf("**%s**\n", f.Text("name", "Unnamed Rule"))
		w.printf("- **Enabled:** %s\n", yesNo(f.Truthy("enabled")))
		fields := []struct{ key, label string }{
			{"src", "Source"},
			{"dst_port", "External Port"},
			{"fwd", "Forward To"},
			{"fwd_port", "Internal Port"},
			{"proto", "Protocol"},
		}
		for _, field := range fields {
			if f.Truthy(field.key) {
				w.printf("- **%s:** %s\n", field.label, f.Text(field.key, ""))
			}
		}
		w.line("")
	}
}

func (w *mdWriter) settings(settings []model.Record) {
	if len(settings) == 0 {
		return
	}
	w.line("### Configuration Settings")
	w.line("")

	var order []string
	byGroup := make(map[string][]model.Record)
	for _, s := range settings {
		group := settingGroup(s.Text("key", "unknown"))
		if _, seen := byGroup[group]; !seen {
			order = append(order, group)
		}
		byGroup[group] = append(byGroup[group], s)
	}

	for _, group := range order {
		entries := byGroup[group]
		w.printf("#### %s Settings\n\n", w.title.String(group))
		for _, s := range entries[:min(len(entries), MaxSettingsInGroup)] {
			w.printf("- **%s:** %s\n", s.Text("key", "Unknown"), s.Text("value", "N/A"))
		}
		if extra := len(entries) - MaxSettingsInGroup; extra > 0 {
			w.printf("*...and %d more %s settings*\n", extra, group)
		}
		w.line("")
	}
}

// settingGroup is the key prefix before the first dot, or "general".
func settingGroup(key string) string {
	if prefix, _, found := strings.Cut(key, "."); found {
		return prefix
	}
	return "general"
}

func (w *mdWriter) health(health []model.Record) {
	if len(health) == 0 {
		return
	}
	w.line("### System Health")
	w.line("")
	for _, h := range health {
		w.printf("- **%s:** %s\n", h.Text("subsystem", "Unknown"), h.Text("status", "Unknown"))
		if h.Truthy("num_user") {
			w.printf("  - Connected Users: %s\n", h.Text("num_user", ""))
		}
		if h.Truthy("num_guest") {
			w.printf("  - Connected Guests: %s\n", h.Text("num_guest", ""))
		}
		if h.Truthy("tx_bytes-r") {
			w.printf("  - TX Rate: %s bytes/s\n", h.Text("tx_bytes-r", ""))
		}
		if h.Truthy("rx_bytes-r") {
			w.printf("  - RX Rate: %s bytes/s\n", h.Text("rx_bytes-r", ""))
		}
	}
	w.line("")
}
