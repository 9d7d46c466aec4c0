package config

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// ControllerConfig describes one UniFi controller to document.
type ControllerConfig struct {
	Name       string `mapstructure:"name" json:"name"`
	Host       string `mapstructure:"host" json:"host"`
	Port       int    `mapstructure:"port" json:"port"`
	APIKey     string `mapstructure:"api_key" json:"api_key"`
	Username   string `mapstructure:"username" json:"username"`
	Password   string `mapstructure:"password" json:"password"`
	VerifySSL  *bool  `mapstructure:"verify_ssl" json:"verify_ssl"`
	APIVersion string `mapstructure:"api_version" json:"api_version"`
}

// ConfigError reports an unusable configuration value.
type ConfigError struct {
	Controller string
	Field      string
	Msg        string
}

func (e *ConfigError) Error() string {
	if e.Controller != "" {
		return fmt.Sprintf("controller %q: %s", e.Controller, e.Msg)
	}
	return e.Msg
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Validate checks that the controller can be contacted and authenticated.
func (c ControllerConfig) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return &ConfigError{Controller: c.Name, Field: "host", Msg: "host is required"}
	}
	if c.Port < 0 || c.Port > 65535 {
		return &ConfigError{Controller: c.Name, Field: "port", Msg: fmt.Sprintf("port %d out of range", c.Port)}
	}
	if _, err := c.BaseURL(); err != nil {
		return &ConfigError{Controller: c.Name, Field: "host", Msg: err.Error()}
	}

	hasKey := c.APIKey != ""
	hasCreds := c.Username != "" || c.Password != ""
	switch {
	case hasKey && hasCreds:
		return &ConfigError{Controller: c.Name, Field: "api_key", Msg: "configure either api_key or username/password, not both"}
	case !hasKey && !hasCreds:
		return &ConfigError{Controller: c.Name, Field: "api_key", Msg: "api_key or username/password is required"}
	case hasCreds && (c.Username == "" || c.Password == ""):
		return &ConfigError{Controller: c.Name, Field: "username", Msg: "both username and password are required"}
	}
	return nil
}

// VerifyTLS reports whether the controller certificate must be verified.
// Verification is on unless explicitly disabled.
func (c ControllerConfig) VerifyTLS() bool {
	return c.VerifySSL == nil || *c.VerifySSL
}

// UsesAPIKey reports whether bearer authentication is configured.
func (c ControllerConfig) UsesAPIKey() bool {
	return c.APIKey != ""
}

// BaseURL returns the controller root URL without a trailing slash. A host
// given as a full URL is used as is.
func (c ControllerConfig) BaseURL() (string, error) {
	host := strings.TrimSpace(c.Host)
	if strings.Contains(host, "://") {
		u, err := url.Parse(host)
		if err != nil || u.Host == "" {
			return "", fmt.Errorf("invalid host URL %q", host)
		}
		return strings.TrimRight(u.String(), "/"), nil
	}
	port := c.Port
	if port == 0 {
		port = 443
	}
	return "https://" + net.JoinHostPort(host, strconv.Itoa(port)), nil
}

// Address returns host:port for TCP reachability checks.
func (c ControllerConfig) Address() (string, error) {
	base, err := c.BaseURL()
	if err != nil {
		return "", err
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	if u.Port() != "" {
		return u.Host, nil
	}
	port := "443"
	if u.Scheme == "http" {
		port = "80"
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}

// FileName returns the controller name reduced to filename-safe characters.
func (c ControllerConfig) FileName() string {
	name := strings.Trim(unsafeName.ReplaceAllString(c.Name, "_"), "_")
	if name == "" {
		return "default"
	}
	return name
}

// LogFields returns key/value pairs safe to log; secrets are never included.
func (c ControllerConfig) LogFields() []any {
	auth := "credentials"
	if c.UsesAPIKey() {
		auth = "api_key"
	}
	return []any{"controller", c.Name, "host", c.Host, "port", c.Port, "auth", auth}
}
