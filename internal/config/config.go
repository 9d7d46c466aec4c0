// Package config handles configuration loading from YAML files and environment variables.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable the service reads.
const EnvPrefix = "UNIFI"

// Output formats accepted in output.format.
const (
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
	FormatYAML     = "yaml"
)

// Config holds all configuration for the documenter.
type Config struct {
	Timezone      string              `mapstructure:"timezone"`
	ScheduleTime  string              `mapstructure:"schedule_time"`
	MisfireGrace  time.Duration       `mapstructure:"misfire_grace"`
	Output        OutputConfig        `mapstructure:"output"`
	Controllers   []ControllerConfig  `mapstructure:"controllers"`
	HTTP          HTTPConfig          `mapstructure:"http"`
	Server        ServerConfig        `mapstructure:"server"`
	RabbitMQ      RabbitMQConfig      `mapstructure:"rabbitmq"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// OutputConfig controls where and how artifacts are written.
type OutputConfig struct {
	Dir         string `mapstructure:"dir"`
	Format      string `mapstructure:"format"`
	Prefix      string `mapstructure:"prefix"`
	KeepBackups int    `mapstructure:"keep_backups"`
}

// HTTPConfig tunes the controller REST client.
type HTTPConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	Retries     int           `mapstructure:"retries"`
	RetryWait   time.Duration `mapstructure:"retry_wait"`
	RateLimit   float64       `mapstructure:"rate_limit"`
	Concurrency int           `mapstructure:"concurrency"`
}

// ServerConfig holds HTTP API configuration. Port 0 disables the API.
type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

// RabbitMQConfig holds RabbitMQ connection configuration. An empty URL
// disables event publishing.
type RabbitMQConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

// NotificationsConfig holds the optional run-summary webhook.
type NotificationsConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	APIKey     string `mapstructure:"api_key"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from path (or the default search locations when
// path is empty) and the environment.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/unifi-documenter/")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; use defaults and env vars
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if url := os.Getenv("RABBITMQ_URL"); url != "" {
		v.Set("rabbitmq.url", url)
	}

	// The controller list arrives as JSON; keep viper from coercing the raw
	// string into a slice.
	var envControllers []ControllerConfig
	raw := os.Getenv(EnvPrefix + "_CONTROLLERS")
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &envControllers); err != nil {
			return nil, fmt.Errorf("failed to parse %s_CONTROLLERS: %w", EnvPrefix, err)
		}
		v.Set("controllers", []any{})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if raw != "" {
		cfg.Controllers = envControllers
	}

	if len(cfg.Controllers) == 0 {
		if legacy, ok := legacyController(os.Getenv); ok {
			cfg.Controllers = []ControllerConfig{legacy}
		}
	}

	cfg.normalize()
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Schedule defaults
	v.SetDefault("timezone", "UTC")
	v.SetDefault("schedule_time", "02:00")
	v.SetDefault("misfire_grace", 5*time.Minute)

	// Output defaults
	v.SetDefault("output.dir", "/output")
	v.SetDefault("output.format", FormatMarkdown)
	v.SetDefault("output.prefix", "unifi")
	v.SetDefault("output.keep_backups", 0)

	v.SetDefault("controllers", []ControllerConfig{})

	// Controller client defaults
	v.SetDefault("http.timeout", 30*time.Second)
	v.SetDefault("http.retries", 3)
	v.SetDefault("http.retry_wait", time.Second)
	v.SetDefault("http.rate_limit", 10.0)
	v.SetDefault("http.concurrency", 4)

	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 30)

	// RabbitMQ defaults
	v.SetDefault("rabbitmq.url", "")
	v.SetDefault("rabbitmq.exchange", "documentation.events")

	v.SetDefault("notifications.webhook_url", "")
	v.SetDefault("notifications.api_key", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// legacyController builds the single controller described by the pre-list
// environment variables, if any.
func legacyController(getenv func(string) string) (ControllerConfig, bool) {
	host := getenv(EnvPrefix + "_CONTROLLER_IP")
	if host == "" {
		host = getenv(EnvPrefix + "_CONTROLLER_URL")
	}
	if host == "" {
		return ControllerConfig{}, false
	}

	cc := ControllerConfig{
		Name:       "default",
		Host:       host,
		Port:       443,
		APIVersion: getenv(EnvPrefix + "_API_VERSION"),
	}
	if raw := getenv(EnvPrefix + "_VERIFY_SSL"); raw != "" {
		verify := parseBool(raw)
		cc.VerifySSL = &verify
	}
	if key := getenv(EnvPrefix + "_API_KEY"); key != "" {
		cc.APIKey = key
	} else {
		cc.Username = getenv(EnvPrefix + "_USERNAME")
		cc.Password = getenv(EnvPrefix + "_PASSWORD")
	}
	return cc, true
}

func parseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}

func (c *Config) normalize() {
	c.Timezone = strings.TrimSpace(c.Timezone)
	c.ScheduleTime = strings.TrimSpace(c.ScheduleTime)
	c.Output.Format = strings.ToLower(strings.TrimSpace(c.Output.Format))
	if c.Output.Prefix == "" {
		c.Output.Prefix = "unifi"
	}
	for i := range c.Controllers {
		cc := &c.Controllers[i]
		cc.Name = strings.TrimSpace(cc.Name)
		cc.Host = strings.TrimSpace(cc.Host)
		if cc.Name == "" {
			if len(c.Controllers) == 1 {
				cc.Name = "default"
			} else {
				cc.Name = fmt.Sprintf("controller-%d", i+1)
			}
		}
		if cc.Port == 0 {
			cc.Port = 443
		}
	}
}

// Location resolves the configured IANA timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, &ConfigError{Field: "timezone", Msg: fmt.Sprintf("unknown timezone %q", c.Timezone)}
	}
	return loc, nil
}

// ScheduleClock parses schedule_time into hour and minute.
func (c *Config) ScheduleClock() (hour, minute int, err error) {
	t, err := time.Parse("15:04", c.ScheduleTime)
	if err != nil {
		return 0, 0, &ConfigError{Field: "schedule_time", Msg: fmt.Sprintf("invalid schedule time %q, use HH:MM", c.ScheduleTime)}
	}
	return t.Hour(), t.Minute(), nil
}

// Validate checks the process-wide settings. Individual controllers are
// validated per run so one bad entry never stops the process.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if _, _, err := c.ScheduleClock(); err != nil {
		errs = append(errs, err)
	}
	switch c.Output.Format {
	case FormatMarkdown, FormatJSON, FormatYAML:
	default:
		errs = append(errs, &ConfigError{Field: "output.format", Msg: fmt.Sprintf("output format must be %q, %q or %q, got %q", FormatMarkdown, FormatJSON, FormatYAML, c.Output.Format)})
	}
	if strings.TrimSpace(c.Output.Dir) == "" {
		errs = append(errs, &ConfigError{Field: "output.dir", Msg: "output directory is required"})
	}
	if c.MisfireGrace < 0 {
		errs = append(errs, &ConfigError{Field: "misfire_grace", Msg: "misfire grace must not be negative"})
	}
	if c.Output.KeepBackups < 0 {
		errs = append(errs, &ConfigError{Field: "output.keep_backups", Msg: "keep_backups must not be negative"})
	}
	return errors.Join(errs...)
}
