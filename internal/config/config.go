package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultPath            = "/etc/purehome/purehome.yaml"
	DefaultHTTPAddr        = "0.0.0.0:8080"
	DefaultDashboardDir    = "/var/lib/purehome/dashboards"
	DefaultStateDir        = "/var/lib/purehome/state"
	DefaultLogLevel        = "info"
	DefaultBlobPrefix      = "purehome/auth"
	DefaultRefreshSeconds  = 300
	DefaultMQTTTopicPrefix = "purehome"
	DefaultDiscoveryPrefix = "homeassistant"
)

// Config is the root daemon configuration.
type Config struct {
	HTTPAddr     string `mapstructure:"http_addr"`
	LogLevel     string `mapstructure:"log_level"`
	DashboardDir string `mapstructure:"dashboard_dir"`

	State    StateConfig     `mapstructure:"state"`
	MQTT     *MQTTConfig     `mapstructure:"mqtt"`
	Molekule *MolekuleConfig `mapstructure:"molekule"`
}

// StateConfig controls where credential state lives.
type StateConfig struct {
	Dir string    `mapstructure:"dir"`
	S3  *S3Config `mapstructure:"s3"`
}

// S3Config mirrors credential state to object storage.
type S3Config struct {
	Endpoint      string `mapstructure:"endpoint"`
	Bucket        string `mapstructure:"bucket"`
	Prefix        string `mapstructure:"prefix"`
	Region        string `mapstructure:"region"`
	AccessKeyFile string `mapstructure:"access_key_file"`
	SecretKeyFile string `mapstructure:"secret_key_file"`
}

// MQTTConfig enables snapshot publication to the home-automation bus.
type MQTTConfig struct {
	Broker          string `mapstructure:"broker"`
	Username        string `mapstructure:"username"`
	PasswordFile    string `mapstructure:"password_file"`
	TopicPrefix     string `mapstructure:"topic_prefix"`
	DiscoveryPrefix string `mapstructure:"discovery_prefix"`
	QoS             int    `mapstructure:"qos"`
}

// MolekuleConfig configures one purifier account.
type MolekuleConfig struct {
	Email          string `mapstructure:"email"`
	PasswordFile   string `mapstructure:"password_file"`
	BaseURL        string `mapstructure:"base_url"`
	RefreshSeconds int    `mapstructure:"refresh_seconds"`
	SilentAuto     bool   `mapstructure:"silent_auto"`
}

// RefreshInterval returns the configured polling interval.
func (c *MolekuleConfig) RefreshInterval() time.Duration {
	if c == nil || c.RefreshSeconds <= 0 {
		return DefaultRefreshSeconds * time.Second
	}
	return time.Duration(c.RefreshSeconds) * time.Second
}

// Load reads the YAML config file, applies defaults, and validates.
// PUREHOME_* environment variables override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("purehome")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = DefaultHTTPAddr
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.DashboardDir == "" {
		cfg.DashboardDir = DefaultDashboardDir
	}
	if cfg.State.Dir == "" {
		cfg.State.Dir = DefaultStateDir
	}
	if cfg.State.S3 != nil && cfg.State.S3.Prefix == "" {
		cfg.State.S3.Prefix = DefaultBlobPrefix
	}

	if cfg.MQTT != nil {
		if cfg.MQTT.TopicPrefix == "" {
			cfg.MQTT.TopicPrefix = DefaultMQTTTopicPrefix
		}
		if cfg.MQTT.DiscoveryPrefix == "" {
			cfg.MQTT.DiscoveryPrefix = DefaultDiscoveryPrefix
		}
	}

	if cfg.Molekule != nil && cfg.Molekule.RefreshSeconds == 0 {
		cfg.Molekule.RefreshSeconds = DefaultRefreshSeconds
	}
}

// Validate enforces required invariants beyond YAML typing.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if cfg.HTTPAddr == "" {
		return fmt.Errorf("http_addr is required")
	}

	if s3 := cfg.State.S3; s3 != nil {
		if s3.Endpoint == "" {
			return fmt.Errorf("state.s3.endpoint is required")
		}
		if s3.Bucket == "" {
			return fmt.Errorf("state.s3.bucket is required")
		}
		if s3.AccessKeyFile == "" {
			return fmt.Errorf("state.s3.access_key_file is required")
		}
		if s3.SecretKeyFile == "" {
			return fmt.Errorf("state.s3.secret_key_file is required")
		}
	}

	if cfg.MQTT != nil && cfg.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}
	if cfg.MQTT != nil && (cfg.MQTT.QoS < 0 || cfg.MQTT.QoS > 2) {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}

	if m := cfg.Molekule; m != nil {
		if m.Email == "" {
			return fmt.Errorf("molekule.email is required")
		}
		if m.PasswordFile == "" {
			return fmt.Errorf("molekule.password_file is required")
		}
		if m.RefreshSeconds < 30 {
			return fmt.Errorf("molekule.refresh_seconds must be at least 30")
		}
	}

	return nil
}

// EnabledPlugins maps enabled plugin IDs based on config presence.
func EnabledPlugins(cfg *Config) map[string]bool {
	enabled := make(map[string]bool)
	if cfg == nil {
		return enabled
	}
	if cfg.Molekule != nil {
		enabled["molekule"] = true
	}
	return enabled
}
