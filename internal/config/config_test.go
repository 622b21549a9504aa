package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "purehome.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
molekule:
  email: someone@example.com
  password_file: /run/secrets/molekule
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.HTTPAddr != DefaultHTTPAddr {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, DefaultHTTPAddr)
	}
	if cfg.LogLevel != DefaultLogLevel {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, DefaultLogLevel)
	}
	if cfg.State.Dir != DefaultStateDir {
		t.Errorf("State.Dir = %q, want %q", cfg.State.Dir, DefaultStateDir)
	}
	if cfg.Molekule.RefreshSeconds != DefaultRefreshSeconds {
		t.Errorf("RefreshSeconds = %d, want %d", cfg.Molekule.RefreshSeconds, DefaultRefreshSeconds)
	}
	if got := cfg.Molekule.RefreshInterval(); got != 300*time.Second {
		t.Errorf("RefreshInterval = %v, want 5m", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidateMolekuleRequiresEmail(t *testing.T) {
	path := writeConfig(t, `
molekule:
  password_file: /run/secrets/molekule
`)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "molekule.email") {
		t.Fatalf("error = %v, want molekule.email required", err)
	}
}

func TestValidateRefreshFloor(t *testing.T) {
	path := writeConfig(t, `
molekule:
  email: someone@example.com
  password_file: /run/secrets/molekule
  refresh_seconds: 5
`)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "refresh_seconds") {
		t.Fatalf("error = %v, want refresh_seconds floor", err)
	}
}

func TestValidateMQTTBroker(t *testing.T) {
	path := writeConfig(t, `
mqtt:
  topic_prefix: purehome
`)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "mqtt.broker") {
		t.Fatalf("error = %v, want mqtt.broker required", err)
	}
}

func TestMQTTDefaults(t *testing.T) {
	path := writeConfig(t, `
mqtt:
  broker: tcp://broker:1883
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MQTT.TopicPrefix != DefaultMQTTTopicPrefix {
		t.Errorf("TopicPrefix = %q, want %q", cfg.MQTT.TopicPrefix, DefaultMQTTTopicPrefix)
	}
	if cfg.MQTT.DiscoveryPrefix != DefaultDiscoveryPrefix {
		t.Errorf("DiscoveryPrefix = %q, want %q", cfg.MQTT.DiscoveryPrefix, DefaultDiscoveryPrefix)
	}
}

func TestEnabledPlugins(t *testing.T) {
	enabled := EnabledPlugins(&Config{Molekule: &MolekuleConfig{}})
	if !enabled["molekule"] {
		t.Error("molekule should be enabled when configured")
	}
	if len(EnabledPlugins(&Config{})) != 0 {
		t.Error("no plugins should be enabled for empty config")
	}
}
