package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"SOC_STORE", "SOC_ARTIFACTS_DIR", "SOC_MQTT_QOS", "SOC_CLICKHOUSE_ADDR", "SOC_WORKERS"} {
		t.Setenv(key, "")
	}
	cfg := Load(filepath.Join(t.TempDir(), "missing.env"))
	if cfg.Store != "memory" || cfg.ArtifactsDir != "socruns" || cfg.MQTTQoS != 1 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.ClickHouseAddr != "" || cfg.Workers != 0 {
		t.Fatalf("clickhouse and workers should default off: %+v", cfg)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SOC_STORE", "mysql")
	t.Setenv("SOC_DSN", "user:pass@tcp(db:3306)/soc")
	t.Setenv("SOC_MQTT_QOS", "2")
	t.Setenv("SOC_WORKERS", "not-a-number")

	cfg := Load(filepath.Join(t.TempDir(), "missing.env"))
	if cfg.Store != "mysql" || cfg.DSN != "user:pass@tcp(db:3306)/soc" {
		t.Fatalf("unexpected store settings: %+v", cfg)
	}
	if cfg.MQTTQoS != 2 {
		t.Fatalf("unexpected qos: got=%d want=2", cfg.MQTTQoS)
	}
	if cfg.Workers != 0 {
		t.Fatalf("unparsable int should fall back to default, got %d", cfg.Workers)
	}
}

func TestLoadEnvFileDoesNotOverrideEnvironment(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "test.env")
	content := "SOC_ARTIFACTS_DIR=/tmp/from-file\nSOC_MQTT_TOPIC=lab/battery\n"
	if err := os.WriteFile(envFile, []byte(content), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("SOC_MQTT_TOPIC", "from/env")
	t.Setenv("SOC_ARTIFACTS_DIR", "")
	os.Unsetenv("SOC_ARTIFACTS_DIR")

	cfg := Load(envFile)
	t.Cleanup(func() { os.Unsetenv("SOC_ARTIFACTS_DIR") })
	if cfg.ArtifactsDir != "/tmp/from-file" {
		t.Fatalf("expected artifacts dir from env file, got %q", cfg.ArtifactsDir)
	}
	if cfg.MQTTTopic != "from/env" {
		t.Fatalf("environment should win over env file, got %q", cfg.MQTTTopic)
	}
}
