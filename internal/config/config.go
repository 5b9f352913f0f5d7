// Package config resolves CLI defaults from a .env file and the environment.
package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Persistence
	Store        string
	DSN          string
	ArtifactsDir string

	// Telemetry capture
	MQTTBroker   string
	MQTTClientID string
	MQTTUsername string
	MQTTPassword string
	MQTTTopic    string
	MQTTQoS      int
	NTPServer    string

	// Report sink; an empty address disables it.
	ClickHouseAddr string
	ClickHouseDB   string
	ClickHouseUser string
	ClickHousePass string

	// Sweep
	Workers int
}

// Load reads the given .env files (".env" when none are named) without
// overriding variables already set, then resolves every setting.
func Load(envFiles ...string) *Config {
	_ = godotenv.Load(envFiles...)

	return &Config{
		Store:        getEnv("SOC_STORE", "memory"),
		DSN:          getEnv("SOC_DSN", ""),
		ArtifactsDir: getEnv("SOC_ARTIFACTS_DIR", "socruns"),

		MQTTBroker:   getEnv("SOC_MQTT_BROKER", "tcp://localhost:1883"),
		MQTTClientID: getEnv("SOC_MQTT_CLIENT_ID", "socctl"),
		MQTTUsername: getEnv("SOC_MQTT_USERNAME", ""),
		MQTTPassword: getEnv("SOC_MQTT_PASSWORD", ""),
		MQTTTopic:    getEnv("SOC_MQTT_TOPIC", "device/+/state"),
		MQTTQoS:      getEnvInt("SOC_MQTT_QOS", 1),
		NTPServer:    getEnv("SOC_NTP_SERVER", ""),

		ClickHouseAddr: getEnv("SOC_CLICKHOUSE_ADDR", ""),
		ClickHouseDB:   getEnv("SOC_CLICKHOUSE_DB", "default"),
		ClickHouseUser: getEnv("SOC_CLICKHOUSE_USER", "default"),
		ClickHousePass: getEnv("SOC_CLICKHOUSE_PASS", ""),

		Workers: getEnvInt("SOC_WORKERS", 0),
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("warning: failed to parse %s as int, using default: %v", key, err)
		return defaultValue
	}
	return intValue
}
