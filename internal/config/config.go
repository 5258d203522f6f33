// Package config loads agent configuration by layering command-line flags
// (spf13/pflag, grounded on bureau-viewer/main.go) over environment
// variables read through the teacher's own umh-utils/env helpers
// (GetAsString/GetAsInt, grounded on cmd/metrics/main.go's
// env.GetAsString("LOGGING_LEVEL", false, "PRODUCTION") convention).
package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/united-manufacturing-hub/umh-utils/env"
)

// Config holds everything the agent needs to start.
type Config struct {
	MQTTBrokerURL string
	MQTTClientID  string
	MQTTTopic     string
	MQTTCAFile    string
	MQTTCertFile  string
	MQTTKeyFile   string

	IngressQueueCapacity int
	PublishQueueCapacity int
	IdleTime             time.Duration

	SpoolDir string

	DiagnosticsListenAddr string

	LogLevel string
	LogMode  string // "development" or "production"

	SentryDSN string
}

// Parse builds a Config from argv plus the environment: flags win over
// environment variables, which win over the listed defaults.
func Parse(argv []string) (*Config, error) {
	cfg := &Config{}

	flagSet := pflag.NewFlagSet("edge-agent", pflag.ContinueOnError)
	flagSet.StringVar(&cfg.MQTTBrokerURL, "mqtt-broker-url", getenv("MQTT_BROKER_URL", ""), "MQTT broker URL (tcp:// or ssl://)")
	flagSet.StringVar(&cfg.MQTTClientID, "mqtt-client-id", getenv("MQTT_CLIENT_ID", "edge-agent"), "MQTT client id")
	flagSet.StringVar(&cfg.MQTTTopic, "mqtt-topic", getenv("MQTT_TOPIC", "fleetwise/data"), "MQTT topic collected snapshots publish to")
	flagSet.StringVar(&cfg.MQTTCAFile, "mqtt-ca-file", getenv("MQTT_CA_FILE", ""), "path to CA certificate")
	flagSet.StringVar(&cfg.MQTTCertFile, "mqtt-cert-file", getenv("MQTT_CERT_FILE", ""), "path to client certificate")
	flagSet.StringVar(&cfg.MQTTKeyFile, "mqtt-key-file", getenv("MQTT_KEY_FILE", ""), "path to client private key")

	flagSet.IntVar(&cfg.IngressQueueCapacity, "ingress-queue-capacity", getenvInt("INGRESS_QUEUE_CAPACITY", 10000), "bounded ingress queue capacity")
	flagSet.IntVar(&cfg.PublishQueueCapacity, "publish-queue-capacity", getenvInt("PUBLISH_QUEUE_CAPACITY", 256), "bounded publish queue capacity")
	flagSet.DurationVar(&cfg.IdleTime, "idle-time", getenvDuration("IDLE_TIME", 100*time.Millisecond), "worker idle sleep between empty ingress drains")

	flagSet.StringVar(&cfg.SpoolDir, "spool-dir", getenv("SPOOL_DIR", "./spool"), "directory for the on-disk payload spool")

	flagSet.StringVar(&cfg.DiagnosticsListenAddr, "diagnostics-listen-addr", getenv("DIAGNOSTICS_LISTEN_ADDR", ":8080"), "diagnostics HTTP server listen address")

	flagSet.StringVar(&cfg.LogLevel, "log-level", getenv("LOG_LEVEL", "info"), "structured log level")
	flagSet.StringVar(&cfg.LogMode, "log-mode", getenv("LOG_MODE", "production"), "zap logger mode: development or production")

	flagSet.StringVar(&cfg.SentryDSN, "sentry-dsn", getenv("SENTRY_DSN", ""), "Sentry DSN for fatal-invariant reporting (empty disables)")

	if err := flagSet.Parse(argv); err != nil {
		return nil, err
	}

	if cfg.MQTTBrokerURL == "" {
		return nil, fmt.Errorf("config: mqtt-broker-url is required")
	}
	return cfg, nil
}

// getenv wraps env.GetAsString with required=false; the error return only
// ever reports "not set", which a fallback already covers, so it is
// discarded the same way cmd/metrics/main.go does (//nolint:errcheck).
func getenv(key, fallback string) string {
	v, _ := env.GetAsString(key, false, fallback)
	return v
}

func getenvInt(key string, fallback int) int {
	v, _ := env.GetAsInt(key, false, fallback)
	return v
}

// getenvDuration has no umh-utils/env equivalent (the package has no
// GetAsDuration), so it stays hand-rolled on time.ParseDuration.
func getenvDuration(key string, fallback time.Duration) time.Duration {
	raw, err := env.GetAsString(key, false, "")
	if err != nil || raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}
