package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/joshp123/litterwatch/internal/tuya"
)

const (
	DefaultProtocolVersion = "3.3"
	DefaultShutdownDelay   = "0"
	DefaultMetricsJob      = "litterwatch"
	DotEnvFile             = ".env"
)

// Config is the recognised set of options. Env variables override the YAML
// file field by field.
type Config struct {
	DeviceIP        string        `yaml:"device_ip"`
	Port            string        `yaml:"device_port"`
	DeviceID        string        `yaml:"device_id"`
	LocalKey        string        `yaml:"local_key"`
	ProtocolVersion string        `yaml:"protocol_version"`
	ShutdownDelay   string        `yaml:"shutdown_delay"`
	Debug           bool          `yaml:"debug"`
	LogFile         string        `yaml:"log_file"`
	Metrics         MetricsConfig `yaml:"metrics"`
	MQTT            MQTTConfig    `yaml:"mqtt"`

	// Resolved by Validate.
	Version    tuya.Version  `yaml:"-"`
	DevicePort int           `yaml:"-"`
	Quiescence time.Duration `yaml:"-"`
}

type MetricsConfig struct {
	Textfile       string `yaml:"textfile"`
	PushgatewayURL string `yaml:"pushgateway_url"`
	Job            string `yaml:"job"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Load reads the optional YAML file at path, overlays the environment seen
// through lookup, applies defaults, and validates.
func Load(path string, lookup LookupFunc) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}

	applyEnv(cfg, lookup)
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup LookupFunc) {
	str := func(key string, dst *string) {
		if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
			*dst = strings.TrimSpace(value)
		}
	}
	str("DEVICE_IP", &cfg.DeviceIP)
	str("DEVICE_PORT", &cfg.Port)
	str("DEVICE_ID", &cfg.DeviceID)
	str("LOCAL_KEY", &cfg.LocalKey)
	str("PROTOCOL_VERSION", &cfg.ProtocolVersion)
	str("SHUTDOWN_DELAY", &cfg.ShutdownDelay)
	str("LOG_FILE", &cfg.LogFile)
	str("METRICS_TEXTFILE", &cfg.Metrics.Textfile)
	str("PUSHGATEWAY_URL", &cfg.Metrics.PushgatewayURL)
	str("METRICS_JOB", &cfg.Metrics.Job)
	str("MQTT_BROKER", &cfg.MQTT.Broker)
	str("MQTT_TOPIC", &cfg.MQTT.Topic)
	str("MQTT_USERNAME", &cfg.MQTT.Username)
	str("MQTT_PASSWORD", &cfg.MQTT.Password)

	if value, ok := lookup("DEBUG"); ok && value != "" {
		debug, err := strconv.ParseBool(strings.TrimSpace(value))
		cfg.Debug = err == nil && debug
	}
}

func applyDefaults(cfg *Config) {
	if cfg.ProtocolVersion == "" {
		cfg.ProtocolVersion = DefaultProtocolVersion
	}
	if cfg.ShutdownDelay == "" {
		cfg.ShutdownDelay = DefaultShutdownDelay
	}
	if cfg.Metrics.Job == "" {
		cfg.Metrics.Job = DefaultMetricsJob
	}
	if cfg.MQTT.Broker != "" && cfg.MQTT.Topic == "" && cfg.DeviceID != "" {
		cfg.MQTT.Topic = fmt.Sprintf("litterwatch/%s/result", cfg.DeviceID)
	}
}

// Validate enforces the required settings and resolves derived fields.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if cfg.DeviceIP == "" || cfg.DeviceID == "" || cfg.LocalKey == "" {
		return errors.New("missing required environment variables: DEVICE_IP, DEVICE_ID, LOCAL_KEY")
	}

	number, err := strconv.ParseFloat(strings.TrimSpace(cfg.ProtocolVersion), 64)
	if err != nil {
		return fmt.Errorf("invalid PROTOCOL_VERSION: %s", cfg.ProtocolVersion)
	}
	version, err := tuya.ParseVersion(number)
	if err != nil {
		return fmt.Errorf("invalid PROTOCOL_VERSION: %w", err)
	}
	cfg.Version = version

	if len(cfg.LocalKey) != tuya.LocalKeySize {
		return fmt.Errorf("invalid LOCAL_KEY: must be %d characters", tuya.LocalKeySize)
	}

	if cfg.Port != "" {
		port, err := strconv.Atoi(strings.TrimSpace(cfg.Port))
		if err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("invalid DEVICE_PORT: %s", cfg.Port)
		}
		cfg.DevicePort = port
	}

	cfg.Quiescence = ParseShutdownDelay(cfg.ShutdownDelay)
	return nil
}

// ParseShutdownDelay reads "N", "Ns" or "Nm". Anything it cannot read is
// treated as no delay.
func ParseShutdownDelay(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" || value == "0" {
		return 0
	}
	unit := time.Second
	switch {
	case strings.HasSuffix(value, "m"):
		unit = time.Minute
		value = strings.TrimSuffix(value, "m")
	case strings.HasSuffix(value, "s"):
		value = strings.TrimSuffix(value, "s")
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n <= 0 {
		return 0
	}
	return time.Duration(n) * unit
}

// LoadDotEnv loads .env from the working directory, or else from the
// directory of the executable. Values in the file replace the environment.
// It returns the path it loaded, or "" when there was none.
func LoadDotEnv() (string, error) {
	candidates := []string{DotEnvFile}
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), DotEnvFile))
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Overload(path); err != nil {
			return path, fmt.Errorf("load %s: %w", path, err)
		}
		return path, nil
	}
	return "", nil
}
