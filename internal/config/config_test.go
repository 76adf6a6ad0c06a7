package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshp123/litterwatch/internal/tuya"
)

func env(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func baseEnv() map[string]string {
	return map[string]string{
		"DEVICE_IP": "192.168.1.40",
		"DEVICE_ID": "bf0123456789abcdef",
		"LOCAL_KEY": "0123456789abcdef",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", env(baseEnv()))
	require.NoError(t, err)

	assert.Equal(t, "192.168.1.40", cfg.DeviceIP)
	assert.Equal(t, DefaultProtocolVersion, cfg.ProtocolVersion)
	assert.Equal(t, tuya.Version33, cfg.Version)
	assert.Equal(t, time.Duration(0), cfg.Quiescence)
	assert.False(t, cfg.Debug)
	assert.Equal(t, DefaultMetricsJob, cfg.Metrics.Job)
	assert.Empty(t, cfg.MQTT.Topic)
	assert.Zero(t, cfg.DevicePort)
}

func TestLoadDevicePort(t *testing.T) {
	values := baseEnv()
	values["DEVICE_PORT"] = "16668"
	cfg, err := Load("", env(values))
	require.NoError(t, err)
	assert.Equal(t, 16668, cfg.DevicePort)

	for _, bad := range []string{"abc", "0", "70000"} {
		values["DEVICE_PORT"] = bad
		_, err := Load("", env(values))
		assert.EqualError(t, err, "invalid DEVICE_PORT: "+bad)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	for _, key := range []string{"DEVICE_IP", "DEVICE_ID", "LOCAL_KEY"} {
		t.Run(key, func(t *testing.T) {
			values := baseEnv()
			delete(values, key)
			_, err := Load("", env(values))
			assert.EqualError(t, err, "missing required environment variables: DEVICE_IP, DEVICE_ID, LOCAL_KEY")
		})
	}
}

func TestLoadProtocolVersion(t *testing.T) {
	tests := []struct {
		value   string
		want    tuya.Version
		wantErr string
	}{
		{"3.1", tuya.Version31, ""},
		{"3.30", tuya.Version33, ""},
		{"abc", "", "invalid PROTOCOL_VERSION: abc"},
		{"3.3.1", "", "invalid PROTOCOL_VERSION: 3.3.1"},
		{"3.4", "", "invalid PROTOCOL_VERSION: unsupported protocol version 3.4 (supported: 3.1, 3.2, 3.3)"},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			values := baseEnv()
			values["PROTOCOL_VERSION"] = tt.value
			cfg, err := Load("", env(values))
			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Version)
		})
	}
}

func TestLoadLocalKeyLength(t *testing.T) {
	values := baseEnv()
	values["LOCAL_KEY"] = "short"
	_, err := Load("", env(values))
	assert.EqualError(t, err, "invalid LOCAL_KEY: must be 16 characters")
}

func TestParseShutdownDelay(t *testing.T) {
	tests := map[string]time.Duration{
		"":     0,
		"0":    0,
		"30":   30 * time.Second,
		"45s":  45 * time.Second,
		"2m":   2 * time.Minute,
		" 5 ":  5 * time.Second,
		"abc":  0,
		"1h":   0,
		"1.5m": 0,
		"-3":   0,
		"m":    0,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseShutdownDelay(in), "input %q", in)
	}
}

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "litterwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
device_ip: 10.0.0.9
device_id: fromfile
local_key: abcdefabcdefabcd
protocol_version: 3.1
shutdown_delay: 1m
debug: true
mqtt:
  broker: tcp://broker:1883
metrics:
  textfile: /var/lib/node_exporter/litterwatch.prom
`), 0o600))

	cfg, err := Load(path, env(map[string]string{"DEVICE_ID": "fromenv"}))
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.9", cfg.DeviceIP)
	assert.Equal(t, "fromenv", cfg.DeviceID)
	assert.Equal(t, tuya.Version31, cfg.Version)
	assert.Equal(t, time.Minute, cfg.Quiescence)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "litterwatch/fromenv/result", cfg.MQTT.Topic)
	assert.Equal(t, "/var/lib/node_exporter/litterwatch.prom", cfg.Metrics.Textfile)
}

func TestLoadDebugFlag(t *testing.T) {
	for value, want := range map[string]bool{"true": true, "1": true, "false": false, "yes": false} {
		values := baseEnv()
		values["DEBUG"] = value
		cfg, err := Load("", env(values))
		require.NoError(t, err)
		assert.Equal(t, want, cfg.Debug, "DEBUG=%s", value)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), env(baseEnv()))
	assert.ErrorContains(t, err, "read config")
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DotEnvFile), []byte("DEVICE_IP=10.1.1.1\n# comment\nSHUTDOWN_DELAY=5s\n"), 0o600))
	t.Chdir(dir)
	t.Setenv("DEVICE_IP", "192.168.0.2")
	t.Setenv("SHUTDOWN_DELAY", "")

	path, err := LoadDotEnv()
	require.NoError(t, err)
	assert.Equal(t, DotEnvFile, path)
	assert.Equal(t, "10.1.1.1", os.Getenv("DEVICE_IP"))
	assert.Equal(t, "5s", os.Getenv("SHUTDOWN_DELAY"))
}
