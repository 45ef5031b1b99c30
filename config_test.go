package looper

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	loopertest "github.com/arloliu/looper/testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.Equal(t, 10*time.Millisecond, cfg.MinIterationDuration)
	require.Equal(t, 5, cfg.LongestIterationsCapacity)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, 10*time.Millisecond, cfg.HardStopPollInterval)
	require.Equal(t, 50*time.Millisecond, cfg.SinkGracePeriod)
	require.Equal(t, "looper-flags", cfg.Process.KVBucket)
	require.Equal(t, "LOOPER", cfg.Process.StreamPrefix)
	require.Equal(t, 5*time.Second, cfg.Process.OperationTimeout)
	require.Equal(t, 10*time.Second, cfg.Process.ShutdownTimeout)
	require.Equal(t, time.Second, cfg.Process.HeartbeatInterval)
	require.NoError(t, cfg.Validate())
}

func TestSetDefaults(t *testing.T) {
	t.Run("applies defaults to empty config", func(t *testing.T) {
		cfg := Config{}
		SetDefaults(&cfg)

		require.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("preserves custom values", func(t *testing.T) {
		cfg := Config{
			MinIterationDuration:      -1,
			LongestIterationsCapacity: 10,
			LogLevel:                  "debug",
			HardStopPollInterval:      time.Millisecond,
			SinkGracePeriod:           time.Second,
			Process: ProcessConfig{
				KVBucket:          "flags",
				StreamPrefix:      "ERRS",
				OperationTimeout:  time.Second,
				ShutdownTimeout:   2 * time.Second,
				HeartbeatInterval: 3 * time.Second,
			},
		}
		want := cfg
		SetDefaults(&cfg)

		require.Equal(t, want, cfg)
	})

	t.Run("applies partial defaults", func(t *testing.T) {
		cfg := Config{LogLevel: "error", Process: ProcessConfig{KVBucket: "mine"}}
		SetDefaults(&cfg)

		require.Equal(t, "error", cfg.LogLevel)
		require.Equal(t, "mine", cfg.Process.KVBucket)
		require.Equal(t, 10*time.Millisecond, cfg.MinIterationDuration)
		require.Equal(t, "LOOPER", cfg.Process.StreamPrefix)
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero capacity", func(c *Config) { c.LongestIterationsCapacity = 0 }},
		{"negative capacity", func(c *Config) { c.LongestIterationsCapacity = -3 }},
		{"zero poll interval", func(c *Config) { c.HardStopPollInterval = 0 }},
		{"negative grace period", func(c *Config) { c.SinkGracePeriod = -time.Millisecond }},
		{"unknown log level", func(c *Config) { c.LogLevel = "loud" }},
		{"empty bucket", func(c *Config) { c.Process.KVBucket = "" }},
		{"dotted bucket", func(c *Config) { c.Process.KVBucket = "a.b" }},
		{"wildcard stream", func(c *Config) { c.Process.StreamPrefix = "ERR*" }},
		{"spaced stream", func(c *Config) { c.Process.StreamPrefix = "MY ERRS" }},
		{"zero operation timeout", func(c *Config) { c.Process.OperationTimeout = 0 }},
		{"zero shutdown timeout", func(c *Config) { c.Process.ShutdownTimeout = 0 }},
		{"negative heartbeat interval", func(c *Config) { c.Process.HeartbeatInterval = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}

	t.Run("log level aliases", func(t *testing.T) {
		for _, lvl := range []string{"debug", "info", "warning", "warn", "error", "critical"} {
			cfg := DefaultConfig()
			cfg.LogLevel = lvl
			require.NoError(t, cfg.Validate(), lvl)
		}
	})
}

func TestConfig_ValidateWithWarnings(t *testing.T) {
	t.Run("no warnings for defaults", func(t *testing.T) {
		log := loopertest.NewTestLogger(t)
		cfg := DefaultConfig()
		cfg.ValidateWithWarnings(log)
		require.Empty(t, log.EntriesAt("WARN"))
	})

	t.Run("pacing disabled", func(t *testing.T) {
		log := loopertest.NewTestLogger(t)
		cfg := DefaultConfig()
		cfg.MinIterationDuration = -1
		cfg.ValidateWithWarnings(log)
		require.Len(t, log.EntriesAt("WARN"), 1)
	})

	t.Run("slow hard stop polling", func(t *testing.T) {
		log := loopertest.NewTestLogger(t)
		cfg := DefaultConfig()
		cfg.HardStopPollInterval = time.Second
		cfg.ValidateWithWarnings(log)
		require.Len(t, log.EntriesAt("WARN"), 1)
	})
}

func TestConfig_YAML(t *testing.T) {
	yamlConfig := `
minIterationDuration: 25ms
longestIterationsCapacity: 8
logLevel: warning
hardStopPollInterval: 5ms
sinkGracePeriod: 100ms
process:
  kvBucket: worker-flags
  streamPrefix: WORKERS
  operationTimeout: 3s
  shutdownTimeout: 1m
  heartbeatInterval: 250ms
`

	cfg, err := ParseConfig([]byte(yamlConfig))
	require.NoError(t, err)

	require.Equal(t, 25*time.Millisecond, cfg.MinIterationDuration)
	require.Equal(t, 8, cfg.LongestIterationsCapacity)
	require.Equal(t, "warning", cfg.LogLevel)
	require.Equal(t, 5*time.Millisecond, cfg.HardStopPollInterval)
	require.Equal(t, 100*time.Millisecond, cfg.SinkGracePeriod)
	require.Equal(t, "worker-flags", cfg.Process.KVBucket)
	require.Equal(t, "WORKERS", cfg.Process.StreamPrefix)
	require.Equal(t, 3*time.Second, cfg.Process.OperationTimeout)
	require.Equal(t, time.Minute, cfg.Process.ShutdownTimeout)
	require.Equal(t, 250*time.Millisecond, cfg.Process.HeartbeatInterval)

	// Round trip through the encoding used for child processes.
	out, err := yaml.Marshal(cfg)
	require.NoError(t, err)

	again, err := ParseConfig(out)
	require.NoError(t, err)
	require.Equal(t, cfg, again)
}

func TestParseConfig_Errors(t *testing.T) {
	_, err := ParseConfig([]byte("minIterationDuration: [1, 2]"))
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = ParseConfig([]byte("logLevel: chatty"))
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "looper.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logLevel: debug\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 5, cfg.LongestIterationsCapacity)

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

func TestTestConfig(t *testing.T) {
	cfg := TestConfig()

	require.NoError(t, cfg.Validate())
	require.Equal(t, time.Millisecond, cfg.MinIterationDuration)
	require.Equal(t, time.Millisecond, cfg.HardStopPollInterval)
}
