package looper

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arloliu/looper/internal/logging"
)

// ProcessConfig controls the NATS resources used by process workers.
type ProcessConfig struct {
	// KVBucket is the NATS KV bucket holding the stop, soft-stop, startup and
	// teardown flags of every process worker.
	KVBucket string `yaml:"kvBucket"`

	// StreamPrefix names the JetStream work-queue stream carrying fatal errors.
	// Must be a valid stream name (no dots, spaces or wildcards).
	StreamPrefix string `yaml:"streamPrefix"`

	// OperationTimeout bounds each KV and JetStream call.
	OperationTimeout time.Duration `yaml:"operationTimeout"`

	// ShutdownTimeout is how long Terminate waits after SIGTERM before killing the child.
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`

	// HeartbeatInterval is how often the child publishes its liveness.
	// IsResponsive tolerates three missed heartbeats.
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval"`
}

// Config is the configuration for a Controller and the workers built on it.
//
// All duration fields accept standard Go duration strings like "10ms", "5s".
type Config struct {
	// MinIterationDuration is the floor on wall-clock time per iteration.
	// Shorter iterations sleep out the remainder. A negative value disables pacing.
	MinIterationDuration time.Duration `yaml:"minIterationDuration"`

	// LongestIterationsCapacity is how many of the longest iteration durations
	// the performance tracker keeps.
	LongestIterationsCapacity int `yaml:"longestIterationsCapacity"`

	// LogLevel is the threshold of the default logger (debug, info, warning,
	// error, critical). Ignored when WithLogger is used.
	LogLevel string `yaml:"logLevel"`

	// HardStopPollInterval is how often HardStop checks for teardown completion.
	HardStopPollInterval time.Duration `yaml:"hardStopPollInterval"`

	// SinkGracePeriod is how long InvokeAndCheck waits for an eventually
	// consistent sink to show an item.
	SinkGracePeriod time.Duration `yaml:"sinkGracePeriod"`

	// Process controls process workers. Unused by goroutine-backed controllers.
	Process ProcessConfig `yaml:"process"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MinIterationDuration:      10 * time.Millisecond,
		LongestIterationsCapacity: 5,
		LogLevel:                  "info",
		HardStopPollInterval:      10 * time.Millisecond,
		SinkGracePeriod:           50 * time.Millisecond,
		Process: ProcessConfig{
			KVBucket:          "looper-flags",
			StreamPrefix:      "LOOPER",
			OperationTimeout:  5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			HeartbeatInterval: time.Second,
		},
	}
}

// SetDefaults fills in missing configuration values with defaults.
//
// Parameters:
//   - cfg: Config to apply defaults to (modified in place)
func SetDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.MinIterationDuration == 0 {
		cfg.MinIterationDuration = defaults.MinIterationDuration
	}
	if cfg.LongestIterationsCapacity == 0 {
		cfg.LongestIterationsCapacity = defaults.LongestIterationsCapacity
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaults.LogLevel
	}
	if cfg.HardStopPollInterval == 0 {
		cfg.HardStopPollInterval = defaults.HardStopPollInterval
	}
	if cfg.SinkGracePeriod == 0 {
		cfg.SinkGracePeriod = defaults.SinkGracePeriod
	}
	if cfg.Process.KVBucket == "" {
		cfg.Process.KVBucket = defaults.Process.KVBucket
	}
	if cfg.Process.StreamPrefix == "" {
		cfg.Process.StreamPrefix = defaults.Process.StreamPrefix
	}
	if cfg.Process.OperationTimeout == 0 {
		cfg.Process.OperationTimeout = defaults.Process.OperationTimeout
	}
	if cfg.Process.ShutdownTimeout == 0 {
		cfg.Process.ShutdownTimeout = defaults.Process.ShutdownTimeout
	}
	if cfg.Process.HeartbeatInterval == 0 {
		cfg.Process.HeartbeatInterval = defaults.Process.HeartbeatInterval
	}
}

// Validate checks configuration constraints and returns error for invalid values.
//
// Rules:
//   - LongestIterationsCapacity > 0
//   - HardStopPollInterval > 0
//   - SinkGracePeriod >= 0
//   - LogLevel is a known level name
//   - Process.KVBucket and Process.StreamPrefix are non-empty and contain no
//     dots, spaces or wildcards
//   - Process timeouts and HeartbeatInterval > 0
func (cfg *Config) Validate() error {
	if cfg.LongestIterationsCapacity <= 0 {
		return fmt.Errorf("LongestIterationsCapacity must be > 0, got %d", cfg.LongestIterationsCapacity)
	}
	if cfg.HardStopPollInterval <= 0 {
		return fmt.Errorf("HardStopPollInterval must be > 0, got %v", cfg.HardStopPollInterval)
	}
	if cfg.SinkGracePeriod < 0 {
		return fmt.Errorf("SinkGracePeriod must be >= 0, got %v", cfg.SinkGracePeriod)
	}
	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("LogLevel: %w", err)
	}
	if err := validateName("Process.KVBucket", cfg.Process.KVBucket); err != nil {
		return err
	}
	if err := validateName("Process.StreamPrefix", cfg.Process.StreamPrefix); err != nil {
		return err
	}
	if cfg.Process.OperationTimeout <= 0 {
		return fmt.Errorf("Process.OperationTimeout must be > 0, got %v", cfg.Process.OperationTimeout)
	}
	if cfg.Process.ShutdownTimeout <= 0 {
		return fmt.Errorf("Process.ShutdownTimeout must be > 0, got %v", cfg.Process.ShutdownTimeout)
	}
	if cfg.Process.HeartbeatInterval <= 0 {
		return fmt.Errorf("Process.HeartbeatInterval must be > 0, got %v", cfg.Process.HeartbeatInterval)
	}

	return nil
}

func validateName(field, name string) error {
	if name == "" {
		return fmt.Errorf("%s must not be empty", field)
	}
	if strings.ContainsAny(name, ". *>\t\n") {
		return fmt.Errorf("%s %q must not contain dots, spaces or wildcards", field, name)
	}

	return nil
}

// ValidateWithWarnings logs warnings for values that are valid but unusual.
//
// Parameters:
//   - logger: Logger instance for warning output
func (cfg *Config) ValidateWithWarnings(logger Logger) {
	if cfg.MinIterationDuration < 0 {
		logger.Warn(
			"iteration pacing disabled, an idle loop will spin",
			"minIterationDuration", cfg.MinIterationDuration,
		)
	}

	if cfg.MinIterationDuration > 0 && cfg.HardStopPollInterval > cfg.MinIterationDuration*10 {
		logger.Warn(
			"HardStopPollInterval is much longer than MinIterationDuration, HardStop will lag",
			"hardStopPollInterval", cfg.HardStopPollInterval,
			"minIterationDuration", cfg.MinIterationDuration,
		)
	}
}

// LoadConfig reads a YAML file, applies defaults and validates the result.
//
// Example file:
//
//	minIterationDuration: 25ms
//	logLevel: debug
//	process:
//	  kvBucket: my-flags
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is supplied by the caller
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	return ParseConfig(data)
}

// ParseConfig decodes YAML, applies defaults and validates the result.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	SetDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return cfg, nil
}

// TestConfig returns a configuration optimized for fast test execution.
//
// Example:
//
//	cfg := looper.TestConfig()
//	ctrl, err := looper.NewController(body, sink, &cfg)
func TestConfig() Config {
	cfg := DefaultConfig()

	cfg.MinIterationDuration = time.Millisecond
	cfg.HardStopPollInterval = time.Millisecond
	cfg.LogLevel = "debug"
	cfg.Process.OperationTimeout = 2 * time.Second
	cfg.Process.ShutdownTimeout = 2 * time.Second
	cfg.Process.HeartbeatInterval = 100 * time.Millisecond

	return cfg
}
