package looper

import (
	"fmt"
	"io"
	"time"

	"github.com/nats-io/nuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/arloliu/looper/internal/logger"
	"github.com/arloliu/looper/internal/logging"
	"github.com/arloliu/looper/internal/metrics"
)

// LoggingConfig controls ConfigureLogging.
type LoggingConfig struct {
	// Level is one of debug, info, warning, error, critical. Empty means info.
	Level string `yaml:"level"`

	// Folder, when set, must be an existing directory that receives a log file
	// named <FilePrefix>__YYYY_MM_DD_HHMMSS.txt.
	Folder string `yaml:"folder"`

	// FilePrefix is required when Folder is set.
	FilePrefix string `yaml:"filePrefix"`

	// Stdout overrides the console destination. Defaults to os.Stdout.
	Stdout io.Writer `yaml:"-"`

	// Now overrides the clock used for the file name.
	Now func() time.Time `yaml:"-"`
}

// ConfigureLogging installs a process-wide slog default with UTC timestamps
// and returns a Logger bound to it together with a function closing the log file.
//
// Returns ErrLogFolderWithoutPrefix, ErrLogFolderNotFound or a level parse error.
func ConfigureLogging(cfg LoggingConfig) (Logger, func() error, error) {
	l, closeFn, err := logging.Configure(logging.Options{
		Level:      cfg.Level,
		Folder:     cfg.Folder,
		FilePrefix: cfg.FilePrefix,
		Stdout:     cfg.Stdout,
		Now:        cfg.Now,
	})
	if err != nil {
		return nil, nil, err
	}

	return l, closeFn, nil
}

// NewPrometheusMetrics returns a MetricsCollector registering its metrics on reg
// under namespace ("looper" when empty). Collectors are registered on first use.
func NewPrometheusMetrics(reg prometheus.Registerer, namespace string) MetricsCollector {
	return metrics.NewPrometheus(reg, namespace)
}

// NewNopMetrics returns a MetricsCollector that discards everything.
func NewNopMetrics() MetricsCollector {
	return metrics.NewNop()
}

// NewNopLogger returns a Logger that discards everything.
func NewNopLogger() Logger {
	return logger.NewNop()
}

const consoleFatalBanner = "IMPORTANT: This fatal error is being printed to the console before it is logged. " +
	"Confirm it is in the log file before closing the console, and copy the console output if it is not."

// PrintFatalError writes fe with its trace to w ahead of logging it, so the
// error survives a logger that is broken or not yet configured.
//
// callID correlates the console copy with the log entry; empty generates one.
// It returns the call ID used.
func PrintFatalError(w io.Writer, fe *FatalError, callID string) (string, error) {
	if callID == "" {
		callID = nuid.Next()
	}

	detail := fe.Trace
	if detail == "" {
		detail = fe.Error()
	}

	if _, err := fmt.Fprintf(w, "%s\nID of call to print: %s\n%s\n", consoleFatalBanner, callID, detail); err != nil {
		return callID, fmt.Errorf("failed to print fatal error: %w", err)
	}

	return callID, nil
}
