package testing

import (
	"testing"

	"github.com/arloliu/looper/internal/logger"
)

// NewTestLogger creates a logger that writes through t.Logf and records every
// entry for later assertions.
func NewTestLogger(t *testing.T) *logger.TestLogger {
	return logger.NewTest(t)
}
