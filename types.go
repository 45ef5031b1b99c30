package looper

import "github.com/arloliu/looper/types"

// Re-export types from the types package.
//
// Internal packages depend on types rather than on the root package, which
// avoids import cycles while users still write looper.FatalError, looper.Logger
// and so on.
type (
	State             = types.State
	Phase             = types.Phase
	FatalError        = types.FatalError
	ErrorSink         = types.ErrorSink
	Flag              = types.Flag
	Flags             = types.Flags
	PerformanceReport = types.PerformanceReport
	PercentUseStats   = types.PercentUseStats
	HardStopReport    = types.HardStopReport
)

// Re-export interfaces from the types package for convenience.
type (
	Drainer          = types.Drainer
	MetricsCollector = types.MetricsCollector
	Logger           = types.Logger
	Hooks            = types.Hooks
)

// Re-export State constants from the types package.
const (
	StateCreated     = types.StateCreated
	StateSettingUp   = types.StateSettingUp
	StateLooping     = types.StateLooping
	StateTearingDown = types.StateTearingDown
	StateStopped     = types.StateStopped
)

// Re-export Phase constants from the types package.
const (
	PhaseSetup     = types.PhaseSetup
	PhaseIteration = types.PhaseIteration
	PhaseTeardown  = types.PhaseTeardown
)
