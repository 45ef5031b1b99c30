package sink

import (
	"fmt"
	"strings"
	"time"

	"github.com/arloliu/looper/types"
)

const (
	// DefaultPollWindow bounds IsEventuallyEmpty and IsEventuallyNotEmpty.
	DefaultPollWindow = 50 * time.Millisecond

	// DefaultSafeGetTimeout bounds SafeGet.
	DefaultSafeGetTimeout = 20 * time.Millisecond

	pollInterval = time.Millisecond
)

// IsEventuallyEmpty polls q until it reports empty or window elapses.
// A non-positive window uses DefaultPollWindow.
func IsEventuallyEmpty[T any](q types.Queue[T], window time.Duration) bool {
	return pollUntil(window, q.IsEmpty)
}

// IsEventuallyNotEmpty polls q until it reports an item or window elapses.
// A non-positive window uses DefaultPollWindow.
func IsEventuallyNotEmpty[T any](q types.Queue[T], window time.Duration) bool {
	return pollUntil(window, func() bool { return !q.IsEmpty() })
}

// SafeGet polls TryGet for up to timeout. ok is false when nothing arrived.
// A non-positive timeout uses DefaultSafeGetTimeout.
func SafeGet[T any](q types.Queue[T], timeout time.Duration) (item T, ok bool, err error) {
	if timeout <= 0 {
		timeout = DefaultSafeGetTimeout
	}

	deadline := time.Now().Add(timeout)
	for {
		item, ok, err = q.TryGet()
		if ok || err != nil {
			return item, ok, err
		}
		if time.Now().After(deadline) {
			return item, false, nil
		}
		time.Sleep(pollInterval)
	}
}

// Drain removes every item currently available from q, oldest first.
func Drain[T any](q types.Queue[T]) ([]T, error) {
	var out []T
	for {
		item, ok, err := q.TryGet()
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, item)
	}
}

// LogMessage is a log record passed to the owner through a queue.
type LogMessage struct {
	CommunicationType string `json:"communication_type"`
	Level             int    `json:"log_level"`
	Message           any    `json:"message"`
}

// CommunicationTypeLog marks LogMessage values.
const CommunicationTypeLog = "log"

// PutLogMessage puts a LogMessage into q when level is at least threshold.
// Levels follow the slog numbering, so slog.LevelInfo etc. can be passed as int.
func PutLogMessage(q types.Queue[LogMessage], level int, message any, threshold int) error {
	if level < threshold {
		return nil
	}

	return q.Put(LogMessage{CommunicationType: CommunicationTypeLog, Level: level, Message: message})
}

// FindLogMessage consumes log messages from q until one matches expected and
// returns its message.
//
// A string expectation matches a string message containing it. A map
// expectation matches a map message holding all of its keys. Messages that do
// not match are consumed and discarded.
func FindLogMessage(q types.Queue[LogMessage], expected any, window time.Duration) (any, error) {
	for IsEventuallyNotEmpty(q, window) {
		item, ok, err := q.TryGet()
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if matchLogMessage(expected, item.Message) {
			return item.Message, nil
		}
	}

	return nil, fmt.Errorf("%w: %v", types.ErrLogMessageNotFound, expected)
}

func matchLogMessage(expected, actual any) bool {
	switch want := expected.(type) {
	case string:
		got, ok := actual.(string)
		return ok && strings.Contains(got, want)
	case map[string]any:
		got, ok := actual.(map[string]any)
		if !ok {
			return false
		}
		for k := range want {
			if _, found := got[k]; !found {
				return false
			}
		}

		return true
	default:
		return false
	}
}

func pollUntil(window time.Duration, cond func() bool) bool {
	if window <= 0 {
		window = DefaultPollWindow
	}

	deadline := time.Now().Add(window)
	for {
		if cond() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(pollInterval)
	}
}
