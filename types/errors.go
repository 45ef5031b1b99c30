package types

import "errors"

// Sentinel errors for the looper library.
//
// These errors provide type-safe error checking using errors.Is() and errors.As().
// All components should use these sentinel errors for known error conditions
// and wrap external errors with context using fmt.Errorf("%s: %w", msg, err).

// Controller errors - Public API errors returned by Controller construction and Run.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrSinkRequired is returned when the fatal error sink is nil.
	ErrSinkRequired = errors.New("fatal error sink is required")

	// ErrFlagRequired is returned when a custom flag set omits one of its flags.
	ErrFlagRequired = errors.New("all controller flags are required")

	// ErrAlreadyRunning is returned when Run is called while another Run is in progress.
	ErrAlreadyRunning = errors.New("controller already running")
)

// Worker binding errors - Errors returned by thread and process workers.
var (
	// ErrAlreadyStarted is returned when Start is called on a worker that was started before.
	ErrAlreadyStarted = errors.New("worker already started")

	// ErrNotStarted is returned when Join is called on a worker that was never started.
	ErrNotStarted = errors.New("worker not started")

	// ErrNATSConnectionRequired is returned when a process worker is built without a NATS connection.
	ErrNATSConnectionRequired = errors.New("NATS connection is required")

	// ErrBodyNotRegistered is returned when a process worker names a body that was never registered.
	ErrBodyNotRegistered = errors.New("loop body not registered")

	// ErrBodyAlreadyRegistered is returned when Register is called twice with the same name.
	ErrBodyAlreadyRegistered = errors.New("loop body already registered")
)

// Sink errors - Errors returned by ErrorSink implementations.
var (
	// ErrSinkClosed is returned when Put is called on a closed sink.
	ErrSinkClosed = errors.New("sink closed")

	// ErrEncodeFailed is returned when an item cannot be serialized for a cross-process sink.
	ErrEncodeFailed = errors.New("failed to encode sink item")

	// ErrDecodeFailed is returned when a cross-process sink item cannot be deserialized.
	ErrDecodeFailed = errors.New("failed to decode sink item")

	// ErrLogMessageNotFound is returned when no queued log message matches a search.
	ErrLogMessageNotFound = errors.New("log message not found in queue")
)

// Flag errors - Errors returned by cross-process flag implementations.
var (
	// ErrFlagWriteFailed is returned when a flag cannot be persisted.
	ErrFlagWriteFailed = errors.New("failed to set flag")
)

// Logging errors - Errors returned when configuring logging.
var (
	// ErrLogFolderNotFound is returned when the configured log folder does not exist.
	ErrLogFolderNotFound = errors.New("log folder does not exist")

	// ErrLogFolderWithoutPrefix is returned when a log folder is configured without a file prefix.
	ErrLogFolderWithoutPrefix = errors.New("log folder given without log file prefix")
)

// Checksum errors - Errors returned when validating a CRC32 file head.
var (
	// ErrChecksumMismatch is returned when the CRC32 computed over a file body
	// differs from the checksum stored in its first four bytes.
	ErrChecksumMismatch = errors.New("crc32 checksum validation failed")

	// ErrChecksumUnexpected is returned when the checksum stored at a file head
	// differs from the caller's expected value.
	ErrChecksumUnexpected = errors.New("crc32 checksum at file head does not match expected value")
)

// Port errors - Errors returned by TCP port checks.
var (
	// ErrPortUnavailable is returned when a port stays in use past the timeout.
	ErrPortUnavailable = errors.New("port unavailable")

	// ErrPortNotInUse is returned when nothing listens on a port before the timeout.
	ErrPortNotInUse = errors.New("port not in use")
)

// XML errors - Errors returned by element lookups.
var (
	// ErrNoMatchingXMLElement is returned when no child element has the requested tag.
	ErrNoMatchingXMLElement = errors.New("no matching xml element")

	// ErrMultipleMatchingXMLElements is returned when more than one child element has the requested tag.
	ErrMultipleMatchingXMLElements = errors.New("multiple matching xml elements")
)

// Path errors - Errors returned by resource path resolution.
var (
	// ErrBlankResourceBase is returned when a resource path is resolved against
	// a blank base directory, which would silently mean the working directory.
	ErrBlankResourceBase = errors.New("blank resource base directory")
)
