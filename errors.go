package looper

import "github.com/arloliu/looper/types"

// Sentinel errors re-exported from the types package.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = types.ErrInvalidConfig

	// ErrSinkRequired is returned when the fatal error sink is nil.
	ErrSinkRequired = types.ErrSinkRequired

	// ErrFlagRequired is returned when WithFlags omits one of the four flags.
	ErrFlagRequired = types.ErrFlagRequired

	// ErrAlreadyRunning is returned when Run is called while another Run is in progress.
	ErrAlreadyRunning = types.ErrAlreadyRunning

	// ErrAlreadyStarted is returned when Start is called twice on a worker.
	ErrAlreadyStarted = types.ErrAlreadyStarted

	// ErrNotStarted is returned when Join is called on a worker that was never started.
	ErrNotStarted = types.ErrNotStarted

	// ErrNATSConnectionRequired is returned when NATS connection is nil.
	ErrNATSConnectionRequired = types.ErrNATSConnectionRequired

	// ErrBodyNotRegistered is returned when a process worker names an unregistered body.
	ErrBodyNotRegistered = types.ErrBodyNotRegistered

	// ErrBodyAlreadyRegistered is returned when Register is called twice with one name.
	ErrBodyAlreadyRegistered = types.ErrBodyAlreadyRegistered
)

// Sink and flag errors.
var (
	// ErrSinkClosed is returned when Put is called on a closed sink.
	ErrSinkClosed = types.ErrSinkClosed

	// ErrEncodeFailed is returned when a cross-process sink item cannot be encoded.
	ErrEncodeFailed = types.ErrEncodeFailed

	// ErrDecodeFailed is returned when a cross-process sink item cannot be decoded.
	ErrDecodeFailed = types.ErrDecodeFailed

	// ErrFlagWriteFailed is returned when a cross-process flag cannot be persisted.
	ErrFlagWriteFailed = types.ErrFlagWriteFailed
)

// Helper package errors.
var (
	ErrChecksumMismatch            = types.ErrChecksumMismatch
	ErrChecksumUnexpected          = types.ErrChecksumUnexpected
	ErrPortUnavailable             = types.ErrPortUnavailable
	ErrPortNotInUse                = types.ErrPortNotInUse
	ErrNoMatchingXMLElement        = types.ErrNoMatchingXMLElement
	ErrMultipleMatchingXMLElements = types.ErrMultipleMatchingXMLElements
	ErrBlankResourceBase           = types.ErrBlankResourceBase
)

// Logging errors.
var (
	ErrLogFolderNotFound      = types.ErrLogFolderNotFound
	ErrLogFolderWithoutPrefix = types.ErrLogFolderWithoutPrefix
)
