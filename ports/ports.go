// Package ports checks whether TCP ports are accepting connections.
package ports

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/arloliu/looper/types"
)

// DefaultHost is the host checked when WithHost is not given.
const DefaultHost = "127.0.0.1"

const (
	defaultDialTimeout  = 100 * time.Millisecond
	defaultPollInterval = 50 * time.Millisecond
)

// IsPortInUse reports whether something accepts TCP connections on host:port.
func IsPortInUse(ctx context.Context, host string, port int) bool {
	dialer := net.Dialer{Timeout: defaultDialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = conn.Close()

	return true
}

// Option configures ConfirmAvailable and ConfirmInUse.
type Option func(*options)

type options struct {
	host         string
	timeout      time.Duration
	pollInterval time.Duration
	check        func(ctx context.Context, host string, port int) bool
}

// WithHost sets the host to check (default 127.0.0.1).
func WithHost(host string) Option {
	return func(o *options) {
		o.host = host
	}
}

// WithTimeout sets how long to keep checking. Zero checks exactly once.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithPollInterval sets the delay between checks.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		o.pollInterval = d
	}
}

func applyOptions(opts []Option) options {
	o := options{host: DefaultHost, pollInterval: defaultPollInterval, check: IsPortInUse}
	for _, opt := range opts {
		opt(&o)
	}

	return o
}

// ConfirmAvailable returns nil as soon as nothing listens on the port, or
// types.ErrPortUnavailable once the timeout passed.
func ConfirmAvailable(ctx context.Context, port int, opts ...Option) error {
	o := applyOptions(opts)
	if waitFor(ctx, o, port, false) {
		return nil
	}

	return fmt.Errorf("%w: %s:%d was still unavailable even after waiting %v",
		types.ErrPortUnavailable, o.host, port, o.timeout)
}

// ConfirmInUse returns nil as soon as something listens on the port, or
// types.ErrPortNotInUse once the timeout passed.
func ConfirmInUse(ctx context.Context, port int, opts ...Option) error {
	o := applyOptions(opts)
	if waitFor(ctx, o, port, true) {
		return nil
	}

	return fmt.Errorf("%w: %s:%d was still not in use even after waiting %v",
		types.ErrPortNotInUse, o.host, port, o.timeout)
}

// waitFor polls the port check until it reports inUse, the timeout passes or ctx ends.
func waitFor(ctx context.Context, o options, port int, inUse bool) bool {
	deadline := time.Now().Add(o.timeout)
	for {
		if o.check(ctx, o.host, port) == inUse {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(o.pollInterval):
		}
	}
}
