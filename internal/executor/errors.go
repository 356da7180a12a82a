package executor

import "errors"

var (
	// ErrStartupTimeout is returned by a daemon-style adapter when the
	// child never printed its "listening on <url>" readiness line within
	// the configured deadline.
	ErrStartupTimeout = errors.New("executor did not signal readiness in time")

	// ErrUnknownExecutorType is returned by Registry.Get for an
	// unregistered executor_type.
	ErrUnknownExecutorType = errors.New("unknown executor type")
)
