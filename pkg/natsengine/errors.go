package natsengine

import "errors"

// Error kinds returned by Config validation, Engine.Read and Engine.Write.
// Wrap these with fmt.Errorf("...: %w", ErrX) for context and compare with
// errors.Is.
var (
	// ErrConfigError covers missing mandatory settings, DEAD_LETTER_QUEUE
	// mode, and mutually exclusive/absent nats_url and nats_server_list.
	ErrConfigError = errors.New("nats engine: invalid configuration")

	// ErrConnectError covers unreachable broker or lost connection.
	ErrConnectError = errors.New("nats engine: connect error")

	// ErrArgCount covers an ambiguous insert target: a multi-subject engine
	// with no stream_like_engine_insert_queue session setting.
	ErrArgCount = errors.New("nats engine: ambiguous insert target")

	// ErrBadArguments covers a publish subject that is a wildcard, or that
	// does not match the engine's declared subscription set.
	ErrBadArguments = errors.New("nats engine: bad arguments")

	// ErrQueryNotAllowed covers a direct SELECT while views are attached, or
	// while direct select is disabled in the session.
	ErrQueryNotAllowed = errors.New("nats engine: query not allowed")

	// ErrLogicError covers internal invariant violations.
	ErrLogicError = errors.New("nats engine: internal invariant violated")

	// ErrFormatUnimplemented is returned by a registered but unimplemented
	// row format (see pkg/natsengine/format).
	ErrFormatUnimplemented = errors.New("nats engine: format unimplemented")
)
