// Package common provides shared interfaces and the protocol error taxonomy.
package common

import "errors"

// Authorization errors. Always fatal to the call, never retried.
var (
	// ErrUnauthorizedCaller is returned when an entry point restricted to the
	// privileged caller (or owner) is invoked by anyone else.
	ErrUnauthorizedCaller = errors.New("caller is not authorized")
	// ErrNotRegisteredAdapter is returned when a delivery comes from an
	// address that is not a currently-registered receiver adapter.
	ErrNotRegisteredAdapter = errors.New("caller is not a registered adapter")
	// ErrNotSelf is returned when a self-only configuration entry point is
	// invoked by anything other than the component's own execution conduit.
	ErrNotSelf = errors.New("caller is not self")
)

// Validation errors. Fatal; the caller must resubmit corrected input.
var (
	ErrZeroAddress      = errors.New("address cannot be zero")
	ErrZeroChainID      = errors.New("chain id cannot be zero")
	ErrLengthMismatch   = errors.New("array length mismatch")
	ErrDuplicateAdapter = errors.New("adapter already registered")
	ErrAdapterNotFound  = errors.New("adapter not registered")
	// ErrQuorumExceedsAdapters is returned when a registry mutation would
	// leave the quorum threshold above the number of registered adapters.
	ErrQuorumExceedsAdapters = errors.New("quorum threshold exceeds registered adapter count")
	ErrZeroQuorum            = errors.New("quorum threshold cannot be zero")
)

// Replay errors. Fatal by design: rejection is the safety mechanism.
var (
	// ErrDuplicateDelivery is returned when an adapter delivers the same
	// message twice. This is the primary defense against a single
	// compromised bridge inflating its own vote.
	ErrDuplicateDelivery = errors.New("adapter already delivered this message")
	// ErrMessageAlreadyExecuted is returned when scheduling is attempted for
	// a message that already passed to the timelock.
	ErrMessageAlreadyExecuted = errors.New("message already executed")
	// ErrTxAlreadyExecuted is returned when a scheduled transaction is
	// executed a second time.
	ErrTxAlreadyExecuted = errors.New("transaction already executed")
)

// Quorum errors. Retryable once more deliveries arrive or state is corrected.
var (
	// ErrQuorumNotMet is returned when scheduling is attempted before the
	// threshold is reached, or after the registry shrank below what was
	// counted.
	ErrQuorumNotMet = errors.New("quorum not met under current registry")
	// ErrDispatchUnderThreshold is returned by the dispatcher when fewer
	// adapters accepted the message than the caller's success threshold.
	ErrDispatchUnderThreshold = errors.New("successful adapter count below threshold")
)

// Expiration errors. Permanently fatal.
var (
	// ErrMessageExpired is returned when a message's expiration elapsed
	// before scheduling.
	ErrMessageExpired = errors.New("message expired")
	// ErrTxExpired is returned when a scheduled transaction's grace window
	// elapsed before execution.
	ErrTxExpired = errors.New("transaction execution window expired")
)

// Timelock and execution errors.
var (
	// ErrTimelocked is returned when execution is attempted before eta.
	ErrTimelocked = errors.New("transaction is still timelocked")
	// ErrUnknownTransaction is returned when the supplied parameters do not
	// hash to any stored transaction record.
	ErrUnknownTransaction = errors.New("unknown scheduled transaction")
	// ErrExecutionFailed wraps a failure of the embedded call to the target.
	// The transaction is still marked consumed: at-most-once, not
	// at-least-once.
	ErrExecutionFailed = errors.New("target call execution failed")
)

// Storage errors.
var (
	ErrRecordNotFound = errors.New("record not found")
)
