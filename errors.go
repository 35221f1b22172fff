package authority

import (
	"errors"

	"github.com/fedledger/authority/compliance"
	"github.com/fedledger/authority/lifecycle"
	"github.com/fedledger/authority/snapshot"
	"github.com/fedledger/authority/store"
)

// Sentinel errors, re-exported from the subpackages that raise them so
// callers can match with errors.Is against a single surface.
var (
	// Store errors
	ErrNodeNotFound           = store.ErrNodeNotFound
	ErrAlreadyExists          = store.ErrAlreadyExists
	ErrConcurrentModification = store.ErrConcurrentModification
	ErrStoreClosed            = store.ErrClosed
	ErrSnapshotNotFound       = store.ErrSnapshotNotFound

	// Lifecycle errors
	ErrInvalidTransition = lifecycle.ErrInvalidTransition
	ErrGuardFailed       = lifecycle.ErrGuardFailed
	ErrUnknownDocType    = lifecycle.ErrUnknownDocType

	// Compliance errors
	ErrAntiDeficiency    = compliance.ErrAntiDeficiency
	ErrOverDisbursement  = compliance.ErrOverDisbursement
	ErrReductionTooLarge = compliance.ErrReductionTooLarge

	// Snapshot errors
	ErrUnknownReportType = snapshot.ErrUnknownReportType
)

// Sentinel errors for command input validation.
var (
	ErrInvalidInput      = errors.New("authority: invalid input")
	ErrParentRequired    = errors.New("authority: non-appropriation node requires a parent")
	ErrRootHasParent     = errors.New("authority: appropriation node cannot have a parent")
	ErrNodeTerminal      = errors.New("authority: funding node is in a terminal state")
	ErrNonPositiveAmount = errors.New("authority: amount must be positive")
)

// ComplianceError reports a proposed commitment that does not fit within
// the remaining authority of a funding node.
type ComplianceError = compliance.ComplianceError

// TransitionError reports a lifecycle event that is not legal from the
// entity's current state.
type TransitionError = lifecycle.TransitionError

// GuardError reports a domain precondition that was not met, such as a
// missing required reference document.
type GuardError = lifecycle.GuardError

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrNodeNotFound) ||
		errors.Is(err, store.ErrSnapshotNotFound) ||
		errors.Is(err, snapshot.ErrNotFound)
}

// IsCompliance returns true if the error is an anti-deficiency or
// over-disbursement rejection.
func IsCompliance(err error) bool {
	return errors.Is(err, ErrAntiDeficiency) ||
		errors.Is(err, ErrOverDisbursement) ||
		errors.Is(err, ErrReductionTooLarge)
}

// IsInvalidTransition returns true if the requested lifecycle event is not
// legal from the entity's current state.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

// IsGuardFailed returns true if a domain precondition was not met.
func IsGuardFailed(err error) bool {
	return errors.Is(err, ErrGuardFailed)
}

// IsRetryable returns true if the error is temporary and the command can be
// restarted by the caller unchanged. Compliance and transition errors are
// not retryable without changing the command.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}
