// Package payments implements a token payment terminal: a state machine
// that drives single- and two-step asset transfers to a foreign ledger
// canister, tolerant of the host's non-atomic cross-canister call
// semantics, and a recovery protocol for transfers left indeterminate.
package payments

import (
	"errors"
	"fmt"
)

// ErrInvalidTransfer is returned when a Transfer fails its own invariant
// checks before an attempt is ever issued.
var ErrInvalidTransfer = errors.New("payments: invalid transfer")

// ErrRecoveryNotFound is returned by recover_all for a DoubleStep transfer
// past the dedup window whose first leg left nothing in the interim
// account; the transfer is then removed from the recovery list as failed.
var ErrRecoveryNotFound = errors.New("payments: transfer not found in recovery list")

// ErrUpdateLocked is returned when a mutating terminal call races another
// in-flight update on the same terminal instance.
var ErrUpdateLocked = errors.New("payments: terminal is locked by another update")

// ErrTransferTooOld is returned when the dedup window has elapsed for a
// recovery-list entry that isn't a DoubleStep transfer: only a DoubleStep
// transfer's interim account balance can resolve what actually happened to
// the funds, so a stale SingleStep entry can't be recovered this way.
var ErrTransferTooOld = errors.New("payments: recovery entry too old to resolve")

// LedgerReplyKind classifies the foreign ledger's reply to a transfer
// attempt, mirroring the token canister's own error variants.
type LedgerReplyKind int

const (
	LedgerOk LedgerReplyKind = iota
	LedgerWrongFee
	LedgerDuplicate
	LedgerTemporarilyUnavailable
	LedgerTokenPanic
	LedgerRejected
)

// TransferError wraps a failed or indeterminate transfer attempt with the
// classification that drove the terminal's next decision.
type TransferError struct {
	Kind LedgerReplyKind
	// ExpectedFee carries WrongFee's corrected fee, if Kind == LedgerWrongFee.
	ExpectedFee uint64
	// DuplicateOf carries the prior tx id, if Kind == LedgerDuplicate.
	DuplicateOf uint64
	Err         error
}

func (e *TransferError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("payments: transfer failed (%v): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("payments: transfer failed (%v)", e.Kind)
}

func (e *TransferError) Unwrap() error { return e.Err }

func (k LedgerReplyKind) String() string {
	switch k {
	case LedgerOk:
		return "Ok"
	case LedgerWrongFee:
		return "WrongFee"
	case LedgerDuplicate:
		return "Duplicate"
	case LedgerTemporarilyUnavailable:
		return "TemporarilyUnavailable"
	case LedgerTokenPanic:
		return "TokenPanic"
	case LedgerRejected:
		return "Rejected"
	default:
		return "Unknown"
	}
}
