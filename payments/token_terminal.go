package payments

import (
	"context"
	"sync"

	"canisdk/core"
)

// dedupWindowNanos and recoverySafetyMarginNanos bound recover_all's choice
// between a normal retry (still inside the ledger's dedup window) and the
// old-transfer balance-inspection path, per spec §4.5.
const (
	dedupWindowNanos          = int64(86400) * 1_000_000_000
	recoverySafetyMarginNanos = int64(300) * 1_000_000_000
	unknownTxID               = ^uint64(0)
)

// UpdateLock is a non-blocking, stable-memory-backed mutual exclusion guard
// covering one payment terminal update, per spec §5 "Locking discipline".
// It is a plain boolean cell rather than a sync.Mutex because the real
// lifetime of the guard spans a suspension point (an in-flight ledger
// call), not a single goroutine's critical section.
type UpdateLock struct {
	cell *core.Cell[bool]
}

// NewUpdateLock initialises a brand-new, unlocked UpdateLock.
func NewUpdateLock(sm *core.SubMemory) *UpdateLock {
	return &UpdateLock{cell: core.NewCell[bool](sm, boolCodec(), false)}
}

// OpenUpdateLock reattaches to an UpdateLock previously created by
// NewUpdateLock.
func OpenUpdateLock(sm *core.SubMemory) *UpdateLock {
	return &UpdateLock{cell: core.OpenCell[bool](sm, boolCodec())}
}

func boolCodec() core.Codec[bool] {
	return core.Codec[bool]{
		MaxSize: 1,
		Encode:  func(b bool) []byte { if b { return []byte{1} }; return []byte{0} },
		Decode:  func(b []byte) bool { return len(b) > 0 && b[0] != 0 },
	}
}

// Acquire takes the lock, returning ErrUpdateLocked if it is already held.
func (l *UpdateLock) Acquire() error {
	if l.cell.Get() {
		return ErrUpdateLocked
	}
	if err := l.cell.Set(true); err != nil {
		core.Trap("update_lock: %v", err)
	}
	return nil
}

// Release drops the lock. Safe to call even if not held.
func (l *UpdateLock) Release() {
	if err := l.cell.Set(false); err != nil {
		core.Trap("update_lock: %v", err)
	}
}

// FeeUpdateCallback fires whenever a WrongFee reply causes the terminal to
// adopt a new stored fee, so an embedding canister can mirror the change
// into its own token configuration.
type FeeUpdateCallback func(newFee uint64)

// PaymentTerminal drives typed transfers to a foreign ledger to completion,
// per spec §4.5.
type PaymentTerminal struct {
	this     core.Principal
	ledger   LedgerClient
	balances BalancesCollaborator
	recovery *RecoveryList
	lock     *UpdateLock
	fee      *core.Cell[uint64]

	mu             sync.Mutex // serialises fee-cell and minting-account access against concurrent CLI/debugserver reads
	mintingAccount Account
	onFeeUpdate    FeeUpdateCallback
	nowNanos       func() int64
}

// TerminalDeps bundles every collaborator a PaymentTerminal needs, all of
// them persistent sub-memories or out-of-scope host-facing interfaces.
type TerminalDeps struct {
	This       core.Principal
	Ledger     LedgerClient
	Balances   BalancesCollaborator
	Recovery   *RecoveryList
	Lock       *UpdateLock
	Fee        *core.Cell[uint64]
	NowNanos   func() int64
}

// NewPaymentTerminal constructs a terminal over already-initialised
// persistent collaborators (see NewRecoveryList, NewUpdateLock, core.NewCell
// for the fee cell).
func NewPaymentTerminal(deps TerminalDeps) *PaymentTerminal {
	return &PaymentTerminal{
		this: deps.This, ledger: deps.Ledger, balances: deps.Balances,
		recovery: deps.Recovery, lock: deps.Lock, fee: deps.Fee,
		nowNanos: deps.NowNanos,
	}
}

// OnFeeUpdate registers a callback fired whenever a WrongFee reply updates
// the terminal's stored fee.
func (pt *PaymentTerminal) OnFeeUpdate(cb FeeUpdateCallback) { pt.onFeeUpdate = cb }

func (pt *PaymentTerminal) currentFee() uint64 {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.fee.Get()
}

func (pt *PaymentTerminal) setFee(f uint64) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	if err := pt.fee.Set(f); err != nil {
		core.Trap("token_terminal: set fee: %v", err)
	}
}

// setMintingAccount records the ledger's minting account, as reread whenever
// a WrongFee reply reports an expected fee of 0: that reply means the
// transfer in question is to or from the minting account, not that the
// terminal's regular stored fee should become 0.
func (pt *PaymentTerminal) setMintingAccount(a Account) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.mintingAccount = a
}

// Deposit credits amount-fee to caller once the ledger confirms a transfer
// from caller's deposit-interim account into this canister.
func (pt *PaymentTerminal) Deposit(ctx context.Context, caller core.Principal, amount uint64, nRetries int) (txID uint64, err error) {
	interim := DepositInterimAccount(pt.this, caller)
	t := Transfer{
		Token: nil, Caller: caller,
		From: interim, To: Account{Owner: pt.this},
		Amount: amount, Fee: pt.currentFee(),
		Operation: OperationCreditOnSuccess, Kind: SingleStep,
		CreatedAt: uint64(pt.nowNanos()),
	}
	return pt.Transfer(ctx, &t, nRetries)
}

// DepositAll reads the depositor's interim account balance and deposits
// exactly that amount.
func (pt *PaymentTerminal) DepositAll(ctx context.Context, caller core.Principal, nRetries int) (txID uint64, delta uint64, err error) {
	interim := DepositInterimAccount(pt.this, caller)
	bal, err := pt.ledger.BalanceOf(ctx, interim)
	if err != nil {
		return 0, 0, err
	}
	if bal == 0 {
		return 0, 0, nil
	}
	txID, err = pt.Deposit(ctx, caller, bal, nRetries)
	return txID, bal, err
}

// Withdraw debits caller's balance before attempting the ledger transfer,
// crediting it back on definitive failure (Operation == CreditOnError).
func (pt *PaymentTerminal) Withdraw(ctx context.Context, caller core.Principal, to Account, amount uint64, nRetries int) (txID uint64, err error) {
	if err := pt.balances.Debit(caller, amount); err != nil {
		return 0, err
	}
	fee := pt.currentFee()
	t := Transfer{
		Token: nil, Caller: caller,
		From: Account{Owner: pt.this}, To: to,
		Amount: amount, Fee: fee,
		Operation: OperationCreditOnError, Kind: SingleStep,
		CreatedAt: uint64(pt.nowNanos()),
	}
	return pt.Transfer(ctx, &t, nRetries)
}

// finalizeFailure applies Operation == CreditOnError, since this is the only
// outcome branch where the caller's balance needs restoring.
func (pt *PaymentTerminal) finalizeFailure(t *Transfer) {
	if t.Operation == OperationCreditOnError {
		pt.balances.Credit(t.Caller, t.Amount)
	}
}

func (pt *PaymentTerminal) finalizeSuccess(t *Transfer) {
	if t.Operation == OperationCreditOnSuccess {
		pt.balances.Credit(t.Caller, t.Amount-t.Fee)
	}
}

// Transfer executes the transfer state machine to completion, retrying up
// to nRetries times on indeterminate replies before moving t to the
// recovery list, per spec §4.5.
func (pt *PaymentTerminal) Transfer(ctx context.Context, t *Transfer, nRetries int) (uint64, error) {
	if err := pt.lock.Acquire(); err != nil {
		return 0, err
	}
	defer pt.lock.Release()

	if t.Kind == DoubleStep {
		t.InterimAcc = TransferInterimAccount(pt.this, t.Identity())
	}
	if err := t.Validate(pt.this); err != nil {
		return 0, err
	}

	retriesUsed := 0
	for {
		txID, done, recov, err := pt.attempt(ctx, t, false)
		if err == nil && done {
			return txID, nil
		}
		if err == nil && !done {
			// DoubleStep.First just advanced to Second; continue without
			// consuming retry budget, since nothing failed.
			continue
		}
		if recov {
			pt.recovery.Add(*t)
			return 0, err
		}
		if done {
			// attempt has already applied this definitive failure's outcome.
			return 0, err
		}
		if retriesUsed >= nRetries {
			if te, ok := err.(*TransferError); ok && (te.Kind == LedgerTemporarilyUnavailable || te.Kind == LedgerTokenPanic) {
				pt.recovery.Add(*t)
				return 0, err
			}
			pt.finalizeFailure(t)
			return 0, err
		}
		retriesUsed++
	}
}

// attempt issues one ledger call for t's current stage and classifies the
// reply. done reports whether the transfer has reached a terminal state
// (success, or a failure the caller should not retry); recov reports
// whether the failure must move the transfer to the recovery list rather
// than finalize immediately.
func (pt *PaymentTerminal) attempt(ctx context.Context, t *Transfer, isRecoveryRetry bool) (txID uint64, done bool, recov bool, err error) {
	from, to := t.From, t.To
	if t.Kind == DoubleStep {
		if t.Stage == StageFirst {
			to = t.InterimAcc
		} else {
			from = t.InterimAcc
		}
	}

	id, replyErr := pt.ledger.Transfer(ctx, from, to, t.Amount, t.Fee, t.CreatedAt)
	if replyErr == nil {
		if t.Kind == DoubleStep && t.Stage == StageFirst {
			t.Stage = StageSecond
			return 0, false, false, nil
		}
		pt.finalizeSuccess(t)
		return id, true, false, nil
	}

	switch replyErr.Kind {
	case LedgerWrongFee:
		newFee := replyErr.ExpectedFee
		if newFee == 0 {
			// A 0 expected fee means this transfer is to or from the minting
			// account, not that the terminal's regular fee has dropped to 0.
			acc, merr := pt.ledger.MintingAccount(ctx)
			if merr == nil {
				pt.setMintingAccount(acc)
			}
			t.Fee = newFee
			return 0, false, false, replyErr
		}
		pt.setFee(newFee)
		t.Fee = newFee
		if pt.onFeeUpdate != nil {
			pt.onFeeUpdate(newFee)
		}
		return 0, false, false, replyErr // not done: caller loop retries with the corrected fee, consuming a retry

	case LedgerDuplicate:
		if isRecoveryRetry {
			return replyErr.DuplicateOf, true, false, nil
		}
		return 0, true, false, replyErr

	case LedgerTemporarilyUnavailable, LedgerTokenPanic:
		return 0, false, false, replyErr // maybe-failed: caller loop retries, else recovers

	case LedgerRejected:
		if t.Kind == DoubleStep && t.Stage == StageSecond {
			return 0, false, true, replyErr // interim account holds funds; must recover
		}
		pt.finalizeFailure(t)
		return 0, true, false, replyErr

	default:
		return 0, false, false, replyErr
	}
}

// RecoverResult is one recover_all outcome.
type RecoverResult struct {
	Identity [32]byte
	TxID     uint64
	Err      error
}

// RecoverAll drains the recovery list, attempting each transfer per the
// dedup-window/balance-inspection rules of spec §4.5.
func (pt *PaymentTerminal) RecoverAll(ctx context.Context) []RecoverResult {
	pending := pt.recovery.All()
	results := make([]RecoverResult, 0, len(pending))

	for i := range pending {
		t := pending[i]
		identity := t.Identity()
		res := RecoverResult{Identity: identity}

		now := pt.nowNanos()
		age := now - int64(t.CreatedAt)
		if age < dedupWindowNanos-recoverySafetyMarginNanos {
			txID, done, recov, err := pt.attempt(ctx, &t, true)
			if err == nil && done {
				pt.recovery.Remove(identity)
				res.TxID = txID
			} else if !recov && done {
				pt.recovery.Remove(identity)
				res.Err = err
			} else {
				res.Err = err // still indeterminate; stays on the list
			}
			results = append(results, res)
			continue
		}

		res.Err, res.TxID = pt.recoverOld(ctx, &t, identity)
		results = append(results, res)
	}
	return results
}

// recoverOld implements the "old_tx" path: the dedup window has elapsed, so
// the interim account balance is the sole source of truth.
func (pt *PaymentTerminal) recoverOld(ctx context.Context, t *Transfer, identity [32]byte) (error, uint64) {
	if t.Kind != DoubleStep {
		return ErrTransferTooOld, 0
	}
	bal, err := pt.ledger.BalanceOf(ctx, t.InterimAcc)
	if err != nil {
		return err, 0
	}
	switch t.Stage {
	case StageFirst:
		if bal == 0 {
			pt.recovery.Remove(identity)
			pt.finalizeFailure(t)
			return ErrRecoveryNotFound, 0
		}
		// The first leg landed funds in the interim account: declare success
		// with the sentinel id and proceed to the second leg.
		t.Stage = StageSecond
		pt.recovery.Remove(identity)
		if _, done, recov, _ := pt.attempt(ctx, t, true); !done || recov {
			pt.recovery.Add(*t)
		}
		return nil, unknownTxID
	default: // StageSecond
		if bal == 0 {
			pt.finalizeSuccess(t)
			pt.recovery.Remove(identity)
			return nil, unknownTxID
		}
		t.CreatedAt = uint64(pt.nowNanos())
		pt.recovery.Remove(identity)
		pt.recovery.Add(*t)
		return nil, unknownTxID
	}
}
