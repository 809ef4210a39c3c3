package payments

import (
	"crypto/sha256"
	"encoding/binary"

	"canisdk/core"
)

// Account is an ICRC-1-shaped ledger account: an owning principal plus an
// optional 32-byte subaccount.
type Account struct {
	Owner      core.Principal
	Subaccount [32]byte
}

// Stage distinguishes the two legs of a DoubleStep transfer.
type Stage int

const (
	StageFirst Stage = iota
	StageSecond
)

// TransferKind selects whether a Transfer moves funds in one hop or two,
// via an interim account.
type TransferKind int

const (
	SingleStep TransferKind = iota
	DoubleStep
)

// Operation describes how a Transfer's outcome should affect the caller's
// balance in the embedding canister's own ledger.
type Operation int

const (
	OperationNone Operation = iota
	OperationCreditOnSuccess
	OperationCreditOnError
)

// Transfer is one payment attempt in flight, per spec §3 "Transfer".
type Transfer struct {
	Token      core.Principal
	Caller     core.Principal
	From, To   Account
	Amount     uint64
	Fee        uint64
	Operation  Operation
	Kind       TransferKind
	Stage      Stage
	InterimAcc Account
	CreatedAt  uint64 // nanoseconds since epoch, host time
}

const transferDomainTag = "canisdk-payments-transfer-v1"

// Identity returns the 32-byte hash used as the interim account's
// subaccount and as the recovery list's dedup key. Fee is deliberately
// excluded so that a fee update does not change a transfer's identity and
// the ledger's own deduplication continues to apply across it.
func (t *Transfer) Identity() [32]byte {
	h := sha256.New()
	h.Write([]byte(transferDomainTag))
	h.Write(t.From.Owner)
	h.Write(t.From.Subaccount[:])
	h.Write(t.To.Owner)
	h.Write(t.To.Subaccount[:])
	var amtBuf [8]byte
	binary.BigEndian.PutUint64(amtBuf[:], t.Amount)
	h.Write(amtBuf[:])
	h.Write(t.Token)
	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], t.CreatedAt)
	h.Write(tsBuf[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// DepositInterimAccount derives the deposit flow's interim account: a
// function of the depositing principal, distinct from a DoubleStep
// transfer's own interim account (which is keyed by transfer identity).
func DepositInterimAccount(this core.Principal, caller core.Principal) Account {
	h := sha256.New()
	h.Write([]byte(transferDomainTag))
	h.Write([]byte("deposit"))
	h.Write(caller)
	var sub [32]byte
	copy(sub[:], h.Sum(nil))
	return Account{Owner: this, Subaccount: sub}
}

// TransferInterimAccount derives a DoubleStep transfer's interim account
// from its identity hash.
func TransferInterimAccount(this core.Principal, identity [32]byte) Account {
	h := sha256.New()
	h.Write([]byte(transferDomainTag))
	h.Write([]byte("transfer"))
	h.Write(identity[:])
	var sub [32]byte
	copy(sub[:], h.Sum(nil))
	return Account{Owner: this, Subaccount: sub}
}

func accountsEqual(a, b Account) bool {
	return a.Owner.Equal(b.Owner) && a.Subaccount == b.Subaccount
}

// Validate checks the invariants from spec §3: from must be this canister,
// from != to, neither equals the interim account in a DoubleStep, and the
// amount must cover the fee(s) the chosen kind/stage requires.
func (t *Transfer) Validate(this core.Principal) error {
	if !t.From.Owner.Equal(this) {
		return ErrInvalidTransfer
	}
	if accountsEqual(t.From, t.To) {
		return ErrInvalidTransfer
	}
	if t.Kind == DoubleStep {
		if accountsEqual(t.From, t.InterimAcc) || accountsEqual(t.To, t.InterimAcc) {
			return ErrInvalidTransfer
		}
	}
	min := t.Fee
	if t.Kind == DoubleStep && t.Stage == StageFirst {
		min = 2 * t.Fee
	}
	if t.Amount <= min {
		return ErrInvalidTransfer
	}
	return nil
}
