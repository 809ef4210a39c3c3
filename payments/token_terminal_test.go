package payments

import (
	"context"
	"errors"
	"testing"

	"canisdk/core"
)

// scriptedLedger replays one *TransferError (or nil for success) per call to
// Transfer, in order, and hands back canned balances/minting account.
type scriptedLedger struct {
	replies     []*TransferError
	txIDs       []uint64
	calls       int
	balances    map[string]uint64
	minting     Account
	mintingErr  error
}

func acct(owner byte, sub byte) Account {
	var s [32]byte
	s[0] = sub
	return Account{Owner: core.Principal{owner}, Subaccount: s}
}

func accountKey(a Account) string {
	return string(a.Owner) + string(a.Subaccount[:])
}

func (l *scriptedLedger) Transfer(ctx context.Context, from, to Account, amount, fee uint64, createdAt uint64) (uint64, *TransferError) {
	i := l.calls
	l.calls++
	var reply *TransferError
	if i < len(l.replies) {
		reply = l.replies[i]
	}
	var txID uint64
	if i < len(l.txIDs) {
		txID = l.txIDs[i]
	}
	return txID, reply
}

func (l *scriptedLedger) BalanceOf(ctx context.Context, a Account) (uint64, error) {
	return l.balances[accountKey(a)], nil
}

func (l *scriptedLedger) MintingAccount(ctx context.Context) (Account, error) {
	return l.minting, l.mintingErr
}

type fakeBalances struct {
	byPrincipal map[string]uint64
	debitErr    error
}

func newFakeBalances() *fakeBalances { return &fakeBalances{byPrincipal: map[string]uint64{}} }

func (b *fakeBalances) Credit(caller core.Principal, amount uint64) {
	b.byPrincipal[string(caller)] += amount
}

func (b *fakeBalances) Debit(caller core.Principal, amount uint64) error {
	if b.debitErr != nil {
		return b.debitErr
	}
	if b.byPrincipal[string(caller)] < amount {
		return errors.New("insufficient balance")
	}
	b.byPrincipal[string(caller)] -= amount
	return nil
}

func newTestTerminal(t *testing.T, ledger *scriptedLedger, balances *fakeBalances) *PaymentTerminal {
	t.Helper()
	rs := core.NewHeapRawStore()
	a := core.NewPageAllocator(rs, 256)
	recovery := NewRecoveryList(a.SubMemory(0))
	lock := NewUpdateLock(a.SubMemory(1))
	feeCell := core.NewCell[uint64](a.SubMemory(2), core.FixedUint64Codec(), 10)
	clock := int64(1_000_000_000_000)
	return NewPaymentTerminal(TerminalDeps{
		This:     core.Principal{0xca},
		Ledger:   ledger,
		Balances: balances,
		Recovery: recovery,
		Lock:     lock,
		Fee:      feeCell,
		NowNanos: func() int64 { return clock },
	})
}

func TestDepositCreditsCallerOnSuccess(t *testing.T) {
	ledger := &scriptedLedger{replies: []*TransferError{nil}, txIDs: []uint64{7}}
	balances := newFakeBalances()
	pt := newTestTerminal(t, ledger, balances)

	caller := core.Principal{1}
	txID, err := pt.Deposit(context.Background(), caller, 1000, 2)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if txID != 7 {
		t.Fatalf("txID = %d; want 7", txID)
	}
	if got := balances.byPrincipal[string(caller)]; got != 1000-10 {
		t.Fatalf("credited balance = %d; want %d", got, 1000-10)
	}
}

func TestWithdrawRejectedCreditsCallerBack(t *testing.T) {
	ledger := &scriptedLedger{replies: []*TransferError{{Kind: LedgerRejected}}}
	balances := newFakeBalances()
	caller := core.Principal{2}
	balances.byPrincipal[string(caller)] = 5000
	pt := newTestTerminal(t, ledger, balances)

	_, err := pt.Withdraw(context.Background(), caller, acct(9, 0), 1000, 0)
	if err == nil {
		t.Fatalf("expected error from a rejected withdraw")
	}
	if got := balances.byPrincipal[string(caller)]; got != 5000 {
		t.Fatalf("balance after credit-back = %d; want 5000 (debited then restored)", got)
	}
}

func TestWrongFeeUpdatesStoredFeeAndRetries(t *testing.T) {
	ledger := &scriptedLedger{
		replies: []*TransferError{{Kind: LedgerWrongFee, ExpectedFee: 25}, nil},
		txIDs:   []uint64{0, 42},
	}
	balances := newFakeBalances()
	pt := newTestTerminal(t, ledger, balances)

	var sawFee uint64
	pt.OnFeeUpdate(func(newFee uint64) { sawFee = newFee })

	caller := core.Principal{3}
	txID, err := pt.Deposit(context.Background(), caller, 1000, 1)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if txID != 42 {
		t.Fatalf("txID = %d; want 42", txID)
	}
	if sawFee != 25 {
		t.Fatalf("fee callback saw %d; want 25", sawFee)
	}
	if pt.currentFee() != 25 {
		t.Fatalf("stored fee = %d; want 25", pt.currentFee())
	}
	if got := balances.byPrincipal[string(caller)]; got != 1000-25 {
		t.Fatalf("credited balance = %d; want %d (should use updated fee)", got, 1000-25)
	}
}

func TestDuplicateDuringRecoveryIsTreatedAsSuccess(t *testing.T) {
	ledger := &scriptedLedger{
		replies: []*TransferError{{Kind: LedgerTemporarilyUnavailable}, {Kind: LedgerDuplicate, DuplicateOf: 555}},
	}
	balances := newFakeBalances()
	pt := newTestTerminal(t, ledger, balances)

	caller := core.Principal{4}
	_, err := pt.Deposit(context.Background(), caller, 1000, 0) // 0 retries -> moves straight to recovery
	if err == nil {
		t.Fatalf("expected the first attempt to fail and move to recovery")
	}

	results := pt.RecoverAll(context.Background())
	if len(results) != 1 {
		t.Fatalf("recover_all returned %d results; want 1", len(results))
	}
	if results[0].Err != nil {
		t.Fatalf("recover result err = %v; want nil (duplicate treated as success)", results[0].Err)
	}
	if results[0].TxID != 555 {
		t.Fatalf("recover result txID = %d; want 555", results[0].TxID)
	}
}

func TestMaybeFailedExhaustsRetriesThenMovesToRecovery(t *testing.T) {
	ledger := &scriptedLedger{
		replies: []*TransferError{
			{Kind: LedgerTemporarilyUnavailable},
			{Kind: LedgerTemporarilyUnavailable},
			{Kind: LedgerTemporarilyUnavailable},
		},
	}
	balances := newFakeBalances()
	pt := newTestTerminal(t, ledger, balances)

	caller := core.Principal{5}
	_, err := pt.Deposit(context.Background(), caller, 1000, 2)
	if err == nil {
		t.Fatalf("expected failure after exhausting retries")
	}
	if ledger.calls != 3 {
		t.Fatalf("ledger.Transfer called %d times; want 3 (1 initial + 2 retries)", ledger.calls)
	}
}

func TestWrongFeeZeroInstallsMintingAccountWithoutZeroingStoredFee(t *testing.T) {
	minting := acct(0xfe, 0)
	ledger := &scriptedLedger{
		replies: []*TransferError{{Kind: LedgerWrongFee, ExpectedFee: 0}, nil},
		txIDs:   []uint64{0, 99},
		minting: minting,
	}
	balances := newFakeBalances()
	pt := newTestTerminal(t, ledger, balances)

	caller := core.Principal{7}
	txID, err := pt.Deposit(context.Background(), caller, 1000, 1)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if txID != 99 {
		t.Fatalf("txID = %d; want 99", txID)
	}
	if pt.currentFee() != 10 {
		t.Fatalf("stored fee = %d; want unchanged 10 (a 0 expected fee is minting-account-specific)", pt.currentFee())
	}
	if !accountsEqual(pt.mintingAccount, minting) {
		t.Fatalf("mintingAccount = %+v; want %+v", pt.mintingAccount, minting)
	}
	if got := balances.byPrincipal[string(caller)]; got != 1000 {
		t.Fatalf("credited balance = %d; want 1000 (fee-exempt transfer)", got)
	}
}

func TestRecoverOldSecondStageZeroInterimCreditsCaller(t *testing.T) {
	ledger := &scriptedLedger{balances: map[string]uint64{}}
	balances := newFakeBalances()
	pt := newTestTerminal(t, ledger, balances)

	caller := core.Principal{8}
	interim := acct(0xaa, 1)
	transfer := &Transfer{
		Caller: caller, From: Account{Owner: core.Principal{0xca}}, To: acct(9, 2),
		Amount: 1000, Fee: 10, Operation: OperationCreditOnSuccess, Kind: DoubleStep,
		Stage: StageSecond, InterimAcc: interim, CreatedAt: 1,
	}
	identity := transfer.Identity()
	pt.recovery.Add(*transfer)

	err, txID := pt.recoverOld(context.Background(), transfer, identity)
	if err != nil {
		t.Fatalf("recoverOld: %v", err)
	}
	if txID != unknownTxID {
		t.Fatalf("txID = %d; want the unknown-tx sentinel", txID)
	}
	if got := balances.byPrincipal[string(caller)]; got != 1000-10 {
		t.Fatalf("credited balance = %d; want %d (second leg's interim emptied out, so it succeeded)", got, 1000-10)
	}
	if pt.recovery.Len() != 0 {
		t.Fatalf("recovery list len = %d; want 0 (transfer resolved)", pt.recovery.Len())
	}
}

func TestRecoverOldFirstStageNonZeroProceedsToSecondLeg(t *testing.T) {
	interim := acct(0xaa, 2)
	to := acct(9, 3)
	ledger := &scriptedLedger{
		balances: map[string]uint64{accountKey(interim): 990},
		replies:  []*TransferError{nil},
		txIDs:    []uint64{123},
	}
	balances := newFakeBalances()
	pt := newTestTerminal(t, ledger, balances)

	transfer := &Transfer{
		From: Account{Owner: core.Principal{0xca}}, To: to,
		Amount: 1000, Fee: 10, Operation: OperationNone, Kind: DoubleStep,
		Stage: StageFirst, InterimAcc: interim, CreatedAt: 1,
	}
	identity := transfer.Identity()
	pt.recovery.Add(*transfer)

	err, txID := pt.recoverOld(context.Background(), transfer, identity)
	if err != nil {
		t.Fatalf("recoverOld: %v", err)
	}
	if txID != unknownTxID {
		t.Fatalf("txID = %d; want the unknown-tx sentinel", txID)
	}
	if transfer.Stage != StageSecond {
		t.Fatalf("stage = %v; want StageSecond (first leg succeeded, second leg should have been attempted)", transfer.Stage)
	}
	if ledger.calls != 1 {
		t.Fatalf("ledger.Transfer called %d times; want 1 (the re-attempted second leg)", ledger.calls)
	}
	if pt.recovery.Len() != 0 {
		t.Fatalf("recovery list len = %d; want 0 (second leg succeeded)", pt.recovery.Len())
	}
}

func TestRecoverOldRejectsSingleStepTransfer(t *testing.T) {
	ledger := &scriptedLedger{}
	balances := newFakeBalances()
	pt := newTestTerminal(t, ledger, balances)

	transfer := &Transfer{
		From: Account{Owner: core.Principal{0xca}}, To: acct(9, 4),
		Amount: 1000, Fee: 10, Kind: SingleStep, CreatedAt: 1,
	}
	identity := transfer.Identity()

	err, _ := pt.recoverOld(context.Background(), transfer, identity)
	if err != ErrTransferTooOld {
		t.Fatalf("err = %v; want ErrTransferTooOld", err)
	}
	if ledger.calls != 0 {
		t.Fatalf("ledger should not have been consulted for a non-DoubleStep transfer")
	}
}

func TestDoubleStepSecondRejectedMovesToRecovery(t *testing.T) {
	ledger := &scriptedLedger{
		replies: []*TransferError{nil, {Kind: LedgerRejected}},
	}
	balances := newFakeBalances()
	pt := newTestTerminal(t, ledger, balances)

	caller := core.Principal{6}
	to := acct(9, 1)
	transfer := &Transfer{
		Caller: caller, From: Account{Owner: core.Principal{0xca}}, To: to,
		Amount: 1000, Fee: 10, Operation: OperationNone, Kind: DoubleStep,
		CreatedAt: 1,
	}
	_, err := pt.Transfer(context.Background(), transfer, 0)
	if err == nil {
		t.Fatalf("expected an error from the rejected second leg")
	}
	if pt.recovery.Len() != 1 {
		t.Fatalf("recovery list len = %d; want 1 (interim account holds funds)", pt.recovery.Len())
	}
}
