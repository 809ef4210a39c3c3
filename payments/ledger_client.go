package payments

import (
	"context"

	"canisdk/core"
)

// LedgerClient is the out-of-scope collaborator a real canister build wires
// up to issue an actual icrc1_transfer inter-canister call. Transfer issues
// one attempt and classifies the reply; BalanceOf is used by recover_all's
// old-transfer balance-inspection fallback once a transfer has aged past
// the ledger's deduplication window.
type LedgerClient interface {
	Transfer(ctx context.Context, from, to Account, amount, fee uint64, createdAt uint64) (txID uint64, replyErr *TransferError)
	BalanceOf(ctx context.Context, account Account) (uint64, error)
	// MintingAccount returns the ledger's current minting account, consulted
	// when a WrongFee reply carries an expected fee of zero.
	MintingAccount(ctx context.Context) (Account, error)
}

// BalancesCollaborator is the embedding canister's own ledger of caller
// balances, credited/debited by deposit, withdraw and the Operation field
// of a completed Transfer.
type BalancesCollaborator interface {
	Credit(caller core.Principal, amount uint64)
	Debit(caller core.Principal, amount uint64) error
}
