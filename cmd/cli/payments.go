package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"canisdk/core"
	"canisdk/payments"
)

// loopbackLedger is a trivial LedgerClient that always succeeds immediately,
// standing in for a real icrc1_transfer inter-canister call so the payments
// subcommands have something to drive without a host.
type loopbackLedger struct {
	mu     sync.Mutex
	nextTx uint64
}

func (l *loopbackLedger) Transfer(ctx context.Context, from, to payments.Account, amount, fee uint64, createdAt uint64) (uint64, *payments.TransferError) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextTx++
	return l.nextTx, nil
}

func (l *loopbackLedger) BalanceOf(ctx context.Context, account payments.Account) (uint64, error) {
	return 0, nil
}

func (l *loopbackLedger) MintingAccount(ctx context.Context) (payments.Account, error) {
	return payments.Account{}, nil
}

// cliBalances is an in-memory BalancesCollaborator for the CLI's own demo
// ledger of caller balances, separate from the foreign ledger above.
type cliBalances struct {
	mu sync.Mutex
	m  map[string]uint64
}

func newCliBalances() *cliBalances { return &cliBalances{m: make(map[string]uint64)} }

func (b *cliBalances) Credit(caller core.Principal, amount uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.m[string(caller)] += amount
}

func (b *cliBalances) Debit(caller core.Principal, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.m[string(caller)] < amount {
		return fmt.Errorf("insufficient balance for %q", caller)
	}
	b.m[string(caller)] -= amount
	return nil
}

var (
	terminal  *payments.PaymentTerminal
	balances  *cliBalances
	termOnce  sync.Once
)

func paymentsInit(_ *cobra.Command, _ []string) error {
	termOnce.Do(func() {
		a := appStore()
		recovery := payments.NewRecoveryList(a.SubMemory(smPaymentsRecovery))
		lock := payments.NewUpdateLock(a.SubMemory(smPaymentsLock))
		fee := core.NewCell[uint64](a.SubMemory(smPaymentsFee), core.FixedUint64Codec(), 10)
		balances = newCliBalances()
		terminal = payments.NewPaymentTerminal(payments.TerminalDeps{
			This:     core.Principal("canisdk-demo"),
			Ledger:   &loopbackLedger{},
			Balances: balances,
			Recovery: recovery,
			Lock:     lock,
			Fee:      fee,
			NowNanos: func() int64 { return time.Now().UnixNano() },
		})
	})
	return nil
}

var PaymentsCmd = &cobra.Command{
	Use:               "payments",
	Short:             "Drive deposits, withdrawals and recovery against a loopback ledger",
	PersistentPreRunE: paymentsInit,
}

func init() {
	depositCmd := &cobra.Command{
		Use:   "deposit <caller> <amount>",
		Short: "Deposit amount from caller's interim account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var amount uint64
			if _, err := fmt.Sscanf(args[1], "%d", &amount); err != nil {
				return fmt.Errorf("invalid amount %q", args[1])
			}
			txID, err := terminal.Deposit(context.Background(), core.Principal(args[0]), amount, 2)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deposited, tx=%d\n", txID)
			return nil
		},
	}
	PaymentsCmd.AddCommand(depositCmd)

	withdrawCmd := &cobra.Command{
		Use:   "withdraw <caller> <to> <amount>",
		Short: "Withdraw amount to an external account",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var amount uint64
			if _, err := fmt.Sscanf(args[2], "%d", &amount); err != nil {
				return fmt.Errorf("invalid amount %q", args[2])
			}
			to := payments.Account{Owner: core.Principal(args[1])}
			txID, err := terminal.Withdraw(context.Background(), core.Principal(args[0]), to, amount, 2)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "withdrawn, tx=%d\n", txID)
			return nil
		},
	}
	PaymentsCmd.AddCommand(withdrawCmd)

	PaymentsCmd.AddCommand(&cobra.Command{
		Use:   "recover",
		Short: "Drain the recovery list",
		RunE: func(cmd *cobra.Command, _ []string) error {
			results := terminal.RecoverAll(context.Background())
			for _, r := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "identity=%x tx=%d err=%v\n", r.Identity, r.TxID, r.Err)
			}
			return nil
		},
	})

	PaymentsCmd.AddCommand(&cobra.Command{
		Use:   "balance <caller>",
		Short: "Show a caller's demo balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "%d\n", balances.m[args[0]])
			return nil
		},
	})
}
