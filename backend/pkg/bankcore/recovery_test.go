package bankcore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/centralbank/bankcore/backend/pkg/bankcore/models"
	"github.com/centralbank/bankcore/backend/pkg/store"
)

func TestRecoverPendingTransactions(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()
	bank := New(st)
	bank.Recovery.SetAgeOfTransactionsRequiringRecovery(time.Millisecond)

	a := mustCreate(t, ctx, bank)
	b := mustCreate(t, ctx, bank)
	bank.Accounts.Deposit(ctx, a, dec("100"))

	err := bank.Transfers.TransferWithFailPoint(ctx, a, b, dec("50"), FailPending)
	if !errors.Is(err, ErrDB) {
		t.Fatalf("injected failure: got %v, want ErrDB", err)
	}

	time.Sleep(2 * time.Millisecond)

	if err := bank.Recovery.RecoverPendingTransactions(ctx); err != nil {
		t.Fatalf("RecoverPendingTransactions: %v", err)
	}

	balA, _ := bank.Accounts.GetBalance(ctx, a)
	balB, _ := bank.Accounts.GetBalance(ctx, b)
	if !balA.Equal(dec("50")) || !balB.Equal(dec("50")) {
		t.Fatalf("balances = %v, %v; want 50, 50", balA, balB)
	}

	id := latestTxnID(t, ctx, st)
	txn := findTxn(t, ctx, st, id)
	if txn.State != models.StateDone {
		t.Fatalf("txn state = %q, want done", txn.State)
	}

	// Idempotent recovery: sweeping again must not double-apply.
	if err := bank.Recovery.RecoverPendingTransactions(ctx); err != nil {
		t.Fatalf("second RecoverPendingTransactions: %v", err)
	}
	balA2, _ := bank.Accounts.GetBalance(ctx, a)
	balB2, _ := bank.Accounts.GetBalance(ctx, b)
	if !balA2.Equal(balA) || !balB2.Equal(balB) {
		t.Fatalf("second sweep changed balances: %v, %v -> %v, %v", balA, balB, balA2, balB2)
	}
}

func TestRecoverAppliedTransactions(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()
	bank := New(st)
	bank.Recovery.SetAgeOfTransactionsRequiringRecovery(time.Millisecond)

	a := mustCreate(t, ctx, bank)
	b := mustCreate(t, ctx, bank)
	bank.Accounts.Deposit(ctx, a, dec("100"))

	err := bank.Transfers.TransferWithFailPoint(ctx, a, b, dec("50"), FailApplied)
	if !errors.Is(err, ErrDB) {
		t.Fatalf("injected failure: got %v, want ErrDB", err)
	}

	time.Sleep(2 * time.Millisecond)

	if err := bank.Recovery.RecoverAppliedTransactions(ctx); err != nil {
		t.Fatalf("RecoverAppliedTransactions: %v", err)
	}

	balA, _ := bank.Accounts.GetBalance(ctx, a)
	balB, _ := bank.Accounts.GetBalance(ctx, b)
	if !balA.Equal(dec("50")) || !balB.Equal(dec("50")) {
		t.Fatalf("balances = %v, %v; want 50, 50", balA, balB)
	}

	// A subsequent, independent transfer back restores the original split.
	if err := bank.Transfers.Transfer(ctx, b, a, dec("50")); err != nil {
		t.Fatalf("reverse Transfer: %v", err)
	}
	balA, _ = bank.Accounts.GetBalance(ctx, a)
	balB, _ = bank.Accounts.GetBalance(ctx, b)
	if !balA.Equal(dec("100")) || !balB.Equal(dec("0")) {
		t.Fatalf("balances after reverse = %v, %v; want 100, 0", balA, balB)
	}
}

func TestCancelPendingTransactions(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()
	bank := New(st)
	bank.Recovery.SetAgeOfTransactionsRequiringRecovery(time.Millisecond)

	a := mustCreate(t, ctx, bank)
	b := mustCreate(t, ctx, bank)
	bank.Accounts.Deposit(ctx, a, dec("100"))

	err := bank.Transfers.TransferWithFailPoint(ctx, a, b, dec("50"), FailPending)
	if !errors.Is(err, ErrDB) {
		t.Fatalf("injected failure: got %v, want ErrDB", err)
	}

	time.Sleep(2 * time.Millisecond)

	if err := bank.Recovery.CancelPendingTransactions(ctx); err != nil {
		t.Fatalf("CancelPendingTransactions: %v", err)
	}

	balA, _ := bank.Accounts.GetBalance(ctx, a)
	balB, _ := bank.Accounts.GetBalance(ctx, b)
	if !balA.Equal(dec("100")) || !balB.Equal(dec("0")) {
		t.Fatalf("balances = %v, %v; want 100, 0", balA, balB)
	}

	id := latestTxnID(t, ctx, st)
	txn := findTxn(t, ctx, st, id)
	if txn.State != models.StateCanceled {
		t.Fatalf("txn state = %q, want canceled", txn.State)
	}

	// Idempotent: sweeping a second time over an already-canceled txn
	// (now outside the stuck-state filter) must not touch balances again.
	if err := bank.Recovery.CancelPendingTransactions(ctx); err != nil {
		t.Fatalf("second CancelPendingTransactions: %v", err)
	}
	balA2, _ := bank.Accounts.GetBalance(ctx, a)
	balB2, _ := bank.Accounts.GetBalance(ctx, b)
	if !balA2.Equal(balA) || !balB2.Equal(balB) {
		t.Fatalf("second cancel sweep changed balances: %v, %v -> %v, %v", balA, balB, balA2, balB2)
	}
}
