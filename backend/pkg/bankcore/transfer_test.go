package bankcore

import (
	"context"
	"errors"
	"testing"

	"github.com/centralbank/bankcore/backend/pkg/bankcore/models"
	"github.com/centralbank/bankcore/backend/pkg/store"
)

func mustCreate(t *testing.T, ctx context.Context, bank *Bank) int {
	id, err := bank.Accounts.CreateAccount(ctx)
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	return id
}

func TestTransferMovesBalances(t *testing.T) {
	ctx := context.Background()
	bank := newTestBank()

	a := mustCreate(t, ctx, bank)
	b := mustCreate(t, ctx, bank)
	if _, err := bank.Accounts.Deposit(ctx, a, dec("100")); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	if err := bank.Transfers.Transfer(ctx, a, b, dec("45.34")); err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	balA, _ := bank.Accounts.GetBalance(ctx, a)
	balB, _ := bank.Accounts.GetBalance(ctx, b)
	if !balA.Equal(dec("54.66")) || !balB.Equal(dec("45.34")) {
		t.Fatalf("balances = %v, %v; want 54.66, 45.34", balA, balB)
	}
}

func TestTransferInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	bank := newTestBank()

	a := mustCreate(t, ctx, bank)
	b := mustCreate(t, ctx, bank)

	err := bank.Transfers.Transfer(ctx, a, b, dec("1"))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("Transfer with no funds: got %v, want ErrInsufficientBalance", err)
	}
}

func TestReverseTransferRestoresBalances(t *testing.T) {
	ctx := context.Background()
	bank := newTestBank()

	a := mustCreate(t, ctx, bank)
	b := mustCreate(t, ctx, bank)
	bank.Accounts.Deposit(ctx, a, dec("100"))

	if err := bank.Transfers.Transfer(ctx, a, b, dec("50")); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if err := bank.Transfers.Transfer(ctx, b, a, dec("50")); err != nil {
		t.Fatalf("reverse Transfer: %v", err)
	}

	balA, _ := bank.Accounts.GetBalance(ctx, a)
	balB, _ := bank.Accounts.GetBalance(ctx, b)
	if !balA.Equal(dec("100")) || !balB.Equal(dec("0")) {
		t.Fatalf("balances after round trip = %v, %v; want 100, 0", balA, balB)
	}
}

// findTxn is a small test helper reaching past the public API to inspect
// the durable state machine directly.
func findTxn(t *testing.T, ctx context.Context, st store.Store, id int) models.Transaction {
	var txn models.Transaction
	found, err := st.FindOne(ctx, transactionsCollection, store.Eq{Field: "_id", Value: id}, &txn)
	if err != nil || !found {
		t.Fatalf("findTxn(%d): found=%v err=%v", id, found, err)
	}
	return txn
}

func latestTxnID(t *testing.T, ctx context.Context, st store.Store) int {
	cur, err := st.Find(ctx, transactionsCollection, nil, store.FindOptions{SortField: "_id", SortDir: store.Descending, Limit: 1})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	defer cur.Close(ctx)
	if !cur.Next(ctx) {
		t.Fatalf("no transactions found")
	}
	var txn models.Transaction
	if err := cur.Decode(&txn); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return txn.ID
}

func TestTransferStateMachineReachesDone(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()
	bank := New(st)

	a := mustCreate(t, ctx, bank)
	b := mustCreate(t, ctx, bank)
	bank.Accounts.Deposit(ctx, a, dec("100"))

	if err := bank.Transfers.Transfer(ctx, a, b, dec("10")); err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	id := latestTxnID(t, ctx, st)
	txn := findTxn(t, ctx, st, id)
	if txn.State != models.StateDone {
		t.Fatalf("txn state = %q, want done", txn.State)
	}
}
