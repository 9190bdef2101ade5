package bankcore

import (
	"context"
	"log"

	"github.com/shopspring/decimal"

	"github.com/centralbank/bankcore/backend/pkg/bankcore/models"
	"github.com/centralbank/bankcore/backend/pkg/money"
	"github.com/centralbank/bankcore/backend/pkg/store"
)

const transactionsCollection = "transactions"

// FailPoint names a place in the transfer state machine where a test can
// force a synthetic DB_ERROR, to exercise the recovery sweepers against a
// transfer stuck at that exact point. Production callers never set one.
type FailPoint models.TxnState

const (
	FailNone    FailPoint = ""
	FailPending FailPoint = FailPoint(models.StatePending)
	FailApplied FailPoint = FailPoint(models.StateApplied)
)

// TransferCoordinator runs the two-phase-commit state machine for a single
// transfer, moving a transaction through initial -> pending -> applied ->
// done. Every step is a conditional update guarded by a predicate that
// makes it safe to replay, which is what lets the recovery sweepers finish
// a transfer a crash interrupted without double-booking either account.
type TransferCoordinator struct {
	st  store.Store
	seq *sequenceAllocator
}

func NewTransferCoordinator(st store.Store) *TransferCoordinator {
	return &TransferCoordinator{st: st, seq: newSequenceAllocator(st)}
}

// Transfer moves amount from src to dest in full.
func (c *TransferCoordinator) Transfer(ctx context.Context, src, dest int, amount decimal.Decimal) error {
	return c.TransferWithFailPoint(ctx, src, dest, amount, FailNone)
}

// TransferWithFailPoint is Transfer's testing entry point: failAt, if
// non-empty, raises a synthetic DB_ERROR right after the transaction
// reaches that state, leaving it for a recovery sweeper to finish or
// cancel. Production callers use Transfer.
func (c *TransferCoordinator) TransferWithFailPoint(ctx context.Context, src, dest int, amount decimal.Decimal, failAt FailPoint) error {
	var srcAcct models.Account
	found, err := c.st.FindOne(ctx, accountsCollection, store.Eq{Field: "_id", Value: src}, &srcAcct)
	if err != nil {
		return wrapDBError(err)
	}
	if !found {
		return ErrNonExistingAccount
	}
	value := money.ToMinorUnits(amount)
	if amount.GreaterThan(money.MinorUnits(srcAcct.Balance).ToDecimal()) {
		log.Printf("bankcore: balance %s in account %d is insufficient to transfer %s to account %d",
			money.MinorUnits(srcAcct.Balance), src, amount, dest)
		return ErrInsufficientBalance
	}

	txnID, err := c.createTransaction(ctx, src, dest, value)
	if err != nil {
		return err
	}

	if err := c.verifyTransactionInitial(ctx, src, dest); err != nil {
		return err
	}

	if err := c.transitionState(ctx, txnID, models.StateInitial, models.StatePending); err != nil {
		return err
	}

	if err := c.applyPendingToAccount(ctx, txnID, src, -int64(value)); err != nil {
		return err
	}

	if failAt == FailPending {
		log.Printf("bankcore: transfer transaction %d failed by injection in the pending state", txnID)
		return wrapDBError(errInjected)
	}

	if err := c.applyPendingToAccount(ctx, txnID, dest, int64(value)); err != nil {
		return err
	}

	if err := c.transitionState(ctx, txnID, models.StatePending, models.StateApplied); err != nil {
		return err
	}

	if err := c.removeAppliedFromAccount(ctx, txnID, src); err != nil {
		return err
	}

	if failAt == FailApplied {
		log.Printf("bankcore: transfer transaction %d failed by injection in the applied state", txnID)
		return wrapDBError(errInjected)
	}

	if err := c.removeAppliedFromAccount(ctx, txnID, dest); err != nil {
		return err
	}

	if err := c.transitionState(ctx, txnID, models.StateApplied, models.StateDone); err != nil {
		return err
	}

	log.Printf("bankcore: transferred %s from account %d to account %d", amount, src, dest)
	return nil
}

func (c *TransferCoordinator) createTransaction(ctx context.Context, src, dest int, value money.MinorUnits) (int, error) {
	id, err := c.seq.nextID(ctx, transactionsCollection)
	if err != nil {
		return 0, err
	}
	txn := models.Transaction{
		ID:          id,
		Source:      src,
		Destination: dest,
		Value:       int64(value),
		State:       models.StateInitial,
	}
	if err := c.st.Insert(ctx, transactionsCollection, txn); err != nil {
		log.Printf("bankcore: failed to create a transaction to transfer %s from account %d to account %d: %v",
			value, src, dest, err)
		return 0, wrapDBError(err)
	}
	log.Printf("bankcore: created transaction %d to transfer %s from account %d to account %d", id, value, src, dest)
	return id, nil
}

// verifyTransactionInitial re-reads the transaction just inserted by
// (src, dest, state=initial), the same lookup MongoBank.findTransaction
// performs right after createTransaction in the original Java coordinator.
func (c *TransferCoordinator) verifyTransactionInitial(ctx context.Context, src, dest int) error {
	var txn models.Transaction
	found, err := c.st.FindOne(ctx, transactionsCollection,
		store.And{
			store.Eq{Field: "source", Value: src},
			store.Eq{Field: "destination", Value: dest},
			store.Eq{Field: "state", Value: string(models.StateInitial)},
		},
		&txn,
	)
	if err != nil {
		log.Printf("bankcore: failed to verify the transaction from account %d to account %d: %v", src, dest, err)
		return wrapDBError(err)
	}
	if !found {
		return ErrNonExistingTransaction
	}
	return nil
}

// transitionState advances txnID from currentState to newState, keyed on
// (id, currentState) so a concurrent actor can't observe or cause a double
// transition. The store stamps lastModified via $currentDate.
func (c *TransferCoordinator) transitionState(ctx context.Context, txnID int, from, to models.TxnState) error {
	matched, err := c.st.Update(ctx, transactionsCollection,
		store.And{store.Eq{Field: "_id", Value: txnID}, store.Eq{Field: "state", Value: string(from)}},
		store.Mutations{
			store.Set{Field: "state", Value: string(to)},
			store.CurrentDate{Field: "lastModified"},
		},
	)
	if err != nil {
		log.Printf("bankcore: failed to change the state of transaction %d from %q to %q: %v", txnID, from, to, err)
		return wrapDBError(err)
	}
	if matched == 1 {
		log.Printf("bankcore: changed the state of transaction %d from %q to %q", txnID, from, to)
	}
	return nil
}

// applyPendingToAccount moves amount (positive or negative) onto acctNr and
// records txnID as pending on it, but only if txnID isn't already on the
// pending list and the account is open -- so replaying this call after a
// crash applies it at most once.
func (c *TransferCoordinator) applyPendingToAccount(ctx context.Context, txnID, acctNr int, amount int64) error {
	matched, err := c.st.Update(ctx, accountsCollection,
		store.And{
			store.Eq{Field: "_id", Value: acctNr},
			store.Eq{Field: "closed", Value: false},
			store.NotMember{Field: "pendingTransactions", Value: txnID},
		},
		store.Mutations{
			store.Inc{Field: "balance", By: amount},
			store.Push{Field: "pendingTransactions", Value: txnID},
		},
	)
	if err != nil {
		log.Printf("bankcore: failed to apply transaction %d for amount %d to account %d: %v", txnID, amount, acctNr, err)
		return wrapDBError(err)
	}
	if matched == 1 {
		log.Printf("bankcore: applied transaction %d for amount %d to account %d", txnID, amount, acctNr)
	} else {
		log.Printf("bankcore: did not apply transaction %d for amount %d to account %d", txnID, amount, acctNr)
	}
	return nil
}

// removeAppliedFromAccount pulls txnID off acctNr's pending list, guarded
// by membership so replaying it after a crash removes it at most once.
func (c *TransferCoordinator) removeAppliedFromAccount(ctx context.Context, txnID, acctNr int) error {
	matched, err := c.st.Update(ctx, accountsCollection,
		store.And{store.Eq{Field: "_id", Value: acctNr}, store.Member{Field: "pendingTransactions", Value: txnID}},
		store.Mutations{store.Pull{Field: "pendingTransactions", Value: txnID}},
	)
	if err != nil {
		log.Printf("bankcore: failed to remove transaction %d from account %d: %v", txnID, acctNr, err)
		return wrapDBError(err)
	}
	if matched == 1 {
		log.Printf("bankcore: removed applied transaction %d from account %d", txnID, acctNr)
	} else {
		log.Printf("bankcore: did not remove applied transaction %d from account %d, it did not contain it", txnID, acctNr)
	}
	return nil
}
