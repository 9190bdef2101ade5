package bankcore

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/centralbank/bankcore/backend/pkg/bankcore/models"
	"github.com/centralbank/bankcore/backend/pkg/store"
)

const defaultAgeOfTransactionsRequiringRecovery = 5 * time.Second

// RecoverySweeper scans the transaction log for stuck records -- ones whose
// lastModified is older than the age threshold -- and resolves them via one
// of two disjoint paths: roll-forward (RecoverPendingTransactions,
// RecoverAppliedTransactions) or roll-back (CancelPendingTransactions). It
// holds no per-transfer state; every sweep method is safe to run repeatedly
// and concurrently with itself, with other sweeps, and with in-flight
// transfers, because every step it takes reuses the same idempotent
// conditional updates TransferCoordinator does.
//
// Nothing stops RecoverPendingTransactions and CancelPendingTransactions
// from racing over the same stuck transaction; callers choose a policy per
// invocation and must not run both against the same transaction
// concurrently (see DESIGN.md).
type RecoverySweeper struct {
	st  store.Store
	mu  sync.RWMutex
	age time.Duration
}

func NewRecoverySweeper(st store.Store) *RecoverySweeper {
	return &RecoverySweeper{st: st, age: defaultAgeOfTransactionsRequiringRecovery}
}

// GetAgeOfTransactionsRequiringRecovery returns the current stuck-age
// threshold.
func (r *RecoverySweeper) GetAgeOfTransactionsRequiringRecovery() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.age
}

// SetAgeOfTransactionsRequiringRecovery changes the stuck-age threshold.
func (r *RecoverySweeper) SetAgeOfTransactionsRequiringRecovery(age time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.age = age
}

func (r *RecoverySweeper) threshold() time.Time {
	return time.Now().Add(-r.GetAgeOfTransactionsRequiringRecovery())
}

func (r *RecoverySweeper) stuckCursor(ctx context.Context, state models.TxnState) (store.Cursor, error) {
	return r.st.Find(ctx, transactionsCollection,
		store.And{
			store.Eq{Field: "state", Value: string(state)},
			store.Lt{Field: "lastModified", Value: r.threshold()},
		},
		store.FindOptions{},
	)
}

// RecoverPendingTransactions rolls forward every stuck pending transaction:
// re-apply to source, re-apply to destination, pending->applied, pull from
// source, pull from destination, applied->done. Every step is the same
// idempotent operation TransferCoordinator.Transfer uses, so replaying a
// partially completed transfer correctly no-ops whatever already happened.
func (r *RecoverySweeper) RecoverPendingTransactions(ctx context.Context) error {
	cur, err := r.stuckCursor(ctx, models.StatePending)
	if err != nil {
		log.Printf("bankcore: failed while recovering pending transactions: %v", err)
		return wrapDBError(err)
	}
	defer cur.Close(ctx)

	coord := &TransferCoordinator{st: r.st}
	txnID := -1
	for cur.Next(ctx) {
		var txn models.Transaction
		if err := cur.Decode(&txn); err != nil {
			log.Printf("bankcore: failed while recovering pending transactions: %v", err)
			return wrapDBError(err)
		}
		txnID = txn.ID
		log.Printf("bankcore: about to recover pending transaction %d", txnID)

		if err := coord.applyPendingToAccount(ctx, txn.ID, txn.Source, -txn.Value); err != nil {
			return err
		}
		if err := coord.applyPendingToAccount(ctx, txn.ID, txn.Destination, txn.Value); err != nil {
			return err
		}
		if err := coord.transitionState(ctx, txn.ID, models.StatePending, models.StateApplied); err != nil {
			return err
		}
		if err := coord.removeAppliedFromAccount(ctx, txn.ID, txn.Source); err != nil {
			return err
		}
		if err := coord.removeAppliedFromAccount(ctx, txn.ID, txn.Destination); err != nil {
			return err
		}
		if err := coord.transitionState(ctx, txn.ID, models.StateApplied, models.StateDone); err != nil {
			return err
		}
		log.Printf("bankcore: recovered pending transaction %d", txnID)
	}
	if err := cur.Err(); err != nil {
		log.Printf("bankcore: failed while recovering pending transactions: %v", err)
		return wrapDBError(err)
	}
	return nil
}

// RecoverAppliedTransactions rolls forward every stuck applied transaction:
// the money has already moved, so only the pending-list cleanup and the
// final applied->done transition remain.
func (r *RecoverySweeper) RecoverAppliedTransactions(ctx context.Context) error {
	cur, err := r.stuckCursor(ctx, models.StateApplied)
	if err != nil {
		log.Printf("bankcore: failed while recovering applied transactions: %v", err)
		return wrapDBError(err)
	}
	defer cur.Close(ctx)

	coord := &TransferCoordinator{st: r.st}
	log.Print("bankcore: start recovering applied transactions")
	for cur.Next(ctx) {
		var txn models.Transaction
		if err := cur.Decode(&txn); err != nil {
			log.Printf("bankcore: failed while recovering applied transactions: %v", err)
			return wrapDBError(err)
		}
		log.Printf("bankcore: about to recover applied transaction %d", txn.ID)

		if err := coord.removeAppliedFromAccount(ctx, txn.ID, txn.Source); err != nil {
			return err
		}
		if err := coord.removeAppliedFromAccount(ctx, txn.ID, txn.Destination); err != nil {
			return err
		}
		if err := coord.transitionState(ctx, txn.ID, models.StateApplied, models.StateDone); err != nil {
			return err
		}
		log.Printf("bankcore: recovered applied transaction %d", txn.ID)
	}
	if err := cur.Err(); err != nil {
		log.Printf("bankcore: failed while recovering applied transactions: %v", err)
		return wrapDBError(err)
	}
	log.Print("bankcore: finished recovering applied transactions")
	return nil
}

// CancelPendingTransactions rolls back every stuck pending transaction: it
// bulk-transitions them to canceling, then for each undoes the apply on
// both accounts (guarded by pending-list membership, so it only fires if
// the apply actually happened) and finally transitions canceling->canceled.
func (r *RecoverySweeper) CancelPendingTransactions(ctx context.Context) error {
	log.Print("bankcore: start cancelling pending transactions")
	defer log.Print("bankcore: finish cancelling pending transactions")

	if _, err := r.st.UpdateMany(ctx, transactionsCollection,
		store.And{store.Eq{Field: "state", Value: string(models.StatePending)}, store.Lt{Field: "lastModified", Value: r.threshold()}},
		store.Mutations{
			store.Set{Field: "state", Value: string(models.StateCanceling)},
			store.CurrentDate{Field: "lastModified"},
		},
	); err != nil {
		log.Printf("bankcore: failed while cancelling pending transactions: %v", err)
		return wrapDBError(err)
	}

	cur, err := r.st.Find(ctx, transactionsCollection, store.Eq{Field: "state", Value: string(models.StateCanceling)}, store.FindOptions{})
	if err != nil {
		log.Printf("bankcore: failed while cancelling pending transactions: %v", err)
		return wrapDBError(err)
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var txn models.Transaction
		if err := cur.Decode(&txn); err != nil {
			log.Printf("bankcore: failed while cancelling pending transactions: %v", err)
			return wrapDBError(err)
		}

		if matched, err := r.st.Update(ctx, accountsCollection,
			store.And{store.Eq{Field: "_id", Value: txn.Destination}, store.Member{Field: "pendingTransactions", Value: txn.ID}},
			store.Mutations{
				store.Inc{Field: "balance", By: -txn.Value},
				store.Pull{Field: "pendingTransactions", Value: txn.ID},
			},
		); err != nil {
			log.Printf("bankcore: failed to cancel transaction %d: %v", txn.ID, err)
			return wrapDBError(err)
		} else if matched == 1 {
			log.Printf("bankcore: updated destination account %d by reversing %d and removing transaction %d", txn.Destination, txn.Value, txn.ID)
		}

		if matched, err := r.st.Update(ctx, accountsCollection,
			store.And{store.Eq{Field: "_id", Value: txn.Source}, store.Member{Field: "pendingTransactions", Value: txn.ID}},
			store.Mutations{
				store.Inc{Field: "balance", By: txn.Value},
				store.Pull{Field: "pendingTransactions", Value: txn.ID},
			},
		); err != nil {
			log.Printf("bankcore: failed to cancel transaction %d: %v", txn.ID, err)
			return wrapDBError(err)
		} else if matched == 1 {
			log.Printf("bankcore: updated source account %d by reversing %d and removing transaction %d", txn.Source, txn.Value, txn.ID)
		}

		if matched, err := r.st.Update(ctx, transactionsCollection,
			store.And{store.Eq{Field: "_id", Value: txn.ID}, store.Eq{Field: "state", Value: string(models.StateCanceling)}},
			store.Mutations{
				store.Set{Field: "state", Value: string(models.StateCanceled)},
				store.CurrentDate{Field: "lastModified"},
			},
		); err != nil {
			log.Printf("bankcore: failed to cancel transaction %d: %v", txn.ID, err)
			return wrapDBError(err)
		} else if matched == 1 {
			log.Printf("bankcore: updated transaction %d to state canceled", txn.ID)
		}
	}
	if err := cur.Err(); err != nil {
		log.Printf("bankcore: failed while cancelling pending transactions: %v", err)
		return wrapDBError(err)
	}
	return nil
}
