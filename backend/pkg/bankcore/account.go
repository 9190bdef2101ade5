package bankcore

import (
	"context"
	"log"

	"github.com/shopspring/decimal"

	"github.com/centralbank/bankcore/backend/pkg/bankcore/models"
	"github.com/centralbank/bankcore/backend/pkg/money"
	"github.com/centralbank/bankcore/backend/pkg/store"
)

const accountsCollection = "accounts"

// AccountService implements single-account operations: create, close,
// deposit, withdraw, balance and isClosed. Each store write here touches a
// single document and is atomic on its own, but an operation that reads
// before writing (Withdraw) or writes then reads back (Deposit) is not
// atomic as a whole, and the service provides no cross-account guarantees.
type AccountService struct {
	st  store.Store
	seq *sequenceAllocator
}

// NewAccountService builds an AccountService over st with its own sequence
// allocator for the accounts collection.
func NewAccountService(st store.Store) *AccountService {
	return &AccountService{st: st, seq: newSequenceAllocator(st)}
}

// CreateAccount allocates the next account ID and inserts the default
// document: open, zero balance, no pending transactions.
func (s *AccountService) CreateAccount(ctx context.Context) (int, error) {
	id, err := s.seq.nextID(ctx, accountsCollection)
	if err != nil {
		return 0, err
	}
	acct := models.Account{
		ID:                  id,
		Closed:              false,
		Balance:             0,
		PendingTransactions: []int{},
	}
	if err := s.st.Insert(ctx, accountsCollection, acct); err != nil {
		log.Printf("bankcore: failed to create account: %v", err)
		return 0, wrapDBError(err)
	}
	log.Printf("bankcore: created account %d", id)
	return id, nil
}

func (s *AccountService) findAccount(ctx context.Context, id int) (*models.Account, error) {
	var acct models.Account
	found, err := s.st.FindOne(ctx, accountsCollection, store.Eq{Field: "_id", Value: id}, &acct)
	if err != nil {
		return nil, wrapDBError(err)
	}
	if !found {
		return nil, ErrNonExistingAccount
	}
	return &acct, nil
}

// CloseAccount marks id closed. Closing an already-closed account is a
// logged warning, not an error -- the operation is idempotent from the
// caller's point of view.
func (s *AccountService) CloseAccount(ctx context.Context, id int) error {
	acct, err := s.findAccount(ctx, id)
	if err != nil {
		return err
	}
	if acct.Closed {
		log.Printf("bankcore: account %d was already closed", id)
		return nil
	}
	if _, err := s.st.Update(ctx, accountsCollection,
		store.Eq{Field: "_id", Value: id},
		store.Mutations{store.Set{Field: "closed", Value: true}},
	); err != nil {
		log.Printf("bankcore: failed to close account %d: %v", id, err)
		return wrapDBError(err)
	}
	log.Printf("bankcore: closed account %d", id)
	return nil
}

// GetBalance returns the current balance of id as a decimal amount.
func (s *AccountService) GetBalance(ctx context.Context, id int) (decimal.Decimal, error) {
	acct, err := s.findAccount(ctx, id)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return money.MinorUnits(acct.Balance).ToDecimal(), nil
}

// IsClosed reports whether id has been closed.
func (s *AccountService) IsClosed(ctx context.Context, id int) (bool, error) {
	acct, err := s.findAccount(ctx, id)
	if err != nil {
		return false, err
	}
	return acct.Closed, nil
}

// Deposit unconditionally increments id's balance by amount and returns the
// resulting balance. Note that, matching the system this core is modeled
// on, a deposit is not rejected on a closed account -- see DESIGN.md.
func (s *AccountService) Deposit(ctx context.Context, id int, amount decimal.Decimal) (decimal.Decimal, error) {
	delta := money.ToMinorUnits(amount)
	if _, err := s.st.Update(ctx, accountsCollection,
		store.Eq{Field: "_id", Value: id},
		store.Mutations{store.Inc{Field: "balance", By: int64(delta)}},
	); err != nil {
		log.Printf("bankcore: failed to deposit %s into account %d: %v", amount, id, err)
		return decimal.Decimal{}, wrapDBError(err)
	}
	log.Printf("bankcore: deposited %s into account %d", amount, id)
	return s.GetBalance(ctx, id)
}

// Withdraw decrements id's balance by amount and returns the resulting
// balance, failing with ErrClosedAccount or ErrInsufficientBalance first.
// The check-then-write here is not atomic: concurrent withdrawals racing on
// the same account can oversubscribe it, a documented limitation of this
// operation (see SPEC_FULL.md §4.3).
func (s *AccountService) Withdraw(ctx context.Context, id int, amount decimal.Decimal) (decimal.Decimal, error) {
	acct, err := s.findAccount(ctx, id)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if acct.Closed {
		log.Printf("bankcore: cannot withdraw %s from account %d because it is closed", amount, id)
		return decimal.Decimal{}, ErrClosedAccount
	}
	balance := money.MinorUnits(acct.Balance).ToDecimal()
	if amount.GreaterThan(balance) {
		log.Printf("bankcore: cannot withdraw %s from account %d, balance is %s", amount, id, balance)
		return decimal.Decimal{}, ErrInsufficientBalance
	}
	delta := money.ToMinorUnits(amount)
	if _, err := s.st.Update(ctx, accountsCollection,
		store.Eq{Field: "_id", Value: id},
		store.Mutations{store.Inc{Field: "balance", By: -int64(delta)}},
	); err != nil {
		log.Printf("bankcore: failed to withdraw %s from account %d: %v", amount, id, err)
		return decimal.Decimal{}, wrapDBError(err)
	}
	log.Printf("bankcore: withdrew %s from account %d", amount, id)
	return s.GetBalance(ctx, id)
}

// Reset wipes both collections, returning the core to its initial state.
func (s *AccountService) Reset(ctx context.Context) error {
	if err := s.st.DeleteAll(ctx, accountsCollection); err != nil {
		log.Printf("bankcore: failed to reset accounts: %v", err)
		return wrapDBError(err)
	}
	if err := s.st.DeleteAll(ctx, transactionsCollection); err != nil {
		log.Printf("bankcore: failed to reset transactions: %v", err)
		return wrapDBError(err)
	}
	log.Print("bankcore: reset accounts and transactions")
	return nil
}
