package bankcore

import "github.com/centralbank/bankcore/backend/pkg/store"

// Bank is the constructed, explicit-value replacement for the process-wide
// singleton the system this core is modeled on exposes: one store-backed
// AccountService, TransferCoordinator and RecoverySweeper, sharing the same
// underlying connection. Callers inject a store.Store (typically a
// *store.MongoStore) and get back a value they hold and pass around rather
// than a global.
type Bank struct {
	Accounts  *AccountService
	Transfers *TransferCoordinator
	Recovery  *RecoverySweeper
}

// New wires the three services over st.
func New(st store.Store) *Bank {
	return &Bank{
		Accounts:  NewAccountService(st),
		Transfers: NewTransferCoordinator(st),
		Recovery:  NewRecoverySweeper(st),
	}
}
