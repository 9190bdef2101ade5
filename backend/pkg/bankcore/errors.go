package bankcore

import "fmt"

// Error is the closed taxonomy of failures the core can report. Every
// public operation fails with one of these, never a bare error from the
// store driver.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

var (
	// ErrDB wraps an underlying store failure; the on-disk state is left
	// as-is and is the recovery sweepers' responsibility to resolve.
	ErrDB                     = &Error{0, "a database error occurred"}
	ErrInsufficientBalance    = &Error{1, "insufficient balance"}
	ErrNonExistingAccount     = &Error{2, "account does not exist"}
	ErrNonExistingTransaction = &Error{3, "transaction does not exist"}
	ErrClosedAccount          = &Error{4, "closed account"}
)

// dbError wraps cause in the DB_ERROR taxonomy entry while keeping cause
// inspectable via errors.Unwrap.
type dbError struct {
	cause error
}

func (e *dbError) Error() string { return ErrDB.Error() + ": " + e.cause.Error() }
func (e *dbError) Unwrap() error { return e.cause }
func (e *dbError) Is(target error) bool { return target == ErrDB }

func wrapDBError(cause error) error {
	if cause == nil {
		return nil
	}
	return &dbError{cause: cause}
}

// errInjected is the synthetic cause used by a FailPoint to force a
// DB_ERROR at a specific step of the transfer state machine.
var errInjected = fmt.Errorf("injected failure for recovery testing")
