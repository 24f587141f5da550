package transactions

import (
	"errors"
	"fmt"

	"github.com/gigaloka/loket-go/internal/domain"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidProofURL     = errors.New("invalid payment proof url")
	ErrInvalidStatus       = errors.New("invalid transaction status")
	ErrSeatsUnavailable    = errors.New("seats no longer available")
)

// InvalidStateTransitionError reports a status change the state machine does
// not define.
type InvalidStateTransitionError struct {
	Current domain.TransactionStatus
	Target  domain.TransactionStatus
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("cannot transition transaction from %s to %s", e.Current, e.Target)
}
