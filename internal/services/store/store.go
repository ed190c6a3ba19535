package store

import (
	"context"
	"errors"
	"time"

	"github.com/paygate-ng/paygate/internal/models"
)

// ErrNotFound is returned when no transaction exists for a reference.
var ErrNotFound = errors.New("store: transaction not found")

// Update names the mutable fields of a transaction. Nil members are left
// untouched; the reference itself is immutable.
type Update struct {
	Status     *models.Status
	Channel    *string
	PaidAt     *time.Time
	ProviderID *string
}

// TransactionStore is the persistence boundary consumed by the core. Every
// call site treats failures as non-fatal: a store outage must never abort a
// charge or verification whose provider call already succeeded.
type TransactionStore interface {
	Create(ctx context.Context, tx *models.Transaction) error
	FindByReference(ctx context.Context, reference string) (*models.Transaction, error)
	Update(ctx context.Context, reference string, fields Update) error
}

func applyUpdate(tx *models.Transaction, fields Update, now time.Time) {
	if fields.Status != nil {
		tx.Status = *fields.Status
	}
	if fields.Channel != nil {
		tx.Channel = *fields.Channel
	}
	if fields.PaidAt != nil {
		tx.PaidAt = fields.PaidAt
	}
	if fields.ProviderID != nil {
		tx.ProviderID = *fields.ProviderID
	}
	tx.UpdatedAt = now
}
