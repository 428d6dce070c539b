package repository

import (
	"context"
	"time"

	"xperience-payments/internal/domain/model"
)

// PaymentStore persists payment lifecycle records keyed by transaction id.
// Records are appended and updated, never deleted.
type PaymentStore interface {
	// Save inserts or fully replaces the record for p.ID.
	Save(ctx context.Context, p *model.PaymentState) error
	// Find returns domain.ErrNotFound when no record exists for id.
	Find(ctx context.Context, id string) (*model.PaymentState, error)
	// UpdateStatus sets status and bumps UpdatedAt. A missing record is a
	// silent no-op: the store is a convenience layer, not the source of truth.
	UpdateStatus(ctx context.Context, id string, status model.PaymentStatus) error
	// ListByUser returns a user's payments, newest first.
	ListByUser(ctx context.Context, userID string) ([]*model.PaymentState, error)
	// ListPendingOlderThan returns non-terminal payments created before
	// cutoff, up to limit.
	ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*model.PaymentState, error)
}

// PaymentReader is the read-only slice of the store handed to providers so
// Verify can resolve intent metadata. Providers never write records.
type PaymentReader interface {
	Find(ctx context.Context, id string) (*model.PaymentState, error)
}
