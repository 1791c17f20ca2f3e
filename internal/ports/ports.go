package ports

import (
	"context"

	"sponsorhub/internal/domain"
)

// RowImporter imports one payment row end to end. RetryRow is the variant for
// rows already held in the review queue: it never enqueues, so an unroutable
// row stays a single queue entry. RefreshRules snapshots the mapping rules;
// callers invoke it once per run, not per row.
type RowImporter interface {
	ImportRow(ctx context.Context, row domain.PaymentRow) domain.RowResult
	RetryRow(ctx context.Context, row domain.PaymentRow) domain.RowResult
	RefreshRules(ctx context.Context) error
}

// BatchImporter drives the row importer over a whole export file.
type BatchImporter interface {
	ImportAll(ctx context.Context, rows []domain.PaymentRow) domain.BatchResult
}

// ProjectTarget names the project an admin routes an unmapped payment to.
type ProjectTarget struct {
	Title string
	Type  domain.ProjectType
}

// UnmappedQueue holds rows awaiting human judgement and their remediation.
type UnmappedQueue interface {
	Enqueue(ctx context.Context, row domain.PaymentRow) (*domain.UnmappedPayment, error)
	Resolve(ctx context.Context, id string, target ProjectTarget, createRule bool) (*domain.Donation, error)
	Ignore(ctx context.Context, id string) error
	BulkRetry(ctx context.Context) (imported, remaining int, err error)
}
