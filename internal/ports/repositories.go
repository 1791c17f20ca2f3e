package ports

import (
	"context"
	"time"

	"sponsorhub/internal/domain"
)

// Repository lookups return (nil, nil) on a miss; errors are reserved for
// storage failures. Uniqueness violations surface as *errs.AlreadyExistsError.

// DonorRepository stores donors keyed by processor customer id or
// case-insensitive email.
type DonorRepository interface {
	DonorByCustomerID(ctx context.Context, customerID string) (*domain.Donor, error)
	DonorByEmail(ctx context.Context, email string) (*domain.Donor, error)
	CreateDonor(ctx context.Context, d *domain.Donor) error
	UpdateDonor(ctx context.Context, d *domain.Donor) error
}

// ChildRepository stores children keyed by case-insensitive name.
type ChildRepository interface {
	ChildByName(ctx context.Context, name string) (*domain.Child, error)
	CreateChild(ctx context.Context, c *domain.Child) error
}

type SponsorshipRepository interface {
	// ActiveSponsorship finds the end-date-null sponsorship for the exact
	// (donor, child, monthly amount) tuple.
	ActiveSponsorship(ctx context.Context, donorID, childID string, monthlyAmount int64) (*domain.Sponsorship, error)
	// SponsorshipProjectForChild returns the project any existing sponsorship
	// of the child points at, or nil when the child has never been sponsored.
	SponsorshipProjectForChild(ctx context.Context, childID string) (*domain.Project, error)
	CreateSponsorship(ctx context.Context, s *domain.Sponsorship) error
	EndSponsorship(ctx context.Context, id string, at time.Time) error
}

type ProjectRepository interface {
	ProjectByID(ctx context.Context, id string) (*domain.Project, error)
	ProjectByTitle(ctx context.Context, title string, typ domain.ProjectType) (*domain.Project, error)
	CreateProject(ctx context.Context, p *domain.Project) error
}

type DonationRepository interface {
	DonationByTransactionID(ctx context.Context, transactionID string) (*domain.Donation, error)
	CreateDonation(ctx context.Context, d *domain.Donation) error
}

type MappingRuleRepository interface {
	// ActiveRules returns active rules in insertion order; priority ordering
	// is the rule engine's concern.
	ActiveRules(ctx context.Context) ([]domain.MappingRule, error)
	AllRules(ctx context.Context) ([]domain.MappingRule, error)
	CreateRule(ctx context.Context, r *domain.MappingRule) error
}

type UnmappedRepository interface {
	// UpsertUnmapped inserts the entry, or updates the existing one with the
	// same transaction id. Entries without a transaction id always insert.
	UpsertUnmapped(ctx context.Context, u *domain.UnmappedPayment) (*domain.UnmappedPayment, error)
	UnmappedByID(ctx context.Context, id string) (*domain.UnmappedPayment, error)
	PendingUnmapped(ctx context.Context) ([]domain.UnmappedPayment, error)
	UpdateUnmapped(ctx context.Context, u *domain.UnmappedPayment) error
}

type FailedPaymentRepository interface {
	// RecordFailedPayment is idempotent by transaction id.
	RecordFailedPayment(ctx context.Context, f *domain.FailedPayment) error
	ListFailedPayments(ctx context.Context) ([]domain.FailedPayment, error)
}

// Store is the full repository surface one import row sees. Inside InTx all
// operations share one transaction.
type Store interface {
	DonorRepository
	ChildRepository
	SponsorshipRepository
	ProjectRepository
	DonationRepository
	MappingRuleRepository
	UnmappedRepository
	FailedPaymentRepository
}

// TxStore runs a function against a transaction-bound Store. The transaction
// commits iff fn returns nil; any error rolls everything back.
type TxStore interface {
	Store
	InTx(ctx context.Context, fn func(ctx context.Context, s Store) error) error
}
