package domain

import "time"

// Core domain models used internally. Persistence is behind ports; these types
// carry no storage concerns.

type ProjectType string

const (
	ProjectGeneral     ProjectType = "general"
	ProjectCampaign    ProjectType = "campaign"
	ProjectSponsorship ProjectType = "sponsorship"
)

// GeneralProjectTitle is the canonical catch-all destination for donations
// that carry no more specific routing.
const GeneralProjectTitle = "General Donation"

type Donor struct {
	ID         string
	Name       string
	Email      string // stored lowercase; unique case-insensitively
	Phone      *string
	CustomerID *string // payment-processor customer identifier
	// LastPaymentAt is the newest transaction date seen for this donor.
	// Repeated imports only update mutable fields when the incoming
	// transaction is newer.
	LastPaymentAt time.Time
	CreatedAt     time.Time
}

type Child struct {
	ID        string
	Name      string // canonical capitalization; unique case-insensitively
	Bio       string
	CreatedAt time.Time
}

// Sponsorship links one donor to one child at a recurring monthly amount.
// EndDate nil means active. At most one active sponsorship may exist per
// (donor, child, monthly amount); ended ones never block a new identical one.
type Sponsorship struct {
	ID            string
	DonorID       string
	ChildID       string
	ProjectID     string // the child's single sponsorship project
	MonthlyAmount int64  // minor units
	StartDate     time.Time
	EndDate       *time.Time
	CreatedAt     time.Time
}

type Project struct {
	ID        string
	Title     string
	Type      ProjectType
	System    bool // system-managed catch-alls are protected from deletion
	CreatedAt time.Time
}

type Donation struct {
	ID            string
	DonorID       string
	ProjectID     *string // nil implies the general catch-all bucket
	SponsorshipID *string // set iff the project is sponsorship-typed
	AmountMinor   int64
	PaidAt        time.Time
	TransactionID *string // processor transaction/invoice id; the idempotency key
	CreatedAt     time.Time
}

type MatchType string

const (
	MatchExact    MatchType = "exact"
	MatchContains MatchType = "contains"
	MatchRegex    MatchType = "regex"
)

// MappingRule is an admin-defined matcher that routes a payment description to
// a project (and optionally a child), overriding the built-in classifier.
// Higher priority is checked first; equal priorities keep insertion order.
type MappingRule struct {
	ID            string
	Pattern       string
	Match         MatchType
	ProjectTitle  string // supports $1 capture expansion for regex rules
	ProjectType   ProjectType
	ChildTemplate string // child name template, capture-expanded for regex rules
	Priority      int
	Active        bool
	CreatedAt     time.Time
}

type UnmappedStatus string

const (
	UnmappedPending  UnmappedStatus = "pending"
	UnmappedReviewed UnmappedStatus = "reviewed"
	UnmappedImported UnmappedStatus = "imported"
	UnmappedIgnored  UnmappedStatus = "ignored"
)

// UnmappedPayment is a row the pipeline could not route automatically. It holds
// enough of the original row to import it later once an admin picks a target.
type UnmappedPayment struct {
	ID            string
	TransactionID *string
	Description   string
	AmountMinor   int64
	PayerName     string
	PayerEmail    string
	CustomerID    *string
	PaidAt        time.Time
	Status        UnmappedStatus
	DonationID    *string // back-reference once imported
	CreatedAt     time.Time
}

// FailedPayment records a non-succeeded processor row (failed/refunded charge)
// for the parallel failed-payment ledger.
type FailedPayment struct {
	ID            string
	TransactionID *string
	Description   string
	AmountMinor   int64
	PayerEmail    string
	Status        string // processor status as received
	PaidAt        time.Time
	CreatedAt     time.Time
}
