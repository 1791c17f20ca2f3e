package domain

import "time"

// PaymentRow is one row of a payment-processor export, normalized by the
// reader. Only "succeeded" rows proceed past the import service's status gate.
type PaymentRow struct {
	TransactionID string // optional; required for idempotent re-import
	Description   string
	AmountMinor   int64
	Currency      string
	Status        string
	PayerName     string
	PayerEmail    string
	CustomerID    string
	CampaignCode  string // external campaign identifier, when the export carries one
	PaidAt        time.Time
}

type ClassificationKind string

const (
	KindGeneral     ClassificationKind = "general"
	KindCampaign    ClassificationKind = "campaign"
	KindSponsorship ClassificationKind = "sponsorship"
)

// Classification is the routing decision for one description: where the money
// goes and, for sponsorships, which child it names. ProjectTitle may be empty,
// meaning the canonical default for the kind.
type Classification struct {
	Kind         ClassificationKind
	ChildName    string
	ProjectTitle string
}

type RowOutcome string

const (
	RowImported RowOutcome = "imported"
	RowSkipped  RowOutcome = "skipped"
	RowQueued   RowOutcome = "queued"
	RowFailed   RowOutcome = "failed"
)

// RowResult is the import service's per-row return. Exactly one outcome;
// errors never cross the service boundary any other way.
type RowResult struct {
	Outcome   RowOutcome
	Donations []Donation // populated on RowImported
	Reason    string     // populated on RowSkipped / RowQueued
	Err       error      // populated on RowFailed
}

// RowError is the sanitized failure detail the batch importer reports: just
// the fields useful for diagnosis, never the full row.
type RowError struct {
	Row           int    `json:"row"`
	Message       string `json:"message"`
	Description   string `json:"description"`
	AmountMinor   int64  `json:"amount_minor"`
	TransactionID string `json:"transaction_id,omitempty"`
}

type BatchResult struct {
	Imported int        `json:"imported"`
	Skipped  int        `json:"skipped"`
	Queued   int        `json:"queued"`
	Failed   int        `json:"failed"`
	Errors   []RowError `json:"errors,omitempty"`
}
