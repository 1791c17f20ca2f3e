package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"sponsorhub/internal/adapters/memory"
	"sponsorhub/internal/domain"
	"sponsorhub/internal/errs"
)

var importTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newResolver() (*Resolver, *memory.Store) {
	return New(clockwork.NewFakeClockAt(importTime)), memory.New()
}

func sponsorshipRow(txn, payer, email string, amount int64, paidAt time.Time) domain.PaymentRow {
	return domain.PaymentRow{
		TransactionID: txn,
		Description:   "Monthly Sponsorship Donation",
		AmountMinor:   amount,
		Status:        "succeeded",
		PayerName:     payer,
		PayerEmail:    email,
		PaidAt:        paidAt,
	}
}

func TestResolveSponsorshipCreatesFullGraph(t *testing.T) {
	r, store := newResolver()
	ctx := context.Background()

	row := sponsorshipRow("t1", "Alice Smith", "alice@example.com", 10000, importTime)
	cls := domain.Classification{Kind: domain.KindSponsorship, ChildName: "Sangwan"}

	res, err := r.Resolve(ctx, store, row, cls)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Donor == nil || res.Child == nil || res.Sponsorship == nil || res.Project == nil || res.Donation == nil {
		t.Fatalf("incomplete resolution: %#v", res)
	}
	if res.Child.Name != "Sangwan" {
		t.Fatalf("child name = %q", res.Child.Name)
	}
	if res.Project.Type != domain.ProjectSponsorship || res.Project.Title != "Sponsor Sangwan" {
		t.Fatalf("project = %#v", res.Project)
	}
	if res.Sponsorship.MonthlyAmount != 10000 || res.Sponsorship.EndDate != nil {
		t.Fatalf("sponsorship = %#v", res.Sponsorship)
	}
	if res.Donation.SponsorshipID == nil || *res.Donation.SponsorshipID != res.Sponsorship.ID {
		t.Fatalf("donation not linked to sponsorship: %#v", res.Donation)
	}
	if res.Donation.TransactionID == nil || *res.Donation.TransactionID != "t1" {
		t.Fatalf("donation txn id = %v", res.Donation.TransactionID)
	}
}

func TestResolveOneProjectPerChild(t *testing.T) {
	r, store := newResolver()
	ctx := context.Background()
	cls := domain.Classification{Kind: domain.KindSponsorship, ChildName: "Sangwan"}

	// Three sponsorships of the same child: two donors, two amounts.
	rows := []domain.PaymentRow{
		sponsorshipRow("t1", "Alice", "alice@example.com", 10000, importTime),
		sponsorshipRow("t2", "Bob", "bob@example.com", 10000, importTime),
		sponsorshipRow("t3", "Alice", "alice@example.com", 5000, importTime),
	}
	var projectID string
	for i, row := range rows {
		res, err := r.Resolve(ctx, store, row, cls)
		if err != nil {
			t.Fatalf("row %d: %v", i, err)
		}
		if projectID == "" {
			projectID = res.Project.ID
		} else if res.Project.ID != projectID {
			t.Fatalf("row %d got project %s, want shared %s", i, res.Project.ID, projectID)
		}
	}
	_, children, sponsorships, projects, _ := store.Counts()
	if children != 1 || projects != 1 || sponsorships != 3 {
		t.Fatalf("children=%d projects=%d sponsorships=%d, want 1/1/3", children, projects, sponsorships)
	}
}

func TestResolveReusesActiveSponsorship(t *testing.T) {
	r, store := newResolver()
	ctx := context.Background()
	cls := domain.Classification{Kind: domain.KindSponsorship, ChildName: "Chai"}

	first, err := r.Resolve(ctx, store, sponsorshipRow("t1", "Alice", "alice@example.com", 10000, importTime), cls)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := r.Resolve(ctx, store, sponsorshipRow("t2", "Alice", "alice@example.com", 10000, importTime.AddDate(0, 1, 0)), cls)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if second.Sponsorship.ID != first.Sponsorship.ID {
		t.Fatalf("second month created a new sponsorship")
	}
	_, _, sponsorships, _, donations := store.Counts()
	if sponsorships != 1 || donations != 2 {
		t.Fatalf("sponsorships=%d donations=%d, want 1/2", sponsorships, donations)
	}
}

func TestActiveSponsorshipUniqueButReactivationAllowed(t *testing.T) {
	_, store := newResolver()
	ctx := context.Background()

	sp := &domain.Sponsorship{DonorID: "d1", ChildID: "c1", ProjectID: "p1", MonthlyAmount: 10000, StartDate: importTime}
	if err := store.CreateSponsorship(ctx, sp); err != nil {
		t.Fatalf("create: %v", err)
	}
	dup := &domain.Sponsorship{DonorID: "d1", ChildID: "c1", ProjectID: "p1", MonthlyAmount: 10000, StartDate: importTime}
	err := store.CreateSponsorship(ctx, dup)
	var exists *errs.AlreadyExistsError
	if !errors.As(err, &exists) {
		t.Fatalf("duplicate active sponsorship error = %v, want AlreadyExistsError", err)
	}

	if err := store.EndSponsorship(ctx, sp.ID, importTime.AddDate(1, 0, 0)); err != nil {
		t.Fatalf("end: %v", err)
	}
	if err := store.CreateSponsorship(ctx, dup); err != nil {
		t.Fatalf("recreation after end should succeed, got %v", err)
	}
}

func TestResolveDonorPrefersCustomerID(t *testing.T) {
	r, store := newResolver()
	ctx := context.Background()

	row := sponsorshipRow("t1", "Alice Smith", "alice@example.com", 10000, importTime)
	row.CustomerID = "cus_123"
	if _, err := r.Resolve(ctx, store, row, domain.Classification{Kind: domain.KindGeneral}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	// Same customer id, different email: must hit the same donor.
	d, err := r.ResolveDonor(ctx, store, "Alice S", "new@example.com", "cus_123", importTime.AddDate(0, 1, 0))
	if err != nil {
		t.Fatalf("ResolveDonor: %v", err)
	}
	donors, _, _, _, _ := store.Counts()
	if donors != 1 {
		t.Fatalf("donors = %d, want 1", donors)
	}
	if d.Name != "Alice S" {
		t.Fatalf("newer transaction should update name, got %q", d.Name)
	}
}

func TestResolveDonorOlderTransactionDoesNotUpdate(t *testing.T) {
	r, store := newResolver()
	ctx := context.Background()

	if _, err := r.ResolveDonor(ctx, store, "Alice Smith", "alice@example.com", "", importTime); err != nil {
		t.Fatalf("seed: %v", err)
	}
	d, err := r.ResolveDonor(ctx, store, "Old Name", "alice@example.com", "", importTime.AddDate(0, -2, 0))
	if err != nil {
		t.Fatalf("ResolveDonor: %v", err)
	}
	if d.Name != "Alice Smith" {
		t.Fatalf("older transaction clobbered name: %q", d.Name)
	}
	if !d.LastPaymentAt.Equal(importTime) {
		t.Fatalf("LastPaymentAt moved backwards: %v", d.LastPaymentAt)
	}
}

func TestResolveDonorSynthesizesPlaceholderEmail(t *testing.T) {
	r, store := newResolver()
	ctx := context.Background()

	d, err := r.ResolveDonor(ctx, store, "Alice O'Brien", "", "", importTime)
	if err != nil {
		t.Fatalf("ResolveDonor: %v", err)
	}
	if d.Email != "aliceobrien@placeholder.invalid" {
		t.Fatalf("placeholder email = %q", d.Email)
	}
	// Deterministic: same name resolves to the same donor.
	again, err := r.ResolveDonor(ctx, store, "Alice O'Brien", "", "", importTime)
	if err != nil {
		t.Fatalf("second ResolveDonor: %v", err)
	}
	if again.ID != d.ID {
		t.Fatal("placeholder email not deterministic across imports")
	}
}

func TestResolveGeneralUsesCanonicalProject(t *testing.T) {
	r, store := newResolver()
	ctx := context.Background()

	row := sponsorshipRow("t1", "Alice", "alice@example.com", 10000, importTime)
	res, err := r.Resolve(ctx, store, row, domain.Classification{Kind: domain.KindGeneral})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Project.Title != domain.GeneralProjectTitle || !res.Project.System {
		t.Fatalf("project = %#v, want system general catch-all", res.Project)
	}
	if res.Child != nil || res.Sponsorship != nil {
		t.Fatalf("general donation created child/sponsorship: %#v", res)
	}
}

func TestResolveValidation(t *testing.T) {
	r, store := newResolver()
	ctx := context.Background()

	cases := []struct {
		name string
		row  domain.PaymentRow
	}{
		{"non-positive amount", sponsorshipRow("t1", "Alice", "alice@example.com", -500, importTime)},
		{"missing payer identity", sponsorshipRow("t1", "", "", 1000, importTime)},
	}
	for _, tc := range cases {
		_, err := r.Resolve(ctx, store, tc.row, domain.Classification{Kind: domain.KindGeneral})
		var ve *errs.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("%s: err = %v, want ValidationError", tc.name, err)
		}
	}
}

func TestResolveDefaultsMissingDateToImportTime(t *testing.T) {
	r, store := newResolver()
	ctx := context.Background()

	row := sponsorshipRow("t1", "Alice", "alice@example.com", 1000, time.Time{})
	res, err := r.Resolve(ctx, store, row, domain.Classification{Kind: domain.KindGeneral})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !res.Donation.PaidAt.Equal(importTime) {
		t.Fatalf("PaidAt = %v, want clock now %v", res.Donation.PaidAt, importTime)
	}
}
