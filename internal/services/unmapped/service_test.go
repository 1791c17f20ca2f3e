package unmapped

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"sponsorhub/internal/adapters/memory"
	"sponsorhub/internal/domain"
	"sponsorhub/internal/errs"
	"sponsorhub/internal/ports"
	"sponsorhub/internal/services/importer"
	"sponsorhub/internal/services/resolver"
	"sponsorhub/pkg/logger"
)

var importTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func testCtx() context.Context {
	return logger.ToContext(context.Background(), slog.New(logger.NewTestHandler(slog.LevelDebug)))
}

func newQueue(store ports.TxStore) *Service {
	clock := clockwork.NewFakeClockAt(importTime)
	return New(store, resolver.New(clock), clock)
}

func appealRow(txn string) domain.PaymentRow {
	return domain.PaymentRow{
		TransactionID: txn,
		Description:   "Special Christmas Appeal",
		AmountMinor:   2500,
		Status:        "succeeded",
		PayerName:     "Alice Smith",
		PayerEmail:    "alice@example.com",
		PaidAt:        importTime,
	}
}

func TestEnqueueIdempotentByTransactionID(t *testing.T) {
	store := memory.New()
	q := newQueue(store)
	ctx := testCtx()

	first, err := q.Enqueue(ctx, appealRow("t1"))
	if err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	second, err := q.Enqueue(ctx, appealRow("t1"))
	if err != nil {
		t.Fatalf("second enqueue: %v", err)
	}
	if second.ID != first.ID {
		t.Fatal("re-enqueue duplicated the entry")
	}
	pending, _ := store.PendingUnmapped(ctx)
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}
}

func TestResolveCreatesDonationAndMarksImported(t *testing.T) {
	store := memory.New()
	q := newQueue(store)
	ctx := testCtx()

	entry, err := q.Enqueue(ctx, appealRow("t1"))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	donation, err := q.Resolve(ctx, entry.ID, ports.ProjectTarget{Title: "Building Fund", Type: domain.ProjectCampaign}, false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if donation.AmountMinor != 2500 {
		t.Fatalf("donation = %#v", donation)
	}
	if donation.TransactionID == nil || *donation.TransactionID != "t1" {
		t.Fatalf("donation txn = %v", donation.TransactionID)
	}

	got, _ := store.UnmappedByID(ctx, entry.ID)
	if got.Status != domain.UnmappedImported {
		t.Fatalf("status = %s, want imported", got.Status)
	}
	if got.DonationID == nil || *got.DonationID != donation.ID {
		t.Fatalf("donation back-reference = %v", got.DonationID)
	}
	project, _ := store.ProjectByTitle(ctx, "Building Fund", domain.ProjectCampaign)
	if project == nil {
		t.Fatal("target project not created")
	}
}

func TestResolveOptionallyCreatesRule(t *testing.T) {
	store := memory.New()
	q := newQueue(store)
	ctx := testCtx()

	entry, _ := q.Enqueue(ctx, appealRow("t1"))
	if _, err := q.Resolve(ctx, entry.ID, ports.ProjectTarget{Title: "Building Fund", Type: domain.ProjectCampaign}, true); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	active, _ := store.ActiveRules(ctx)
	if len(active) != 1 {
		t.Fatalf("rules = %d, want 1", len(active))
	}
	r := active[0]
	if r.Match != domain.MatchExact || r.Pattern != "Special Christmas Appeal" || r.ProjectTitle != "Building Fund" {
		t.Fatalf("rule = %#v", r)
	}
}

func TestResolveRejectsAlreadyImported(t *testing.T) {
	store := memory.New()
	q := newQueue(store)
	ctx := testCtx()

	entry, _ := q.Enqueue(ctx, appealRow("t1"))
	target := ports.ProjectTarget{Title: "Building Fund", Type: domain.ProjectCampaign}
	if _, err := q.Resolve(ctx, entry.ID, target, false); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	_, err := q.Resolve(ctx, entry.ID, target, false)
	var ve *errs.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("second resolve err = %v, want ValidationError", err)
	}
}

func TestResolveUnknownID(t *testing.T) {
	q := newQueue(memory.New())
	_, err := q.Resolve(testCtx(), "nope", ports.ProjectTarget{Title: "X"}, false)
	var nf *errs.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v, want NotFoundError", err)
	}
}

func TestIgnore(t *testing.T) {
	store := memory.New()
	q := newQueue(store)
	ctx := testCtx()

	entry, _ := q.Enqueue(ctx, appealRow("t1"))
	if err := q.Ignore(ctx, entry.ID); err != nil {
		t.Fatalf("Ignore: %v", err)
	}
	got, _ := store.UnmappedByID(ctx, entry.ID)
	if got.Status != domain.UnmappedIgnored {
		t.Fatalf("status = %s", got.Status)
	}
	pending, _ := store.PendingUnmapped(ctx)
	if len(pending) != 0 {
		t.Fatal("ignored entry still pending")
	}
}

// stubImporter imports rows whose description the given engine-free predicate
// accepts; everything else stays unroutable.
type stubImporter struct {
	accept func(domain.PaymentRow) bool
	calls  int
}

func (s *stubImporter) RefreshRules(ctx context.Context) error { return nil }

func (s *stubImporter) ImportRow(ctx context.Context, row domain.PaymentRow) domain.RowResult {
	s.calls++
	if s.accept != nil && s.accept(row) {
		id := "don-" + row.TransactionID
		return domain.RowResult{Outcome: domain.RowImported, Donations: []domain.Donation{{ID: id, AmountMinor: row.AmountMinor}}}
	}
	return domain.RowResult{Outcome: domain.RowQueued, Reason: "description not recognized"}
}

func (s *stubImporter) RetryRow(ctx context.Context, row domain.PaymentRow) domain.RowResult {
	return s.ImportRow(ctx, row)
}

func TestBulkRetry(t *testing.T) {
	store := memory.New()
	q := newQueue(store)
	ctx := testCtx()

	a, _ := q.Enqueue(ctx, appealRow("t1"))
	b := appealRow("t2")
	b.Description = "mystery wire transfer"
	bEntry, _ := q.Enqueue(ctx, b)

	imp := &stubImporter{accept: func(r domain.PaymentRow) bool { return r.Description == "Special Christmas Appeal" }}
	q.AttachImporter(imp)

	imported, remaining, err := q.BulkRetry(ctx)
	if err != nil {
		t.Fatalf("BulkRetry: %v", err)
	}
	if imported != 1 || remaining != 1 {
		t.Fatalf("imported=%d remaining=%d, want 1/1", imported, remaining)
	}
	if imp.calls != 2 {
		t.Fatalf("importer calls = %d, want 2", imp.calls)
	}

	resolved, _ := store.UnmappedByID(ctx, a.ID)
	if resolved.Status != domain.UnmappedImported || resolved.DonationID == nil {
		t.Fatalf("retried entry = %#v", resolved)
	}
	still, _ := store.UnmappedByID(ctx, bEntry.ID)
	if still.Status != domain.UnmappedPending {
		t.Fatalf("unroutable entry status = %s, want pending", still.Status)
	}
}

func TestBulkRetryPicksUpNewRules(t *testing.T) {
	store := memory.New()
	clock := clockwork.NewFakeClockAt(importTime)
	res := resolver.New(clock)
	q := New(store, res, clock)
	imp := importer.New(store, q, res, clock)
	q.AttachImporter(imp)
	ctx := testCtx()

	entry, err := q.Enqueue(ctx, appealRow("t1"))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// Nothing routes yet.
	imported, remaining, err := q.BulkRetry(ctx)
	if err != nil || imported != 0 || remaining != 1 {
		t.Fatalf("pre-rule retry = %d/%d (%v)", imported, remaining, err)
	}

	// Admin adds a rule; the next retry must see it without restarting.
	if err := store.CreateRule(ctx, &domain.MappingRule{
		Pattern:      "christmas appeal",
		Match:        domain.MatchContains,
		ProjectTitle: "Building Fund",
		ProjectType:  domain.ProjectCampaign,
		Active:       true,
	}); err != nil {
		t.Fatalf("seed rule: %v", err)
	}

	imported, remaining, err = q.BulkRetry(ctx)
	if err != nil || imported != 1 || remaining != 0 {
		t.Fatalf("post-rule retry = %d/%d (%v)", imported, remaining, err)
	}
	got, _ := store.UnmappedByID(ctx, entry.ID)
	if got.Status != domain.UnmappedImported || got.DonationID == nil {
		t.Fatalf("entry after retry = %#v", got)
	}
	if p, _ := store.ProjectByTitle(ctx, "Building Fund", domain.ProjectCampaign); p == nil {
		t.Fatal("rule target project not created")
	}
}

func TestBulkRetryWithoutImporter(t *testing.T) {
	q := newQueue(memory.New())
	if _, _, err := q.BulkRetry(testCtx()); err == nil {
		t.Fatal("expected error without an attached importer")
	}
}

func TestBulkRetryKeepsUnroutableEntrySingle(t *testing.T) {
	store := memory.New()
	clock := clockwork.NewFakeClockAt(importTime)
	res := resolver.New(clock)
	q := New(store, res, clock)
	q.AttachImporter(importer.New(store, q, res, clock))
	ctx := testCtx()

	// No transaction id: the upsert has no key to dedupe on, so a retry that
	// re-enqueued would mint a fresh row each tick.
	entry, err := q.Enqueue(ctx, appealRow(""))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	for i := 0; i < 3; i++ {
		imported, remaining, err := q.BulkRetry(ctx)
		if err != nil {
			t.Fatalf("retry %d: %v", i+1, err)
		}
		if imported != 0 || remaining != 1 {
			t.Fatalf("retry %d = %d imported / %d remaining, want 0/1", i+1, imported, remaining)
		}
	}

	pending, _ := store.PendingUnmapped(ctx)
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}
	if pending[0].ID != entry.ID {
		t.Fatal("retry replaced the original entry")
	}
}
