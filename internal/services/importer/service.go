package importer

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/jonboulle/clockwork"

	"sponsorhub/internal/domain"
	"sponsorhub/internal/ports"
	"sponsorhub/internal/services/classifier"
	"sponsorhub/internal/services/resolver"
	"sponsorhub/internal/services/rules"
	"sponsorhub/pkg/logger"
)

const succeededStatus = "succeeded"

// Service imports payment-processor rows. Per row: status gate, idempotency
// gate, rule/classifier routing, then the resolver sequence inside a single
// transaction. Errors never escape ImportRow; they come back in the RowResult.
type Service struct {
	store    ports.TxStore
	queue    ports.UnmappedQueue
	resolver *resolver.Resolver
	clock    clockwork.Clock

	// engine is the rule snapshot for the current batch; refreshed once per
	// batch run, never per row. Swapped atomically because the HTTP handlers
	// and the retry runner share one Service.
	engine atomic.Pointer[rules.Engine]
}

func New(store ports.TxStore, queue ports.UnmappedQueue, res *resolver.Resolver, clock clockwork.Clock) *Service {
	s := &Service{
		store:    store,
		queue:    queue,
		resolver: res,
		clock:    clock,
	}
	s.engine.Store(mustEmptyEngine())
	return s
}

func mustEmptyEngine() *rules.Engine {
	e, _ := rules.NewEngine(nil)
	return e
}

// RefreshRules snapshots the active mapping rules. Invalid persisted patterns
// are a configuration error and fail the refresh rather than being silently
// skipped.
func (s *Service) RefreshRules(ctx context.Context) error {
	list, err := s.store.ActiveRules(ctx)
	if err != nil {
		return err
	}
	engine, err := rules.NewEngine(list)
	if err != nil {
		return err
	}
	s.engine.Store(engine)
	return nil
}

// ImportRow runs one row through the state machine. The returned result is
// the only signal; no error crosses this boundary.
func (s *Service) ImportRow(ctx context.Context, row domain.PaymentRow) domain.RowResult {
	return s.importRow(ctx, row, true)
}

// RetryRow is ImportRow for rows already sitting in the review queue: one
// that still does not route is left where it is rather than enqueued again,
// since a queue-kept row has no transaction id to dedupe the upsert on.
func (s *Service) RetryRow(ctx context.Context, row domain.PaymentRow) domain.RowResult {
	return s.importRow(ctx, row, false)
}

func (s *Service) importRow(ctx context.Context, row domain.PaymentRow, enqueue bool) domain.RowResult {
	log := logger.FromContext(ctx)

	if !strings.EqualFold(row.Status, succeededStatus) {
		s.recordNonSucceeded(ctx, row)
		return domain.RowResult{Outcome: domain.RowSkipped, Reason: "status is " + row.Status}
	}

	// Idempotency gate: checked before any writes so re-running the same
	// export is always safe.
	if row.TransactionID != "" {
		existing, err := s.store.DonationByTransactionID(ctx, row.TransactionID)
		if err != nil {
			return domain.RowResult{Outcome: domain.RowFailed, Err: err}
		}
		if existing != nil {
			return domain.RowResult{Outcome: domain.RowSkipped, Reason: "already imported"}
		}
	}

	cls, routed := s.route(row)
	if !routed {
		if !enqueue {
			return domain.RowResult{Outcome: domain.RowQueued, Reason: "description not recognized"}
		}
		if _, err := s.queue.Enqueue(ctx, row); err != nil {
			return domain.RowResult{Outcome: domain.RowFailed, Err: err}
		}
		log.Info("payment queued for review", "description", row.Description, "txn_id", row.TransactionID)
		return domain.RowResult{Outcome: domain.RowQueued, Reason: "description not recognized"}
	}

	var res *resolver.Resolution
	err := s.store.InTx(ctx, func(ctx context.Context, tx ports.Store) error {
		var err error
		res, err = s.resolver.Resolve(ctx, tx, row, cls)
		return err
	})
	if err != nil {
		return domain.RowResult{Outcome: domain.RowFailed, Err: err}
	}
	return domain.RowResult{Outcome: domain.RowImported, Donations: []domain.Donation{*res.Donation}}
}

// route picks the classification: admin rules first, built-in classifier as
// the fallback, campaign code as the last resort for unrecognized text.
func (s *Service) route(row domain.PaymentRow) (domain.Classification, bool) {
	if cls, ok := s.engine.Load().Match(row.Description); ok {
		return cls, true
	}
	cls, ok := classifier.Classify(row.Description)
	if ok {
		return cls, true
	}
	if row.CampaignCode != "" {
		return domain.Classification{Kind: domain.KindCampaign, ProjectTitle: row.CampaignCode}, true
	}
	return cls, false
}

// recordNonSucceeded feeds the parallel failed-payment ledger; best effort,
// the row is skipped either way.
func (s *Service) recordNonSucceeded(ctx context.Context, row domain.PaymentRow) {
	f := &domain.FailedPayment{
		Description: row.Description,
		AmountMinor: row.AmountMinor,
		PayerEmail:  strings.ToLower(row.PayerEmail),
		Status:      row.Status,
		PaidAt:      row.PaidAt,
		CreatedAt:   s.clock.Now(),
	}
	if row.TransactionID != "" {
		txn := row.TransactionID
		f.TransactionID = &txn
	}
	if err := s.store.RecordFailedPayment(ctx, f); err != nil {
		logger.FromContext(ctx).Warn("failed-payment ledger write failed", "txn_id", row.TransactionID, "err", err)
	}
}
