package unmapped

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonboulle/clockwork"

	"sponsorhub/internal/domain"
	"sponsorhub/internal/errs"
	"sponsorhub/internal/ports"
	"sponsorhub/internal/services/resolver"
	"sponsorhub/internal/services/rules"
	"sponsorhub/pkg/logger"
)

// createdRulePriority puts remediation-created rules above the defaults so a
// corrected description wins immediately on the next run.
const createdRulePriority = 100

// Service is the durable holding area for rows the pipeline could not route,
// plus the admin remediation operations over it.
type Service struct {
	store    ports.TxStore
	resolver *resolver.Resolver
	clock    clockwork.Clock
	importer ports.RowImporter
}

func New(store ports.TxStore, res *resolver.Resolver, clock clockwork.Clock) *Service {
	return &Service{store: store, resolver: res, clock: clock}
}

// AttachImporter breaks the construction cycle between the queue and the
// import service; BulkRetry needs it.
func (s *Service) AttachImporter(imp ports.RowImporter) { s.importer = imp }

// Enqueue records a row for human review. Idempotent by transaction id:
// re-importing the same file updates the entry instead of duplicating it.
func (s *Service) Enqueue(ctx context.Context, row domain.PaymentRow) (*domain.UnmappedPayment, error) {
	u := &domain.UnmappedPayment{
		Description: row.Description,
		AmountMinor: row.AmountMinor,
		PayerName:   strings.TrimSpace(row.PayerName),
		PayerEmail:  strings.ToLower(strings.TrimSpace(row.PayerEmail)),
		PaidAt:      row.PaidAt,
		Status:      domain.UnmappedPending,
		CreatedAt:   s.clock.Now(),
	}
	if row.TransactionID != "" {
		txn := row.TransactionID
		u.TransactionID = &txn
	}
	if row.CustomerID != "" {
		cus := row.CustomerID
		u.CustomerID = &cus
	}
	return s.store.UpsertUnmapped(ctx, u)
}

// Resolve retroactively routes a queued row to the chosen project: donor and
// donation are created inside one transaction, the entry is marked imported,
// and optionally an exact-match rule is persisted so identical descriptions
// auto-route from now on.
func (s *Service) Resolve(ctx context.Context, id string, target ports.ProjectTarget, createRule bool) (*domain.Donation, error) {
	if strings.TrimSpace(target.Title) == "" {
		return nil, errs.NewValidationError("target project title required")
	}
	typ := target.Type
	if typ == "" {
		typ = domain.ProjectGeneral
	}

	var donation *domain.Donation
	err := s.store.InTx(ctx, func(ctx context.Context, tx ports.Store) error {
		u, err := tx.UnmappedByID(ctx, id)
		if err != nil {
			return err
		}
		if u == nil {
			return errs.NewNotFoundError("unmapped payment not found: " + id)
		}
		if u.Status == domain.UnmappedImported {
			return errs.NewValidationError("already imported")
		}

		project, err := tx.ProjectByTitle(ctx, target.Title, typ)
		if err != nil {
			return err
		}
		if project == nil {
			project = &domain.Project{Title: target.Title, Type: typ, CreatedAt: s.clock.Now()}
			if err := tx.CreateProject(ctx, project); err != nil {
				return err
			}
		}

		customerID := ""
		if u.CustomerID != nil {
			customerID = *u.CustomerID
		}
		donor, err := s.resolver.ResolveDonor(ctx, tx, u.PayerName, u.PayerEmail, customerID, u.PaidAt)
		if err != nil {
			return err
		}

		donation = &domain.Donation{
			DonorID:       donor.ID,
			ProjectID:     &project.ID,
			AmountMinor:   u.AmountMinor,
			PaidAt:        u.PaidAt,
			TransactionID: u.TransactionID,
			CreatedAt:     s.clock.Now(),
		}
		if err := tx.CreateDonation(ctx, donation); err != nil {
			return err
		}

		u.Status = domain.UnmappedImported
		u.DonationID = &donation.ID
		if err := tx.UpdateUnmapped(ctx, u); err != nil {
			return err
		}

		if createRule {
			rule := &domain.MappingRule{
				Pattern:      u.Description,
				Match:        domain.MatchExact,
				ProjectTitle: project.Title,
				ProjectType:  project.Type,
				Priority:     createdRulePriority,
				Active:       true,
				CreatedAt:    s.clock.Now(),
			}
			if err := rules.CheckRule(*rule); err != nil {
				return errs.NewValidationError("cannot create rule: " + err.Error())
			}
			if err := tx.CreateRule(ctx, rule); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("unmapped payment resolved", "id", id, "project", target.Title)
	return donation, nil
}

// Ignore marks a queued row as deliberately not importable.
func (s *Service) Ignore(ctx context.Context, id string) error {
	u, err := s.store.UnmappedByID(ctx, id)
	if err != nil {
		return err
	}
	if u == nil {
		return errs.NewNotFoundError("unmapped payment not found: " + id)
	}
	if u.Status == domain.UnmappedImported {
		return errs.NewValidationError("already imported")
	}
	u.Status = domain.UnmappedIgnored
	return s.store.UpdateUnmapped(ctx, u)
}

// BulkRetry re-runs the import service over every pending entry. Useful right
// after new rules are added: whatever now routes gets imported and linked,
// the rest stays pending.
func (s *Service) BulkRetry(ctx context.Context) (imported, remaining int, err error) {
	if s.importer == nil {
		return 0, 0, fmt.Errorf("no importer attached")
	}
	// Fresh snapshot: retries usually follow a rule change.
	if err := s.importer.RefreshRules(ctx); err != nil {
		return 0, 0, err
	}
	pending, err := s.store.PendingUnmapped(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, u := range pending {
		res := s.importer.RetryRow(ctx, rowFromEntry(u))
		if res.Outcome != domain.RowImported {
			continue
		}
		u.Status = domain.UnmappedImported
		u.DonationID = &res.Donations[0].ID
		if err := s.store.UpdateUnmapped(ctx, &u); err != nil {
			return imported, len(pending) - imported, err
		}
		imported++
	}
	return imported, len(pending) - imported, nil
}

func rowFromEntry(u domain.UnmappedPayment) domain.PaymentRow {
	row := domain.PaymentRow{
		Description: u.Description,
		AmountMinor: u.AmountMinor,
		Status:      "succeeded",
		PayerName:   u.PayerName,
		PayerEmail:  u.PayerEmail,
		PaidAt:      u.PaidAt,
	}
	if u.TransactionID != nil {
		row.TransactionID = *u.TransactionID
	}
	if u.CustomerID != nil {
		row.CustomerID = *u.CustomerID
	}
	return row
}
