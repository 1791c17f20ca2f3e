package resolver

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"sponsorhub/internal/domain"
	"sponsorhub/internal/errs"
	"sponsorhub/internal/ports"
	"sponsorhub/internal/services/classifier"
)

// Resolver turns a classified payment row into the entity graph backing one
// donation: donor, child, sponsorship, project, donation. Find-or-create at
// every step; it never deletes or deduplicates. Callers run Resolve against a
// transaction-bound store so the whole sequence commits or rolls back as one.
type Resolver struct {
	clock clockwork.Clock
}

func New(clock clockwork.Clock) *Resolver {
	return &Resolver{clock: clock}
}

// Resolution is everything one resolved row produced or reused.
type Resolution struct {
	Donor       *domain.Donor
	Child       *domain.Child
	Sponsorship *domain.Sponsorship
	Project     *domain.Project
	Donation    *domain.Donation
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Resolve executes the full sequence for one row. Multi-beneficiary rows are
// handled by calling Resolve once per beneficiary; how the caller splits the
// amount is its own policy.
func (r *Resolver) Resolve(ctx context.Context, s ports.Store, row domain.PaymentRow, cls domain.Classification) (*Resolution, error) {
	if row.AmountMinor <= 0 {
		return nil, errs.NewValidationError(fmt.Sprintf("amount must be positive, got %d", row.AmountMinor))
	}
	paidAt := row.PaidAt
	if paidAt.IsZero() {
		paidAt = r.clock.Now()
	}

	donor, err := r.ResolveDonor(ctx, s, row.PayerName, row.PayerEmail, row.CustomerID, paidAt)
	if err != nil {
		return nil, err
	}

	res := &Resolution{Donor: donor}
	switch cls.Kind {
	case domain.KindSponsorship:
		if err := r.resolveSponsorship(ctx, s, res, cls, row.AmountMinor, paidAt); err != nil {
			return nil, err
		}
	default:
		project, err := r.resolveProject(ctx, s, cls)
		if err != nil {
			return nil, err
		}
		res.Project = project
	}

	donation := &domain.Donation{
		DonorID:     donor.ID,
		ProjectID:   &res.Project.ID,
		AmountMinor: row.AmountMinor,
		PaidAt:      paidAt,
		CreatedAt:   r.clock.Now(),
	}
	if res.Sponsorship != nil {
		donation.SponsorshipID = &res.Sponsorship.ID
	}
	if row.TransactionID != "" {
		txn := row.TransactionID
		donation.TransactionID = &txn
	}
	if err := s.CreateDonation(ctx, donation); err != nil {
		return nil, err
	}
	res.Donation = donation
	return res, nil
}

// ResolveDonor finds the donor by customer id, then by case-insensitive
// email, creating one on a total miss. On a hit the donor's mutable fields
// are updated only when the incoming transaction date is newer, and blank
// incoming values never clobber stored ones.
func (r *Resolver) ResolveDonor(ctx context.Context, s ports.Store, name, email, customerID string, paidAt time.Time) (*domain.Donor, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" && email == "" {
		return nil, errs.NewValidationError("payer name or email required")
	}

	var donor *domain.Donor
	var err error
	if customerID != "" {
		donor, err = s.DonorByCustomerID(ctx, customerID)
		if err != nil {
			return nil, err
		}
	}
	if donor == nil && email != "" {
		donor, err = s.DonorByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
	}

	if donor != nil {
		if paidAt.After(donor.LastPaymentAt) {
			if name != "" {
				donor.Name = name
			}
			if customerID != "" && donor.CustomerID == nil {
				donor.CustomerID = &customerID
			}
			donor.LastPaymentAt = paidAt
			if err := s.UpdateDonor(ctx, donor); err != nil {
				return nil, err
			}
		}
		return donor, nil
	}

	if email == "" {
		email = placeholderEmail(name)
	}
	donor = &domain.Donor{
		Name:          name,
		Email:         email,
		LastPaymentAt: paidAt,
		CreatedAt:     r.clock.Now(),
	}
	if customerID != "" {
		donor.CustomerID = &customerID
	}
	if err := s.CreateDonor(ctx, donor); err != nil {
		return nil, err
	}
	return donor, nil
}

func (r *Resolver) resolveSponsorship(ctx context.Context, s ports.Store, res *Resolution, cls domain.Classification, amount int64, paidAt time.Time) error {
	childName := classifier.CanonicalName(cls.ChildName)
	if childName == "" {
		return errs.NewValidationError("sponsorship classification without a child name")
	}

	child, err := s.ChildByName(ctx, childName)
	if err != nil {
		return err
	}
	if child == nil {
		child = &domain.Child{
			Name:      childName,
			Bio:       "Auto-created from payment import.",
			CreatedAt: r.clock.Now(),
		}
		if err := s.CreateChild(ctx, child); err != nil {
			return err
		}
	}
	res.Child = child

	sponsorship, err := s.ActiveSponsorship(ctx, res.Donor.ID, child.ID, amount)
	if err != nil {
		return err
	}
	if sponsorship != nil {
		project, err := s.ProjectByID(ctx, sponsorship.ProjectID)
		if err != nil {
			return err
		}
		if project == nil {
			return errs.NewNotFoundError("sponsorship project missing: " + sponsorship.ProjectID)
		}
		res.Sponsorship = sponsorship
		res.Project = project
		return nil
	}

	// One project per child: reuse whatever project the child's existing
	// sponsorships already point at before creating a fresh one.
	project, err := s.SponsorshipProjectForChild(ctx, child.ID)
	if err != nil {
		return err
	}
	if project == nil {
		title := cls.ProjectTitle
		if title == "" {
			title = "Sponsor " + child.Name
		}
		project = &domain.Project{
			Title:     title,
			Type:      domain.ProjectSponsorship,
			CreatedAt: r.clock.Now(),
		}
		if err := s.CreateProject(ctx, project); err != nil {
			return err
		}
	}

	sponsorship = &domain.Sponsorship{
		DonorID:       res.Donor.ID,
		ChildID:       child.ID,
		ProjectID:     project.ID,
		MonthlyAmount: amount,
		StartDate:     paidAt,
		CreatedAt:     r.clock.Now(),
	}
	if err := s.CreateSponsorship(ctx, sponsorship); err != nil {
		return err
	}
	res.Sponsorship = sponsorship
	res.Project = project
	return nil
}

func (r *Resolver) resolveProject(ctx context.Context, s ports.Store, cls domain.Classification) (*domain.Project, error) {
	title := strings.TrimSpace(cls.ProjectTitle)
	typ := domain.ProjectGeneral
	system := false
	switch cls.Kind {
	case domain.KindCampaign:
		typ = domain.ProjectCampaign
		if title == "" {
			return nil, errs.NewValidationError("campaign classification without a project title")
		}
	default:
		if title == "" {
			title = domain.GeneralProjectTitle
			system = true
		}
	}

	project, err := s.ProjectByTitle(ctx, title, typ)
	if err != nil {
		return nil, err
	}
	if project != nil {
		return project, nil
	}
	project = &domain.Project{
		Title:     title,
		Type:      typ,
		System:    system,
		CreatedAt: r.clock.Now(),
	}
	if err := s.CreateProject(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}

// placeholderEmail synthesizes a deterministic address for donors imported
// without one, so the email uniqueness constraint stays satisfiable.
func placeholderEmail(name string) string {
	clean := nonAlnum.ReplaceAllString(strings.ToLower(name), "")
	if clean == "" {
		clean = "unknown"
	}
	return clean + "@placeholder.invalid"
}
