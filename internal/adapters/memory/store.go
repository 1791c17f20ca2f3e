package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"sponsorhub/internal/domain"
	"sponsorhub/internal/errs"
	"sponsorhub/internal/ports"
)

// Store is an in-memory ports.TxStore. Transactions snapshot the whole state
// and restore it when the callback errors, which gives tests (and dry runs)
// real rollback semantics without Postgres.
type Store struct {
	mu sync.Mutex
	st state
}

type state struct {
	donors       map[string]domain.Donor
	children     map[string]domain.Child
	sponsorships map[string]domain.Sponsorship
	projects     map[string]domain.Project
	donations    map[string]domain.Donation
	rules        []domain.MappingRule
	unmapped     map[string]domain.UnmappedPayment
	failed       map[string]domain.FailedPayment
}

func New() *Store {
	return &Store{st: state{
		donors:       map[string]domain.Donor{},
		children:     map[string]domain.Child{},
		sponsorships: map[string]domain.Sponsorship{},
		projects:     map[string]domain.Project{},
		donations:    map[string]domain.Donation{},
		unmapped:     map[string]domain.UnmappedPayment{},
		failed:       map[string]domain.FailedPayment{},
	}}
}

func (s *state) clone() state {
	cp := state{
		donors:       make(map[string]domain.Donor, len(s.donors)),
		children:     make(map[string]domain.Child, len(s.children)),
		sponsorships: make(map[string]domain.Sponsorship, len(s.sponsorships)),
		projects:     make(map[string]domain.Project, len(s.projects)),
		donations:    make(map[string]domain.Donation, len(s.donations)),
		rules:        append([]domain.MappingRule(nil), s.rules...),
		unmapped:     make(map[string]domain.UnmappedPayment, len(s.unmapped)),
		failed:       make(map[string]domain.FailedPayment, len(s.failed)),
	}
	for k, v := range s.donors {
		cp.donors[k] = v
	}
	for k, v := range s.children {
		cp.children[k] = v
	}
	for k, v := range s.sponsorships {
		cp.sponsorships[k] = v
	}
	for k, v := range s.projects {
		cp.projects[k] = v
	}
	for k, v := range s.donations {
		cp.donations[k] = v
	}
	for k, v := range s.unmapped {
		cp.unmapped[k] = v
	}
	for k, v := range s.failed {
		cp.failed[k] = v
	}
	return cp
}

// InTx serializes transactions under the store mutex; the batch pipeline is
// single-writer anyway.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, st ports.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.st.clone()
	if err := fn(ctx, (*txStore)(s)); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// txStore exposes the same methods without re-locking.
type txStore Store

func newID() string { return uuid.NewString() }

// ---- Donors ----

func (s *Store) DonorByCustomerID(ctx context.Context, customerID string) (*domain.Donor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*txStore)(s).DonorByCustomerID(ctx, customerID)
}

func (s *txStore) DonorByCustomerID(_ context.Context, customerID string) (*domain.Donor, error) {
	for _, d := range s.st.donors {
		if d.CustomerID != nil && *d.CustomerID == customerID {
			cp := d
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) DonorByEmail(ctx context.Context, email string) (*domain.Donor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*txStore)(s).DonorByEmail(ctx, email)
}

func (s *txStore) DonorByEmail(_ context.Context, email string) (*domain.Donor, error) {
	for _, d := range s.st.donors {
		if strings.EqualFold(d.Email, email) {
			cp := d
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) CreateDonor(ctx context.Context, d *domain.Donor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*txStore)(s).CreateDonor(ctx, d)
}

func (s *txStore) CreateDonor(_ context.Context, d *domain.Donor) error {
	for _, ex := range s.st.donors {
		if strings.EqualFold(ex.Email, d.Email) {
			return errs.NewAlreadyExistsError("donor email already exists: " + d.Email)
		}
		if d.CustomerID != nil && ex.CustomerID != nil && *ex.CustomerID == *d.CustomerID {
			return errs.NewAlreadyExistsError("donor customer id already exists: " + *d.CustomerID)
		}
	}
	if d.ID == "" {
		d.ID = newID()
	}
	s.st.donors[d.ID] = *d
	return nil
}

func (s *Store) UpdateDonor(ctx context.Context, d *domain.Donor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*txStore)(s).UpdateDonor(ctx, d)
}

func (s *txStore) UpdateDonor(_ context.Context, d *domain.Donor) error {
	if _, ok := s.st.donors[d.ID]; !ok {
		return errs.NewNotFoundError("donor not found: " + d.ID)
	}
	s.st.donors[d.ID] = *d
	return nil
}

// ---- Children ----

func (s *Store) ChildByName(ctx context.Context, name string) (*domain.Child, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*txStore)(s).ChildByName(ctx, name)
}

func (s *txStore) ChildByName(_ context.Context, name string) (*domain.Child, error) {
	for _, c := range s.st.children {
		if strings.EqualFold(c.Name, name) {
			cp := c
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) CreateChild(ctx context.Context, c *domain.Child) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*txStore)(s).CreateChild(ctx, c)
}

func (s *txStore) CreateChild(_ context.Context, c *domain.Child) error {
	for _, ex := range s.st.children {
		if strings.EqualFold(ex.Name, c.Name) {
			return errs.NewAlreadyExistsError("child already exists: " + c.Name)
		}
	}
	if c.ID == "" {
		c.ID = newID()
	}
	s.st.children[c.ID] = *c
	return nil
}

// ---- Sponsorships ----

func (s *Store) ActiveSponsorship(ctx context.Context, donorID, childID string, monthlyAmount int64) (*domain.Sponsorship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*txStore)(s).ActiveSponsorship(ctx, donorID, childID, monthlyAmount)
}

func (s *txStore) ActiveSponsorship(_ context.Context, donorID, childID string, monthlyAmount int64) (*domain.Sponsorship, error) {
	for _, sp := range s.st.sponsorships {
		if sp.DonorID == donorID && sp.ChildID == childID && sp.MonthlyAmount == monthlyAmount && sp.EndDate == nil {
			cp := sp
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) SponsorshipProjectForChild(ctx context.Context, childID string) (*domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*txStore)(s).SponsorshipProjectForChild(ctx, childID)
}

func (s *txStore) SponsorshipProjectForChild(_ context.Context, childID string) (*domain.Project, error) {
	for _, sp := range s.st.sponsorships {
		if sp.ChildID != childID {
			continue
		}
		if p, ok := s.st.projects[sp.ProjectID]; ok {
			cp := p
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) CreateSponsorship(ctx context.Context, sp *domain.Sponsorship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*txStore)(s).CreateSponsorship(ctx, sp)
}

func (s *txStore) CreateSponsorship(_ context.Context, sp *domain.Sponsorship) error {
	if sp.EndDate == nil {
		for _, ex := range s.st.sponsorships {
			if ex.DonorID == sp.DonorID && ex.ChildID == sp.ChildID && ex.MonthlyAmount == sp.MonthlyAmount && ex.EndDate == nil {
				return errs.NewAlreadyExistsError("active sponsorship already exists")
			}
		}
	}
	if sp.ID == "" {
		sp.ID = newID()
	}
	s.st.sponsorships[sp.ID] = *sp
	return nil
}

func (s *Store) EndSponsorship(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*txStore)(s).EndSponsorship(ctx, id, at)
}

func (s *txStore) EndSponsorship(_ context.Context, id string, at time.Time) error {
	sp, ok := s.st.sponsorships[id]
	if !ok {
		return errs.NewNotFoundError("sponsorship not found: " + id)
	}
	sp.EndDate = &at
	s.st.sponsorships[id] = sp
	return nil
}

// ---- Projects ----

func (s *Store) ProjectByID(ctx context.Context, id string) (*domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*txStore)(s).ProjectByID(ctx, id)
}

func (s *txStore) ProjectByID(_ context.Context, id string) (*domain.Project, error) {
	if p, ok := s.st.projects[id]; ok {
		cp := p
		return &cp, nil
	}
	return nil, nil
}

func (s *Store) ProjectByTitle(ctx context.Context, title string, typ domain.ProjectType) (*domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*txStore)(s).ProjectByTitle(ctx, title, typ)
}

func (s *txStore) ProjectByTitle(_ context.Context, title string, typ domain.ProjectType) (*domain.Project, error) {
	for _, p := range s.st.projects {
		if p.Type == typ && strings.EqualFold(p.Title, title) {
			cp := p
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) CreateProject(ctx context.Context, p *domain.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*txStore)(s).CreateProject(ctx, p)
}

func (s *txStore) CreateProject(_ context.Context, p *domain.Project) error {
	for _, ex := range s.st.projects {
		if ex.Type == p.Type && strings.EqualFold(ex.Title, p.Title) {
			return errs.NewAlreadyExistsError("project already exists: " + p.Title)
		}
	}
	if p.ID == "" {
		p.ID = newID()
	}
	s.st.projects[p.ID] = *p
	return nil
}

// ---- Donations ----

func (s *Store) DonationByTransactionID(ctx context.Context, transactionID string) (*domain.Donation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*txStore)(s).DonationByTransactionID(ctx, transactionID)
}

func (s *txStore) DonationByTransactionID(_ context.Context, transactionID string) (*domain.Donation, error) {
	for _, d := range s.st.donations {
		if d.TransactionID != nil && *d.TransactionID == transactionID {
			cp := d
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) CreateDonation(ctx context.Context, d *domain.Donation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*txStore)(s).CreateDonation(ctx, d)
}

func (s *txStore) CreateDonation(_ context.Context, d *domain.Donation) error {
	if d.TransactionID != nil {
		for _, ex := range s.st.donations {
			if ex.TransactionID != nil && *ex.TransactionID == *d.TransactionID {
				return errs.NewAlreadyExistsError("donation transaction already imported: " + *d.TransactionID)
			}
		}
	}
	if d.ID == "" {
		d.ID = newID()
	}
	s.st.donations[d.ID] = *d
	return nil
}

// ---- Mapping rules ----

func (s *Store) ActiveRules(ctx context.Context) ([]domain.MappingRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*txStore)(s).ActiveRules(ctx)
}

func (s *txStore) ActiveRules(_ context.Context) ([]domain.MappingRule, error) {
	var out []domain.MappingRule
	for _, r := range s.st.rules {
		if r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) AllRules(ctx context.Context) ([]domain.MappingRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*txStore)(s).AllRules(ctx)
}

func (s *txStore) AllRules(_ context.Context) ([]domain.MappingRule, error) {
	return append([]domain.MappingRule(nil), s.st.rules...), nil
}

func (s *Store) CreateRule(ctx context.Context, r *domain.MappingRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*txStore)(s).CreateRule(ctx, r)
}

func (s *txStore) CreateRule(_ context.Context, r *domain.MappingRule) error {
	if r.ID == "" {
		r.ID = newID()
	}
	s.st.rules = append(s.st.rules, *r)
	return nil
}

// ---- Unmapped payments ----

func (s *Store) UpsertUnmapped(ctx context.Context, u *domain.UnmappedPayment) (*domain.UnmappedPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*txStore)(s).UpsertUnmapped(ctx, u)
}

func (s *txStore) UpsertUnmapped(_ context.Context, u *domain.UnmappedPayment) (*domain.UnmappedPayment, error) {
	if u.TransactionID != nil {
		for id, ex := range s.st.unmapped {
			if ex.TransactionID != nil && *ex.TransactionID == *u.TransactionID {
				upd := *u
				upd.ID = id
				upd.Status = ex.Status
				upd.DonationID = ex.DonationID
				upd.CreatedAt = ex.CreatedAt
				s.st.unmapped[id] = upd
				return &upd, nil
			}
		}
	}
	cp := *u
	if cp.ID == "" {
		cp.ID = newID()
	}
	s.st.unmapped[cp.ID] = cp
	return &cp, nil
}

func (s *Store) UnmappedByID(ctx context.Context, id string) (*domain.UnmappedPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*txStore)(s).UnmappedByID(ctx, id)
}

func (s *txStore) UnmappedByID(_ context.Context, id string) (*domain.UnmappedPayment, error) {
	if u, ok := s.st.unmapped[id]; ok {
		cp := u
		return &cp, nil
	}
	return nil, nil
}

func (s *Store) PendingUnmapped(ctx context.Context) ([]domain.UnmappedPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*txStore)(s).PendingUnmapped(ctx)
}

func (s *txStore) PendingUnmapped(_ context.Context) ([]domain.UnmappedPayment, error) {
	var out []domain.UnmappedPayment
	for _, u := range s.st.unmapped {
		if u.Status == domain.UnmappedPending {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *Store) UpdateUnmapped(ctx context.Context, u *domain.UnmappedPayment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*txStore)(s).UpdateUnmapped(ctx, u)
}

func (s *txStore) UpdateUnmapped(_ context.Context, u *domain.UnmappedPayment) error {
	if _, ok := s.st.unmapped[u.ID]; !ok {
		return errs.NewNotFoundError("unmapped payment not found: " + u.ID)
	}
	s.st.unmapped[u.ID] = *u
	return nil
}

// ---- Failed payments ----

func (s *Store) RecordFailedPayment(ctx context.Context, f *domain.FailedPayment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*txStore)(s).RecordFailedPayment(ctx, f)
}

func (s *txStore) RecordFailedPayment(_ context.Context, f *domain.FailedPayment) error {
	if f.TransactionID != nil {
		for _, ex := range s.st.failed {
			if ex.TransactionID != nil && *ex.TransactionID == *f.TransactionID {
				return nil
			}
		}
	}
	cp := *f
	if cp.ID == "" {
		cp.ID = newID()
	}
	s.st.failed[cp.ID] = cp
	return nil
}

func (s *Store) ListFailedPayments(ctx context.Context) ([]domain.FailedPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*txStore)(s).ListFailedPayments(ctx)
}

func (s *txStore) ListFailedPayments(_ context.Context) ([]domain.FailedPayment, error) {
	out := make([]domain.FailedPayment, 0, len(s.st.failed))
	for _, f := range s.st.failed {
		out = append(out, f)
	}
	return out, nil
}

// Counts reports entity totals; test helper for state assertions.
func (s *Store) Counts() (donors, children, sponsorships, projects, donations int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.donors), len(s.st.children), len(s.st.sponsorships), len(s.st.projects), len(s.st.donations)
}

var _ ports.TxStore = (*Store)(nil)
var _ ports.Store = (*txStore)(nil)
