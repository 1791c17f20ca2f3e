package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"sponsorhub/internal/domain"
)

// DonorRepository

const donorColumns = `id, name, email, phone, customer_id, last_payment_at, created_at`

func scanDonor(row pgx.Row) (*domain.Donor, error) {
	var d domain.Donor
	err := row.Scan(&d.ID, &d.Name, &d.Email, &d.Phone, &d.CustomerID, &d.LastPaymentAt, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *store) DonorByCustomerID(ctx context.Context, customerID string) (*domain.Donor, error) {
	return scanDonor(s.q.QueryRow(ctx, `
		SELECT `+donorColumns+` FROM donors WHERE customer_id = $1
	`, customerID))
}

func (s *store) DonorByEmail(ctx context.Context, email string) (*domain.Donor, error) {
	return scanDonor(s.q.QueryRow(ctx, `
		SELECT `+donorColumns+` FROM donors WHERE lower(email) = lower($1)
	`, email))
}

func (s *store) CreateDonor(ctx context.Context, d *domain.Donor) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	_, err := s.q.Exec(ctx, `
		INSERT INTO donors (id, name, email, phone, customer_id, last_payment_at, created_at)
		VALUES ($1, $2, lower($3), $4, $5, $6, $7)
	`, d.ID, d.Name, d.Email, d.Phone, d.CustomerID, d.LastPaymentAt, d.CreatedAt)
	return mapErr(err)
}

func (s *store) UpdateDonor(ctx context.Context, d *domain.Donor) error {
	_, err := s.q.Exec(ctx, `
		UPDATE donors SET name = $2, email = lower($3), phone = $4, customer_id = $5, last_payment_at = $6
		WHERE id = $1
	`, d.ID, d.Name, d.Email, d.Phone, d.CustomerID, d.LastPaymentAt)
	return mapErr(err)
}

// ChildRepository

func (s *store) ChildByName(ctx context.Context, name string) (*domain.Child, error) {
	var c domain.Child
	err := s.q.QueryRow(ctx, `
		SELECT id, name, bio, created_at FROM children WHERE lower(name) = lower($1)
	`, name).Scan(&c.ID, &c.Name, &c.Bio, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *store) CreateChild(ctx context.Context, c *domain.Child) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := s.q.Exec(ctx, `
		INSERT INTO children (id, name, bio, created_at) VALUES ($1, $2, $3, $4)
	`, c.ID, c.Name, c.Bio, c.CreatedAt)
	return mapErr(err)
}

// ProjectRepository

func scanProject(row pgx.Row) (*domain.Project, error) {
	var p domain.Project
	err := row.Scan(&p.ID, &p.Title, &p.Type, &p.System, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *store) ProjectByID(ctx context.Context, id string) (*domain.Project, error) {
	return scanProject(s.q.QueryRow(ctx, `
		SELECT id, title, type, is_system, created_at FROM projects WHERE id = $1
	`, id))
}

func (s *store) ProjectByTitle(ctx context.Context, title string, typ domain.ProjectType) (*domain.Project, error) {
	return scanProject(s.q.QueryRow(ctx, `
		SELECT id, title, type, is_system, created_at FROM projects
		WHERE lower(title) = lower($1) AND type = $2
	`, title, typ))
}

func (s *store) CreateProject(ctx context.Context, p *domain.Project) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	_, err := s.q.Exec(ctx, `
		INSERT INTO projects (id, title, type, is_system, created_at) VALUES ($1, $2, $3, $4, $5)
	`, p.ID, p.Title, p.Type, p.System, p.CreatedAt)
	return mapErr(err)
}
