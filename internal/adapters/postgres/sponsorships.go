package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"sponsorhub/internal/domain"
	"sponsorhub/internal/errs"
)

const sponsorshipColumns = `id, donor_id, child_id, project_id, monthly_amount, start_date, end_date, created_at`

func scanSponsorship(row pgx.Row) (*domain.Sponsorship, error) {
	var sp domain.Sponsorship
	err := row.Scan(&sp.ID, &sp.DonorID, &sp.ChildID, &sp.ProjectID, &sp.MonthlyAmount, &sp.StartDate, &sp.EndDate, &sp.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sp, nil
}

func (s *store) ActiveSponsorship(ctx context.Context, donorID, childID string, monthlyAmount int64) (*domain.Sponsorship, error) {
	return scanSponsorship(s.q.QueryRow(ctx, `
		SELECT `+sponsorshipColumns+` FROM sponsorships
		WHERE donor_id = $1 AND child_id = $2 AND monthly_amount = $3 AND end_date IS NULL
	`, donorID, childID, monthlyAmount))
}

// SponsorshipProjectForChild walks child -> sponsorships -> project so every
// sponsorship of one child shares a single project.
func (s *store) SponsorshipProjectForChild(ctx context.Context, childID string) (*domain.Project, error) {
	return scanProject(s.q.QueryRow(ctx, `
		SELECT p.id, p.title, p.type, p.is_system, p.created_at
		FROM projects p
		JOIN sponsorships sp ON sp.project_id = p.id
		WHERE sp.child_id = $1
		ORDER BY sp.created_at
		LIMIT 1
	`, childID))
}

func (s *store) CreateSponsorship(ctx context.Context, sp *domain.Sponsorship) error {
	if sp.ID == "" {
		sp.ID = uuid.NewString()
	}
	_, err := s.q.Exec(ctx, `
		INSERT INTO sponsorships (id, donor_id, child_id, project_id, monthly_amount, start_date, end_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, sp.ID, sp.DonorID, sp.ChildID, sp.ProjectID, sp.MonthlyAmount, sp.StartDate, sp.EndDate, sp.CreatedAt)
	return mapErr(err)
}

func (s *store) EndSponsorship(ctx context.Context, id string, at time.Time) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE sponsorships SET end_date = $2 WHERE id = $1 AND end_date IS NULL
	`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.NewNotFoundError("active sponsorship not found: " + id)
	}
	return nil
}
