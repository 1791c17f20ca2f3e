package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"sponsorhub/internal/domain"
)

func (s *store) DonationByTransactionID(ctx context.Context, transactionID string) (*domain.Donation, error) {
	var d domain.Donation
	err := s.q.QueryRow(ctx, `
		SELECT id, donor_id, project_id, sponsorship_id, amount_minor, paid_at, transaction_id, created_at
		FROM donations WHERE transaction_id = $1
	`, transactionID).Scan(&d.ID, &d.DonorID, &d.ProjectID, &d.SponsorshipID, &d.AmountMinor, &d.PaidAt, &d.TransactionID, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *store) CreateDonation(ctx context.Context, d *domain.Donation) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	_, err := s.q.Exec(ctx, `
		INSERT INTO donations (id, donor_id, project_id, sponsorship_id, amount_minor, paid_at, transaction_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, d.ID, d.DonorID, d.ProjectID, d.SponsorshipID, d.AmountMinor, d.PaidAt, d.TransactionID, d.CreatedAt)
	return mapErr(err)
}

// FailedPaymentRepository

func (s *store) RecordFailedPayment(ctx context.Context, f *domain.FailedPayment) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	// ON CONFLICT keeps the ledger idempotent per transaction id.
	_, err := s.q.Exec(ctx, `
		INSERT INTO failed_payments (id, transaction_id, description, amount_minor, payer_email, status, paid_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (transaction_id) WHERE transaction_id IS NOT NULL DO NOTHING
	`, f.ID, f.TransactionID, f.Description, f.AmountMinor, f.PayerEmail, f.Status, f.PaidAt, f.CreatedAt)
	return mapErr(err)
}

func (s *store) ListFailedPayments(ctx context.Context) ([]domain.FailedPayment, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, transaction_id, description, amount_minor, payer_email, status, paid_at, created_at
		FROM failed_payments ORDER BY paid_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.FailedPayment
	for rows.Next() {
		var f domain.FailedPayment
		if err := rows.Scan(&f.ID, &f.TransactionID, &f.Description, &f.AmountMinor, &f.PayerEmail, &f.Status, &f.PaidAt, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
