package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"sponsorhub/internal/domain"
)

const unmappedColumns = `id, transaction_id, description, amount_minor, payer_name, payer_email, customer_id, paid_at, status, donation_id, created_at`

func scanUnmapped(row pgx.Row) (*domain.UnmappedPayment, error) {
	var u domain.UnmappedPayment
	err := row.Scan(&u.ID, &u.TransactionID, &u.Description, &u.AmountMinor, &u.PayerName, &u.PayerEmail, &u.CustomerID, &u.PaidAt, &u.Status, &u.DonationID, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UpsertUnmapped refreshes the row details on conflict but never touches the
// review status or the donation back-reference an admin may already have set.
func (s *store) UpsertUnmapped(ctx context.Context, u *domain.UnmappedPayment) (*domain.UnmappedPayment, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return scanUnmapped(s.q.QueryRow(ctx, `
		INSERT INTO unmapped_payments (id, transaction_id, description, amount_minor, payer_name, payer_email, customer_id, paid_at, status, donation_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (transaction_id) WHERE transaction_id IS NOT NULL DO UPDATE SET
			description = EXCLUDED.description,
			amount_minor = EXCLUDED.amount_minor,
			payer_name = EXCLUDED.payer_name,
			payer_email = EXCLUDED.payer_email,
			customer_id = EXCLUDED.customer_id,
			paid_at = EXCLUDED.paid_at
		RETURNING `+unmappedColumns+`
	`, u.ID, u.TransactionID, u.Description, u.AmountMinor, u.PayerName, u.PayerEmail, u.CustomerID, u.PaidAt, u.Status, u.DonationID, u.CreatedAt))
}

func (s *store) UnmappedByID(ctx context.Context, id string) (*domain.UnmappedPayment, error) {
	return scanUnmapped(s.q.QueryRow(ctx, `
		SELECT `+unmappedColumns+` FROM unmapped_payments WHERE id = $1
	`, id))
}

func (s *store) PendingUnmapped(ctx context.Context) ([]domain.UnmappedPayment, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+unmappedColumns+` FROM unmapped_payments WHERE status = 'pending' ORDER BY paid_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.UnmappedPayment
	for rows.Next() {
		var u domain.UnmappedPayment
		if err := rows.Scan(&u.ID, &u.TransactionID, &u.Description, &u.AmountMinor, &u.PayerName, &u.PayerEmail, &u.CustomerID, &u.PaidAt, &u.Status, &u.DonationID, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *store) UpdateUnmapped(ctx context.Context, u *domain.UnmappedPayment) error {
	_, err := s.q.Exec(ctx, `
		UPDATE unmapped_payments SET status = $2, donation_id = $3 WHERE id = $1
	`, u.ID, u.Status, u.DonationID)
	return mapErr(err)
}
