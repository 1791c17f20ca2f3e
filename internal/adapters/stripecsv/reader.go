package stripecsv

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"sponsorhub/internal/domain"
)

// Reader parses Stripe payment-export CSVs into PaymentRows. Columns are
// addressed by header name, so operators can reorder or add columns in the
// dashboard export without breaking imports.
//
// A malformed cell fails its row, not the file: ReadAll returns every row it
// could parse plus a RowError per reject, and the batch summary reports both.

var createdLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC3339,
}

type columns struct {
	id, description, amount, currency, status        int
	customerID, customerEmail, customerName, created int
	campaign                                         int
}

// ReadAll consumes the export. Row numbers in errors are 1-based data rows
// (the header is row 0), matching the numbers the batch importer reports.
func ReadAll(r io.Reader) ([]domain.PaymentRow, []domain.RowError, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	cols, err := mapColumns(header)
	if err != nil {
		return nil, nil, err
	}

	var rows []domain.PaymentRow
	var rejects []domain.RowError
	for n := 1; ; n++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			rejects = append(rejects, domain.RowError{Row: n, Message: err.Error()})
			continue
		}
		row, err := parseRow(record, cols)
		if err != nil {
			rejects = append(rejects, domain.RowError{
				Row:         n,
				Message:     err.Error(),
				Description: cell(record, cols.description),
			})
			continue
		}
		rows = append(rows, row)
	}
	return rows, rejects, nil
}

func mapColumns(header []string) (columns, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	find := func(names ...string) int {
		for _, n := range names {
			if i, ok := idx[n]; ok {
				return i
			}
		}
		return -1
	}
	cols := columns{
		id:            find("id"),
		description:   find("description"),
		amount:        find("amount"),
		currency:      find("currency"),
		status:        find("status"),
		customerID:    find("customer id", "customer"),
		customerEmail: find("customer email", "email"),
		customerName:  find("customer description", "customer name", "name"),
		created:       find("created (utc)", "created"),
		campaign:      find("campaign (metadata)", "campaign"),
	}
	for _, req := range []struct {
		name string
		i    int
	}{
		{"Description", cols.description},
		{"Amount", cols.amount},
		{"Status", cols.status},
	} {
		if req.i < 0 {
			return cols, fmt.Errorf("export is missing required column %q", req.name)
		}
	}
	return cols, nil
}

func parseRow(record []string, cols columns) (domain.PaymentRow, error) {
	row := domain.PaymentRow{
		TransactionID: cell(record, cols.id),
		Description:   cell(record, cols.description),
		Currency:      strings.ToLower(cell(record, cols.currency)),
		Status:        cell(record, cols.status),
		CustomerID:    cell(record, cols.customerID),
		PayerEmail:    cell(record, cols.customerEmail),
		PayerName:     cell(record, cols.customerName),
		CampaignCode:  cell(record, cols.campaign),
	}

	amount, err := parseAmount(cell(record, cols.amount))
	if err != nil {
		return row, err
	}
	row.AmountMinor = amount

	if raw := cell(record, cols.created); raw != "" {
		at, err := parseCreated(raw)
		if err != nil {
			return row, err
		}
		row.PaidAt = at
	}
	return row, nil
}

// parseAmount converts the export's decimal string ("100.00") to minor units
// exactly; anything that does not land on a whole cent is rejected.
func parseAmount(raw string) (int64, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "$"))
	if raw == "" {
		return 0, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("bad amount %q: %w", raw, err)
	}
	minor := d.Shift(2)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("amount %q has sub-cent precision", raw)
	}
	return minor.IntPart(), nil
}

func parseCreated(raw string) (time.Time, error) {
	for _, layout := range createdLayouts {
		if at, err := time.Parse(layout, raw); err == nil {
			return at.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("bad created date %q", raw)
}

func cell(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}
