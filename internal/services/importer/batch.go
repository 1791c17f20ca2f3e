package importer

import (
	"context"

	"sponsorhub/internal/domain"
	"sponsorhub/pkg/logger"
)

// maxBatchErrors caps the error detail kept per batch; counts stay exact.
const maxBatchErrors = 100

// ImportAll drives ImportRow over a whole export. Rows are independent: one
// failure is recorded and the loop moves on. Row numbers are 1-based to match
// what operators see in their spreadsheet.
func (s *Service) ImportAll(ctx context.Context, rows []domain.PaymentRow) domain.BatchResult {
	log := logger.FromContext(ctx)
	var result domain.BatchResult

	if err := s.RefreshRules(ctx); err != nil {
		log.Warn("rule snapshot failed, using built-in classifier only", "err", err)
	}

	for i, row := range rows {
		res := s.ImportRow(ctx, row)
		switch res.Outcome {
		case domain.RowImported:
			result.Imported += len(res.Donations)
		case domain.RowSkipped:
			result.Skipped++
		case domain.RowQueued:
			result.Queued++
		case domain.RowFailed:
			result.Failed++
			if len(result.Errors) < maxBatchErrors {
				result.Errors = append(result.Errors, domain.RowError{
					Row:           i + 1,
					Message:       res.Err.Error(),
					Description:   row.Description,
					AmountMinor:   row.AmountMinor,
					TransactionID: row.TransactionID,
				})
			}
		}
	}

	log.Info("batch import finished",
		"rows", len(rows),
		"imported", result.Imported,
		"skipped", result.Skipped,
		"queued", result.Queued,
		"failed", result.Failed,
	)
	return result
}
