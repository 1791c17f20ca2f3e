package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"sponsorhub/internal/domain"
)

const ruleColumns = `id, pattern, match_type, project_title, project_type, child_template, priority, active, created_at`

func scanRules(rows pgx.Rows) ([]domain.MappingRule, error) {
	defer rows.Close()
	var out []domain.MappingRule
	for rows.Next() {
		var r domain.MappingRule
		if err := rows.Scan(&r.ID, &r.Pattern, &r.Match, &r.ProjectTitle, &r.ProjectType, &r.ChildTemplate, &r.Priority, &r.Active, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ActiveRules returns rules in creation order; priority ordering is the rule
// engine's job so in-memory and Postgres behave identically.
func (s *store) ActiveRules(ctx context.Context) ([]domain.MappingRule, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+ruleColumns+` FROM mapping_rules WHERE active ORDER BY created_at, id
	`)
	if err != nil {
		return nil, err
	}
	return scanRules(rows)
}

func (s *store) AllRules(ctx context.Context) ([]domain.MappingRule, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+ruleColumns+` FROM mapping_rules ORDER BY created_at, id
	`)
	if err != nil {
		return nil, err
	}
	return scanRules(rows)
}

func (s *store) CreateRule(ctx context.Context, r *domain.MappingRule) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	_, err := s.q.Exec(ctx, `
		INSERT INTO mapping_rules (id, pattern, match_type, project_title, project_type, child_template, priority, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, r.ID, r.Pattern, r.Match, r.ProjectTitle, r.ProjectType, r.ChildTemplate, r.Priority, r.Active, r.CreatedAt)
	return mapErr(err)
}
