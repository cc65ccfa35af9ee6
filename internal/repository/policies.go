package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"autoguardian/server/internal/model"
)

const policyColumns = `id, user_id, vehicle_id, policy_type, insurer, policy_number,
	start_date, end_date, premium_total, premium_installments, coverage, deductible,
	exclusions, documents, raw_text, created_at, updated_at`

func scanPolicy(row pgx.Row) (model.Policy, error) {
	var p model.Policy
	var installments, coverage, exclusions, documents []byte
	err := row.Scan(
		&p.ID, &p.UserID, &p.VehicleID, &p.PolicyType, &p.Insurer, &p.PolicyNumber,
		&p.StartDate, &p.EndDate, &p.PremiumTotal, &installments, &coverage, &p.Deductible,
		&exclusions, &documents, &p.RawText, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return p, err
	}
	if err := unmarshalJSON(installments, &p.PremiumInstallments); err != nil {
		return p, err
	}
	if err := unmarshalJSON(coverage, &p.Coverage); err != nil {
		return p, err
	}
	if err := unmarshalJSON(exclusions, &p.Exclusions); err != nil {
		return p, err
	}
	if err := unmarshalJSON(documents, &p.Documents); err != nil {
		return p, err
	}
	return p, nil
}

func (s *Store) CreatePolicy(ctx context.Context, p model.Policy) error {
	installments, err := marshalJSON(p.PremiumInstallments)
	if err != nil {
		return err
	}
	coverage, err := marshalJSON(p.Coverage)
	if err != nil {
		return err
	}
	exclusions, err := marshalJSON(p.Exclusions)
	if err != nil {
		return err
	}
	documents, err := marshalJSON(p.Documents)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO policies (id, user_id, vehicle_id, policy_type, insurer, policy_number,
			start_date, end_date, premium_total, premium_installments, coverage, deductible,
			exclusions, documents, raw_text, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, p.ID, p.UserID, p.VehicleID, p.PolicyType, p.Insurer, p.PolicyNumber,
		p.StartDate, p.EndDate, p.PremiumTotal, installments, coverage, p.Deductible,
		exclusions, documents, p.RawText, p.CreatedAt, p.UpdatedAt)
	return err
}

func (s *Store) GetPolicy(ctx context.Context, userID, policyID string) (model.Policy, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+policyColumns+`
		FROM policies
		WHERE id = $1 AND user_id = $2
	`, policyID, userID)
	return scanPolicy(row)
}

type PolicyFilter struct {
	VehicleID  *string
	PolicyType *string
}

func (s *Store) ListPolicies(ctx context.Context, userID string, filter PolicyFilter) ([]model.Policy, error) {
	query := `SELECT ` + policyColumns + ` FROM policies WHERE user_id = $1`
	args := []any{userID}
	if filter.VehicleID != nil {
		args = append(args, *filter.VehicleID)
		query += fmt.Sprintf(" AND vehicle_id = $%d", len(args))
	}
	if filter.PolicyType != nil {
		args = append(args, *filter.PolicyType)
		query += fmt.Sprintf(" AND policy_type = $%d", len(args))
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	policies := make([]model.Policy, 0)
	for rows.Next() {
		policy, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, policy)
	}
	return policies, rows.Err()
}

type PolicyUpdate struct {
	PolicyType          *string
	Insurer             *string
	PolicyNumber        *string
	StartDate           *time.Time
	EndDate             *time.Time
	PremiumTotal        *float64
	PremiumInstallments *[]map[string]any
	Coverage            *map[string]any
	Deductible          *float64
	Exclusions          *[]string
	Documents           *[]string
	RawText             *string
}

func (s *Store) UpdatePolicy(ctx context.Context, userID, policyID string, update PolicyUpdate) (model.Policy, error) {
	b := &updateBuilder{}
	if update.PolicyType != nil {
		b.set("policy_type", *update.PolicyType)
	}
	if update.Insurer != nil {
		b.set("insurer", *update.Insurer)
	}
	if update.PolicyNumber != nil {
		b.set("policy_number", *update.PolicyNumber)
	}
	if update.StartDate != nil {
		b.set("start_date", *update.StartDate)
	}
	if update.EndDate != nil {
		b.set("end_date", *update.EndDate)
	}
	if update.PremiumTotal != nil {
		b.set("premium_total", *update.PremiumTotal)
	}
	if update.PremiumInstallments != nil {
		if err := b.setJSON("premium_installments", *update.PremiumInstallments); err != nil {
			return model.Policy{}, err
		}
	}
	if update.Coverage != nil {
		if err := b.setJSON("coverage", *update.Coverage); err != nil {
			return model.Policy{}, err
		}
	}
	if update.Deductible != nil {
		b.set("deductible", *update.Deductible)
	}
	if update.Exclusions != nil {
		if err := b.setJSON("exclusions", *update.Exclusions); err != nil {
			return model.Policy{}, err
		}
	}
	if update.Documents != nil {
		if err := b.setJSON("documents", *update.Documents); err != nil {
			return model.Policy{}, err
		}
	}
	if update.RawText != nil {
		b.set("raw_text", *update.RawText)
	}
	b.set("updated_at", time.Now().UTC())

	b.args = append(b.args, policyID, userID)
	tag, err := s.pool.Exec(ctx, b.query("policies", whereIDAndOwner(len(b.args))), b.args...)
	if err != nil {
		return model.Policy{}, err
	}
	if tag.RowsAffected() == 0 {
		return model.Policy{}, pgx.ErrNoRows
	}
	return s.GetPolicy(ctx, userID, policyID)
}

// DeletePolicy cascades to the reminders generated from the policy and the
// offers quoted against it, all within one transaction.
func (s *Store) DeletePolicy(ctx context.Context, userID, policyID string) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM reminders WHERE policy_id = $1 AND user_id = $2`, policyID, userID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM offers WHERE base_policy_id = $1 AND user_id = $2`, policyID, userID); err != nil {
			return err
		}
		deleted, err := tx.Exec(ctx, `DELETE FROM policies WHERE id = $1 AND user_id = $2`, policyID, userID)
		if err != nil {
			return err
		}
		if deleted.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		return nil
	})
}
