package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"autoguardian/server/internal/model"
)

const offerColumns = `id, user_id, vehicle_id, base_policy_id, provider, premium_total,
	coverage, deductible, assistance_level, link_out, score_breakdown, created_at, updated_at`

func scanOffer(row pgx.Row) (model.Offer, error) {
	var o model.Offer
	var coverage, breakdown []byte
	err := row.Scan(
		&o.ID, &o.UserID, &o.VehicleID, &o.BasePolicyID, &o.Provider, &o.PremiumTotal,
		&coverage, &o.Deductible, &o.AssistanceLevel, &o.LinkOut, &breakdown,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}
	if err := unmarshalJSON(coverage, &o.Coverage); err != nil {
		return o, err
	}
	if err := unmarshalJSON(breakdown, &o.ScoreBreakdown); err != nil {
		return o, err
	}
	return o, nil
}

// CreateOffers persists one quote batch atomically: all offers commit or none
// do, so a caller never observes a partial offer set for one quote call.
func (s *Store) CreateOffers(ctx context.Context, offers []model.Offer) error {
	if len(offers) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx pgx.Tx) error {
		for _, o := range offers {
			coverage, err := marshalJSON(o.Coverage)
			if err != nil {
				return err
			}
			breakdown, err := marshalJSON(o.ScoreBreakdown)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO offers (id, user_id, vehicle_id, base_policy_id, provider, premium_total,
					coverage, deductible, assistance_level, link_out, score_breakdown, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			`, o.ID, o.UserID, o.VehicleID, o.BasePolicyID, o.Provider, o.PremiumTotal,
				coverage, o.Deductible, o.AssistanceLevel, o.LinkOut, breakdown,
				o.CreatedAt, o.UpdatedAt); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) GetOffer(ctx context.Context, userID, offerID string) (model.Offer, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+offerColumns+`
		FROM offers
		WHERE id = $1 AND user_id = $2
	`, offerID, userID)
	return scanOffer(row)
}

func (s *Store) ListOffersByVehicle(ctx context.Context, userID, vehicleID string) ([]model.Offer, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+offerColumns+`
		FROM offers
		WHERE user_id = $1 AND vehicle_id = $2
		ORDER BY created_at DESC
	`, userID, vehicleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	offers := make([]model.Offer, 0)
	for rows.Next() {
		offer, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		offers = append(offers, offer)
	}
	return offers, rows.Err()
}
