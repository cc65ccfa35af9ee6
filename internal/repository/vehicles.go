package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"autoguardian/server/internal/model"
)

const vehicleColumns = `id, user_id, make, model, year, vin, registration, engine, fuel_type,
	mileage_km, first_registration_date, photos, service_interval_months, service_interval_km,
	created_at, updated_at`

func scanVehicle(row pgx.Row) (model.Vehicle, error) {
	var v model.Vehicle
	var photos []byte
	err := row.Scan(
		&v.ID, &v.UserID, &v.Make, &v.Model, &v.Year, &v.VIN, &v.Registration,
		&v.Engine, &v.FuelType, &v.MileageKM, &v.FirstRegistrationDate, &photos,
		&v.ServiceIntervalMonths, &v.ServiceIntervalKM, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return v, err
	}
	if err := unmarshalJSON(photos, &v.Photos); err != nil {
		return v, err
	}
	return v, nil
}

func (s *Store) CreateVehicle(ctx context.Context, v model.Vehicle) error {
	photos, err := marshalJSON(v.Photos)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO vehicles (id, user_id, make, model, year, vin, registration, engine, fuel_type,
			mileage_km, first_registration_date, photos, service_interval_months, service_interval_km,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, v.ID, v.UserID, v.Make, v.Model, v.Year, v.VIN, v.Registration, v.Engine, v.FuelType,
		v.MileageKM, v.FirstRegistrationDate, photos, v.ServiceIntervalMonths, v.ServiceIntervalKM,
		v.CreatedAt, v.UpdatedAt)
	return err
}

func (s *Store) GetVehicle(ctx context.Context, userID, vehicleID string) (model.Vehicle, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+vehicleColumns+`
		FROM vehicles
		WHERE id = $1 AND user_id = $2
	`, vehicleID, userID)
	return scanVehicle(row)
}

func (s *Store) ListVehicles(ctx context.Context, userID string) ([]model.Vehicle, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+vehicleColumns+`
		FROM vehicles
		WHERE user_id = $1
		ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	vehicles := make([]model.Vehicle, 0)
	for rows.Next() {
		vehicle, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		vehicles = append(vehicles, vehicle)
	}
	return vehicles, rows.Err()
}

type VehicleUpdate struct {
	Make                  *string
	Model                 *string
	Year                  *int
	VIN                   *string
	Registration          *string
	Engine                *string
	FuelType              *string
	MileageKM             *int
	FirstRegistrationDate *time.Time
	Photos                *[]string
	ServiceIntervalMonths *int
	ServiceIntervalKM     *int
}

func (s *Store) UpdateVehicle(ctx context.Context, userID, vehicleID string, update VehicleUpdate) (model.Vehicle, error) {
	b := &updateBuilder{}
	if update.Make != nil {
		b.set("make", *update.Make)
	}
	if update.Model != nil {
		b.set("model", *update.Model)
	}
	if update.Year != nil {
		b.set("year", *update.Year)
	}
	if update.VIN != nil {
		b.set("vin", *update.VIN)
	}
	if update.Registration != nil {
		b.set("registration", *update.Registration)
	}
	if update.Engine != nil {
		b.set("engine", *update.Engine)
	}
	if update.FuelType != nil {
		b.set("fuel_type", *update.FuelType)
	}
	if update.MileageKM != nil {
		b.set("mileage_km", *update.MileageKM)
	}
	if update.FirstRegistrationDate != nil {
		b.set("first_registration_date", *update.FirstRegistrationDate)
	}
	if update.Photos != nil {
		if err := b.setJSON("photos", *update.Photos); err != nil {
			return model.Vehicle{}, err
		}
	}
	if update.ServiceIntervalMonths != nil {
		b.set("service_interval_months", *update.ServiceIntervalMonths)
	}
	if update.ServiceIntervalKM != nil {
		b.set("service_interval_km", *update.ServiceIntervalKM)
	}
	b.set("updated_at", time.Now().UTC())

	b.args = append(b.args, vehicleID, userID)
	where := whereIDAndOwner(len(b.args))
	tag, err := s.pool.Exec(ctx, b.query("vehicles", where), b.args...)
	if err != nil {
		return model.Vehicle{}, err
	}
	if tag.RowsAffected() == 0 {
		return model.Vehicle{}, pgx.ErrNoRows
	}
	return s.GetVehicle(ctx, userID, vehicleID)
}

// DeleteVehicle removes the vehicle and everything hanging off it: policies,
// events, offers, and any reminder generated from the vehicle or one of its
// policies or events. All-or-nothing within one transaction.
func (s *Store) DeleteVehicle(ctx context.Context, userID, vehicleID string) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			DELETE FROM reminders
			WHERE user_id = $2 AND (
				vehicle_id = $1
				OR policy_id IN (SELECT id FROM policies WHERE vehicle_id = $1 AND user_id = $2)
				OR event_id IN (SELECT id FROM events WHERE vehicle_id = $1 AND user_id = $2)
			)
		`, vehicleID, userID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM offers WHERE user_id = $2 AND (vehicle_id = $1 OR base_policy_id IN (SELECT id FROM policies WHERE vehicle_id = $1 AND user_id = $2))`, vehicleID, userID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM events WHERE vehicle_id = $1 AND user_id = $2`, vehicleID, userID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM policies WHERE vehicle_id = $1 AND user_id = $2`, vehicleID, userID); err != nil {
			return err
		}
		deleted, err := tx.Exec(ctx, `DELETE FROM vehicles WHERE id = $1 AND user_id = $2`, vehicleID, userID)
		if err != nil {
			return err
		}
		if deleted.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		return nil
	})
}
