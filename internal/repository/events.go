package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"autoguardian/server/internal/model"
)

const eventColumns = `id, user_id, vehicle_id, type, date, mileage_km, cost_total,
	workshop_name, notes, attachments, created_at, updated_at`

func scanEvent(row pgx.Row) (model.Event, error) {
	var e model.Event
	var attachments []byte
	err := row.Scan(
		&e.ID, &e.UserID, &e.VehicleID, &e.Type, &e.Date, &e.MileageKM, &e.CostTotal,
		&e.WorkshopName, &e.Notes, &attachments, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return e, err
	}
	if err := unmarshalJSON(attachments, &e.Attachments); err != nil {
		return e, err
	}
	return e, nil
}

func (s *Store) CreateEvent(ctx context.Context, e model.Event) error {
	attachments, err := marshalJSON(e.Attachments)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO events (id, user_id, vehicle_id, type, date, mileage_km, cost_total,
			workshop_name, notes, attachments, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, e.ID, e.UserID, e.VehicleID, e.Type, e.Date, e.MileageKM, e.CostTotal,
		e.WorkshopName, e.Notes, attachments, e.CreatedAt, e.UpdatedAt)
	return err
}

func (s *Store) GetEvent(ctx context.Context, userID, eventID string) (model.Event, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE id = $1 AND user_id = $2
	`, eventID, userID)
	return scanEvent(row)
}

type EventFilter struct {
	VehicleID *string
	Type      *string
}

func (s *Store) ListEvents(ctx context.Context, userID string, filter EventFilter) ([]model.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE user_id = $1`
	args := []any{userID}
	if filter.VehicleID != nil {
		args = append(args, *filter.VehicleID)
		query += fmt.Sprintf(" AND vehicle_id = $%d", len(args))
	}
	if filter.Type != nil {
		args = append(args, *filter.Type)
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	query += " ORDER BY date DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]model.Event, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

type EventUpdate struct {
	Type         *string
	Date         *time.Time
	MileageKM    *int
	CostTotal    *float64
	WorkshopName *string
	Notes        *string
	Attachments  *[]string
}

func (s *Store) UpdateEvent(ctx context.Context, userID, eventID string, update EventUpdate) (model.Event, error) {
	b := &updateBuilder{}
	if update.Type != nil {
		b.set("type", *update.Type)
	}
	if update.Date != nil {
		b.set("date", *update.Date)
	}
	if update.MileageKM != nil {
		b.set("mileage_km", *update.MileageKM)
	}
	if update.CostTotal != nil {
		b.set("cost_total", *update.CostTotal)
	}
	if update.WorkshopName != nil {
		b.set("workshop_name", *update.WorkshopName)
	}
	if update.Notes != nil {
		b.set("notes", *update.Notes)
	}
	if update.Attachments != nil {
		if err := b.setJSON("attachments", *update.Attachments); err != nil {
			return model.Event{}, err
		}
	}
	b.set("updated_at", time.Now().UTC())

	b.args = append(b.args, eventID, userID)
	tag, err := s.pool.Exec(ctx, b.query("events", whereIDAndOwner(len(b.args))), b.args...)
	if err != nil {
		return model.Event{}, err
	}
	if tag.RowsAffected() == 0 {
		return model.Event{}, pgx.ErrNoRows
	}
	return s.GetEvent(ctx, userID, eventID)
}

// DeleteEvent cascades to reminders generated from the event.
func (s *Store) DeleteEvent(ctx context.Context, userID, eventID string) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM reminders WHERE event_id = $1 AND user_id = $2`, eventID, userID); err != nil {
			return err
		}
		deleted, err := tx.Exec(ctx, `DELETE FROM events WHERE id = $1 AND user_id = $2`, eventID, userID)
		if err != nil {
			return err
		}
		if deleted.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		return nil
	})
}
