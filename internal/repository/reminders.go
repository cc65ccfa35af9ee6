package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"autoguardian/server/internal/model"
)

const reminderColumns = `id, user_id, entity_type, entity_id, vehicle_id, policy_id, event_id,
	due_date, channel, status, snooze_until, created_at, updated_at`

func scanReminder(row pgx.Row) (model.Reminder, error) {
	var r model.Reminder
	err := row.Scan(
		&r.ID, &r.UserID, &r.EntityType, &r.EntityID, &r.VehicleID, &r.PolicyID, &r.EventID,
		&r.DueDate, &r.Channel, &r.Status, &r.SnoozeUntil, &r.CreatedAt, &r.UpdatedAt,
	)
	return r, err
}

func (s *Store) CreateReminder(ctx context.Context, r model.Reminder) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO reminders (id, user_id, entity_type, entity_id, vehicle_id, policy_id, event_id,
			due_date, channel, status, snooze_until, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, r.ID, r.UserID, r.EntityType, r.EntityID, r.VehicleID, r.PolicyID, r.EventID,
		r.DueDate, r.Channel, r.Status, r.SnoozeUntil, r.CreatedAt, r.UpdatedAt)
	return err
}

func (s *Store) GetReminder(ctx context.Context, userID, reminderID string) (model.Reminder, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+reminderColumns+`
		FROM reminders
		WHERE id = $1 AND user_id = $2
	`, reminderID, userID)
	return scanReminder(row)
}

func (s *Store) ListReminders(ctx context.Context, userID string, status *string) ([]model.Reminder, error) {
	query := `SELECT ` + reminderColumns + ` FROM reminders WHERE user_id = $1`
	args := []any{userID}
	if status != nil {
		args = append(args, *status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY due_date ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reminders := make([]model.Reminder, 0)
	for rows.Next() {
		reminder, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		reminders = append(reminders, reminder)
	}
	return reminders, rows.Err()
}

type ReminderUpdate struct {
	Channel     *string
	Status      *string
	SnoozeUntil *time.Time
}

func (s *Store) UpdateReminder(ctx context.Context, userID, reminderID string, update ReminderUpdate) (model.Reminder, error) {
	b := &updateBuilder{}
	if update.Channel != nil {
		b.set("channel", *update.Channel)
	}
	if update.Status != nil {
		b.set("status", *update.Status)
	}
	if update.SnoozeUntil != nil {
		b.set("snooze_until", *update.SnoozeUntil)
	}
	b.set("updated_at", time.Now().UTC())

	b.args = append(b.args, reminderID, userID)
	tag, err := s.pool.Exec(ctx, b.query("reminders", whereIDAndOwner(len(b.args))), b.args...)
	if err != nil {
		return model.Reminder{}, err
	}
	if tag.RowsAffected() == 0 {
		return model.Reminder{}, pgx.ErrNoRows
	}
	return s.GetReminder(ctx, userID, reminderID)
}

func (s *Store) DeleteReminder(ctx context.Context, userID, reminderID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM reminders WHERE id = $1 AND user_id = $2`, reminderID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// CreateDuePolicyReminders inserts one pending reminder per policy whose end
// date falls within the lead window and has no reminder yet. Used by the
// expiry sweep job; returns the number of reminders created.
func (s *Store) CreateDuePolicyReminders(ctx context.Context, now time.Time, lead time.Duration) (int64, error) {
	windowEnd := now.Add(lead)
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO reminders (id, user_id, entity_type, entity_id, vehicle_id, policy_id, event_id,
			due_date, channel, status, snooze_until, created_at, updated_at)
		SELECT gen_random_uuid(), p.user_id, 'policy', p.id, p.vehicle_id, p.id, NULL,
			p.end_date, 'push', 'pending', NULL, $3, $3
		FROM policies p
		WHERE p.end_date >= $1 AND p.end_date <= $2
			AND NOT EXISTS (SELECT 1 FROM reminders r WHERE r.policy_id = p.id)
	`, now, windowEnd, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
