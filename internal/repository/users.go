package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"autoguardian/server/internal/model"
)

func (s *Store) CreateUser(ctx context.Context, user model.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, user.ID, user.Email, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	var user model.User
	row := s.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, created_at, updated_at
		FROM users
		WHERE email = $1
	`, email)
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	return user, err
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (model.User, error) {
	var user model.User
	row := s.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, created_at, updated_at
		FROM users
		WHERE id = $1
	`, userID)
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	return user, err
}

func (s *Store) UpdateUserPassword(ctx context.Context, userID, passwordHash string, updatedAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3
	`, passwordHash, updatedAt, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

type AccountSummary struct {
	VehiclesCount int
	PoliciesCount int
	Deadlines     []PolicyDeadline
}

type PolicyDeadline struct {
	PolicyID string
	EndDate  time.Time
}

func (s *Store) GetAccountSummary(ctx context.Context, userID string, deadlineLimit int) (AccountSummary, error) {
	var summary AccountSummary
	row := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM vehicles WHERE user_id = $1),
			(SELECT COUNT(*) FROM policies WHERE user_id = $1)
	`, userID)
	if err := row.Scan(&summary.VehiclesCount, &summary.PoliciesCount); err != nil {
		return summary, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, end_date
		FROM policies
		WHERE user_id = $1 AND end_date >= CURRENT_DATE
		ORDER BY end_date ASC
		LIMIT $2
	`, userID, deadlineLimit)
	if err != nil {
		return summary, err
	}
	defer rows.Close()

	for rows.Next() {
		var deadline PolicyDeadline
		if err := rows.Scan(&deadline.PolicyID, &deadline.EndDate); err != nil {
			return summary, err
		}
		summary.Deadlines = append(summary.Deadlines, deadline)
	}
	return summary, rows.Err()
}

func (s *Store) CreateRefreshSession(ctx context.Context, session model.RefreshSession) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO refresh_token_sessions (id, user_id, token_hash, created_at, expires_at, revoked_at, user_agent, ip_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, session.ID, session.UserID, session.TokenHash, session.CreatedAt, session.ExpiresAt, session.RevokedAt, session.UserAgent, session.IPAddress)
	return err
}

func (s *Store) GetRefreshSession(ctx context.Context, tokenHash string) (model.RefreshSession, error) {
	var session model.RefreshSession
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, token_hash, created_at, expires_at, revoked_at, user_agent, ip_address
		FROM refresh_token_sessions
		WHERE token_hash = $1
	`, tokenHash)
	err := row.Scan(&session.ID, &session.UserID, &session.TokenHash, &session.CreatedAt, &session.ExpiresAt, &session.RevokedAt, &session.UserAgent, &session.IPAddress)
	return session, err
}

// RotateRefreshSession revokes the spent session and persists its
// replacement in one transaction; a caller never ends up with neither.
func (s *Store) RotateRefreshSession(ctx context.Context, spentSessionID string, next model.RefreshSession) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			UPDATE refresh_token_sessions SET revoked_at = $1 WHERE id = $2
		`, next.CreatedAt, spentSessionID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO refresh_token_sessions (id, user_id, token_hash, created_at, expires_at, revoked_at, user_agent, ip_address)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, next.ID, next.UserID, next.TokenHash, next.CreatedAt, next.ExpiresAt, next.RevokedAt, next.UserAgent, next.IPAddress)
		return err
	})
}

func (s *Store) RevokeRefreshSessionsByUser(ctx context.Context, userID string, revokedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE refresh_token_sessions
		SET revoked_at = $1
		WHERE user_id = $2 AND revoked_at IS NULL
	`, revokedAt, userID)
	return err
}
