package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"riseready-notifications/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const notificationColumns = `id, user_id, kind, title, message, link, priority, created_at, sent, sent_at, claimed_id, claimed_at`

// SQLStore implements Backend on PostgreSQL or SQLite through sqlx.
// Queries are written with '?' and rebound per driver.
type SQLStore struct {
	db *sqlx.DB
}

func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

// DB exposes the handle for health checks and fixtures.
func (s *SQLStore) DB() *sqlx.DB {
	return s.db
}

func (s *SQLStore) FindDue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	query := s.db.Rebind(`SELECT id FROM notifications
		WHERE sent = FALSE AND claimed_id IS NULL AND created_at <= ?
		ORDER BY created_at ASC, id ASC
		LIMIT ?`)

	var ids []string
	if err := s.db.SelectContext(ctx, &ids, query, now.UTC(), limit); err != nil {
		return nil, fmt.Errorf("find due notifications: %w", err)
	}
	return ids, nil
}

func (s *SQLStore) ClaimMany(ctx context.Context, ids []string, token string, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query, args, err := sqlx.In(`UPDATE notifications
		SET claimed_id = ?, claimed_at = ?
		WHERE id IN (?) AND sent = FALSE AND claimed_id IS NULL`, token, at.UTC(), ids)
	if err != nil {
		return 0, fmt.Errorf("build claim query: %w", err)
	}

	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("claim notifications: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("claim rows affected: %w", err)
	}
	return n, nil
}

func (s *SQLStore) FindClaimed(ctx context.Context, token string) ([]models.Notification, error) {
	query := s.db.Rebind(`SELECT ` + notificationColumns + ` FROM notifications
		WHERE claimed_id = ?
		ORDER BY created_at ASC, id ASC`)

	var out []models.Notification
	if err := s.db.SelectContext(ctx, &out, query, token); err != nil {
		return nil, fmt.Errorf("find claimed notifications: %w", err)
	}
	return out, nil
}

func (s *SQLStore) MarkSent(ctx context.Context, id, token string, at time.Time) error {
	query := s.db.Rebind(`UPDATE notifications
		SET sent = TRUE, sent_at = ?
		WHERE id = ? AND claimed_id = ? AND sent = FALSE`)

	res, err := s.db.ExecContext(ctx, query, at.UTC(), id, token)
	if err != nil {
		return fmt.Errorf("mark notification %s sent: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark sent rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) ReleaseStale(ctx context.Context, olderThan time.Time) (int64, error) {
	query := s.db.Rebind(`UPDATE notifications
		SET claimed_id = NULL, claimed_at = NULL
		WHERE sent = FALSE AND claimed_id IS NOT NULL AND claimed_at < ?`)

	res, err := s.db.ExecContext(ctx, query, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("release stale claims: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLStore) ReleaseClaims(ctx context.Context, ids []string, token string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query, args, err := sqlx.In(`UPDATE notifications
		SET claimed_id = NULL, claimed_at = NULL
		WHERE id IN (?) AND claimed_id = ? AND sent = FALSE`, ids, token)
	if err != nil {
		return 0, fmt.Errorf("build release query: %w", err)
	}

	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("release claims: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLStore) Create(ctx context.Context, n *models.Notification) error {
	if err := prepareNew(n, uuid.NewString); err != nil {
		return err
	}

	query := s.db.Rebind(`INSERT INTO notifications (` + notificationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := s.db.ExecContext(ctx, query,
		n.ID, n.UserID, string(n.Kind), n.Title, n.Message, n.Link, string(n.Priority),
		n.CreatedAt, n.Sent, utcOrNil(n.SentAt), stringOrNil(n.ClaimedID), utcOrNil(n.ClaimedAt),
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

type userRow struct {
	ID        string `db:"id"`
	Email     string `db:"email"`
	Phone     string `db:"phone"`
	Reminders bool   `db:"notify_reminders"`
	SMS       bool   `db:"notify_sms"`
}

func (s *SQLStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	query := s.db.Rebind(`SELECT id, email, phone, notify_reminders, notify_sms FROM users WHERE id = ?`)

	var row userRow
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}

	u := &models.User{ID: row.ID, Email: row.Email, Phone: row.Phone}
	u.Settings.Notifications.Reminders = row.Reminders
	u.Settings.Notifications.SMS = row.SMS
	return u, nil
}

// SaveUser upserts a user row.
func (s *SQLStore) SaveUser(ctx context.Context, u *models.User) error {
	query := s.db.Rebind(`INSERT INTO users (id, email, phone, notify_reminders, notify_sms)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			email = excluded.email,
			phone = excluded.phone,
			notify_reminders = excluded.notify_reminders,
			notify_sms = excluded.notify_sms`)

	_, err := s.db.ExecContext(ctx, query,
		u.ID, u.Email, u.Phone, u.Settings.Notifications.Reminders, u.Settings.Notifications.SMS)
	if err != nil {
		return fmt.Errorf("save user %s: %w", u.ID, err)
	}
	return nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func utcOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func stringOrNil(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
