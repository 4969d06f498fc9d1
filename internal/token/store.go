package token

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/emandor/quizdesk_service/internal/model"
)

// RefreshStore persists refresh tokens. The stored row is the revocation
// authority: a token that verifies cryptographically but has no row is dead.
type RefreshStore interface {
	Save(ctx context.Context, rec model.RefreshToken) error
	Find(ctx context.Context, token string) (*model.RefreshToken, error)
	Delete(ctx context.Context, token string) error
	DeleteByUser(ctx context.Context, userID string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type SQLRefreshStore struct {
	db *sqlx.DB
}

func NewSQLRefreshStore(db *sqlx.DB) *SQLRefreshStore {
	return &SQLRefreshStore{db: db}
}

func (s *SQLRefreshStore) Save(ctx context.Context, rec model.RefreshToken) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (id, token, user_id, expires_at) VALUES (?, ?, ?, ?)`,
		rec.ID, rec.Token, rec.UserID, rec.ExpiresAt)
	return err
}

func (s *SQLRefreshStore) Find(ctx context.Context, token string) (*model.RefreshToken, error) {
	var rec model.RefreshToken
	err := s.db.GetContext(ctx, &rec,
		`SELECT id, token, user_id, expires_at, created_at FROM refresh_tokens WHERE token=? LIMIT 1`, token)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *SQLRefreshStore) Delete(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE token=?`, token)
	return err
}

func (s *SQLRefreshStore) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE user_id=?`, userID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *SQLRefreshStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at < ?`, now)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}
