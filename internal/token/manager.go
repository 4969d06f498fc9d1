package token

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/emandor/quizdesk_service/internal/apierr"
	"github.com/emandor/quizdesk_service/internal/model"
	"github.com/emandor/quizdesk_service/internal/telemetry"
)

// Claims is the session payload carried in both token kinds.
type Claims struct {
	UserID string
	Email  string
}

type Pair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type Config struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	// StoreTTL bounds the refresh row's lifetime independently of the
	// token's own exp claim.
	StoreTTL time.Duration
}

// Manager signs, verifies and rotates session credentials. Access and
// refresh tokens use distinct secrets and expiries.
type Manager struct {
	store         RefreshStore
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	storeTTL      time.Duration
}

func NewManager(cfg Config, store RefreshStore) *Manager {
	return &Manager{
		store:         store,
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		storeTTL:      cfg.StoreTTL,
	}
}

func (m *Manager) sign(secret []byte, ttl time.Duration, c Claims) (string, error) {
	now := time.Now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userId": c.UserID,
		"email":  c.Email,
		"iat":    now.Unix(),
		"exp":    now.Add(ttl).Unix(),
	})
	return t.SignedString(secret)
}

// Issue signs an access/refresh pair and persists the refresh token.
func (m *Manager) Issue(ctx context.Context, c Claims) (Pair, error) {
	access, err := m.sign(m.accessSecret, m.accessTTL, c)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := m.sign(m.refreshSecret, m.refreshTTL, c)
	if err != nil {
		return Pair{}, err
	}
	rec := model.RefreshToken{
		Token:     refresh,
		UserID:    c.UserID,
		ExpiresAt: time.Now().Add(m.storeTTL),
	}
	if err := m.store.Save(ctx, rec); err != nil {
		return Pair{}, err
	}
	return Pair{AccessToken: access, RefreshToken: refresh}, nil
}

func verify(raw string, secret []byte) (Claims, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !tok.Valid {
		return Claims{}, apierr.Unauthorized("Invalid or expired token")
	}
	mc, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, apierr.Unauthorized("Invalid token payload")
	}
	uid, _ := mc["userId"].(string)
	email, _ := mc["email"].(string)
	if uid == "" {
		return Claims{}, apierr.Unauthorized("Invalid token payload")
	}
	return Claims{UserID: uid, Email: email}, nil
}

func (m *Manager) VerifyAccess(raw string) (Claims, error) {
	return verify(raw, m.accessSecret)
}

func (m *Manager) VerifyRefresh(raw string) (Claims, error) {
	return verify(raw, m.refreshSecret)
}

// Refresh verifies the refresh token against both the signature and the
// store, then issues a new access token. The refresh token itself is not
// rotated.
func (m *Manager) Refresh(ctx context.Context, refresh string) (string, error) {
	claims, err := m.VerifyRefresh(refresh)
	if err != nil {
		return "", err
	}
	rec, err := m.store.Find(ctx, refresh)
	if err != nil {
		return "", err
	}
	if rec == nil {
		return "", apierr.Unauthorized("Invalid refresh token")
	}
	if rec.ExpiresAt.Before(time.Now()) {
		_ = m.store.Delete(ctx, refresh)
		return "", apierr.Unauthorized("Invalid refresh token")
	}
	return m.sign(m.accessSecret, m.accessTTL, claims)
}

func (m *Manager) Revoke(ctx context.Context, refresh string) error {
	return m.store.Delete(ctx, refresh)
}

func (m *Manager) RevokeAll(ctx context.Context, userID string) error {
	n, err := m.store.DeleteByUser(ctx, userID)
	if err != nil {
		return err
	}
	telemetry.L().Info().Str("user_id", userID).Int64("revoked", n).Msg("tokens_revoked")
	return nil
}

// SweepExpired removes refresh rows whose store expiry has passed.
// Idempotent; meant to run on a schedule.
func (m *Manager) SweepExpired(ctx context.Context) {
	n, err := m.store.DeleteExpired(ctx, time.Now())
	if err != nil {
		telemetry.L().Error().Err(err).Msg("token_sweep_failed")
		return
	}
	if n > 0 {
		telemetry.L().Info().Int64("deleted", n).Msg("token_sweep")
	}
}
