package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/emandor/quizdesk_service/internal/apierr"
	"github.com/emandor/quizdesk_service/internal/audit"
	"github.com/emandor/quizdesk_service/internal/config"
	"github.com/emandor/quizdesk_service/internal/middleware"
	"github.com/emandor/quizdesk_service/internal/model"
	"github.com/emandor/quizdesk_service/internal/telemetry"
	"github.com/emandor/quizdesk_service/internal/token"
)

type Registry struct {
	cfg    *config.Config
	db     *sqlx.DB
	tokens *token.Manager
	google IdentityExchanger
}

func NewRegistry(cfg *config.Config, db *sqlx.DB, tokens *token.Manager, google IdentityExchanger) *Registry {
	return &Registry{cfg: cfg, db: db, tokens: tokens, google: google}
}

type userResponse struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	Name           string `json:"name"`
	ProfilePicture string `json:"profilePicture"`
}

// GoogleAuth handles POST /auth/google: exchanges the authorization code,
// upserts the user and returns a fresh token pair.
func (r *Registry) GoogleAuth(c *fiber.Ctx) error {
	var body struct {
		Code string `json:"code"`
	}
	if err := c.BodyParser(&body); err != nil || body.Code == "" {
		return apierr.Validation([]apierr.FieldError{{Field: "code", Message: "Authorization code is required"}})
	}

	ctx := c.Context()
	ui, err := r.google.Exchange(ctx, body.Code)
	if err != nil {
		return err
	}

	user, created, err := r.upsertUser(ctx, ui)
	if err != nil {
		return err
	}

	rid, _ := c.Locals(middleware.ReqIDKey).(string)
	log := telemetry.L().With().Str("req_id", rid).Str("user_id", user.ID).Logger()

	action := audit.UserLogin
	if created {
		action = audit.UserRegistered
		log.Info().Str("email", user.Email).Msg("user_registered")
	} else {
		log.Info().Str("email", user.Email).Msg("user_login")
	}
	audit.Log(audit.Entry{
		UserID:    user.ID,
		Action:    action,
		Resource:  "User",
		Details:   map[string]any{"email": user.Email},
		IP:        c.IP(),
		UserAgent: c.Get("User-Agent"),
	})

	pair, err := r.tokens.Issue(ctx, token.Claims{UserID: user.ID, Email: user.Email})
	if err != nil {
		return err
	}

	return middleware.Success(c, fiber.StatusOK, "Authentication successful", fiber.Map{
		"user": userResponse{
			ID:             user.ID,
			Email:          user.Email,
			Name:           user.Name,
			ProfilePicture: user.ProfilePicture,
		},
		"tokens": pair,
	})
}

// Refresh handles POST /auth/refresh: a new access token against a live
// refresh token.
func (r *Registry) Refresh(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := c.BodyParser(&body); err != nil || body.RefreshToken == "" {
		return apierr.Validation([]apierr.FieldError{{Field: "refreshToken", Message: "Refresh token is required"}})
	}

	access, err := r.tokens.Refresh(c.Context(), body.RefreshToken)
	if err != nil {
		return err
	}
	return middleware.Success(c, fiber.StatusOK, "Token refreshed successfully", fiber.Map{
		"accessToken": access,
	})
}

// Logout handles POST /auth/logout (authenticated): revokes the presented
// refresh token.
func (r *Registry) Logout(c *fiber.Ctx) error {
	userID, _ := c.Locals(middleware.UserIDKey).(string)
	if userID == "" {
		return apierr.Unauthorized("User not authenticated")
	}

	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := c.BodyParser(&body); err != nil || body.RefreshToken == "" {
		return apierr.Validation([]apierr.FieldError{{Field: "refreshToken", Message: "Refresh token is required"}})
	}

	if err := r.tokens.Revoke(c.Context(), body.RefreshToken); err != nil {
		return err
	}

	telemetry.L().Info().Str("user_id", userID).Msg("user_logout")
	audit.Log(audit.Entry{UserID: userID, Action: audit.UserLogout, Resource: "User"})

	return middleware.Success(c, fiber.StatusOK, "Logout successful", nil)
}

// Me handles GET /auth/me.
func (r *Registry) Me(c *fiber.Ctx) error {
	userID, _ := c.Locals(middleware.UserIDKey).(string)
	if userID == "" {
		return apierr.Unauthorized("User not authenticated")
	}

	var user model.User
	err := r.db.GetContext(c.Context(), &user,
		`SELECT id, email, google_id, name, profile_picture, last_login, created_at, updated_at
		 FROM users WHERE id=? LIMIT 1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return apierr.NotFound("User not found")
	}
	if err != nil {
		return err
	}

	return middleware.Success(c, fiber.StatusOK, "User retrieved successfully", fiber.Map{
		"id":             user.ID,
		"email":          user.Email,
		"name":           user.Name,
		"profilePicture": user.ProfilePicture,
		"lastLogin":      user.LastLogin,
	})
}

// upsertUser creates the user on first login and refreshes the mutable
// profile fields after. Email and google_id stay stable once created.
func (r *Registry) upsertUser(ctx context.Context, ui *UserInfo) (*model.User, bool, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user,
		`SELECT id, email, google_id, name, profile_picture, last_login, created_at, updated_at
		 FROM users WHERE google_id=? LIMIT 1`, ui.Sub)

	if errors.Is(err, sql.ErrNoRows) {
		user = model.User{
			ID:             uuid.New().String(),
			Email:          ui.Email,
			GoogleID:       ui.Sub,
			Name:           ui.Name,
			ProfilePicture: ui.Picture,
			LastLogin:      time.Now(),
		}
		_, err = r.db.ExecContext(ctx,
			`INSERT INTO users (id, email, google_id, name, profile_picture, last_login)
			 VALUES (?, ?, ?, ?, ?, NOW())`,
			user.ID, user.Email, user.GoogleID, user.Name, user.ProfilePicture)
		if err != nil {
			return nil, false, err
		}
		return &user, true, nil
	}
	if err != nil {
		return nil, false, err
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE users SET name=?, profile_picture=?, last_login=NOW() WHERE id=?`,
		ui.Name, ui.Picture, user.ID)
	if err != nil {
		return nil, false, err
	}
	user.Name = ui.Name
	user.ProfilePicture = ui.Picture
	return &user, false, nil
}
