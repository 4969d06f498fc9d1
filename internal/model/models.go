package model

import (
	"database/sql"
	"time"
)

type User struct {
	ID             string    `db:"id" json:"id"`
	Email          string    `db:"email" json:"email"`
	GoogleID       string    `db:"google_id" json:"-"`
	Name           string    `db:"name" json:"name"`
	ProfilePicture string    `db:"profile_picture" json:"profile_picture"`
	LastLogin      time.Time `db:"last_login" json:"last_login"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

type Group struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedBy string    `db:"created_by" json:"created_by"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type GroupUser struct {
	ID      string `db:"id" json:"id"`
	GroupID string `db:"group_id" json:"group_id"`
	UserID  string `db:"user_id" json:"user_id"`
	Role    string `db:"role" json:"role"`
}

type Quiz struct {
	ID                 string    `db:"id" json:"id"`
	Name               string    `db:"name" json:"name"`
	Meta               QuizMeta  `db:"meta" json:"meta"`
	AcceptingResponses bool      `db:"accepting_responses" json:"accepting_responses"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

type Question struct {
	ID           string  `db:"id" json:"id"`
	QuizID       string  `db:"quiz_id" json:"quiz_id"`
	QuestionText string  `db:"question_text" json:"question_text"`
	Options      Options `db:"options" json:"options"`
	AnswerType   string  `db:"answer_type" json:"answer_type"`
	Meta         JSONMap `db:"meta" json:"meta"`
	Order        int     `db:"position" json:"order"`
}

// Permission grants on a quiz for a group.
const (
	PermAttempt = "attempt"
	PermView    = "view"
	PermEdit    = "edit"
)

type QuizGroupPermission struct {
	ID         string `db:"id" json:"id"`
	QuizID     string `db:"quiz_id" json:"quiz_id"`
	GroupID    string `db:"group_id" json:"group_id"`
	Permission string `db:"permission" json:"permission"`
}

// QuizSubmission is one attempt row. SubmittedAt null means the row is an
// open draft; at most one open draft exists per (user, quiz).
type QuizSubmission struct {
	ID          string          `db:"id" json:"id"`
	UserID      string          `db:"user_id" json:"user_id"`
	QuizID      string          `db:"quiz_id" json:"quiz_id"`
	Responses   Responses       `db:"responses" json:"responses"`
	Score       sql.NullFloat64 `db:"score" json:"-"`
	SubmittedAt sql.NullTime    `db:"submitted_at" json:"-"`
	Validated   bool            `db:"validated" json:"validated"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

type QuizInference struct {
	ID     string         `db:"id" json:"id"`
	QuizID string         `db:"quiz_id" json:"quiz_id"`
	Rules  InferenceRules `db:"rules" json:"rules"`
}

type RefreshToken struct {
	ID        string    `db:"id" json:"id"`
	Token     string    `db:"token" json:"token"`
	UserID    string    `db:"user_id" json:"user_id"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
