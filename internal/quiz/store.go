package quiz

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/emandor/quizdesk_service/internal/model"
)

// ErrDuplicateDraft reports that an open draft already exists for the
// (user, quiz) pair; the uq_open_draft key rejected the insert.
var ErrDuplicateDraft = errors.New("quiz: open draft already exists")

// ErrAttemptLimit reports that the in-transaction recount found the
// completed-attempt limit already reached.
var ErrAttemptLimit = errors.New("quiz: attempt limit reached")

// FinalizeParams carries everything the submit transaction writes.
type FinalizeParams struct {
	UserID      string
	QuizID      string
	Responses   model.Responses
	Score       sql.NullFloat64
	Validated   bool
	MaxAttempts int
}

// Store persists quiz attempt state. FinalizeAttempt is transactional: the
// attempt recount and the row write happen atomically.
type Store interface {
	UserGroupIDs(ctx context.Context, userID string) ([]string, error)
	GroupsHoldAttemptPermission(ctx context.Context, quizID string, groupIDs []string) (bool, error)
	QuizByID(ctx context.Context, quizID string) (*model.Quiz, error)
	Questions(ctx context.Context, quizID string) ([]model.Question, error)
	QuestionCount(ctx context.Context, quizID string) (int, error)
	AccessibleQuizzes(ctx context.Context, groupIDs []string) ([]model.Quiz, error)
	UserSubmissions(ctx context.Context, userID string) ([]model.QuizSubmission, error)
	QuizSubmissions(ctx context.Context, userID, quizID string) ([]model.QuizSubmission, error)
	OpenDraft(ctx context.Context, userID, quizID string) (*model.QuizSubmission, error)
	CompletedCount(ctx context.Context, userID, quizID string) (int, error)
	CreateDraft(ctx context.Context, sub *model.QuizSubmission) error
	UpdateDraft(ctx context.Context, id string, responses model.Responses) error
	LatestSubmitted(ctx context.Context, userID, quizID string) (*model.QuizSubmission, error)
	InferenceForQuiz(ctx context.Context, quizID string) (*model.QuizInference, error)
	FinalizeAttempt(ctx context.Context, p FinalizeParams) (string, error)
}

type SQLStore struct {
	db *sqlx.DB
}

func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) UserGroupIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids,
		`SELECT group_id FROM group_users WHERE user_id=?`, userID)
	return ids, err
}

func (s *SQLStore) GroupsHoldAttemptPermission(ctx context.Context, quizID string, groupIDs []string) (bool, error) {
	if len(groupIDs) == 0 {
		return false, nil
	}
	query, args, err := sqlx.In(
		`SELECT COUNT(*) FROM quiz_group_permissions
		 WHERE quiz_id=? AND permission=? AND group_id IN (?)`,
		quizID, model.PermAttempt, groupIDs)
	if err != nil {
		return false, err
	}
	var n int
	if err := s.db.GetContext(ctx, &n, s.db.Rebind(query), args...); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLStore) QuizByID(ctx context.Context, quizID string) (*model.Quiz, error) {
	var q model.Quiz
	err := s.db.GetContext(ctx, &q,
		`SELECT id, name, meta, accepting_responses, created_at, updated_at
		 FROM quizzes WHERE id=? LIMIT 1`, quizID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (s *SQLStore) Questions(ctx context.Context, quizID string) ([]model.Question, error) {
	var qs []model.Question
	err := s.db.SelectContext(ctx, &qs,
		`SELECT id, quiz_id, question_text, options, answer_type, meta, position
		 FROM questions WHERE quiz_id=? ORDER BY position ASC`, quizID)
	return qs, err
}

func (s *SQLStore) QuestionCount(ctx context.Context, quizID string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM questions WHERE quiz_id=?`, quizID)
	return n, err
}

func (s *SQLStore) AccessibleQuizzes(ctx context.Context, groupIDs []string) ([]model.Quiz, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(
		`SELECT DISTINCT q.id, q.name, q.meta, q.accepting_responses, q.created_at, q.updated_at
		 FROM quizzes q
		 JOIN quiz_group_permissions p ON p.quiz_id = q.id
		 WHERE p.permission=? AND p.group_id IN (?)`,
		model.PermAttempt, groupIDs)
	if err != nil {
		return nil, err
	}
	var quizzes []model.Quiz
	if err := s.db.SelectContext(ctx, &quizzes, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	return quizzes, nil
}

func (s *SQLStore) UserSubmissions(ctx context.Context, userID string) ([]model.QuizSubmission, error) {
	var subs []model.QuizSubmission
	err := s.db.SelectContext(ctx, &subs,
		`SELECT id, user_id, quiz_id, responses, score, submitted_at, validated, created_at, updated_at
		 FROM quiz_submissions WHERE user_id=? ORDER BY created_at DESC`, userID)
	return subs, err
}

func (s *SQLStore) QuizSubmissions(ctx context.Context, userID, quizID string) ([]model.QuizSubmission, error) {
	var subs []model.QuizSubmission
	err := s.db.SelectContext(ctx, &subs,
		`SELECT id, user_id, quiz_id, responses, score, submitted_at, validated, created_at, updated_at
		 FROM quiz_submissions WHERE user_id=? AND quiz_id=?`, userID, quizID)
	return subs, err
}

type queryer interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
}

func openDraftQuery(ctx context.Context, q queryer, userID, quizID string) (*model.QuizSubmission, error) {
	var sub model.QuizSubmission
	err := q.GetContext(ctx, &sub,
		`SELECT id, user_id, quiz_id, responses, score, submitted_at, validated, created_at, updated_at
		 FROM quiz_submissions
		 WHERE user_id=? AND quiz_id=? AND submitted_at IS NULL LIMIT 1`, userID, quizID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func completedCountQuery(ctx context.Context, q queryer, userID, quizID string) (int, error) {
	var n int
	err := q.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM quiz_submissions
		 WHERE user_id=? AND quiz_id=? AND submitted_at IS NOT NULL`, userID, quizID)
	return n, err
}

func (s *SQLStore) OpenDraft(ctx context.Context, userID, quizID string) (*model.QuizSubmission, error) {
	return openDraftQuery(ctx, s.db, userID, quizID)
}

func (s *SQLStore) CompletedCount(ctx context.Context, userID, quizID string) (int, error) {
	return completedCountQuery(ctx, s.db, userID, quizID)
}

func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}

func (s *SQLStore) CreateDraft(ctx context.Context, sub *model.QuizSubmission) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO quiz_submissions (id, user_id, quiz_id, responses, validated)
		 VALUES (?, ?, ?, ?, 0)`,
		sub.ID, sub.UserID, sub.QuizID, sub.Responses)
	if isDuplicateKey(err) {
		return ErrDuplicateDraft
	}
	return err
}

func (s *SQLStore) UpdateDraft(ctx context.Context, id string, responses model.Responses) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE quiz_submissions SET responses=?, updated_at=NOW() WHERE id=?`,
		responses, id)
	return err
}

func (s *SQLStore) LatestSubmitted(ctx context.Context, userID, quizID string) (*model.QuizSubmission, error) {
	var sub model.QuizSubmission
	err := s.db.GetContext(ctx, &sub,
		`SELECT id, user_id, quiz_id, responses, score, submitted_at, validated, created_at, updated_at
		 FROM quiz_submissions
		 WHERE user_id=? AND quiz_id=? AND submitted_at IS NOT NULL
		 ORDER BY submitted_at DESC LIMIT 1`, userID, quizID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *SQLStore) InferenceForQuiz(ctx context.Context, quizID string) (*model.QuizInference, error) {
	var inf model.QuizInference
	err := s.db.GetContext(ctx, &inf,
		`SELECT id, quiz_id, rules FROM quiz_inferences WHERE quiz_id=? LIMIT 1`, quizID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inf, nil
}

// FinalizeAttempt recounts completed attempts and finalizes the open draft
// in place, or inserts a directly-submitted row, inside one transaction.
func (s *SQLStore) FinalizeAttempt(ctx context.Context, p FinalizeParams) (string, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	if p.MaxAttempts > 0 {
		completed, err := completedCountQuery(ctx, tx, p.UserID, p.QuizID)
		if err != nil {
			return "", err
		}
		if completed >= p.MaxAttempts {
			return "", ErrAttemptLimit
		}
	}

	draft, err := openDraftQuery(ctx, tx, p.UserID, p.QuizID)
	if err != nil {
		return "", err
	}

	var submissionID string
	if draft != nil {
		submissionID = draft.ID
		_, err = tx.ExecContext(ctx,
			`UPDATE quiz_submissions
			 SET responses=?, score=?, submitted_at=NOW(), validated=?, updated_at=NOW()
			 WHERE id=?`,
			p.Responses, p.Score, p.Validated, draft.ID)
	} else {
		submissionID = newSubmissionID()
		_, err = tx.ExecContext(ctx,
			`INSERT INTO quiz_submissions (id, user_id, quiz_id, responses, score, submitted_at, validated)
			 VALUES (?, ?, ?, ?, ?, NOW(), ?)`,
			submissionID, p.UserID, p.QuizID, p.Responses, p.Score, p.Validated)
	}
	if err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return submissionID, nil
}
