package quiz

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/emandor/quizdesk_service/internal/apierr"
	"github.com/emandor/quizdesk_service/internal/audit"
	"github.com/emandor/quizdesk_service/internal/model"
	"github.com/emandor/quizdesk_service/internal/telemetry"
)

func newSubmissionID() string { return uuid.New().String() }

// Locker is the slice of the redis client the attempt lock needs.
type Locker interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Service owns the quiz attempt lifecycle: access resolution, the draft /
// submitted state machine, and scoring.
type Service struct {
	store   Store
	rdb     Locker
	lockTTL time.Duration
}

func NewService(store Store, rdb Locker, lockTTL time.Duration) *Service {
	if lockTTL <= 0 {
		lockTTL = 10 * time.Second
	}
	return &Service{store: store, rdb: rdb, lockTTL: lockTTL}
}

// withAttemptLock serializes guard-then-write sequences on one (user, quiz)
// pair with a redis lock. If redis is unavailable the uq_open_draft key
// still holds the one-open-draft invariant.
func (s *Service) withAttemptLock(ctx context.Context, userID, quizID string, fn func() error) error {
	key := "lock:attempt:" + userID + ":" + quizID

	acquired := false
	for i := 0; i < 50; i++ {
		ok, err := s.rdb.SetNX(ctx, key, "1", s.lockTTL).Result()
		if err != nil {
			telemetry.L().Warn().Err(err).Str("key", key).Msg("attempt_lock_unavailable")
			return fn()
		}
		if ok {
			acquired = true
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(20 * time.Millisecond):
		}
	}
	if !acquired {
		return apierr.Internal("Could not acquire attempt lock")
	}
	defer s.rdb.Del(ctx, key)
	return fn()
}

// SaveDraft stores in-progress responses. An existing open draft is
// overwritten in place (last write wins); otherwise a new draft row is
// created. The attempt limit is enforced here too.
func (s *Service) SaveDraft(ctx context.Context, userID, quizID string, responses model.Responses, ip, ua string) (string, error) {
	if _, err := s.AssertAttemptable(ctx, userID, quizID, true); err != nil {
		return "", err
	}

	var submissionID string
	err := s.withAttemptLock(ctx, userID, quizID, func() error {
		draft, err := s.store.OpenDraft(ctx, userID, quizID)
		if err != nil {
			return err
		}

		if draft != nil {
			if err := s.store.UpdateDraft(ctx, draft.ID, responses); err != nil {
				return err
			}
			submissionID = draft.ID
			telemetry.L().Info().Str("user_id", userID).Str("quiz_id", quizID).
				Str("submission_id", submissionID).Msg("draft_updated")
			return nil
		}

		submissionID = newSubmissionID()
		err = s.store.CreateDraft(ctx, &model.QuizSubmission{
			ID: submissionID, UserID: userID, QuizID: quizID, Responses: responses,
		})
		if errors.Is(err, ErrDuplicateDraft) {
			// lost a race to another draft-save; fall back to updating the
			// row that won
			draft, derr := s.store.OpenDraft(ctx, userID, quizID)
			if derr != nil || draft == nil {
				return err
			}
			submissionID = draft.ID
			return s.store.UpdateDraft(ctx, draft.ID, responses)
		}
		if err != nil {
			return err
		}
		telemetry.L().Info().Str("user_id", userID).Str("quiz_id", quizID).
			Str("submission_id", submissionID).Msg("draft_created")
		return nil
	})
	if err != nil {
		return "", err
	}

	audit.Log(audit.Entry{
		UserID:   userID,
		Action:   audit.DraftSaved,
		Resource: "Quiz",
		Details:  map[string]any{"quizId": quizID, "submissionId": submissionID},
		IP:       ip, UserAgent: ua,
	})
	return submissionID, nil
}

// SubmitResult is what a completed submission reports back.
type SubmitResult struct {
	SubmissionID string   `json:"submissionId"`
	Score        *float64 `json:"score"`
}

// Submit finalizes the attempt. Evaluative quizzes are scored and
// auto-validated; feedback quizzes keep a null score and stay unvalidated.
// An open draft is finalized in place so its id carries through; otherwise
// the row is created directly in the submitted state. The attempt count is
// re-checked inside the same transaction as the write.
func (s *Service) Submit(ctx context.Context, userID, quizID string, responses model.Responses, ip, ua string) (SubmitResult, error) {
	quiz, err := s.AssertAttemptable(ctx, userID, quizID, true)
	if err != nil {
		return SubmitResult{}, err
	}

	questions, err := s.store.Questions(ctx, quizID)
	if err != nil {
		return SubmitResult{}, err
	}

	var score sql.NullFloat64
	if quiz.Meta.Evaluative() {
		score = sql.NullFloat64{Float64: Score(responses, questions), Valid: true}
	}

	var submissionID string
	err = s.withAttemptLock(ctx, userID, quizID, func() error {
		id, err := s.store.FinalizeAttempt(ctx, FinalizeParams{
			UserID:      userID,
			QuizID:      quizID,
			Responses:   responses,
			Score:       score,
			Validated:   quiz.Meta.Evaluative(),
			MaxAttempts: quiz.Meta.MaxAttempts,
		})
		if errors.Is(err, ErrAttemptLimit) {
			return apierr.BadRequest("You have reached the maximum number of attempts for this quiz")
		}
		if err != nil {
			return err
		}
		submissionID = id
		return nil
	})
	if err != nil {
		return SubmitResult{}, err
	}

	telemetry.L().Info().Str("user_id", userID).Str("quiz_id", quizID).
		Str("submission_id", submissionID).
		Interface("score", nullableScore(score)).Msg("quiz_submitted")
	audit.Log(audit.Entry{
		UserID:   userID,
		Action:   audit.QuizSubmitted,
		Resource: "Quiz",
		Details:  map[string]any{"quizId": quizID, "submissionId": submissionID, "score": nullableScore(score)},
		IP:       ip, UserAgent: ua,
	})

	return SubmitResult{SubmissionID: submissionID, Score: nullableScore(score)}, nil
}

func nullableScore(s sql.NullFloat64) *float64 {
	if !s.Valid {
		return nil
	}
	v := s.Float64
	return &v
}

// Result is the latest completed attempt for a quiz.
type Result struct {
	QuizID         string          `json:"quizId"`
	QuizName       string          `json:"quizName"`
	QuizType       string          `json:"quizType"`
	Score          *float64        `json:"score"`
	TotalQuestions int             `json:"totalQuestions"`
	Responses      model.Responses `json:"responses"`
	Inference      *string         `json:"inference"`
	SubmittedAt    time.Time       `json:"submittedAt"`
}

// GetResult returns the most recently submitted attempt, with an inference
// attached only for evaluative quizzes that were scored and have a ruleset.
func (s *Service) GetResult(ctx context.Context, userID, quizID string) (*Result, error) {
	sub, err := s.store.LatestSubmitted(ctx, userID, quizID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, apierr.NotFound("No submission found for this quiz")
	}

	quiz, err := s.store.QuizByID(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if quiz == nil {
		return nil, apierr.NotFound("Quiz not found")
	}

	totalQuestions, err := s.store.QuestionCount(ctx, quizID)
	if err != nil {
		return nil, err
	}

	res := &Result{
		QuizID:         quiz.ID,
		QuizName:       quiz.Name,
		QuizType:       quiz.Meta.Type,
		Score:          nullableScore(sub.Score),
		TotalQuestions: totalQuestions,
		Responses:      sub.Responses,
		SubmittedAt:    sub.SubmittedAt.Time,
	}

	if quiz.Meta.Evaluative() && sub.Score.Valid {
		inf, err := s.store.InferenceForQuiz(ctx, quizID)
		if err != nil {
			return nil, err
		}
		if inf != nil {
			if label, ok := Infer(sub.Score.Float64, inf.Rules); ok {
				res.Inference = &label
			}
		}
	}

	telemetry.L().Info().Str("user_id", userID).Str("quiz_id", quizID).Msg("result_fetched")
	return res, nil
}

// ListItem is one accessible quiz with the caller's attempt status.
type ListItem struct {
	ID                 string        `json:"id"`
	Name               string        `json:"name"`
	Type               string        `json:"type"`
	AcceptingResponses bool          `json:"acceptingResponses"`
	HasAccess          bool          `json:"hasAccess"`
	AttemptStatus      AttemptStatus `json:"attemptStatus"`
}

// ListAccessible returns every quiz any of the user's groups may attempt.
// The permitted-quiz and submission-history queries are independent and run
// concurrently.
func (s *Service) ListAccessible(ctx context.Context, userID string) ([]ListItem, error) {
	groupIDs, err := s.store.UserGroupIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(groupIDs) == 0 {
		return []ListItem{}, nil
	}

	var (
		quizzes []model.Quiz
		subs    []model.QuizSubmission
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		quizzes, err = s.store.AccessibleQuizzes(gctx, groupIDs)
		return err
	})
	g.Go(func() error {
		var err error
		subs, err = s.store.UserSubmissions(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byQuiz := make(map[string][]model.QuizSubmission)
	for _, sub := range subs {
		byQuiz[sub.QuizID] = append(byQuiz[sub.QuizID], sub)
	}

	items := make([]ListItem, 0, len(quizzes))
	for _, q := range quizzes {
		completed, openID := attemptCounts(byQuiz[q.ID])
		items = append(items, ListItem{
			ID:                 q.ID,
			Name:               q.Name,
			Type:               q.Meta.Type,
			AcceptingResponses: q.AcceptingResponses,
			HasAccess:          true,
			AttemptStatus:      NewAttemptStatus(q.AcceptingResponses, q.Meta.MaxAttempts, completed, openID),
		})
	}

	telemetry.L().Info().Str("user_id", userID).Int("count", len(items)).Msg("quizzes_listed")
	return items, nil
}

func attemptCounts(subs []model.QuizSubmission) (completed int, openID string) {
	for _, sub := range subs {
		if sub.SubmittedAt.Valid {
			completed++
		} else if openID == "" {
			openID = sub.ID
		}
	}
	return completed, openID
}

// Detail is the quiz page payload. Questions are present only while the
// quiz accepts responses and the caller can still attempt it.
type Detail struct {
	ID                 string           `json:"id"`
	Name               string           `json:"name"`
	Type               string           `json:"type"`
	AcceptingResponses bool             `json:"acceptingResponses"`
	MaxAttempts        int              `json:"maxAttempts"`
	AttemptStatus      AttemptStatus    `json:"attemptStatus"`
	Questions          []model.Question `json:"questions,omitempty"`
}

func (s *Service) GetDetail(ctx context.Context, userID, quizID string) (*Detail, error) {
	ok, err := s.HasAttemptAccess(ctx, userID, quizID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apierr.Forbidden("You do not have access to this quiz")
	}

	quiz, err := s.store.QuizByID(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if quiz == nil {
		return nil, apierr.NotFound("Quiz not found")
	}

	subs, err := s.store.QuizSubmissions(ctx, userID, quizID)
	if err != nil {
		return nil, err
	}
	completed, openID := attemptCounts(subs)
	status := NewAttemptStatus(quiz.AcceptingResponses, quiz.Meta.MaxAttempts, completed, openID)

	detail := &Detail{
		ID:                 quiz.ID,
		Name:               quiz.Name,
		Type:               quiz.Meta.Type,
		AcceptingResponses: quiz.AcceptingResponses,
		MaxAttempts:        quiz.Meta.MaxAttempts,
		AttemptStatus:      status,
	}

	if quiz.AcceptingResponses && status.CanAttempt {
		detail.Questions, err = s.store.Questions(ctx, quizID)
		if err != nil {
			return nil, err
		}
	}

	telemetry.L().Info().Str("user_id", userID).Str("quiz_id", quizID).Msg("quiz_detail_fetched")
	return detail, nil
}
