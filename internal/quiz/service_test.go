package quiz

import (
	"context"
	"database/sql"
	"sort"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/emandor/quizdesk_service/internal/apierr"
	"github.com/emandor/quizdesk_service/internal/model"
)

// memQuizStore is an in-memory Store for exercising the attempt lifecycle.
type memQuizStore struct {
	groups     map[string][]string // user id -> group ids
	permitted  map[string][]string // quiz id -> group ids holding attempt permission
	quizzes    map[string]*model.Quiz
	questions  map[string][]model.Question
	inferences map[string]*model.QuizInference
	subs       []*model.QuizSubmission

	permissionCalls int
}

func newMemQuizStore() *memQuizStore {
	return &memQuizStore{
		groups:     map[string][]string{},
		permitted:  map[string][]string{},
		quizzes:    map[string]*model.Quiz{},
		questions:  map[string][]model.Question{},
		inferences: map[string]*model.QuizInference{},
	}
}

func (m *memQuizStore) UserGroupIDs(_ context.Context, userID string) ([]string, error) {
	return m.groups[userID], nil
}

func (m *memQuizStore) GroupsHoldAttemptPermission(_ context.Context, quizID string, groupIDs []string) (bool, error) {
	m.permissionCalls++
	for _, allowed := range m.permitted[quizID] {
		for _, g := range groupIDs {
			if g == allowed {
				return true, nil
			}
		}
	}
	return false, nil
}

func (m *memQuizStore) QuizByID(_ context.Context, quizID string) (*model.Quiz, error) {
	return m.quizzes[quizID], nil
}

func (m *memQuizStore) Questions(_ context.Context, quizID string) ([]model.Question, error) {
	qs := append([]model.Question(nil), m.questions[quizID]...)
	sort.Slice(qs, func(i, j int) bool { return qs[i].Order < qs[j].Order })
	return qs, nil
}

func (m *memQuizStore) QuestionCount(_ context.Context, quizID string) (int, error) {
	return len(m.questions[quizID]), nil
}

func (m *memQuizStore) AccessibleQuizzes(_ context.Context, groupIDs []string) ([]model.Quiz, error) {
	var out []model.Quiz
	for id, q := range m.quizzes {
		for _, allowed := range m.permitted[id] {
			for _, g := range groupIDs {
				if g == allowed {
					out = append(out, *q)
				}
			}
		}
	}
	return out, nil
}

func (m *memQuizStore) UserSubmissions(_ context.Context, userID string) ([]model.QuizSubmission, error) {
	var out []model.QuizSubmission
	for _, s := range m.subs {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memQuizStore) QuizSubmissions(_ context.Context, userID, quizID string) ([]model.QuizSubmission, error) {
	var out []model.QuizSubmission
	for _, s := range m.subs {
		if s.UserID == userID && s.QuizID == quizID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memQuizStore) OpenDraft(_ context.Context, userID, quizID string) (*model.QuizSubmission, error) {
	for _, s := range m.subs {
		if s.UserID == userID && s.QuizID == quizID && !s.SubmittedAt.Valid {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memQuizStore) CompletedCount(_ context.Context, userID, quizID string) (int, error) {
	n := 0
	for _, s := range m.subs {
		if s.UserID == userID && s.QuizID == quizID && s.SubmittedAt.Valid {
			n++
		}
	}
	return n, nil
}

func (m *memQuizStore) CreateDraft(_ context.Context, sub *model.QuizSubmission) error {
	for _, s := range m.subs {
		if s.UserID == sub.UserID && s.QuizID == sub.QuizID && !s.SubmittedAt.Valid {
			return ErrDuplicateDraft
		}
	}
	cp := *sub
	m.subs = append(m.subs, &cp)
	return nil
}

func (m *memQuizStore) UpdateDraft(_ context.Context, id string, responses model.Responses) error {
	for _, s := range m.subs {
		if s.ID == id {
			s.Responses = responses
		}
	}
	return nil
}

func (m *memQuizStore) LatestSubmitted(_ context.Context, userID, quizID string) (*model.QuizSubmission, error) {
	var latest *model.QuizSubmission
	for _, s := range m.subs {
		if s.UserID != userID || s.QuizID != quizID || !s.SubmittedAt.Valid {
			continue
		}
		if latest == nil || s.SubmittedAt.Time.After(latest.SubmittedAt.Time) {
			latest = s
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (m *memQuizStore) InferenceForQuiz(_ context.Context, quizID string) (*model.QuizInference, error) {
	return m.inferences[quizID], nil
}

func (m *memQuizStore) FinalizeAttempt(_ context.Context, p FinalizeParams) (string, error) {
	if p.MaxAttempts > 0 {
		n, _ := m.CompletedCount(context.Background(), p.UserID, p.QuizID)
		if n >= p.MaxAttempts {
			return "", ErrAttemptLimit
		}
	}
	now := sql.NullTime{Time: time.Now(), Valid: true}
	for _, s := range m.subs {
		if s.UserID == p.UserID && s.QuizID == p.QuizID && !s.SubmittedAt.Valid {
			s.Responses = p.Responses
			s.Score = p.Score
			s.Validated = p.Validated
			s.SubmittedAt = now
			return s.ID, nil
		}
	}
	sub := &model.QuizSubmission{
		ID: newSubmissionID(), UserID: p.UserID, QuizID: p.QuizID,
		Responses: p.Responses, Score: p.Score, Validated: p.Validated, SubmittedAt: now,
	}
	m.subs = append(m.subs, sub)
	return sub.ID, nil
}

// fakeLocker always grants the attempt lock.
type fakeLocker struct{}

func (fakeLocker) SetNX(context.Context, string, any, time.Duration) *redis.BoolCmd {
	return redis.NewBoolResult(true, nil)
}
func (fakeLocker) Del(context.Context, ...string) *redis.IntCmd {
	return redis.NewIntResult(1, nil)
}

func seedQuiz(st *memQuizStore, quizType string, maxAttempts int) {
	st.groups["u1"] = []string{"g1"}
	st.permitted["q1"] = []string{"g1"}
	st.quizzes["q1"] = &model.Quiz{
		ID: "q1", Name: "Personality Check",
		Meta:               model.QuizMeta{Type: quizType, MaxAttempts: maxAttempts},
		AcceptingResponses: true,
	}
	st.questions["q1"] = []model.Question{{
		ID: "qu1", QuizID: "q1", QuestionText: "Pick one",
		AnswerType: model.AnswerTypeMCQ,
		Options: model.Options{
			{Key: "A", Label: "first", Value: 5},
			{Key: "B", Label: "second", Value: 2},
		},
	}}
}

func newTestService(st Store) *Service {
	return NewService(st, fakeLocker{}, time.Second)
}

func answerA() model.Responses {
	return model.Responses{{QuestionID: "qu1", SelectedOptionKey: "A", Answer: "first"}}
}

func TestSaveDraftTwiceKeepsSubmissionID(t *testing.T) {
	st := newMemQuizStore()
	seedQuiz(st, model.QuizTypeEvaluative, 3)
	svc := newTestService(st)
	ctx := context.Background()

	first, err := svc.SaveDraft(ctx, "u1", "q1", answerA(), "1.2.3.4", "ua")
	require.NoError(t, err)
	require.NotEmpty(t, first)

	updated := model.Responses{{QuestionID: "qu1", SelectedOptionKey: "B", Answer: "second"}}
	second, err := svc.SaveDraft(ctx, "u1", "q1", updated, "1.2.3.4", "ua")
	require.NoError(t, err)
	require.Equal(t, first, second)

	require.Len(t, st.subs, 1)
	require.Equal(t, updated, st.subs[0].Responses)
}

func TestSubmitReusesOpenDraftID(t *testing.T) {
	st := newMemQuizStore()
	seedQuiz(st, model.QuizTypeEvaluative, 3)
	svc := newTestService(st)
	ctx := context.Background()

	draftID, err := svc.SaveDraft(ctx, "u1", "q1", answerA(), "", "")
	require.NoError(t, err)

	res, err := svc.Submit(ctx, "u1", "q1", answerA(), "", "")
	require.NoError(t, err)
	require.Equal(t, draftID, res.SubmissionID)

	require.Len(t, st.subs, 1)
	require.True(t, st.subs[0].SubmittedAt.Valid)
}

func TestSubmitWithoutDraftCreatesSubmittedRow(t *testing.T) {
	st := newMemQuizStore()
	seedQuiz(st, model.QuizTypeEvaluative, 3)
	svc := newTestService(st)

	res, err := svc.Submit(context.Background(), "u1", "q1", answerA(), "", "")
	require.NoError(t, err)
	require.NotEmpty(t, res.SubmissionID)

	require.Len(t, st.subs, 1)
	require.True(t, st.subs[0].SubmittedAt.Valid)
	require.True(t, st.subs[0].Validated)
}

func TestAttemptLimitBlocksNextAttempt(t *testing.T) {
	st := newMemQuizStore()
	seedQuiz(st, model.QuizTypeEvaluative, 2)
	svc := newTestService(st)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := svc.Submit(ctx, "u1", "q1", answerA(), "", "")
		require.NoError(t, err)
	}

	_, err := svc.Submit(ctx, "u1", "q1", answerA(), "", "")
	require.Error(t, err)
	ae := apierr.From(err)
	require.NotNil(t, ae)
	require.Equal(t, 400, ae.Status)
	require.Equal(t, "You have reached the maximum number of attempts for this quiz", ae.Message)

	// exhausted attempts also block starting a new draft
	_, err = svc.SaveDraft(ctx, "u1", "q1", answerA(), "", "")
	require.Error(t, err)
	ae = apierr.From(err)
	require.NotNil(t, ae)
	require.Equal(t, 400, ae.Status)
}

func TestZeroMaxAttemptsIsUnlimited(t *testing.T) {
	st := newMemQuizStore()
	seedQuiz(st, model.QuizTypeEvaluative, 0)
	svc := newTestService(st)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.Submit(ctx, "u1", "q1", answerA(), "", "")
		require.NoError(t, err)
	}
	require.Len(t, st.subs, 5)
}

func TestNoGroupMembershipsMeansNoAccess(t *testing.T) {
	st := newMemQuizStore()
	seedQuiz(st, model.QuizTypeEvaluative, 3)
	st.groups["u1"] = nil
	svc := newTestService(st)
	ctx := context.Background()

	ok, err := svc.HasAttemptAccess(ctx, "u1", "q1")
	require.NoError(t, err)
	require.False(t, ok)
	require.Zero(t, st.permissionCalls)

	_, err = svc.SaveDraft(ctx, "u1", "q1", answerA(), "", "")
	ae := apierr.From(err)
	require.NotNil(t, ae)
	require.Equal(t, 403, ae.Status)
}

func TestQuizNotAcceptingResponses(t *testing.T) {
	st := newMemQuizStore()
	seedQuiz(st, model.QuizTypeEvaluative, 3)
	st.quizzes["q1"].AcceptingResponses = false
	svc := newTestService(st)

	_, err := svc.Submit(context.Background(), "u1", "q1", answerA(), "", "")
	ae := apierr.From(err)
	require.NotNil(t, ae)
	require.Equal(t, 400, ae.Status)
	require.Equal(t, "This quiz is not accepting responses", ae.Message)
}

func TestEvaluativeSubmitScoresAndInfers(t *testing.T) {
	st := newMemQuizStore()
	seedQuiz(st, model.QuizTypeEvaluative, 3)
	st.inferences["q1"] = &model.QuizInference{
		ID: "inf1", QuizID: "q1",
		Rules: model.InferenceRules{
			{Min: 0, Max: 2, Inference: "low"},
			{Min: 3, Max: 5, Inference: "high"},
		},
	}
	svc := newTestService(st)
	ctx := context.Background()

	res, err := svc.Submit(ctx, "u1", "q1", answerA(), "", "")
	require.NoError(t, err)
	require.NotNil(t, res.Score)
	require.Equal(t, 5.0, *res.Score)

	result, err := svc.GetResult(ctx, "u1", "q1")
	require.NoError(t, err)
	require.NotNil(t, result.Score)
	require.Equal(t, 5.0, *result.Score)
	require.NotNil(t, result.Inference)
	require.Equal(t, "high", *result.Inference)
	require.Equal(t, 1, result.TotalQuestions)
}

func TestFeedbackSubmitHasNoScore(t *testing.T) {
	st := newMemQuizStore()
	seedQuiz(st, model.QuizTypeFeedback, 3)
	svc := newTestService(st)
	ctx := context.Background()

	res, err := svc.Submit(ctx, "u1", "q1", answerA(), "", "")
	require.NoError(t, err)
	require.Nil(t, res.Score)

	require.Len(t, st.subs, 1)
	require.False(t, st.subs[0].Validated)

	result, err := svc.GetResult(ctx, "u1", "q1")
	require.NoError(t, err)
	require.Nil(t, result.Score)
	require.Nil(t, result.Inference)
}

func TestGetResultWithoutSubmission(t *testing.T) {
	st := newMemQuizStore()
	seedQuiz(st, model.QuizTypeEvaluative, 3)
	svc := newTestService(st)

	_, err := svc.GetResult(context.Background(), "u1", "q1")
	ae := apierr.From(err)
	require.NotNil(t, ae)
	require.Equal(t, 404, ae.Status)
}

// racingStore rejects the first CreateDraft as if a concurrent draft-save
// won the unique-key race, inserting the winner's row instead.
type racingStore struct {
	*memQuizStore
	raced bool
}

func (r *racingStore) CreateDraft(ctx context.Context, sub *model.QuizSubmission) error {
	if !r.raced {
		r.raced = true
		winner := &model.QuizSubmission{
			ID: "winner", UserID: sub.UserID, QuizID: sub.QuizID,
			Responses: model.Responses{{QuestionID: "qu1", SelectedOptionKey: "B", Answer: "second"}},
		}
		r.subs = append(r.subs, winner)
		return ErrDuplicateDraft
	}
	return r.memQuizStore.CreateDraft(ctx, sub)
}

func TestSaveDraftDuplicateFallsBackToWinner(t *testing.T) {
	mem := newMemQuizStore()
	seedQuiz(mem, model.QuizTypeEvaluative, 3)
	st := &racingStore{memQuizStore: mem}
	svc := newTestService(st)

	id, err := svc.SaveDraft(context.Background(), "u1", "q1", answerA(), "", "")
	require.NoError(t, err)
	require.Equal(t, "winner", id)

	require.Len(t, mem.subs, 1)
	require.Equal(t, answerA(), mem.subs[0].Responses)
}

func TestListAccessibleCountsAttempts(t *testing.T) {
	st := newMemQuizStore()
	seedQuiz(st, model.QuizTypeEvaluative, 3)
	svc := newTestService(st)
	ctx := context.Background()

	_, err := svc.Submit(ctx, "u1", "q1", answerA(), "", "")
	require.NoError(t, err)
	draftID, err := svc.SaveDraft(ctx, "u1", "q1", answerA(), "", "")
	require.NoError(t, err)

	items, err := svc.ListAccessible(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, 1, items[0].AttemptStatus.AttemptCount)
	require.Equal(t, draftID, items[0].AttemptStatus.InProgressSubmissionID)
	require.True(t, items[0].AttemptStatus.CanAttempt)
}

func TestListAccessibleNoMemberships(t *testing.T) {
	st := newMemQuizStore()
	seedQuiz(st, model.QuizTypeEvaluative, 3)
	st.groups["u1"] = nil
	svc := newTestService(st)

	items, err := svc.ListAccessible(context.Background(), "u1")
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestGetDetailHidesQuestionsWhenExhausted(t *testing.T) {
	st := newMemQuizStore()
	seedQuiz(st, model.QuizTypeEvaluative, 1)
	svc := newTestService(st)
	ctx := context.Background()

	detail, err := svc.GetDetail(ctx, "u1", "q1")
	require.NoError(t, err)
	require.NotEmpty(t, detail.Questions)

	_, err = svc.Submit(ctx, "u1", "q1", answerA(), "", "")
	require.NoError(t, err)

	detail, err = svc.GetDetail(ctx, "u1", "q1")
	require.NoError(t, err)
	require.False(t, detail.AttemptStatus.CanAttempt)
	require.Empty(t, detail.Questions)
}
