package quiz

import (
	"context"

	"github.com/emandor/quizdesk_service/internal/apierr"
	"github.com/emandor/quizdesk_service/internal/model"
)

// HasAttemptAccess reports whether the user belongs to at least one group
// holding an attempt permission on the quiz. Zero memberships short-circuit
// to false without touching the permission table.
func (s *Service) HasAttemptAccess(ctx context.Context, userID, quizID string) (bool, error) {
	groupIDs, err := s.store.UserGroupIDs(ctx, userID)
	if err != nil {
		return false, err
	}
	if len(groupIDs) == 0 {
		return false, nil
	}
	return s.store.GroupsHoldAttemptPermission(ctx, quizID, groupIDs)
}

// AssertAttemptable is the composite guard in front of every draft-save and
// submit: access, existence, the accepting gate, then the attempt limit.
// Each check fails fast with its own error. The limit applies at draft-save
// time too: once attempts are exhausted, a new draft cannot be started.
func (s *Service) AssertAttemptable(ctx context.Context, userID, quizID string, enforceAttemptLimit bool) (*model.Quiz, error) {
	ok, err := s.HasAttemptAccess(ctx, userID, quizID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apierr.Forbidden("You do not have access to this quiz")
	}

	q, err := s.store.QuizByID(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, apierr.NotFound("Quiz not found")
	}

	if !q.AcceptingResponses {
		return nil, apierr.BadRequest("This quiz is not accepting responses")
	}

	if enforceAttemptLimit && q.Meta.MaxAttempts > 0 {
		completed, err := s.store.CompletedCount(ctx, userID, quizID)
		if err != nil {
			return nil, err
		}
		if completed >= q.Meta.MaxAttempts {
			return nil, apierr.BadRequest("You have reached the maximum number of attempts for this quiz")
		}
	}
	return q, nil
}
