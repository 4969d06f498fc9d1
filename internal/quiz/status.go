package quiz

// AttemptStatus summarizes a user's attempt history on one quiz.
type AttemptStatus struct {
	Attempted              bool   `json:"attempted"`
	AttemptCount           int    `json:"attemptCount"`
	MaxAttempts            int    `json:"maxAttempts"`
	CanAttempt             bool   `json:"canAttempt"`
	HasInProgressAttempt   bool   `json:"hasInProgressAttempt"`
	InProgressSubmissionID string `json:"inProgressSubmissionId,omitempty"`
}

// NewAttemptStatus derives eligibility from the accepting flag and the
// completed-attempt count. MaxAttempts of 0 never blocks.
func NewAttemptStatus(accepting bool, maxAttempts, completed int, inProgressID string) AttemptStatus {
	return AttemptStatus{
		Attempted:              completed > 0,
		AttemptCount:           completed,
		MaxAttempts:            maxAttempts,
		CanAttempt:             accepting && (maxAttempts == 0 || completed < maxAttempts),
		HasInProgressAttempt:   inProgressID != "",
		InProgressSubmissionID: inProgressID,
	}
}
