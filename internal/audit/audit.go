package audit

import (
	"github.com/emandor/quizdesk_service/internal/telemetry"
)

// Actions recorded by the audit sink.
const (
	UserRegistered = "USER_REGISTERED"
	UserLogin      = "USER_LOGIN"
	UserLogout     = "USER_LOGOUT"
	DraftSaved     = "QUIZ_DRAFT_SAVED"
	QuizSubmitted  = "QUIZ_SUBMITTED"
)

type Entry struct {
	UserID    string
	Action    string
	Resource  string
	Details   map[string]any
	IP        string
	UserAgent string
}

// Log emits a structured audit event. Fire-and-forget: never returns an
// error and never blocks the request path on anything but the log writer.
func Log(e Entry) {
	uid := e.UserID
	if uid == "" {
		uid = "anonymous"
	}
	ev := telemetry.L().Info().
		Str("audit", e.Action).
		Str("user_id", uid)
	if e.Resource != "" {
		ev = ev.Str("resource", e.Resource)
	}
	if e.IP != "" {
		ev = ev.Str("ip", e.IP)
	}
	if e.UserAgent != "" {
		ev = ev.Str("ua", e.UserAgent)
	}
	if len(e.Details) > 0 {
		ev = ev.Interface("details", e.Details)
	}
	ev.Msg("audit_event")
}
