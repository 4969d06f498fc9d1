package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

// scanJSON decodes a DB JSON column into dst, rejecting malformed payloads
// at load time instead of at score time.
func scanJSON(src any, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("model: cannot scan %T into JSON column", src)
	}
}

const (
	QuizTypeEvaluative = "evaluative"
	QuizTypeFeedback   = "feedback"
)

const (
	AnswerTypeMCQ   = "mcq"
	AnswerTypeScale = "scale"
)

// QuizMeta is the quiz-level metadata payload. MaxAttempts of 0 means
// unlimited attempts.
type QuizMeta struct {
	Type        string `json:"type"`
	MaxAttempts int    `json:"max_attempts"`
}

func (m QuizMeta) Evaluative() bool { return m.Type == QuizTypeEvaluative }

func (m QuizMeta) Value() (driver.Value, error) { return json.Marshal(m) }

func (m *QuizMeta) Scan(src any) error {
	if err := scanJSON(src, m); err != nil {
		return err
	}
	if m.Type != QuizTypeEvaluative && m.Type != QuizTypeFeedback {
		return fmt.Errorf("model: unknown quiz type %q", m.Type)
	}
	if m.MaxAttempts < 0 {
		return errors.New("model: negative max_attempts")
	}
	return nil
}

// Option is one selectable answer with its scoring value.
type Option struct {
	Key   string  `json:"option_key"`
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

type Options []Option

func (o Options) Value() (driver.Value, error) { return json.Marshal(o) }

func (o *Options) Scan(src any) error {
	if err := scanJSON(src, o); err != nil {
		return err
	}
	for _, opt := range *o {
		if opt.Key == "" {
			return errors.New("model: option with empty key")
		}
	}
	return nil
}

// Response is a single answered question within a submission.
type Response struct {
	QuestionID        string `json:"question_id"`
	SelectedOptionKey string `json:"selected_option_key"`
	Answer            string `json:"answer"`
}

type Responses []Response

func (r Responses) Value() (driver.Value, error) { return json.Marshal(r) }

func (r *Responses) Scan(src any) error { return scanJSON(src, r) }

// InferenceRule maps an inclusive score range to a qualitative label.
type InferenceRule struct {
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Inference string  `json:"inference"`
}

type InferenceRules []InferenceRule

func (r InferenceRules) Value() (driver.Value, error) { return json.Marshal(r) }

func (r *InferenceRules) Scan(src any) error { return scanJSON(src, r) }

// JSONMap is a free-form metadata column (question meta).
type JSONMap map[string]any

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(src any) error { return scanJSON(src, m) }
