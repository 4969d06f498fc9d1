package quiz

import "github.com/emandor/quizdesk_service/internal/model"

// Score sums the option values selected by each response. Responses naming
// an unknown question id or option key are skipped and contribute nothing;
// unanswered questions are not an error. Order of responses never changes
// the total.
func Score(responses model.Responses, questions []model.Question) float64 {
	byID := make(map[string]*model.Question, len(questions))
	for i := range questions {
		byID[questions[i].ID] = &questions[i]
	}

	var total float64
	for _, resp := range responses {
		q, ok := byID[resp.QuestionID]
		if !ok {
			continue
		}
		for _, opt := range q.Options {
			if opt.Key == resp.SelectedOptionKey {
				total += opt.Value
				break
			}
		}
	}
	return total
}

// Infer returns the label of the first rule, in stored order, whose
// inclusive [min, max] range contains score. Overlaps resolve by first
// match. The second return is false when no rule matches.
func Infer(score float64, rules model.InferenceRules) (string, bool) {
	for _, r := range rules {
		if score >= r.Min && score <= r.Max {
			return r.Inference, true
		}
	}
	return "", false
}
