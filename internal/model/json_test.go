package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQuizMetaScan(t *testing.T) {
	var m QuizMeta
	require.NoError(t, m.Scan([]byte(`{"type":"evaluative","max_attempts":3}`)))
	require.Equal(t, "evaluative", m.Type)
	require.Equal(t, 3, m.MaxAttempts)
	require.True(t, m.Evaluative())

	var fb QuizMeta
	require.NoError(t, fb.Scan(`{"type":"feedback","max_attempts":0}`))
	require.False(t, fb.Evaluative())
}

func TestQuizMetaScanRejectsMalformed(t *testing.T) {
	cases := []string{
		`{"type":"survey","max_attempts":1}`,
		`{"type":"evaluative","max_attempts":-1}`,
		`{"type":`,
		`{}`,
	}
	for _, raw := range cases {
		var m QuizMeta
		require.Error(t, m.Scan([]byte(raw)), "payload %s", raw)
	}
}

func TestOptionsScan(t *testing.T) {
	var o Options
	require.NoError(t, o.Scan([]byte(`[{"option_key":"A","label":"Often","value":5}]`)))
	require.Len(t, o, 1)
	require.Equal(t, 5.0, o[0].Value)

	var bad Options
	require.Error(t, bad.Scan([]byte(`[{"label":"no key","value":1}]`)))
}

func TestResponsesRoundtrip(t *testing.T) {
	in := Responses{{QuestionID: "q1", SelectedOptionKey: "A", Answer: "often"}}
	raw, err := in.Value()
	require.NoError(t, err)

	var out Responses
	require.NoError(t, out.Scan(raw))
	require.Equal(t, in, out)
}

func TestInferenceRulesScan(t *testing.T) {
	var r InferenceRules
	require.NoError(t, r.Scan([]byte(`[{"min":0,"max":2,"inference":"low"},{"min":3,"max":5,"inference":"high"}]`)))
	require.Len(t, r, 2)
	require.Equal(t, "high", r[1].Inference)
}

func TestScanJSONNilLeavesZeroValue(t *testing.T) {
	var r Responses
	require.NoError(t, r.Scan(nil))
	require.Nil(t, r)
}

func TestScanJSONRejectsUnknownSource(t *testing.T) {
	var m QuizMeta
	require.Error(t, m.Scan(42))
}
