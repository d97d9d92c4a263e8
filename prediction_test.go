package sensitive

import (
	"encoding/json"
	"testing"
)

func TestLabel_Valid(t *testing.T) {
	t.Parallel()

	for _, l := range Labels {
		if !l.Valid() {
			t.Errorf("%q should be valid", l)
		}
	}
	for _, l := range []Label{"", "neutral", "Gore"} {
		if l.Valid() {
			t.Errorf("%q should be invalid", l)
		}
	}
}

func TestPrediction_JSONShape(t *testing.T) {
	t.Parallel()

	raw, err := json.Marshal(Prediction{ClassName: LabelPorn, Probability: 0.25})
	if err != nil {
		t.Fatal(err)
	}
	if got := string(raw); got != `{"className":"Porn","probability":0.25}` {
		t.Errorf("json = %s", got)
	}
}

func TestPredictionSet_Helpers(t *testing.T) {
	t.Parallel()

	s := PredictionSet{
		{ClassName: LabelNeutral, Probability: 0.3},
		{ClassName: LabelSexy, Probability: 0.6},
		{ClassName: LabelDrawing, Probability: 0.1},
	}

	if top, ok := s.Top(); !ok || top.ClassName != LabelSexy {
		t.Errorf("Top() = %v, %v; want Sexy", top, ok)
	}
	if _, ok := PredictionSet(nil).Top(); ok {
		t.Error("Top() on empty set reported ok")
	}
	if got := s.Score(LabelSexy); got != 0.6 {
		t.Errorf("Score(Sexy) = %v, want 0.6", got)
	}
	if got := s.Score(LabelPorn); got != 0 {
		t.Errorf("Score(Porn) = %v, want 0", got)
	}
}

func TestOutcome_IsSensitive(t *testing.T) {
	t.Parallel()

	split := PredictionSet{
		{ClassName: LabelNeutral, Probability: 0.4},
		{ClassName: LabelPorn, Probability: 0.3},
		{ClassName: LabelSexy, Probability: 0.3},
	}

	tests := []struct {
		name      string
		out       Outcome
		threshold float64
		want      bool
	}{
		{name: "categories add up", out: Available(split), threshold: 0.5, want: true},
		{name: "sum below threshold", out: Available(split), threshold: 0.7, want: false},
		{name: "neutral only", out: Available(PredictionSet{{ClassName: LabelNeutral, Probability: 1}}), threshold: 0.1, want: false},
		{name: "drawing is not explicit", out: Available(PredictionSet{{ClassName: LabelDrawing, Probability: 0.9}}), threshold: 0.5, want: false},
		{name: "empty set", out: Available(nil), threshold: 0.5, want: false},
		{name: "unavailable", out: Unavailable(ReasonProxy), threshold: 0, want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.out.IsSensitive(tc.threshold); got != tc.want {
				t.Errorf("IsSensitive(%v) = %v, want %v", tc.threshold, got, tc.want)
			}
		})
	}
}

func TestOutcome(t *testing.T) {
	t.Parallel()

	if !Available(nil).OK() {
		t.Error("empty prediction set should still be available")
	}
	u := Unavailable(ReasonProxy)
	if u.OK() {
		t.Error("Unavailable outcome reported OK")
	}
	if got := u.String(); got != "unavailable(proxy-error)" {
		t.Errorf("String() = %q", got)
	}
}
