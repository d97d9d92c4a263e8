package sensitive

import "fmt"

// Label is one of the fixed content categories produced by the classifier.
type Label string

const (
	LabelDrawing Label = "Drawing"
	LabelHentai  Label = "Hentai"
	LabelNeutral Label = "Neutral"
	LabelPorn    Label = "Porn"
	LabelSexy    Label = "Sexy"
)

// Labels lists the closed label set.
var Labels = []Label{LabelDrawing, LabelHentai, LabelNeutral, LabelPorn, LabelSexy}

// Valid reports whether l belongs to the closed label set.
func (l Label) Valid() bool {
	for _, v := range Labels {
		if l == v {
			return true
		}
	}
	return false
}

// Prediction pairs a label with a confidence in [0,1]. The JSON shape is
// shared by local inference and the proxy protocol.
type Prediction struct {
	ClassName   Label   `json:"className"`
	Probability float64 `json:"probability"`
}

func (p Prediction) validate() error {
	if !p.ClassName.Valid() {
		return fmt.Errorf("unknown class %q", p.ClassName)
	}
	if p.Probability < 0 || p.Probability > 1 {
		return fmt.Errorf("probability %v of %q outside [0,1]", p.Probability, p.ClassName)
	}
	return nil
}

// PredictionSet is ordered as produced by the inference source.
type PredictionSet []Prediction

// Score returns the probability for label, or 0 when absent.
func (s PredictionSet) Score(label Label) float64 {
	for _, p := range s {
		if p.ClassName == label {
			return p.Probability
		}
	}
	return 0
}

// Top returns the most probable prediction.
func (s PredictionSet) Top() (Prediction, bool) {
	if len(s) == 0 {
		return Prediction{}, false
	}
	best := s[0]
	for _, p := range s[1:] {
		if p.Probability > best.Probability {
			best = p
		}
	}
	return best, true
}

// ExplicitScore sums the Porn, Hentai and Sexy probabilities.
func (s PredictionSet) ExplicitScore() float64 {
	return s.Score(LabelPorn) + s.Score(LabelHentai) + s.Score(LabelSexy)
}

// Reason tags an unavailable outcome.
type Reason string

const (
	ReasonUnsupportedCPU Reason = "unsupported-cpu"
	ReasonLocalInference Reason = "local-inference-error"
	ReasonProxy          Reason = "proxy-error"
	ReasonInternal       Reason = "internal-error"
)

// Outcome is either a PredictionSet or an Unavailable reason. Unavailable is
// a valid business result meaning sensitivity cannot be determined.
type Outcome struct {
	Predictions PredictionSet
	Reason      Reason // empty when predictions are available
}

// Available wraps a prediction set, which may be empty.
func Available(p PredictionSet) Outcome {
	return Outcome{Predictions: p}
}

// Unavailable builds an outcome without predictions.
func Unavailable(r Reason) Outcome {
	return Outcome{Reason: r}
}

// OK reports whether the outcome carries predictions.
func (o Outcome) OK() bool { return o.Reason == "" }

// IsSensitive reports whether the explicit categories together reach
// threshold. Unavailable outcomes are never sensitive; callers that must
// fail closed check OK first.
func (o Outcome) IsSensitive(threshold float64) bool {
	return o.OK() && o.Predictions.ExplicitScore() >= threshold
}

func (o Outcome) String() string {
	if !o.OK() {
		return "unavailable(" + string(o.Reason) + ")"
	}
	return fmt.Sprintf("predictions%v", []Prediction(o.Predictions))
}
