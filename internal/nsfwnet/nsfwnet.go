// Package nsfwnet is the bundled pure-Go inference runtime: a single dense
// layer with softmax over the planar RGB tensor.
package nsfwnet

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/anatolykoptev/go-sensitive/tensor"
)

// ArtifactName is the file name of the packaged model inside its directory.
const ArtifactName = "model.json"

var ErrCorrupt = errors.New("nsfwnet: corrupt model artifact")

// Artifact is the serialized model.
// Weights has one row per label and InputSize*InputSize*3 columns.
type Artifact struct {
	Labels    []string    `json:"labels"`
	InputSize int         `json:"inputSize"`
	Weights   [][]float64 `json:"weights"`
	Bias      []float64   `json:"bias"`
}

// Score is a label with its softmax probability.
type Score struct {
	Label       string
	Probability float64
}

// Net is a loaded model. It is read-only and safe for concurrent use.
type Net struct {
	labels []string
	size   int
	w      *mat.Dense
	b      *mat.VecDense
}

// Load reads dir/model.json and builds the network.
func Load(dir string) (*Net, error) {
	raw, err := os.ReadFile(filepath.Join(dir, ArtifactName))
	if err != nil {
		return nil, fmt.Errorf("nsfwnet: read artifact: %w", err)
	}
	var a Artifact
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return New(a)
}

// New builds a network from an in-memory artifact after validating its shape.
func New(a Artifact) (*Net, error) {
	rows := len(a.Labels)
	if rows == 0 {
		return nil, fmt.Errorf("%w: no labels", ErrCorrupt)
	}
	if a.InputSize <= 0 {
		return nil, fmt.Errorf("%w: input size %d", ErrCorrupt, a.InputSize)
	}
	if len(a.Weights) != rows || len(a.Bias) != rows {
		return nil, fmt.Errorf("%w: %d labels, %d weight rows, %d biases",
			ErrCorrupt, rows, len(a.Weights), len(a.Bias))
	}

	cols := tensor.RGB * a.InputSize * a.InputSize
	flat := make([]float64, 0, rows*cols)
	for i, row := range a.Weights {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: weight row %d has %d columns, want %d", ErrCorrupt, i, len(row), cols)
		}
		flat = append(flat, row...)
	}

	return &Net{
		labels: append([]string(nil), a.Labels...),
		size:   a.InputSize,
		w:      mat.NewDense(rows, cols, flat),
		b:      mat.NewVecDense(rows, append([]float64(nil), a.Bias...)),
	}, nil
}

// InputSize is the square edge length the network expects.
func (n *Net) InputSize() int { return n.size }

// Labels returns the label order of the output layer.
func (n *Net) Labels() []string { return append([]string(nil), n.labels...) }

// Classify scores img and returns probabilities sorted from most to least likely.
func (n *Net) Classify(img *tensor.Image) ([]Score, error) {
	if img == nil || img.Released() {
		return nil, errors.New("nsfwnet: image is released")
	}
	_, cols := n.w.Dims()
	if img.Channels != tensor.RGB || len(img.Data) != cols {
		return nil, fmt.Errorf("nsfwnet: input has %d values in %d channels, want %d in %d",
			len(img.Data), img.Channels, cols, tensor.RGB)
	}

	logits := mat.NewVecDense(len(n.labels), nil)
	logits.MulVec(n.w, mat.NewVecDense(cols, img.Data))
	logits.AddVec(logits, n.b)

	raw := logits.RawVector().Data
	lse := floats.LogSumExp(raw)

	scores := make([]Score, len(n.labels))
	for i, v := range raw {
		scores[i] = Score{Label: n.labels[i], Probability: math.Exp(v - lse)}
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Probability > scores[j].Probability
	})
	return scores, nil
}

// WriteArtifact stores a into dir/model.json.
func WriteArtifact(dir string, a Artifact) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, ArtifactName), raw, 0o644)
}
