package sensitive

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/anatolykoptev/go-sensitive/tensor"
)

// LocalClassifier runs the in-process model. It consults the prober before
// touching the model manager, so unsupported hosts never load the runtime.
type LocalClassifier struct {
	prober *Prober
	models *ModelManager
	decode func(data []byte, channels, size int) (*tensor.Image, error)
}

// NewLocalClassifier wires a classifier from its collaborators.
func NewLocalClassifier(prober *Prober, models *ModelManager) *LocalClassifier {
	return &LocalClassifier{prober: prober, models: models, decode: tensor.Decode}
}

// Classify returns predictions for in, or an unavailable outcome for an
// unsupported CPU or a read/decode/inference failure. Only a model
// construction failure is returned as an error.
func (c *LocalClassifier) Classify(ctx context.Context, in Input) (Outcome, error) {
	if !c.prober.Supported() {
		slog.Warn("sensitive: this cpu cannot run local inference")
		return Unavailable(ReasonUnsupportedCPU), nil
	}

	model, err := c.models.GetOrCreate(ctx)
	if err != nil {
		return Outcome{}, err
	}

	preds, err := c.run(ctx, model, in)
	if err != nil {
		slog.Error("sensitive: local inference failed", "error", err)
		return Unavailable(ReasonLocalInference), nil
	}
	return Available(preds), nil
}

func (c *LocalClassifier) run(ctx context.Context, model Model, in Input) (preds PredictionSet, err error) {
	defer func() {
		if r := recover(); r != nil {
			preds, err = nil, fmt.Errorf("sensitive: inference panic: %v", r)
		}
	}()

	data, err := in.Bytes()
	if err != nil {
		return nil, err
	}

	img, err := c.decode(data, tensor.RGB, model.InputSize())
	if err != nil {
		return nil, err
	}
	defer img.Release()

	return model.Classify(ctx, img)
}
