package sensitive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/anatolykoptev/go-sensitive/internal/nsfwnet"
	"github.com/anatolykoptev/go-sensitive/tensor"
)

// DefaultModelDirName is the model directory next to the executable.
const DefaultModelDirName = "nsfw-model"

// Model is a loaded inference resource. Implementations must be safe for
// concurrent use and must not mutate themselves in Classify.
type Model interface {
	InputSize() int
	Classify(ctx context.Context, img *tensor.Image) (PredictionSet, error)
}

// ModelLoader constructs a Model. It runs at most once at a time per manager.
type ModelLoader func(ctx context.Context) (Model, error)

// ModelState describes the lifecycle of a manager's resource.
type ModelState int32

const (
	ModelAbsent ModelState = iota
	ModelConstructing
	ModelReady
	ModelFailed
)

func (s ModelState) String() string {
	switch s {
	case ModelConstructing:
		return "constructing"
	case ModelReady:
		return "ready"
	case ModelFailed:
		return "failed"
	default:
		return "absent"
	}
}

type loadedModel struct{ model Model }

// ModelManager owns a lazily constructed Model. Concurrent first callers
// share one construction; a failed construction is reported to every caller
// waiting on it and retried by the next call.
type ModelManager struct {
	load  ModelLoader
	ready atomic.Pointer[loadedModel]
	state atomic.Int32
	group singleflight.Group
}

// NewModelManager returns a manager that builds its model with load.
func NewModelManager(load ModelLoader) *ModelManager {
	return &ModelManager{load: load}
}

// State returns the current lifecycle state.
func (m *ModelManager) State() ModelState {
	return ModelState(m.state.Load())
}

// GetOrCreate returns the ready model, constructing it if needed. A caller
// whose ctx ends stops waiting; the construction itself carries on.
func (m *ModelManager) GetOrCreate(ctx context.Context) (Model, error) {
	if l := m.ready.Load(); l != nil {
		return l.model, nil
	}

	ch := m.group.DoChan("model", func() (any, error) {
		if l := m.ready.Load(); l != nil {
			return l.model, nil
		}
		return m.construct(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Model), nil
	}
}

func (m *ModelManager) construct(ctx context.Context) (model Model, err error) {
	m.state.Store(int32(ModelConstructing))
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrModelLoad, r)
		}
		if err != nil {
			m.state.Store(int32(ModelFailed))
			slog.Error("sensitive: model load failed", "error", err)
			return
		}
		m.ready.Store(&loadedModel{model: model})
		m.state.Store(int32(ModelReady))
		slog.Debug("sensitive: model loaded", "elapsed", time.Since(start))
	}()

	model, err = m.load(ctx)
	if err == nil && model == nil {
		err = errors.New("loader returned no model")
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelLoad, err)
	}
	return model, nil
}

var (
	sharedMu     sync.Mutex
	sharedModels = map[string]*ModelManager{}
)

// SharedModelManager returns the process-wide manager for the packaged model
// in dir, so every Detector using the same directory loads it once.
func SharedModelManager(dir string) *ModelManager {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if m, ok := sharedModels[dir]; ok {
		return m
	}
	m := NewModelManager(NetLoader(dir))
	sharedModels[dir] = m
	return m
}

// NetLoader loads the bundled network from dir.
func NetLoader(dir string) ModelLoader {
	return func(context.Context) (Model, error) {
		n, err := nsfwnet.Load(dir)
		if err != nil {
			return nil, err
		}
		return netModel{net: n}, nil
	}
}

// DefaultModelDir is nsfw-model/ next to the running executable.
func DefaultModelDir() string {
	exe, err := os.Executable()
	if err != nil {
		return DefaultModelDirName
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Join(filepath.Dir(exe), DefaultModelDirName)
}

type netModel struct{ net *nsfwnet.Net }

func (m netModel) InputSize() int { return m.net.InputSize() }

func (m netModel) Classify(_ context.Context, img *tensor.Image) (PredictionSet, error) {
	scores, err := m.net.Classify(img)
	if err != nil {
		return nil, err
	}
	out := make(PredictionSet, len(scores))
	for i, s := range scores {
		out[i] = Prediction{ClassName: Label(s.Label), Probability: s.Probability}
	}
	return out, nil
}
