package sensitive

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Detector is the public entry point. It picks the proxy or the local model
// on every call and always returns an Outcome.
type Detector struct {
	cfg   Config
	local *LocalClassifier
	proxy *ProxyClassifier
}

// New builds a Detector. Callers normally keep one per process.
func New(cfg Config) *Detector {
	cfg.defaults()
	return &Detector{
		cfg:   cfg,
		local: NewLocalClassifier(cfg.Prober, cfg.Models),
		proxy: NewProxyClassifier(cfg.HTTPClient, cfg.ProxyTimeout),
	}
}

// Detect classifies in. It never panics and never returns an error: every
// failure becomes an Unavailable outcome whose cause is logged.
func (d *Detector) Detect(ctx context.Context, in Input) (out Outcome) {
	start := time.Now()
	mode := ModeLocal

	defer func() {
		if r := recover(); r != nil {
			slog.Error("sensitive: detection panicked", "mode", mode, "panic", r)
			if d.cfg.OnPanic != nil {
				d.cfg.OnPanic("detect", r)
			}
			out = Unavailable(ReasonInternal)
		}
		d.report(DetectionEvent{
			Mode:        mode,
			Reason:      out.Reason,
			Predictions: len(out.Predictions),
			Elapsed:     time.Since(start),
		})
	}()

	if endpoint := d.ProxyURL(); endpoint != "" {
		mode = ModeProxy
		return d.proxy.Classify(ctx, in, endpoint)
	}

	out, err := d.local.Classify(ctx, in)
	if err != nil {
		slog.Error("sensitive: local detection failed", "error", err)
		return Unavailable(ReasonInternal)
	}
	return out
}

// ProxyURL returns the configured proxy endpoint, "" in local mode.
func (d *Detector) ProxyURL() string {
	if d.cfg.ProxyURL == nil {
		return ""
	}
	return strings.TrimSpace(d.cfg.ProxyURL())
}

// Mode reports which path the next Detect call would take.
func (d *Detector) Mode() Mode {
	if d.ProxyURL() != "" {
		return ModeProxy
	}
	return ModeLocal
}

// Prober exposes the capability prober used by the local path.
func (d *Detector) Prober() *Prober { return d.cfg.Prober }

// Models exposes the model manager used by the local path.
func (d *Detector) Models() *ModelManager { return d.cfg.Models }

func (d *Detector) report(ev DetectionEvent) {
	if d.cfg.OnDetection == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil && d.cfg.OnPanic != nil {
			d.cfg.OnPanic("on_detection", r)
		}
	}()
	d.cfg.OnDetection(ev)
}
