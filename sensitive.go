// Package sensitive classifies whether an image contains sensitive content,
// either with a local model or through a remote classification proxy.
package sensitive

import (
	"net/http"
	"time"
)

// Mode is the path a detection took.
type Mode string

const (
	ModeLocal Mode = "local"
	ModeProxy Mode = "proxy"
)

// DetectionEvent describes one Detect call. Input identity is never included.
type DetectionEvent struct {
	Mode        Mode
	Reason      Reason // empty when predictions were returned
	Predictions int
	Elapsed     time.Duration
}

// Config holds all dependencies injected by the consumer.
type Config struct {
	// ProxyURL returns the current proxy endpoint and is read on every call.
	// nil or "" selects local inference.
	ProxyURL func() string

	HTTPClient   *http.Client  // optional: client for proxy calls (nil = http.DefaultClient)
	ProxyTimeout time.Duration // default: DefaultProxyTimeout (10s)

	// ModelDir is the packaged model directory (default: DefaultModelDir()).
	// Ignored when Models is set.
	ModelDir string

	Prober *Prober       // default: DefaultProber()
	Models *ModelManager // default: SharedModelManager(ModelDir)

	// Optional callbacks for metrics/logging.
	OnPanic     func(tag string, r any)
	OnDetection func(DetectionEvent)
}

// defaults fills zero-value fields with sensible defaults.
func (c *Config) defaults() {
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	if c.ProxyTimeout <= 0 {
		c.ProxyTimeout = DefaultProxyTimeout
	}
	if c.Prober == nil {
		c.Prober = DefaultProber()
	}
	if c.Models == nil {
		if c.ModelDir == "" {
			c.ModelDir = DefaultModelDir()
		}
		c.Models = SharedModelManager(c.ModelDir)
	}
}

// StaticProxyURL returns a ProxyURL func that always yields u.
func StaticProxyURL(u string) func() string {
	return func() string { return u }
}
