package sensitive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	// DefaultProxyTimeout bounds one proxy round trip.
	DefaultProxyTimeout = 10 * time.Second

	maxProxyResponseBytes = 1 << 20 // 1MB
)

// ProxyRequest is the body sent to a classification proxy.
type ProxyRequest struct {
	Image string `json:"image"` // base64 (standard encoding) of the source bytes
}

// ProxyResponse is the body a classification proxy answers with.
type ProxyResponse struct {
	Predictions PredictionSet `json:"predictions"`
}

// ProxyClassifier delegates classification to a remote endpoint.
type ProxyClassifier struct {
	client  *http.Client
	timeout time.Duration
}

// NewProxyClassifier returns a classifier using client (nil = http.DefaultClient)
// and a per-request timeout (<= 0 = DefaultProxyTimeout).
func NewProxyClassifier(client *http.Client, timeout time.Duration) *ProxyClassifier {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultProxyTimeout
	}
	return &ProxyClassifier{client: client, timeout: timeout}
}

// Classify posts in to endpoint. Any failure yields Unavailable(ReasonProxy).
func (p *ProxyClassifier) Classify(ctx context.Context, in Input, endpoint string) Outcome {
	preds, err := p.classify(ctx, in, endpoint)
	if err != nil {
		slog.Error("sensitive: failed to detect sensitive media with proxy", "error", err)
		return Unavailable(ReasonProxy)
	}
	return Available(preds)
}

func (p *ProxyClassifier) classify(ctx context.Context, in Input, endpoint string) (PredictionSet, error) {
	data, err := in.Bytes()
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(ProxyRequest{Image: EncodeBase64(data)})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("sensitive: build proxy request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req) //nolint:gosec // G704: endpoint comes from administrator settings
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxProxyResponseBytes))
		return nil, fmt.Errorf("%w: %d", ErrProxyStatus, resp.StatusCode)
	}

	return decodeProxyResponse(io.LimitReader(resp.Body, maxProxyResponseBytes))
}

func decodeProxyResponse(r io.Reader) (PredictionSet, error) {
	var out struct {
		Predictions *PredictionSet `json:"predictions"`
	}
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if out.Predictions == nil {
		return nil, fmt.Errorf("%w: missing predictions", ErrMalformedResponse)
	}
	for _, p := range *out.Predictions {
		if err := p.validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
		}
	}
	return *out.Predictions, nil
}
