package sensitive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/color"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestProxyClassifier_Success(t *testing.T) {
	t.Parallel()

	image := pngBytes(t, 4, color.White)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		var req ProxyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		got, err := DecodeBase64(req.Image)
		if err != nil || !bytes.Equal(got, image) {
			t.Errorf("image payload does not round-trip (err=%v)", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"predictions":[{"className":"Neutral","probability":0.98},{"className":"Sexy","probability":0.02}]}`))
	}))
	defer srv.Close()

	p := NewProxyClassifier(srv.Client(), 0)
	out := p.Classify(context.Background(), FromBytes(image), srv.URL+"/classify")

	want := PredictionSet{
		{ClassName: LabelNeutral, Probability: 0.98},
		{ClassName: LabelSexy, Probability: 0.02},
	}
	if !out.OK() {
		t.Fatalf("outcome unavailable: %s", out)
	}
	if diff := cmp.Diff(want, out.Predictions); diff != "" {
		t.Errorf("predictions mismatch (-want +got):\n%s", diff)
	}
}

func TestProxyClassifier_PathInput(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "a.png")
	data := pngBytes(t, 2, color.Black)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ProxyRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Image != EncodeBase64(data) {
			t.Error("file bytes were not sent")
		}
		_, _ = w.Write([]byte(`{"predictions":[]}`))
	}))
	defer srv.Close()

	out := NewProxyClassifier(srv.Client(), 0).Classify(context.Background(), FromPath(path), srv.URL)
	if !out.OK() {
		t.Fatalf("outcome unavailable: %s", out)
	}
	if len(out.Predictions) != 0 {
		t.Errorf("len(Predictions) = %d, want 0", len(out.Predictions))
	}
}

func TestProxyClassifier_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `{"predictions":[]}`},
		{name: "redirect status", status: http.StatusNotModified},
		{name: "not json", status: http.StatusOK, body: "<html>oops</html>"},
		{name: "missing predictions", status: http.StatusOK, body: `{"result":[]}`},
		{name: "null predictions", status: http.StatusOK, body: `{"predictions":null}`},
		{name: "unknown class", status: http.StatusOK, body: `{"predictions":[{"className":"Gore","probability":0.5}]}`},
		{name: "probability above one", status: http.StatusOK, body: `{"predictions":[{"className":"Porn","probability":1.5}]}`},
		{name: "negative probability", status: http.StatusOK, body: `{"predictions":[{"className":"Porn","probability":-0.1}]}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			out := NewProxyClassifier(srv.Client(), 0).Classify(context.Background(), FromBytes([]byte("img")), srv.URL)
			if out.Reason != ReasonProxy {
				t.Errorf("Reason = %q, want %q", out.Reason, ReasonProxy)
			}
		})
	}
}

func TestProxyClassifier_Timeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		_, _ = w.Write([]byte(`{"predictions":[]}`))
	}))
	defer srv.Close()

	p := NewProxyClassifier(srv.Client(), 50*time.Millisecond)
	start := time.Now()
	out := p.Classify(context.Background(), FromBytes([]byte("img")), srv.URL)
	if out.Reason != ReasonProxy {
		t.Errorf("Reason = %q, want %q", out.Reason, ReasonProxy)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timed-out call took %v", elapsed)
	}
}

func TestProxyClassifier_Unreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	out := NewProxyClassifier(nil, 0).Classify(context.Background(), FromBytes([]byte("img")), url)
	if out.Reason != ReasonProxy {
		t.Errorf("Reason = %q, want %q", out.Reason, ReasonProxy)
	}
}

func TestProxyClassifier_Defaults(t *testing.T) {
	t.Parallel()

	p := NewProxyClassifier(nil, 0)
	if p.timeout != 10*time.Second {
		t.Errorf("timeout = %v, want 10s", p.timeout)
	}
	if p.client != http.DefaultClient {
		t.Error("nil client should default to http.DefaultClient")
	}
}

func TestDecodeProxyResponse(t *testing.T) {
	t.Parallel()

	got, err := decodeProxyResponse(strings.NewReader(`{"predictions":[{"className":"Hentai","probability":0}],"extra":1}`))
	if err != nil {
		t.Fatalf("decodeProxyResponse: %v", err)
	}
	if diff := cmp.Diff(PredictionSet{{ClassName: LabelHentai}}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	if _, err := decodeProxyResponse(strings.NewReader(`[]`)); !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("err = %v, want ErrMalformedResponse", err)
	}
}
