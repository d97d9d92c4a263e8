// Package server exposes a Detector over HTTP using the classification
// proxy protocol, so one instance can act as the proxy for others.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	sensitive "github.com/anatolykoptev/go-sensitive"
)

// MaxRequestBytes bounds the JSON request body (base64 inflates images by 4/3).
const MaxRequestBytes = 32 << 20

// Handler serves POST /classify and GET /health.
func Handler(d *sensitive.Detector) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "OK",
			"mode":   d.Mode(),
			"cpu":    d.Prober().Status().String(),
			"model":  d.Models().State().String(),
		})
	})

	r.POST("/classify", func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxRequestBytes)

		var req sensitive.ProxyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		data, err := sensitive.DecodeBase64(req.Image)
		if err != nil || len(data) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "image must be non-empty base64"})
			return
		}

		out := d.Detect(c.Request.Context(), sensitive.FromBytes(data))
		if !out.OK() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": out.Reason})
			return
		}
		preds := out.Predictions
		if preds == nil {
			preds = sensitive.PredictionSet{}
		}
		c.JSON(http.StatusOK, sensitive.ProxyResponse{Predictions: preds})
	})

	return r
}

// ListenAndServe runs the handler on addr until ctx is cancelled, then shuts
// down gracefully.
func ListenAndServe(ctx context.Context, addr string, d *sensitive.Detector) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(d),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("sensitive: server listening", "addr", addr, "mode", d.Mode())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	slog.Info("sensitive: server shutting down")
	return srv.Shutdown(shutdownCtx)
}
