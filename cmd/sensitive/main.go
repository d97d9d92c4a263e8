package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	sensitive "github.com/anatolykoptev/go-sensitive"
	"github.com/anatolykoptev/go-sensitive/applock"
	"github.com/anatolykoptev/go-sensitive/server"
)

func main() {
	if err := NewCLI().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	proxyURL   string
	modelDir   string
	listen     string
	redisAddr  string
	lockKind   string
	hold       time.Duration
	debug      bool
}

// NewCLI builds the root command.
func NewCLI() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "sensitive",
		Short:         "Sensitive image content classifier",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := slog.LevelInfo
			if opts.debug {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "YAML settings file")
	flags.StringVar(&opts.proxyURL, "proxy-url", "", "Classification proxy endpoint (overrides settings)")
	flags.StringVar(&opts.modelDir, "model-dir", "", "Packaged model directory (overrides settings)")
	flags.StringVar(&opts.redisAddr, "redis-addr", "", "Redis address for application locks (overrides settings)")
	flags.BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	detectCmd := &cobra.Command{
		Use:   "detect FILE...",
		Short: "Classify image files and print the outcomes as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := opts.settings()
			if err != nil {
				return err
			}
			return runDetect(cmd.Context(), cmd.OutOrStdout(), newDetector(settings), args)
		},
	}

	probeCmd := &cobra.Command{
		Use:   "probe",
		Short: "Report whether this host can run local inference",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := sensitive.DefaultProber()
			p.Supported()
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s/%s: %s\n", runtime.GOOS, runtime.GOARCH, p.Status())
			return err
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the classification proxy protocol over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := opts.settings()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return server.ListenAndServe(ctx, settings.Listen(), newDetector(settings))
		},
	}
	serveCmd.Flags().StringVar(&opts.listen, "listen", "", "Listen address (default "+sensitive.DefaultListen+")")

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := opts.settings()
			if err != nil {
				return err
			}
			out, err := settings.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	lockCmd := &cobra.Command{
		Use:   "lock KEY",
		Short: "Acquire, hold and release an application lock in Redis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := opts.settings()
			if err != nil {
				return err
			}
			locks, client, err := settings.LockService()
			if err != nil {
				return err
			}
			defer client.Close()
			return runLock(cmd.Context(), cmd.OutOrStdout(), locks, opts.lockKind, args[0], opts.hold)
		},
	}
	lockCmd.Flags().StringVar(&opts.lockKind, "kind", "", "Lock namespace: ap-object, chart-insert or empty for a raw key")
	lockCmd.Flags().DurationVar(&opts.hold, "hold", 0, "How long to hold the lock before releasing it")

	rootCmd.AddCommand(detectCmd, probeCmd, serveCmd, configCmd, lockCmd)
	return rootCmd
}

// settings loads the settings file (if any) and applies flag overrides.
func (o *options) settings() (*sensitive.Settings, error) {
	var (
		s   *sensitive.Settings
		err error
	)
	if o.configPath != "" {
		s, err = sensitive.LoadSettings(o.configPath)
	} else {
		s, err = sensitive.ParseSettings(nil)
	}
	if err != nil {
		return nil, err
	}
	if o.proxyURL != "" {
		if err := s.SetProxyURL(o.proxyURL); err != nil {
			return nil, err
		}
	}
	if o.modelDir != "" {
		s.SetModelDir(o.modelDir)
	}
	if o.listen != "" {
		s.SetListen(o.listen)
	}
	if o.redisAddr != "" {
		s.SetRedisAddr(o.redisAddr)
	}
	return s, nil
}

func newDetector(s *sensitive.Settings) *sensitive.Detector {
	return sensitive.New(sensitive.Config{
		ProxyURL: s.ProxyURL,
		ModelDir: s.ModelDir(),
	})
}

type detectResult struct {
	File        string                  `json:"file"`
	Predictions sensitive.PredictionSet `json:"predictions,omitempty"`
	Unavailable sensitive.Reason        `json:"unavailable,omitempty"`
}

func runDetect(ctx context.Context, w io.Writer, d *sensitive.Detector, files []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	enc := json.NewEncoder(w)
	for _, f := range files {
		out := d.Detect(ctx, sensitive.FromPath(f))
		if err := enc.Encode(detectResult{File: f, Predictions: out.Predictions, Unavailable: out.Reason}); err != nil {
			return err
		}
	}
	return nil
}

func runLock(ctx context.Context, w io.Writer, locks *applock.Service, kind, key string, hold time.Duration) error {
	var (
		release applock.Release
		err     error
	)
	switch kind {
	case "ap-object":
		release, err = locks.APObjectLock(ctx, key)
	case "chart-insert":
		release, err = locks.ChartInsertLock(ctx, key)
	case "":
		release, err = locks.Acquire(ctx, key)
	default:
		return fmt.Errorf("unknown lock kind %q", kind)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "locked %s\n", key)

	if hold > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(hold):
		}
	}

	// Release even if ctx ended while holding.
	if err := release(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "released %s\n", key)
	return err
}
