package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/vectable"
	"github.com/hupe1980/vectable/config"
	"github.com/hupe1980/vectable/internal/flows"
)

var (
	// Global flags
	logLevel    string
	logFormat   string
	metricsAddr string
)

var rootCmd = &cobra.Command{
	Use:   "vectable",
	Short: "Run the vectable walkthroughs",
	Long: `vectable runs small end-to-end flows against a versioned vector table store.

The store is selected with VECTABLE_URI:
  memory://                          in-process, lost on exit
  /var/lib/vectable                  local directory
  s3://bucket/prefix                 Amazon S3 (optional ?commit_table=<dynamodb table>)
  minio://host:9000/bucket/prefix    MinIO or another S3-compatible store

Examples:
  VECTABLE_URI=memory:// VECTABLE_API_KEY=local vectable basic
  vectable hybrid --log-level debug --metrics-addr :9090
`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides the config file)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text or json (overrides the config file)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	rootCmd.AddCommand(basicCmd)
	rootCmd.AddCommand(hybridCmd)
	rootCmd.AddCommand(versioningCmd)
}

// runFlow loads the configuration, sets up logging and metrics and runs fn.
func runFlow(cmd *cobra.Command, fn func(context.Context, *flows.Env) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}

	opts := []vectable.Option{vectable.WithLogger(logger)}
	if cfg.Metrics.Addr != "" {
		collector := vectable.NewPrometheusCollector("")
		_, stop, err := serveMetrics(cfg.Metrics.Addr, collector, logger)
		if err != nil {
			return err
		}
		defer stop()
		opts = append(opts, vectable.WithMetricsCollector(collector))
	}

	ctx := cmd.Context()
	env, err := flows.Setup(ctx, cfg, cmd.OutOrStdout(), opts...)
	if err != nil {
		return err
	}
	defer env.Close()

	if err := fn(ctx, env); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Done!")
	return nil
}

func newLogger(cfg config.LoggingConfig) (*vectable.Logger, error) {
	level, err := vectable.ParseLevel(cfg.Level)
	if err != nil {
		return nil, &config.Error{Field: "logging.level", Err: err}
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return vectable.NewLogger(slog.NewJSONHandler(os.Stderr, opts)), nil
	}
	return vectable.NewLogger(slog.NewTextHandler(os.Stderr, opts)), nil
}

// serveMetrics exposes collector on addr until the returned stop is called.
// It returns the address actually bound.
func serveMetrics(addr string, collector *vectable.PrometheusCollector, logger *vectable.Logger) (string, func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())

	return ln.Addr().String(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
