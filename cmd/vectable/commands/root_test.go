package commands

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vectable"
	"github.com/hupe1980/vectable/config"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		logLevel, logFormat, metricsAddr = "", "", ""
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestFlowsCommands(t *testing.T) {
	t.Setenv(config.EnvURI, "memory://")
	t.Setenv(config.EnvAPIKey, "local")
	t.Setenv(config.EnvConfig, "")

	out, err := run(t, "basic", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "Done!")

	out, err = run(t, "versioning", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "Reverting to previous version")
}

func TestMissingConfiguration(t *testing.T) {
	t.Setenv(config.EnvURI, "")
	t.Setenv(config.EnvAPIKey, "")
	t.Setenv(config.EnvConfig, "")

	_, err := run(t, "basic")
	assert.ErrorIs(t, err, config.ErrMissingURI)
}

func TestNewLogger(t *testing.T) {
	_, err := newLogger(config.LoggingConfig{Level: "loud"})
	var ce *config.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "logging.level", ce.Field)

	logger, err := newLogger(config.LoggingConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, logger)
}

func TestServeMetrics(t *testing.T) {
	collector := vectable.NewPrometheusCollector("")
	collector.RecordCommitConflict()

	addr, stop, err := serveMetrics("127.0.0.1:0", collector, vectable.NoopLogger())
	require.NoError(t, err)
	defer stop()

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "vectable_commit_conflicts_total 1")
}
