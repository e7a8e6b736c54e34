package entrypoint

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/weread2flomo/internal/ai"
	"github.com/mrlokans/weread2flomo/internal/config"
	"github.com/mrlokans/weread2flomo/internal/syncer"
)

func loadTestConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("WEREAD_COOKIE", "wr_skey=abc")
	t.Setenv("FLOMO_API", "https://flomoapp.com/iwh/test")
	t.Setenv("LEDGER_PATH", filepath.Join(dir, "synced_bookmarks.json"))
	for k, v := range env {
		t.Setenv(k, v)
	}

	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func TestBuild_MissingCredentials(t *testing.T) {
	cfg := loadTestConfig(t, map[string]string{"WEREAD_COOKIE": ""})

	_, err := Build(cfg, zerolog.Nop(), "test")
	assert.ErrorIs(t, err, config.ErrMissingCredentials)
}

func TestBuild_Defaults(t *testing.T) {
	cfg := loadTestConfig(t, nil)

	app, err := Build(cfg, zerolog.Nop(), "test")
	require.NoError(t, err)
	defer app.Close()

	assert.NotNil(t, app.Syncer)
	assert.Equal(t, 0, app.Ledger.Len())
	assert.NotNil(t, app.Metrics)
	assert.Nil(t, app.Database)
	assert.Nil(t, app.Audit)
}

func TestBuild_CorruptLedgerStartsEmpty(t *testing.T) {
	cfg := loadTestConfig(t, nil)
	require.NoError(t, os.WriteFile(cfg.Ledger.Path, []byte("{not json"), 0o644))

	app, err := Build(cfg, zerolog.Nop(), "test")
	require.NoError(t, err)
	defer app.Close()

	assert.Equal(t, 0, app.Ledger.Len())
}

func TestBuild_CorruptLedgerWarningReachesReport(t *testing.T) {
	cfg := loadTestConfig(t, map[string]string{"WEREAD_BASE_URL": "http://127.0.0.1:1"})
	require.NoError(t, os.WriteFile(cfg.Ledger.Path, []byte("{not json"), 0o644))

	var logs bytes.Buffer
	app, err := Build(cfg, zerolog.New(&logs), "test")
	require.NoError(t, err)
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stats, err := app.RunOnce(ctx)
	assert.ErrorIs(t, err, syncer.ErrSourceUnavailable)
	require.NotNil(t, stats)
	require.NotEmpty(t, stats.Warnings)
	assert.Contains(t, stats.Warnings[0], "ledger unreadable, starting empty")

	var finished string
	for _, line := range bytes.Split(logs.Bytes(), []byte("\n")) {
		if bytes.Contains(line, []byte("Sync run finished")) {
			finished = string(line)
		}
	}
	require.NotEmpty(t, finished)
	assert.Equal(t, 1, bytes.Count([]byte(finished), []byte(`"component":"syncer"`)))
}

func TestBuild_WithJournal(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "journal", "audit.db")
	cfg := loadTestConfig(t, map[string]string{
		"AUDIT_DB_PATH":   dbPath,
		"METRICS_ENABLED": "false",
	})

	app, err := Build(cfg, zerolog.Nop(), "test")
	require.NoError(t, err)

	require.NotNil(t, app.Database)
	require.NotNil(t, app.Audit)
	assert.Nil(t, app.Metrics)
	assert.FileExists(t, dbPath)
	assert.NoError(t, app.Close())
}

func TestBuild_AITagsWithoutKeyFallsBackToLocal(t *testing.T) {
	cfg := loadTestConfig(t, map[string]string{
		"ENABLE_AI_TAGS":    "true",
		"ENABLE_AI_SUMMARY": "true",
		"AI_PROVIDER":       "openai",
	})

	app, err := Build(cfg, zerolog.Nop(), "test")
	require.NoError(t, err)
	defer app.Close()

	assert.Nil(t, newCompleter(cfg, zerolog.Nop()))
	assert.NotNil(t, app.Syncer)
}

func TestNewCompleter(t *testing.T) {
	t.Run("no key", func(t *testing.T) {
		cfg := loadTestConfig(t, map[string]string{"AI_PROVIDER": "openai"})
		assert.Nil(t, newCompleter(cfg, zerolog.Nop()))
	})

	t.Run("local provider needs no model", func(t *testing.T) {
		cfg := loadTestConfig(t, map[string]string{"AI_PROVIDER": "local", "AI_API_KEY": "k"})
		assert.Nil(t, newCompleter(cfg, zerolog.Nop()))
	})

	t.Run("openai", func(t *testing.T) {
		cfg := loadTestConfig(t, map[string]string{"AI_PROVIDER": "openai", "AI_API_KEY": "k"})
		assert.IsType(t, &ai.OpenAIClient{}, newCompleter(cfg, zerolog.Nop()))
	})

	t.Run("anthropic", func(t *testing.T) {
		cfg := loadTestConfig(t, map[string]string{"AI_PROVIDER": "anthropic", "AI_API_KEY": "k"})
		assert.IsType(t, &ai.AnthropicClient{}, newCompleter(cfg, zerolog.Nop()))
	})
}

func TestServe_StopsOnContextCancel(t *testing.T) {
	app := &App{Logger: zerolog.Nop()}
	ctx, cancel := context.WithCancel(context.Background())

	shutdownCalled := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- app.serve(ctx, nil, "127.0.0.1:0", time.Second, func(context.Context) {
			close(shutdownCalled)
		})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
	_, ok := <-shutdownCalled
	assert.False(t, ok)
}
