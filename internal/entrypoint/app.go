package entrypoint

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/mrlokans/weread2flomo/internal/ai"
	"github.com/mrlokans/weread2flomo/internal/audit"
	"github.com/mrlokans/weread2flomo/internal/config"
	"github.com/mrlokans/weread2flomo/internal/database"
	auditRepo "github.com/mrlokans/weread2flomo/internal/database/audit"
	"github.com/mrlokans/weread2flomo/internal/flomo"
	"github.com/mrlokans/weread2flomo/internal/ledger"
	"github.com/mrlokans/weread2flomo/internal/metrics"
	"github.com/mrlokans/weread2flomo/internal/render"
	"github.com/mrlokans/weread2flomo/internal/syncer"
	"github.com/mrlokans/weread2flomo/internal/weread"
)

// App holds every component of one configured sync engine.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Version string

	Ledger *ledger.Ledger
	Syncer *syncer.Syncer

	// Nil when the corresponding feature is disabled.
	Metrics  *metrics.Recorder
	Database *database.Database
	Audit    *audit.Service

	closers []io.Closer
}

// Build wires the configured collaborators around the sync engine. Missing
// credentials are fatal; an unreadable ledger starts the run empty.
func Build(cfg *config.Config, logger zerolog.Logger, version string) (*App, error) {
	if err := cfg.RequireCredentials(); err != nil {
		return nil, err
	}

	led, ledgerErr := ledger.Load(cfg.Ledger.Path)
	if ledgerErr != nil {
		logger.Warn().Err(ledgerErr).Msg("Starting with an empty ledger")
	}
	logger.Info().
		Str("path", led.Path()).
		Int("bookmarks", led.Len()).
		Int("fingerprints", led.FingerprintCount()).
		Msg("Ledger loaded")

	source := weread.NewClient(cfg.WeRead.Cookie,
		weread.WithBaseURL(cfg.WeRead.BaseURL),
		weread.WithTimeout(cfg.WeRead.Timeout),
		weread.WithMaxRetries(cfg.Advanced.MaxRetries),
	)
	sink := flomo.NewClient(cfg.Flomo.APIURL, cfg.Flomo.DailyLimit, cfg.Flomo.Timeout)

	s := syncer.New(source, sink, led, render.New(cfg), logger, syncer.Options{
		MaxHighlights:       cfg.Sync.MaxHighlights,
		DaysLimit:           cfg.Sync.DaysLimit,
		SyncNotes:           cfg.Sync.SyncReviews,
		PersistEachDelivery: cfg.Ledger.PersistEachDelivery,
		BookDelay:           cfg.Sync.BookDelay,
		ItemDelay:           cfg.Advanced.RequestDelay,
	})
	if ledgerErr != nil {
		s.AddStartupWarning(fmt.Sprintf("ledger unreadable, starting empty: %v", ledgerErr))
	}

	app := &App{
		Config:  cfg,
		Logger:  logger,
		Version: version,
		Ledger:  led,
		Syncer:  s,
	}

	completer := newCompleter(cfg, logger)
	if err := app.wireGenerators(completer); err != nil {
		return nil, err
	}

	if cfg.Server.MetricsEnabled {
		app.Metrics = metrics.New()
		s.SetMetrics(app.Metrics)
	}

	if cfg.Audit.DBPath != "" {
		db, err := database.NewDatabase(cfg.Audit.DBPath, logger)
		if err != nil {
			// The journal is optional; a broken database never blocks delivery.
			logger.Warn().Err(err).Str("path", cfg.Audit.DBPath).Msg("Delivery journal disabled")
		} else {
			app.Database = db
			app.Audit = audit.NewService(auditRepo.NewRepository(db.DB))
			app.closers = append(app.closers, db)
			s.SetJournal(app.Audit)
		}
	}

	return app, nil
}

func (a *App) wireGenerators(completer ai.Completer) error {
	cfg := a.Config

	if cfg.Tags.EnableAITags {
		provider := cfg.AI.Provider
		if completer == nil && (provider == config.ProviderOpenAI || provider == config.ProviderAnthropic) {
			a.Logger.Warn().Str("provider", provider).Msg("AI_API_KEY not set, falling back to local tags")
			provider = config.ProviderLocal
		}
		tags, err := ai.NewTagGenerator(ai.TagOptions{
			Provider:  provider,
			Prompt:    cfg.AI.TagPrompt,
			MaxTags:   cfg.Tags.MaxAITags,
			Completer: completer,
			Cache:     ai.NewTagCache(cfg.Tags.TagCacheEntries),
		}, a.Logger)
		if err != nil {
			return fmt.Errorf("tag generator: %w", err)
		}
		if tags.Provider() != ai.ProviderNone {
			a.Syncer.SetTagGenerator(tags)
		}
	}

	if cfg.AI.EnableSummary {
		if completer == nil {
			a.Logger.Warn().Msg("AI summaries enabled but no LLM provider is configured")
		} else {
			a.Syncer.SetSummaryGenerator(ai.NewSummaryGenerator(completer, cfg.AI.SummaryPrompt, cfg.AI.SummaryMinLength))
		}
	}
	return nil
}

// newCompleter returns the LLM client for the configured provider, or nil
// when the provider does not call a model or no key is set.
func newCompleter(cfg *config.Config, logger zerolog.Logger) ai.Completer {
	if cfg.AI.APIKey == "" {
		return nil
	}

	switch cfg.AI.Provider {
	case config.ProviderOpenAI:
		logger.Debug().Str("model", cfg.AI.Model).Str("api_base", cfg.AI.APIBase).Msg("Using OpenAI-compatible completions")
		return ai.NewOpenAIClient(cfg.AI.APIBase, cfg.AI.APIKey, cfg.AI.Model, cfg.AI.Timeout,
			ai.WithMaxRetries(cfg.Advanced.MaxRetries))
	case config.ProviderAnthropic:
		baseURL := cfg.AI.APIBase
		if baseURL == config.DefaultAIAPIBase {
			baseURL = ""
		}
		model := cfg.AI.Model
		if model == config.DefaultAIModel {
			model = ai.DefaultAnthropicModel
		}
		logger.Debug().Str("model", model).Msg("Using Anthropic messages")
		return ai.NewAnthropicClient(baseURL, cfg.AI.APIKey, model, cfg.AI.Timeout, cfg.Advanced.MaxRetries)
	default:
		return nil
	}
}

// RunOnce performs a single sync run.
func (a *App) RunOnce(ctx context.Context) (*syncer.RunStatistics, error) {
	return a.Syncer.Run(ctx)
}

// Close releases the journal database.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
