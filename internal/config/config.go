package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gookit/validate"
	"github.com/spf13/viper"
)

var ErrMissingCredentials = errors.New("missing credentials")

type (
	Config struct {
		Sync
		Tags
		AI
		Flomo
		WeRead
		Ledger
		Audit
		Schedule
		Server
		Log
		Advanced

		DefaultTemplate string
		Templates       map[string]Template
		Categories      map[string]Category

		// Warnings collected while loading, logged once logging is configured.
		Warnings []string
	}

	Sync struct {
		DaysLimit     int `validate:"min:0"` // 0 disables the time window
		MaxHighlights int `validate:"min:0"` // Per run, across all books
		SyncReviews   bool
		BookDelay     time.Duration // Pause after a book that delivered something
	}
	Tags struct {
		Default         []string
		AddBookTitle    bool
		AddAuthor       bool
		Hierarchical    bool
		EnableAITags    bool
		MaxAITags       int `validate:"min:0"`
		TagCacheEntries int `validate:"min:1"`
	}
	AI struct {
		Provider         string `validate:"required|in:none,local,openai,anthropic"`
		APIBase          string
		APIKey           string
		Model            string
		EnableSummary    bool
		SummaryMinLength int `validate:"min:0"` // In characters
		TagPrompt        string
		SummaryPrompt    string
		Timeout          time.Duration
	}
	Flomo struct {
		APIURL     string
		DailyLimit int `validate:"min:1"`
		Timeout    time.Duration
	}
	WeRead struct {
		Cookie  string
		BaseURL string `validate:"required"`
		Timeout time.Duration
	}
	Ledger struct {
		Path                string `validate:"required"`
		PersistEachDelivery bool
	}
	Audit struct {
		DBPath        string // Empty disables the delivery journal
		RetentionDays int    `validate:"min:0"`
	}
	Schedule struct {
		Cron string // Standard 5-field cron expression
	}
	Server struct {
		Addr           string
		MetricsEnabled bool
	}
	Log struct {
		Level      string `validate:"required|in:trace,debug,info,warn,error"`
		File       string // Optional rotating log file
		MaxSizeMB  int
		MaxBackups int
	}
	Advanced struct {
		RequestDelay time.Duration // Pause after each delivered highlight
		MaxRetries   int           `validate:"min:0"`
	}

	Template struct {
		Format string `mapstructure:"format"`
	}
	Category struct {
		Keywords []string `mapstructure:"keywords"`
		Tags     []string `mapstructure:"tags"`
		Template string   `mapstructure:"template"`
	}
)

// envBindings maps config keys to the environment variable names operators
// already use. Environment always wins over the config file.
var envBindings = map[string]string{
	"sync.days_limit":              "SYNC_DAYS_LIMIT",
	"sync.max_highlights_per_sync": "SYNC_MAX_HIGHLIGHTS",
	"sync.sync_reviews":            "SYNC_REVIEWS",
	"sync.book_delay":              "SYNC_BOOK_DELAY",
	"tags.default":                 "DEFAULT_TAGS",
	"tags.add_book_title":          "ADD_BOOK_TITLE_TAG",
	"tags.add_author":              "ADD_AUTHOR_TAG",
	"tags.use_hierarchical_tags":   "USE_HIERARCHICAL_TAGS",
	"tags.enable_ai_tags":          "ENABLE_AI_TAGS",
	"tags.max_ai_tags":             "MAX_AI_TAGS",
	"tags.cache_entries":           "TAG_CACHE_ENTRIES",
	"ai.provider":                  "AI_PROVIDER",
	"ai.api_base":                  "AI_API_BASE",
	"ai.api_key":                   "AI_API_KEY",
	"ai.model":                     "AI_MODEL",
	"ai.enable_summary":            "ENABLE_AI_SUMMARY",
	"ai.summary_min_length":        "AI_SUMMARY_MIN_LENGTH",
	"ai.timeout":                   "AI_TIMEOUT",
	"flomo.api_url":                "FLOMO_API",
	"flomo.daily_limit":            "FLOMO_DAILY_LIMIT",
	"weread.cookie":                "WEREAD_COOKIE",
	"weread.base_url":              "WEREAD_BASE_URL",
	"ledger.path":                  "LEDGER_PATH",
	"ledger.persist_each_delivery": "LEDGER_PERSIST_EACH_DELIVERY",
	"audit.db_path":                "AUDIT_DB_PATH",
	"audit.retention_days":         "AUDIT_RETENTION_DAYS",
	"schedule.cron":                "SYNC_SCHEDULE",
	"server.addr":                  "STATUS_ADDR",
	"server.metrics_enabled":       "METRICS_ENABLED",
	"advanced.request_delay":       "REQUEST_DELAY",
	"advanced.max_retries":         "MAX_RETRIES",
	"advanced.log_level":           "LOG_LEVEL",
	"advanced.log_file":            "LOG_FILE",
	"default_template":             "DEFAULT_TEMPLATE",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("sync.days_limit", 7)
	v.SetDefault("sync.max_highlights_per_sync", 50)
	v.SetDefault("sync.sync_reviews", true)
	v.SetDefault("sync.book_delay", "2s")

	v.SetDefault("tags.default", []string{"#微信读书"})
	v.SetDefault("tags.add_book_title", true)
	v.SetDefault("tags.add_author", false)
	v.SetDefault("tags.use_hierarchical_tags", true)
	v.SetDefault("tags.enable_ai_tags", false)
	v.SetDefault("tags.max_ai_tags", 3)
	v.SetDefault("tags.cache_entries", 200)

	v.SetDefault("ai.provider", ProviderNone)
	v.SetDefault("ai.api_base", DefaultAIAPIBase)
	v.SetDefault("ai.model", DefaultAIModel)
	v.SetDefault("ai.enable_summary", false)
	v.SetDefault("ai.summary_min_length", 100)
	v.SetDefault("ai.tag_prompt", DefaultTagPrompt)
	v.SetDefault("ai.summary_prompt", DefaultSummaryPrompt)
	v.SetDefault("ai.timeout", "30s")

	v.SetDefault("flomo.daily_limit", DefaultFlomoDailyLimit)
	v.SetDefault("flomo.timeout", "10s")

	v.SetDefault("weread.base_url", DefaultWeReadBaseURL)
	v.SetDefault("weread.timeout", "30s")

	v.SetDefault("ledger.path", DefaultLedgerPath)
	v.SetDefault("ledger.persist_each_delivery", true)

	v.SetDefault("audit.db_path", "")
	v.SetDefault("audit.retention_days", 30)

	v.SetDefault("schedule.cron", "0 */6 * * *") // Every 6 hours

	v.SetDefault("server.addr", ":8188")
	v.SetDefault("server.metrics_enabled", true)

	v.SetDefault("advanced.request_delay", 1.0) // Seconds
	v.SetDefault("advanced.max_retries", 3)
	v.SetDefault("advanced.log_level", "info")
	v.SetDefault("advanced.log_file", "")
	v.SetDefault("advanced.log_max_size_mb", 10)
	v.SetDefault("advanced.log_max_backups", 3)

	v.SetDefault("default_template", "simple")
}

// Load resolves configuration from defaults, the optional YAML file at path
// and the environment, in increasing order of precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	var warnings []string
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
				warnings = append(warnings, fmt.Sprintf("config file %s not found, using defaults and environment", path))
			} else {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	cfg := fromViper(v)
	cfg.Warnings = warnings

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{
		Sync: Sync{
			DaysLimit:     v.GetInt("sync.days_limit"),
			MaxHighlights: v.GetInt("sync.max_highlights_per_sync"),
			SyncReviews:   v.GetBool("sync.sync_reviews"),
			BookDelay:     v.GetDuration("sync.book_delay"),
		},
		Tags: Tags{
			Default:         v.GetStringSlice("tags.default"),
			AddBookTitle:    v.GetBool("tags.add_book_title"),
			AddAuthor:       v.GetBool("tags.add_author"),
			Hierarchical:    v.GetBool("tags.use_hierarchical_tags"),
			EnableAITags:    v.GetBool("tags.enable_ai_tags"),
			MaxAITags:       v.GetInt("tags.max_ai_tags"),
			TagCacheEntries: v.GetInt("tags.cache_entries"),
		},
		AI: AI{
			Provider:         strings.ToLower(strings.TrimSpace(v.GetString("ai.provider"))),
			APIBase:          strings.TrimRight(v.GetString("ai.api_base"), "/"),
			APIKey:           v.GetString("ai.api_key"),
			Model:            v.GetString("ai.model"),
			EnableSummary:    v.GetBool("ai.enable_summary"),
			SummaryMinLength: v.GetInt("ai.summary_min_length"),
			TagPrompt:        v.GetString("ai.tag_prompt"),
			SummaryPrompt:    v.GetString("ai.summary_prompt"),
			Timeout:          v.GetDuration("ai.timeout"),
		},
		Flomo: Flomo{
			APIURL:     v.GetString("flomo.api_url"),
			DailyLimit: v.GetInt("flomo.daily_limit"),
			Timeout:    v.GetDuration("flomo.timeout"),
		},
		WeRead: WeRead{
			Cookie:  v.GetString("weread.cookie"),
			BaseURL: strings.TrimRight(v.GetString("weread.base_url"), "/"),
			Timeout: v.GetDuration("weread.timeout"),
		},
		Ledger: Ledger{
			Path:                v.GetString("ledger.path"),
			PersistEachDelivery: v.GetBool("ledger.persist_each_delivery"),
		},
		Audit: Audit{
			DBPath:        v.GetString("audit.db_path"),
			RetentionDays: v.GetInt("audit.retention_days"),
		},
		Schedule: Schedule{
			Cron: v.GetString("schedule.cron"),
		},
		Server: Server{
			Addr:           v.GetString("server.addr"),
			MetricsEnabled: v.GetBool("server.metrics_enabled"),
		},
		Log: Log{
			Level:      strings.ToLower(v.GetString("advanced.log_level")),
			File:       v.GetString("advanced.log_file"),
			MaxSizeMB:  v.GetInt("advanced.log_max_size_mb"),
			MaxBackups: v.GetInt("advanced.log_max_backups"),
		},
		Advanced: Advanced{
			RequestDelay: secondsToDuration(v.GetFloat64("advanced.request_delay")),
			MaxRetries:   v.GetInt("advanced.max_retries"),
		},
		DefaultTemplate: v.GetString("default_template"),
		Templates:       map[string]Template{},
		Categories:      map[string]Category{},
	}

	// Malformed sections are ignored rather than failing the whole load.
	_ = v.UnmarshalKey("templates", &cfg.Templates)
	_ = v.UnmarshalKey("book_categories", &cfg.Categories)

	return cfg
}

func secondsToDuration(seconds float64) time.Duration {
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

// Validate checks every section and returns the first violation found.
func (c *Config) Validate() error {
	sections := []any{&c.Sync, &c.Tags, &c.AI, &c.Flomo, &c.WeRead, &c.Ledger, &c.Audit, &c.Log, &c.Advanced}
	for _, section := range sections {
		v := validate.Struct(section)
		if !v.Validate() {
			return fmt.Errorf("invalid config: %w", v.Errors)
		}
	}
	return nil
}

// RequireCredentials reports which of the credentials a sync run needs are absent.
func (c *Config) RequireCredentials() error {
	var missing []string
	if strings.TrimSpace(c.Flomo.APIURL) == "" {
		missing = append(missing, "FLOMO_API")
	}
	if strings.TrimSpace(c.WeRead.Cookie) == "" {
		missing = append(missing, "WEREAD_COOKIE")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingCredentials, strings.Join(missing, ", "))
	}
	return nil
}

// CategoryFor returns the first configured category whose keywords appear in
// the title or author, checking categories in name order.
func (c *Config) CategoryFor(title, author string) (string, bool) {
	haystack := strings.ToLower(title + " " + author)

	names := make([]string, 0, len(c.Categories))
	for name := range c.Categories {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for _, keyword := range c.Categories[name].Keywords {
			if keyword != "" && strings.Contains(haystack, strings.ToLower(keyword)) {
				return name, true
			}
		}
	}
	return "", false
}
