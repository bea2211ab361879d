package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/change-monitor/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Targets     []model.MonitorTarget `yaml:"targets" mapstructure:"targets"`
	TargetsFile string                `yaml:"targets_file" mapstructure:"targets_file"`
	Thresholds  model.ThresholdConfig `yaml:"thresholds" mapstructure:"thresholds"`
	Scoring     ScoringConfig         `yaml:"scoring" mapstructure:"scoring"`
	Selectors   SelectorConfig        `yaml:"selectors" mapstructure:"selectors"`
	Fetch       FetchConfig           `yaml:"fetch" mapstructure:"fetch"`
	Runner      RunnerConfig          `yaml:"runner" mapstructure:"runner"`
	Store       StoreConfig           `yaml:"store" mapstructure:"store"`
	Anthropic   AnthropicConfig       `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini      GeminiConfig          `yaml:"gemini" mapstructure:"gemini"`
	Notion      NotionConfig          `yaml:"notion" mapstructure:"notion"`
	Email       EmailConfig           `yaml:"email" mapstructure:"email"`
	Alerts      AlertsConfig          `yaml:"alerts" mapstructure:"alerts"`
	Schedule    ScheduleConfig        `yaml:"schedule" mapstructure:"schedule"`
	Server      ServerConfig          `yaml:"server" mapstructure:"server"`
	Log         LogConfig             `yaml:"log" mapstructure:"log"`
}

// AI scoring providers.
const (
	ProviderNone      = "none"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// ScoringConfig configures relevance scoring.
type ScoringConfig struct {
	AlertThreshold   int      `yaml:"alert_threshold" mapstructure:"alert_threshold"`
	CriticalKeywords []string `yaml:"critical_keywords" mapstructure:"critical_keywords"`
	// Provider selects the AI scorer: none, anthropic or gemini.
	Provider         string `yaml:"provider" mapstructure:"provider"`
	MaxPromptChars   int    `yaml:"max_prompt_chars" mapstructure:"max_prompt_chars"`
	AITimeoutSecs    int    `yaml:"ai_timeout_secs" mapstructure:"ai_timeout_secs"`
	MaxAttempts      int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	BreakerThreshold int    `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs int    `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// DomainSelector maps a URL substring to the content selector used for it.
type DomainSelector struct {
	Domain   string `yaml:"domain" mapstructure:"domain"`
	Selector string `yaml:"selector" mapstructure:"selector"`
}

// SelectorConfig configures content region selection.
type SelectorConfig struct {
	Default     string           `yaml:"default" mapstructure:"default"`
	Exclude     string           `yaml:"exclude" mapstructure:"exclude"`
	Specific    []DomainSelector `yaml:"specific" mapstructure:"specific"`
	MaxKeywords int              `yaml:"max_keywords" mapstructure:"max_keywords"`
}

// FetchConfig configures page retrieval.
type FetchConfig struct {
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent    string  `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBytes     int64   `yaml:"max_bytes" mapstructure:"max_bytes"`
	MaxRedirects int     `yaml:"max_redirects" mapstructure:"max_redirects"`
	MaxAttempts  int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	PerHostRPS   float64 `yaml:"per_host_rps" mapstructure:"per_host_rps"`
}

// RunnerConfig configures monitoring run concurrency.
type RunnerConfig struct {
	Concurrency          int `yaml:"concurrency" mapstructure:"concurrency"`
	MaxConcurrentTargets int `yaml:"max_concurrent_targets" mapstructure:"max_concurrent_targets"`
	RunDeadlineSecs      int `yaml:"run_deadline_secs" mapstructure:"run_deadline_secs"`
}

// Snapshot read failure policies.
const (
	ReadPolicyFail             = "fail"
	ReadPolicyFirstObservation = "first_observation"
)

// StoreConfig configures the snapshot and run log backend.
type StoreConfig struct {
	Driver            string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL       string `yaml:"database_url" mapstructure:"database_url"`
	Path              string `yaml:"path" mapstructure:"path"`
	MongoDatabase     string `yaml:"mongo_database" mapstructure:"mongo_database"`
	ReadFailurePolicy string `yaml:"read_failure_policy" mapstructure:"read_failure_policy"`
	WriteTimeoutSecs  int    `yaml:"write_timeout_secs" mapstructure:"write_timeout_secs"`
	RetentionDays     int    `yaml:"retention_days" mapstructure:"retention_days"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// GeminiConfig holds Google Gemini API settings.
type GeminiConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// NotionConfig holds Notion API credentials and the change log database.
type NotionConfig struct {
	Token     string  `yaml:"token" mapstructure:"token"`
	ChangeDB  string  `yaml:"change_db" mapstructure:"change_db"`
	// RateLimit is requests per second; 0 disables throttling.
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// EmailConfig configures the digest email.
type EmailConfig struct {
	Host          string   `yaml:"host" mapstructure:"host"`
	Port          int      `yaml:"port" mapstructure:"port"`
	Username      string   `yaml:"username" mapstructure:"username"`
	Password      string   `yaml:"password" mapstructure:"password"`
	From          string   `yaml:"from" mapstructure:"from"`
	To            []string `yaml:"to" mapstructure:"to"`
	SendWhenQuiet bool     `yaml:"send_when_quiet" mapstructure:"send_when_quiet"`
}

// Enabled reports whether enough settings are present to send email.
func (c EmailConfig) Enabled() bool {
	return c.Host != "" && c.From != "" && len(c.To) > 0
}

// AlertsConfig configures webhook alerts.
type AlertsConfig struct {
	WebhookURL         string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	ErrorRateThreshold float64 `yaml:"error_rate_threshold" mapstructure:"error_rate_threshold"`
	LookbackHours      int     `yaml:"lookback_hours" mapstructure:"lookback_hours"`
}

// ScheduleConfig configures the watch loop.
type ScheduleConfig struct {
	IntervalMins int `yaml:"interval_mins" mapstructure:"interval_mins"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultCriticalKeywords flag changes that always warrant attention.
var DefaultCriticalKeywords = []string{
	"acquisition", "acquired", "merger", "bankruptcy", "layoff",
	"lawsuit", "recall", "data breach", "discontinued", "price increase",
}

// Load reads configuration from file and environment. An empty configFile
// searches for config.yaml in the working directory.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	// Config file
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("MONITOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("thresholds.global", 20.0)
	v.SetDefault("scoring.alert_threshold", 8)
	v.SetDefault("scoring.critical_keywords", DefaultCriticalKeywords)
	v.SetDefault("scoring.provider", ProviderNone)
	v.SetDefault("scoring.max_prompt_chars", 6000)
	v.SetDefault("scoring.ai_timeout_secs", 30)
	v.SetDefault("scoring.max_attempts", 2)
	v.SetDefault("scoring.breaker_threshold", 5)
	v.SetDefault("scoring.breaker_reset_secs", 60)
	v.SetDefault("selectors.default", "main, article, [role=main], #content, .content")
	v.SetDefault("selectors.exclude", "nav, header, footer, aside, [role=navigation], .cookie-banner, .advertisement")
	v.SetDefault("selectors.max_keywords", 20)
	v.SetDefault("fetch.timeout_secs", 15)
	v.SetDefault("fetch.user_agent", "Mozilla/5.0 (compatible; ChangeMonitor/1.0)")
	v.SetDefault("fetch.max_bytes", 2<<20)
	v.SetDefault("fetch.max_redirects", 5)
	v.SetDefault("fetch.max_attempts", 2)
	v.SetDefault("fetch.per_host_rps", 1.0)
	v.SetDefault("runner.concurrency", 4)
	v.SetDefault("runner.max_concurrent_targets", 2)
	v.SetDefault("runner.run_deadline_secs", 0)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "change-monitor.db")
	v.SetDefault("store.mongo_database", "change_monitor")
	v.SetDefault("store.read_failure_policy", ReadPolicyFail)
	v.SetDefault("store.write_timeout_secs", 10)
	v.SetDefault("store.retention_days", 30)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 512)
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("notion.rate_limit", 3.0)
	v.SetDefault("email.port", 587)
	v.SetDefault("alerts.error_rate_threshold", 0.5)
	v.SetDefault("alerts.lookback_hours", 24)
	v.SetDefault("schedule.interval_mins", 360)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional unless named explicitly)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configFile != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the configuration for values the pipeline cannot run with.
// All violations are reported together.
func (c *Config) Validate() error {
	var errs []string
	checkThreshold := func(name string, v float64) {
		if v < 0 || v > 100 {
			errs = append(errs, fmt.Sprintf("%s must be between 0 and 100, got %v", name, v))
		}
	}

	checkThreshold("thresholds.global", c.Thresholds.Global)
	for entity, v := range c.Thresholds.PerEntity {
		checkThreshold("thresholds.per_entity."+entity, v)
	}
	for i, p := range c.Thresholds.PerURLPattern {
		if strings.TrimSpace(p.Pattern) == "" {
			errs = append(errs, fmt.Sprintf("thresholds.per_url_pattern[%d].pattern is empty", i))
		}
		checkThreshold(fmt.Sprintf("thresholds.per_url_pattern[%d].threshold", i), p.Threshold)
	}

	if c.Scoring.AlertThreshold < 0 || c.Scoring.AlertThreshold > 10 {
		errs = append(errs, fmt.Sprintf("scoring.alert_threshold must be between 0 and 10, got %d", c.Scoring.AlertThreshold))
	}
	switch c.Scoring.Provider {
	case "", ProviderNone:
	case ProviderAnthropic:
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required when scoring.provider is anthropic")
		}
	case ProviderGemini:
		if c.Gemini.Key == "" {
			errs = append(errs, "gemini.key is required when scoring.provider is gemini")
		}
	default:
		errs = append(errs, fmt.Sprintf("scoring.provider %q is not one of none, anthropic, gemini", c.Scoring.Provider))
	}

	for i, s := range c.Selectors.Specific {
		if s.Domain == "" || s.Selector == "" {
			errs = append(errs, fmt.Sprintf("selectors.specific[%d] needs both domain and selector", i))
		}
	}

	if c.Runner.Concurrency < 1 {
		errs = append(errs, "runner.concurrency must be at least 1")
	}
	if c.Runner.MaxConcurrentTargets < 1 {
		errs = append(errs, "runner.max_concurrent_targets must be at least 1")
	}
	if c.Server.Port <= 0 {
		errs = append(errs, "server.port must be > 0")
	}
	if c.Fetch.TimeoutSecs < 1 {
		errs = append(errs, "fetch.timeout_secs must be at least 1")
	}

	switch c.Store.Driver {
	case "memory", "sqlite", "postgres", "mongo":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not one of memory, sqlite, postgres, mongo", c.Store.Driver))
	}
	if (c.Store.Driver == "postgres" || c.Store.Driver == "mongo") && c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required for driver "+c.Store.Driver)
	}
	switch c.Store.ReadFailurePolicy {
	case ReadPolicyFail, ReadPolicyFirstObservation:
	default:
		errs = append(errs, fmt.Sprintf("store.read_failure_policy %q is not one of fail, first_observation", c.Store.ReadFailurePolicy))
	}

	if len(errs) > 0 {
		return eris.Errorf("config: invalid: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
