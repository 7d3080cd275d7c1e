package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config is the top-level alphabot configuration.
type Config struct {
	DataDir     string            `json:"data_dir"`
	PromptsFile string            `json:"prompts_file,omitempty"`
	Provider    ProviderConfig    `json:"provider"`
	Linear      LinearConfig      `json:"linear"`
	Slack       SlackConfig       `json:"slack"`
	Transcripts TranscriptsConfig `json:"transcripts"`
	State       StateConfig       `json:"state"`
	Context     ContextConfig     `json:"context"`
	Schedule    ScheduleConfig    `json:"schedule"`
	Events      EventsConfig      `json:"events"`
	Ingest      IngestConfig      `json:"ingest"`
	API         APIConfig         `json:"api"`
}

// ProviderConfig holds LLM provider settings.
type ProviderConfig struct {
	Type        string  `json:"type,omitempty"` // "openai" (default) or "anthropic"
	APIKey      string  `json:"api_key"`
	BaseURL     string  `json:"base_url,omitempty"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// LinearConfig holds issue tracker settings. TestMode must be true before
// any write reaches Linear.
type LinearConfig struct {
	APIKey          string `json:"api_key"`
	Endpoint        string `json:"endpoint,omitempty"`
	TeamName        string `json:"team_name"`
	DefaultAssignee string `json:"default_assignee,omitempty"`
	TestMode        bool   `json:"test_mode"`
}

// SlackConfig holds Slack app credentials and the ingress mode.
type SlackConfig struct {
	Mode          string   `json:"mode,omitempty"` // "http" (default) or "socket"
	BotToken      string   `json:"bot_token"`
	AppToken      string   `json:"app_token,omitempty"`
	SigningSecret string   `json:"signing_secret,omitempty"`
	BotUserID     string   `json:"bot_user_id,omitempty"`
	Channels      []string `json:"channels,omitempty"`
}

// TranscriptsConfig selects the transcript database.
type TranscriptsConfig struct {
	Backend     string `json:"backend,omitempty"` // "postgres" (default when database_url set) or "sqlite"
	DatabaseURL string `json:"database_url,omitempty"`
	SQLitePath  string `json:"sqlite_path,omitempty"`
}

// StateConfig selects the per-user ephemeral state store.
type StateConfig struct {
	Backend       string `json:"backend,omitempty"` // "memory" (default), "sqlite" or "redis"
	TTLMinutes    int    `json:"ttl_minutes,omitempty"`
	SQLitePath    string `json:"sqlite_path,omitempty"`
	RedisAddr     string `json:"redis_addr,omitempty"`
	RedisPassword string `json:"redis_password,omitempty"`
	RedisDB       int    `json:"redis_db,omitempty"`
}

// ContextConfig tunes context assembly.
type ContextConfig struct {
	CacheMinutes int `json:"cache_minutes,omitempty"` // 0 disables the cache
}

// ScheduleConfig configures the scheduled weekly summary. An empty
// WeeklySummaryCron disables it.
type ScheduleConfig struct {
	WeeklySummaryCron    string `json:"weekly_summary_cron,omitempty"`
	WeeklySummaryChannel string `json:"weekly_summary_channel,omitempty"`
}

// EventsConfig configures the NATS event publisher. An empty URL disables it.
type EventsConfig struct {
	NATSURL       string `json:"nats_url,omitempty"`
	SubjectPrefix string `json:"subject_prefix,omitempty"`
}

// IngestConfig configures the transcript ingestion webhook.
type IngestConfig struct {
	Secret      string `json:"secret,omitempty"`       // HMAC-SHA256 secret
	BearerToken string `json:"bearer_token,omitempty"` // alternative to Secret
	Filter      bool   `json:"filter,omitempty"`       // run transcript_filter before storing
}

// APIConfig holds HTTP server settings.
type APIConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	Key  string `json:"api_key"`
}

// Load reads configuration from a JSON file, fills defaults and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv builds a config from environment variables. Vendor credentials
// keep their conventional names; daemon settings use the ALPHABOT_ prefix.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		DataDir:     getenv("ALPHABOT_DATA_DIR", "/data"),
		PromptsFile: os.Getenv("ALPHABOT_PROMPTS_FILE"),
		Linear: LinearConfig{
			APIKey:          os.Getenv("LINEAR_API_KEY"),
			Endpoint:        os.Getenv("LINEAR_API_URL"),
			TeamName:        os.Getenv("LINEAR_TEAM_NAME"),
			DefaultAssignee: os.Getenv("LINEAR_DEFAULT_ASSIGNEE"),
			TestMode:        getenvBool("LINEAR_TEST_MODE", false),
		},
		Slack: SlackConfig{
			Mode:          getenv("ALPHABOT_SLACK_MODE", "http"),
			BotToken:      os.Getenv("SLACK_BOT_TOKEN"),
			AppToken:      os.Getenv("SLACK_APP_TOKEN"),
			SigningSecret: os.Getenv("SLACK_SIGNING_SECRET"),
			BotUserID:     os.Getenv("SLACK_BOT_USER_ID"),
			Channels:      splitList(os.Getenv("ALPHABOT_SLACK_CHANNELS")),
		},
		Transcripts: TranscriptsConfig{
			Backend:     os.Getenv("ALPHABOT_TRANSCRIPT_BACKEND"),
			DatabaseURL: os.Getenv("SUPABASE_DB_URL"),
			SQLitePath:  os.Getenv("ALPHABOT_TRANSCRIPT_SQLITE"),
		},
		State: StateConfig{
			Backend:       getenv("ALPHABOT_STATE_BACKEND", "memory"),
			TTLMinutes:    getenvInt("ALPHABOT_STATE_TTL_MINUTES", 10),
			SQLitePath:    os.Getenv("ALPHABOT_STATE_SQLITE"),
			RedisAddr:     os.Getenv("ALPHABOT_REDIS_ADDR"),
			RedisPassword: os.Getenv("ALPHABOT_REDIS_PASSWORD"),
			RedisDB:       getenvInt("ALPHABOT_REDIS_DB", 0),
		},
		Context: ContextConfig{
			CacheMinutes: getenvInt("ALPHABOT_CONTEXT_CACHE_MINUTES", 0),
		},
		Schedule: ScheduleConfig{
			WeeklySummaryCron:    os.Getenv("ALPHABOT_WEEKLY_CRON"),
			WeeklySummaryChannel: os.Getenv("ALPHABOT_WEEKLY_CHANNEL"),
		},
		Events: EventsConfig{
			NATSURL:       os.Getenv("ALPHABOT_NATS_URL"),
			SubjectPrefix: getenv("ALPHABOT_NATS_PREFIX", "alphabot"),
		},
		Ingest: IngestConfig{
			Secret:      os.Getenv("ALPHABOT_INGEST_SECRET"),
			BearerToken: os.Getenv("ALPHABOT_INGEST_TOKEN"),
			Filter:      getenvBool("ALPHABOT_INGEST_FILTER", false),
		},
		API: APIConfig{
			Host: getenv("ALPHABOT_API_HOST", "0.0.0.0"),
			Port: getenvInt("ALPHABOT_API_PORT", 8080),
			Key:  os.Getenv("ALPHABOT_API_KEY"),
		},
	}

	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		cfg.Provider = ProviderConfig{
			Type:        "openai",
			APIKey:      apiKey,
			BaseURL:     os.Getenv("OPENAI_BASE_URL"),
			Model:       getenv("OPENAI_MODEL", "gpt-4.1-mini"),
			MaxTokens:   getenvInt("OPENAI_MAX_TOKENS", 16000),
			Temperature: getenvFloat("OPENAI_TEMPERATURE", 0.1),
		}
	} else if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		cfg.Provider = ProviderConfig{
			Type:        "anthropic",
			APIKey:      apiKey,
			BaseURL:     os.Getenv("ANTHROPIC_BASE_URL"),
			Model:       getenv("ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),
			MaxTokens:   getenvInt("ANTHROPIC_MAX_TOKENS", 8192),
			Temperature: getenvFloat("ANTHROPIC_TEMPERATURE", 0.1),
		}
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Provider.Type == "" {
		c.Provider.Type = "openai"
	}
	if c.Provider.Model == "" && c.Provider.Type == "openai" {
		c.Provider.Model = "gpt-4.1-mini"
	}
	if c.Slack.Mode == "" {
		c.Slack.Mode = "http"
	}
	if c.Transcripts.Backend == "" {
		if c.Transcripts.DatabaseURL != "" {
			c.Transcripts.Backend = "postgres"
		} else {
			c.Transcripts.Backend = "sqlite"
		}
	}
	if c.Transcripts.Backend == "sqlite" && c.Transcripts.SQLitePath == "" && c.DataDir != "" {
		c.Transcripts.SQLitePath = c.DataDir + "/transcripts.db"
	}
	if c.State.Backend == "" {
		c.State.Backend = "memory"
	}
	if c.State.TTLMinutes <= 0 {
		c.State.TTLMinutes = 10
	}
	if c.State.Backend == "sqlite" && c.State.SQLitePath == "" && c.DataDir != "" {
		c.State.SQLitePath = c.DataDir + "/state.db"
	}
	if c.Events.SubjectPrefix == "" {
		c.Events.SubjectPrefix = "alphabot"
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
}

// Validate checks for required fields and consistent backend choices.
func (c *Config) Validate() error {
	var errs []string

	if c.Provider.APIKey == "" {
		errs = append(errs, "provider.api_key is required")
	}
	switch c.Provider.Type {
	case "openai", "anthropic":
	default:
		errs = append(errs, fmt.Sprintf("provider.type %q is not supported", c.Provider.Type))
	}
	if c.Provider.Model == "" {
		errs = append(errs, "provider.model is required")
	}

	if c.Linear.APIKey == "" {
		errs = append(errs, "linear.api_key is required")
	}
	if c.Linear.TeamName == "" {
		errs = append(errs, "linear.team_name is required")
	}

	if c.Slack.BotToken == "" {
		errs = append(errs, "slack.bot_token is required")
	}
	switch c.Slack.Mode {
	case "http":
		if c.Slack.SigningSecret == "" {
			errs = append(errs, "slack.signing_secret is required in http mode")
		}
	case "socket":
		if c.Slack.AppToken == "" {
			errs = append(errs, "slack.app_token is required in socket mode")
		}
	default:
		errs = append(errs, fmt.Sprintf("slack.mode %q is not supported", c.Slack.Mode))
	}

	switch c.Transcripts.Backend {
	case "postgres":
		if c.Transcripts.DatabaseURL == "" {
			errs = append(errs, "transcripts.database_url is required for the postgres backend")
		}
	case "sqlite":
		if c.Transcripts.SQLitePath == "" {
			errs = append(errs, "transcripts.sqlite_path or data_dir is required for the sqlite backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("transcripts.backend %q is not supported", c.Transcripts.Backend))
	}

	switch c.State.Backend {
	case "memory":
	case "sqlite":
		if c.State.SQLitePath == "" {
			errs = append(errs, "state.sqlite_path or data_dir is required for the sqlite backend")
		}
	case "redis":
		if c.State.RedisAddr == "" {
			errs = append(errs, "state.redis_addr is required for the redis backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("state.backend %q is not supported", c.State.Backend))
	}

	if c.Schedule.WeeklySummaryCron != "" && c.Schedule.WeeklySummaryChannel == "" {
		errs = append(errs, "schedule.weekly_summary_channel is required when weekly_summary_cron is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getenvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.ToLower(v)); err == nil {
			return b
		}
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
