// Package config loads and validates shoplab configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Client  ClientConfig  `mapstructure:"client"`
	Monitor MonitorConfig `mapstructure:"monitor"`
	Import  ImportConfig  `mapstructure:"import"`
	Agents  AgentsConfig  `mapstructure:"agents"`
	Service ServiceConfig `mapstructure:"service"`
	DB      DBConfig      `mapstructure:"db"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// ServerConfig controls the reference service's HTTP listener.
type ServerConfig struct {
	Port int `mapstructure:"port"`
	// SubmitRPS limits submissions per client; zero disables the limit.
	SubmitRPS   float64 `mapstructure:"submit_rps"`
	SubmitBurst int     `mapstructure:"submit_burst"`
}

// AuthConfig defines API authentication toggles. The same key is sent by
// the client and checked by the service.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// ClientConfig points the monitor at an evaluation service.
type ClientConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// MonitorConfig tunes the poll controller and where its lifecycle events go.
type MonitorConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// PubSubProject and PubSubTopic, when both set, publish progress events
	// to Google Cloud Pub/Sub.
	PubSubProject string `mapstructure:"pubsub_project"`
	PubSubTopic   string `mapstructure:"pubsub_topic"`
}

// ImportConfig controls how `evaluate --url` reads product pages.
type ImportConfig struct {
	UserAgent     string        `mapstructure:"user_agent"`
	RespectRobots bool          `mapstructure:"respect_robots"`
	Timeout       time.Duration `mapstructure:"timeout"`
	// Headless renders script-driven pages in Chrome when a plain fetch
	// finds only an app shell.
	Headless bool `mapstructure:"headless"`
}

// Archive backends for finished evaluation reports.
const (
	ArchiveLocal = "local"
	ArchiveGCS   = "gcs"
)

// ArchiveConfig selects where the service writes a JSON report for each
// finished evaluation. An empty backend disables archiving.
type ArchiveConfig struct {
	Backend string `mapstructure:"backend"`
	Dir     string `mapstructure:"dir"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// Analysis engines for the reference agents.
const (
	EngineHeuristic = "heuristic"
	EngineLLM       = "llm"
)

// AgentsConfig selects and paces the reference analysis agents.
type AgentsConfig struct {
	Engine        string        `mapstructure:"engine"`
	StepDelay     time.Duration `mapstructure:"step_delay"`
	OpenAIAPIKey  string        `mapstructure:"openai_api_key"`
	OpenAIBaseURL string        `mapstructure:"openai_base_url"`
	Model         string        `mapstructure:"model"`
	// LLMRPS caps chat-completion calls per second; zero means no cap.
	LLMRPS float64 `mapstructure:"llm_rps"`
}

// ServiceConfig governs the reference service's queue and worker pool.
type ServiceConfig struct {
	Concurrency int           `mapstructure:"concurrency"`
	QueueDepth  int           `mapstructure:"queue_depth"`
	JobTimeout  time.Duration `mapstructure:"job_timeout"`
}

// DBConfig controls access to the evaluation registry database. An empty DSN
// selects the in-memory registry.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// MetricsConfig toggles Prometheus collection.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SHOPLAB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.submit_rps", 0)
	v.SetDefault("server.submit_burst", 5)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("client.base_url", "http://localhost:8000")
	v.SetDefault("client.timeout", "30s")
	v.SetDefault("monitor.poll_interval", "2s")
	v.SetDefault("monitor.pubsub_project", "")
	v.SetDefault("monitor.pubsub_topic", "")
	v.SetDefault("import.user_agent", "shoplab/1.0 (+product import)")
	v.SetDefault("import.respect_robots", true)
	v.SetDefault("import.timeout", "15s")
	v.SetDefault("import.headless", false)
	v.SetDefault("agents.engine", EngineHeuristic)
	v.SetDefault("agents.step_delay", "750ms")
	v.SetDefault("agents.openai_api_key", "")
	v.SetDefault("agents.openai_base_url", "")
	v.SetDefault("agents.model", "gpt-4o-mini")
	v.SetDefault("agents.llm_rps", 0)
	v.SetDefault("service.concurrency", 4)
	v.SetDefault("service.queue_depth", 64)
	v.SetDefault("service.job_timeout", "2m")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "evaluations")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime", "30m")
	v.SetDefault("archive.backend", "")
	v.SetDefault("archive.dir", "./reports")
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "evaluations")
	v.SetDefault("logging.development", true)
	v.SetDefault("metrics.enabled", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("server.port must be within 1-65535")
	}
	if c.Server.SubmitRPS < 0 {
		return errors.New("server.submit_rps must be >= 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return errors.New("auth.api_key must be set when auth is enabled")
	}
	if c.Client.BaseURL == "" {
		return errors.New("client.base_url must be set")
	}
	if c.Client.Timeout <= 0 {
		return errors.New("client.timeout must be > 0")
	}
	if c.Monitor.PollInterval <= 0 {
		return errors.New("monitor.poll_interval must be > 0")
	}
	if (c.Monitor.PubSubProject == "") != (c.Monitor.PubSubTopic == "") {
		return errors.New("monitor.pubsub_project and monitor.pubsub_topic must be set together")
	}
	if c.Import.Timeout < 0 {
		return errors.New("import.timeout must be >= 0")
	}
	switch c.Archive.Backend {
	case "":
	case ArchiveLocal:
		if c.Archive.Dir == "" {
			return errors.New("archive.dir must be set when archive.backend is local")
		}
	case ArchiveGCS:
		if c.Archive.Bucket == "" {
			return errors.New("archive.bucket must be set when archive.backend is gcs")
		}
	default:
		return fmt.Errorf("archive.backend %q is not one of local, gcs", c.Archive.Backend)
	}
	if c.Agents.LLMRPS < 0 {
		return errors.New("agents.llm_rps must be >= 0")
	}
	if c.Agents.StepDelay < 0 {
		return errors.New("agents.step_delay must be >= 0")
	}
	switch c.Agents.Engine {
	case EngineHeuristic:
	case EngineLLM:
		if c.Agents.OpenAIAPIKey == "" {
			return errors.New("agents.openai_api_key must be set when agents.engine is llm")
		}
	default:
		return fmt.Errorf("agents.engine must be %q or %q", EngineHeuristic, EngineLLM)
	}
	if c.Service.Concurrency <= 0 {
		return errors.New("service.concurrency must be > 0")
	}
	if c.Service.QueueDepth <= 0 {
		return errors.New("service.queue_depth must be > 0")
	}
	if c.Service.JobTimeout <= 0 {
		return errors.New("service.job_timeout must be > 0")
	}
	if c.DB.DSN != "" && c.DB.MaxConns <= 0 {
		return errors.New("db.max_conns must be > 0 when db.dsn is set")
	}
	return nil
}

// ListenAddr is the reference service's bind address.
func (c Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
