// Package config loads the coordination core's declarative configuration:
// a YAML file for the non-secret shape, with environment variables
// overriding secrets and deploy-time knobs after the file is parsed.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aircast/coordinator/internal/coreerrors"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Engine   EngineConfig   `yaml:"engine"`
	Artifact ArtifactConfig `yaml:"artifact"`
	DJ       DJConfig       `yaml:"dj"`
	Quality  QualityConfig  `yaml:"quality"`
	Cache    CacheConfig    `yaml:"cache"`
	Debug    DebugConfig    `yaml:"debug"`
	Provider ProviderConfig `yaml:"provider"`
}

// ProviderConfig declares the ordered tiers for C6's two provider families.
// Secrets (API keys) are never read from YAML; they come from environment
// variables named in each tier's APIKeyEnv field.
type ProviderConfig struct {
	LLM []LLMTierConfig `yaml:"llm"`
	TTS []TTSTierConfig `yaml:"tts"`
}

type LLMTierConfig struct {
	Name       string        `yaml:"name"` // "hosted", "local_a", "local_b", "template"
	Model      string        `yaml:"model"`
	BaseURL    string        `yaml:"base_url"`
	APIKeyEnv  string        `yaml:"api_key_env"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RateDelay  time.Duration `yaml:"rate_delay"`
}

type TTSTierConfig struct {
	Name       string        `yaml:"name"` // "primary", "secondary", "offline"
	BaseURL    string        `yaml:"base_url"`
	Voice      string        `yaml:"voice"`
	APIKeyEnv  string        `yaml:"api_key_env"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RateDelay  time.Duration `yaml:"rate_delay"`
}

// APIKey resolves the tier's secret from its configured environment variable.
func (t LLMTierConfig) APIKey() string {
	if t.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(t.APIKeyEnv)
}

// APIKey resolves the tier's secret from its configured environment variable.
func (t TTSTierConfig) APIKey() string {
	if t.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(t.APIKeyEnv)
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Environment     string        `yaml:"environment"`
}

type DatabaseConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	User         string        `yaml:"user"`
	Password     string        `yaml:"password"`
	DBName       string        `yaml:"dbname"`
	SSLMode      string        `yaml:"sslmode"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns"`
	ConnMaxLife  time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdle  time.Duration `yaml:"conn_max_idle_time"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// EngineConfig describes how to reach the external audio engine (§6).
type EngineConfig struct {
	ControlAddr    string        `yaml:"control_addr"`
	IngestHTTPBase string        `yaml:"ingest_http_base"` // empty disables the HTTP PUT path
	QueueName      string        `yaml:"queue_name"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
	EnqueueTimeout time.Duration `yaml:"enqueue_timeout"`
	ReconnectMin   time.Duration `yaml:"reconnect_min"`
	ReconnectMax   time.Duration `yaml:"reconnect_max"`
	TickInterval   time.Duration `yaml:"tick_interval"`
	StalenessCap   time.Duration `yaml:"staleness_cap"`
	NextCount      int           `yaml:"next_count"`
}

type ArtifactConfig struct {
	Directory     string `yaml:"directory"`
	ArtworkCapMB  int    `yaml:"artwork_cap_mb"`
	RetentionDays int    `yaml:"retention_days"`
	EventKeepN    int    `yaml:"event_keep_n"`
}

type DJConfig struct {
	DelayAfterIngest time.Duration `yaml:"delay_after_ingest"`
	MinSpacing       time.Duration `yaml:"min_spacing"`
	MaxConcurrent    int           `yaml:"max_concurrent"`
	StyleHints       []string      `yaml:"style_hints"`
	IntroTemplates   []string      `yaml:"intro_templates"`
	OutroTemplates   []string      `yaml:"outro_templates"`
}

type QualityConfig struct {
	TextMinChars    int      `yaml:"text_min_chars"`
	TextMaxChars    int      `yaml:"text_max_chars"`
	ForbiddenTokens []string `yaml:"forbidden_tokens"`
	MinAudioBytes   int      `yaml:"min_audio_bytes"`
}

type CacheConfig struct {
	ArtworkTTL time.Duration `yaml:"artwork_ttl"`
}

type DebugConfig struct {
	EndpointsEnabled bool `yaml:"endpoints_enabled"`
}

// Load parses the YAML configuration file at path and applies environment
// overrides for secrets and deploy-time knobs. A missing or malformed file
// is a ConfigError (exit code 64 per §6).
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: read config file: %v", coreerrors.ErrConfigError, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parse config file: %v", coreerrors.ErrConfigError, err)
		}
	}

	applyEnvOverrides(cfg)

	if cfg.Engine.ControlAddr == "" {
		return nil, fmt.Errorf("%w: engine.control_addr is required", coreerrors.ErrConfigError)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			Environment:     "development",
		},
		Database: DatabaseConfig{
			Host:         "localhost",
			Port:         5432,
			User:         "coordinator",
			DBName:       "airadio",
			SSLMode:      "disable",
			MaxOpenConns: 25,
			MaxIdleConns: 10,
			ConnMaxLife:  30 * time.Minute,
			ConnMaxIdle:  5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Engine: EngineConfig{
			QueueName:      "djq",
			CommandTimeout: 1 * time.Second,
			EnqueueTimeout: 3 * time.Second,
			ReconnectMin:   100 * time.Millisecond,
			ReconnectMax:   5 * time.Second,
			TickInterval:   3 * time.Second,
			StalenessCap:   30 * time.Second,
			NextCount:      8,
		},
		Artifact: ArtifactConfig{
			Directory:     "./artifacts",
			ArtworkCapMB:  512,
			RetentionDays: 30,
			EventKeepN:    5000,
		},
		DJ: DJConfig{
			DelayAfterIngest: 30 * time.Second,
			MinSpacing:       45 * time.Second,
			MaxConcurrent:    1,
			StyleHints:       []string{"warm", "upbeat", "late-night", "nostalgic"},
			IntroTemplates: []string{
				"Up next, {artist} with {title}.",
				"Here's {title} from {artist}.",
				"Keeping it going with {artist} — {title}.",
			},
			OutroTemplates: []string{
				"That was {title} by {artist}.",
			},
		},
		Quality: QualityConfig{
			TextMinChars:    6,
			TextMaxChars:    200,
			ForbiddenTokens: []string{"ai", "artificial", "algorithm", "database", "model", "generated"},
			MinAudioBytes:   1000,
		},
		Cache: CacheConfig{
			ArtworkTTL: 10 * time.Minute,
		},
		Debug: DebugConfig{
			EndpointsEnabled: false,
		},
		Provider: ProviderConfig{
			LLM: []LLMTierConfig{
				{Name: "hosted", Model: "gpt-4o-mini", APIKeyEnv: "OPENAI_API_KEY", Timeout: 20 * time.Second, MaxRetries: 1},
				{Name: "local_a", Model: "llama3", BaseURL: "http://localhost:11434", Timeout: 15 * time.Second, MaxRetries: 1},
				{Name: "local_b", Model: "phi3", BaseURL: "http://localhost:11435", Timeout: 15 * time.Second, MaxRetries: 1},
				{Name: "template", Timeout: time.Second},
			},
			TTS: []TTSTierConfig{
				{Name: "primary", BaseURL: "http://localhost:5002", Timeout: 60 * time.Second, MaxRetries: 1},
				{Name: "secondary", BaseURL: "http://localhost:5003", Timeout: 60 * time.Second, MaxRetries: 1},
				{Name: "offline", Timeout: 5 * time.Second},
			},
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Server.Environment = getEnv("APP_ENV", cfg.Server.Environment)

	cfg.Database.Host = getEnv("DATABASE_HOST", cfg.Database.Host)
	cfg.Database.Port = getIntEnv("DATABASE_PORT", cfg.Database.Port)
	cfg.Database.User = getEnv("DATABASE_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DATABASE_PASSWORD", cfg.Database.Password)
	cfg.Database.DBName = getEnv("DATABASE_NAME", cfg.Database.DBName)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)

	cfg.Engine.ControlAddr = getEnv("ENGINE_CONTROL_ADDR", cfg.Engine.ControlAddr)
	cfg.Engine.IngestHTTPBase = getEnv("ENGINE_INGEST_HTTP_BASE", cfg.Engine.IngestHTTPBase)

	cfg.Debug.EndpointsEnabled = getBoolEnv("DEBUG_ENDPOINTS_ENABLED", cfg.Debug.EndpointsEnabled)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// DSN builds the PostgreSQL connection string, following the teacher's
// fmt.Sprintf DSN-building idiom.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
