package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Probe    ProbeConfig    `mapstructure:"probe"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Cache    CacheConfig    `mapstructure:"cache"`
	AI       AIConfig       `mapstructure:"ai"`
	Steam    SteamConfig    `mapstructure:"steam"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Watcher  WatcherConfig  `mapstructure:"watcher"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // debug, release
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MetricsNS       string        `mapstructure:"metrics_namespace"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
	Output string `mapstructure:"output"` // stdout, stderr
	Caller bool   `mapstructure:"caller"` // report file:line
}

// ProbeConfig domain probe settings
type ProbeConfig struct {
	Concurrency    int           `mapstructure:"concurrency"`  // URLs probed in parallel per request
	StepTimeout    time.Duration `mapstructure:"step_timeout"` // upper bound of every probe step
	DNSServer      string        `mapstructure:"dns_server"`   // host:port, empty = system resolver
	GeoPrimaryURL  string        `mapstructure:"geo_primary_url"`
	GeoFallbackURL string        `mapstructure:"geo_fallback_url"`
	GeoTimeout     time.Duration `mapstructure:"geo_timeout"`
	GeoRateLimit   float64       `mapstructure:"geo_rate_limit"` // requests per second
	GeoBurst       int           `mapstructure:"geo_burst"`
	RDAPBaseURL    string        `mapstructure:"rdap_base_url"`
	HTTPTimeout    time.Duration `mapstructure:"http_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// RetryConfig remote call retry policy
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Base        float64       `mapstructure:"base"`
	Unit        time.Duration `mapstructure:"unit"`
	JitterMax   time.Duration `mapstructure:"jitter_max"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	EmptyDelay  time.Duration `mapstructure:"empty_delay"`
}

// CacheConfig result cache backend
type CacheConfig struct {
	Backend    string         `mapstructure:"backend"` // memory, sqlite, mysql, redis
	SQLitePath string         `mapstructure:"sqlite_path"`
	MySQL      DatabaseConfig `mapstructure:"mysql"`
	RedisURL   string         `mapstructure:"redis_url"`
	RedisPool  int            `mapstructure:"redis_pool_size"`
	KeyPrefix  string         `mapstructure:"key_prefix"`
	TTL        time.Duration  `mapstructure:"ttl"` // 0 = entries never expire
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"db_name"`
}

// AIConfig text generation
type AIConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Provider         string        `mapstructure:"provider"` // gemini, openrouter
	APIKey           string        `mapstructure:"api_key"`
	Model            string        `mapstructure:"model"`
	BaseURL          string        `mapstructure:"base_url"`
	MaxTokens        int           `mapstructure:"max_tokens"`
	MaxLength        int           `mapstructure:"max_length"` // characters kept from the generated text
	Timeout          time.Duration `mapstructure:"timeout"`
	Grounding        bool          `mapstructure:"grounding"` // Google Search tool for Gemini
	CacheReadThrough bool          `mapstructure:"cache_read_through"`
	PromptsFile      string        `mapstructure:"prompts_file"`
}

// SteamConfig Steam store lookup
type SteamConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	SearchURL string        `mapstructure:"search_url"`
	StoreURL  string        `mapstructure:"store_url"`
	Language  string        `mapstructure:"language"`
	Currency  string        `mapstructure:"currency"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type RabbitMQConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	VHost    string `mapstructure:"vhost"`
	Queue    string `mapstructure:"queue"`
	Prefetch int    `mapstructure:"prefetch"`
}

// URL amqp connection string
func (c RabbitMQConfig) URL() string {
	vhost := strings.TrimPrefix(c.VHost, "/")
	return fmt.Sprintf("amqp://%s:%s@%s:%d/%s", c.User, c.Password, c.Host, c.Port, vhost)
}

type WorkerConfig struct {
	Concurrency int    `mapstructure:"concurrency"` // jobs executed in parallel
	QueueSize   int    `mapstructure:"queue_size"`  // pending jobs before Submit blocks
	ResultsLog  string `mapstructure:"results_log"` // JSONL journal of finished jobs, empty = off
}

// WatcherConfig inbox of URL list files
type WatcherConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	InboxDir  string        `mapstructure:"inbox_dir"`
	ResultDir string        `mapstructure:"result_dir"`
	Debounce  time.Duration `mapstructure:"debounce"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.metrics_namespace", "rf_checker")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.caller", true)

	v.SetDefault("probe.concurrency", 4)
	v.SetDefault("probe.step_timeout", "10s")
	v.SetDefault("probe.geo_primary_url", "https://ipapi.co")
	v.SetDefault("probe.geo_fallback_url", "http://ip-api.com")
	v.SetDefault("probe.geo_timeout", "8s")
	v.SetDefault("probe.geo_rate_limit", 2.0)
	v.SetDefault("probe.geo_burst", 4)
	v.SetDefault("probe.rdap_base_url", "https://rdap.org")
	v.SetDefault("probe.http_timeout", "5s")
	v.SetDefault("probe.user_agent", "rf-checker/1.0")

	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.base", 2.0)
	v.SetDefault("retry.unit", "1s")
	v.SetDefault("retry.jitter_max", "1s")
	v.SetDefault("retry.max_delay", "60s")
	v.SetDefault("retry.empty_delay", "500ms")

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.sqlite_path", "./data/cache.db")
	v.SetDefault("cache.mysql.port", 3306)
	v.SetDefault("cache.redis_pool_size", 10)
	v.SetDefault("cache.key_prefix", "rfcheck:")
	v.SetDefault("cache.ttl", "0s")

	v.SetDefault("ai.enabled", true)
	v.SetDefault("ai.provider", "gemini")
	v.SetDefault("ai.model", "gemini-2.0-flash")
	v.SetDefault("ai.max_tokens", 512)
	v.SetDefault("ai.max_length", 4000)
	v.SetDefault("ai.timeout", "60s")
	v.SetDefault("ai.grounding", true)
	v.SetDefault("ai.cache_read_through", true)

	v.SetDefault("steam.enabled", true)
	v.SetDefault("steam.search_url", "https://steamcommunity.com/actions/SearchApps")
	v.SetDefault("steam.store_url", "https://store.steampowered.com/api/appdetails")
	v.SetDefault("steam.language", "english")
	v.SetDefault("steam.currency", "us")
	v.SetDefault("steam.timeout", "10s")

	v.SetDefault("rabbitmq.host", "localhost")
	v.SetDefault("rabbitmq.port", 5672)
	v.SetDefault("rabbitmq.user", "guest")
	v.SetDefault("rabbitmq.password", "guest")
	v.SetDefault("rabbitmq.vhost", "/")
	v.SetDefault("rabbitmq.queue", "rf_check_jobs")
	v.SetDefault("rabbitmq.prefetch", 1)

	v.SetDefault("worker.concurrency", 2)
	v.SetDefault("worker.queue_size", 100)

	v.SetDefault("watcher.inbox_dir", "./inbox")
	v.SetDefault("watcher.result_dir", "./reports")
	v.SetDefault("watcher.debounce", "500ms")
}

// Load reads .env, the YAML file at path (optional) and the environment.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	// env overrides nested keys, probe.step_timeout <- PROBE_STEP_TIMEOUT
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindings := map[string]string{
		"ai.api_key":           "GEMINI_API_KEY",
		"cache.redis_url":      "REDIS_URL",
		"rabbitmq.host":        "RABBITMQ_HOST",
		"rabbitmq.port":        "RABBITMQ_PORT",
		"rabbitmq.user":        "RABBITMQ_USER",
		"rabbitmq.password":    "RABBITMQ_PASS",
		"cache.mysql.host":     "MYSQL_HOST",
		"cache.mysql.port":     "MYSQL_PORT",
		"cache.mysql.user":     "MYSQL_USER",
		"cache.mysql.password": "MYSQL_PASS",
		"cache.mysql.db_name":  "MYSQL_DB",
		"server.port":          "PORT",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// the OpenRouter key has its own variable in .env files
	if cfg.AI.Provider == "openrouter" {
		if key := v.GetString("openrouter_api_key"); key != "" {
			cfg.AI.APIKey = key
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the services cannot start with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Cache.Backend {
	case "memory", "sqlite", "mysql", "redis":
	default:
		errs = append(errs, fmt.Errorf("cache.backend: unknown backend %q", c.Cache.Backend))
	}
	if c.Cache.Backend == "redis" && c.Cache.RedisURL == "" {
		errs = append(errs, errors.New("cache.redis_url is required for the redis backend"))
	}

	switch c.AI.Provider {
	case "gemini", "openrouter":
	default:
		errs = append(errs, fmt.Errorf("ai.provider: unknown provider %q", c.AI.Provider))
	}

	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry.max_attempts must be at least 1"))
	}
	if c.Retry.Base < 1 {
		errs = append(errs, errors.New("retry.base must be at least 1"))
	}
	if c.Probe.Concurrency < 1 {
		errs = append(errs, errors.New("probe.concurrency must be at least 1"))
	}
	if c.Probe.StepTimeout <= 0 {
		errs = append(errs, errors.New("probe.step_timeout must be positive"))
	}
	if c.Worker.Concurrency < 1 {
		errs = append(errs, errors.New("worker.concurrency must be at least 1"))
	}

	return errors.Join(errs...)
}
