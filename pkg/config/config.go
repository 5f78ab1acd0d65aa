package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"90s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		SlowRequest     time.Duration `yaml:"slow_request" default:"5s"`
		RunRatePerMin   int           `yaml:"run_rate_per_min" default:"6"`
		AllowOrigins    []string      `yaml:"allow_origins" default:"[\"*\"]"`
	} `yaml:"server"`
	Log struct {
		Level     string `yaml:"level" default:"info"`
		Format    string `yaml:"format" default:"console"`
		Output    string `yaml:"output" default:"stdout"`
		Collector struct {
			Enabled        bool          `yaml:"enabled"`
			Topic          string        `yaml:"topic" default:"signaldesk.logs"`
			Interval       time.Duration `yaml:"interval" default:"30s"`
			CountThreshold int           `yaml:"count_threshold" default:"100"`
		} `yaml:"collector"`
	} `yaml:"log"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Store struct {
		DataDir     string `yaml:"data_dir" default:"data"`
		LatestFile  string `yaml:"latest_file" default:"signals_latest.json"`
		HistoryFile string `yaml:"history_file" default:"signals_history.jsonl"`
		ScanLimit   int    `yaml:"scan_limit" default:"5000"`

		// read-only files produced by the execution and backtest tools
		TradeFile       string `yaml:"trade_file" default:"trade_history.jsonl"`
		BacktestSummary string `yaml:"backtest_summary" default:"backtests/backtest_summary.json"`
	} `yaml:"store"`
	Market struct {
		Provider    string        `yaml:"provider" default:"kraken"`
		KrakenURL   string        `yaml:"kraken_url" default:"https://api.kraken.com"`
		BinanceURL  string        `yaml:"binance_url"`
		Timeout     time.Duration `yaml:"timeout" default:"20s"`
		RatePerSec  float64       `yaml:"rate_per_sec" default:"1"`
		Burst       int           `yaml:"burst" default:"3"`
		Retries     int           `yaml:"retries"`
		RetryWindow time.Duration `yaml:"retry_window" default:"15s"`
	} `yaml:"market"`
	Macro struct {
		CoinGeckoURL string        `yaml:"coingecko_url" default:"https://api.coingecko.com"`
		Timeout      time.Duration `yaml:"timeout" default:"20s"`
		PriceTimeout time.Duration `yaml:"price_timeout" default:"8s"`
		CacheTTL     time.Duration `yaml:"cache_ttl"`
	} `yaml:"macro"`
	Engine struct {
		PartialResults bool `yaml:"partial_results"`
	} `yaml:"engine"`
	Refresh struct {
		Command      []string      `yaml:"command" default:"[\"./bin/generate\",\"run\",\"--config\",\"config/config.yaml\"]"`
		WorkDir      string        `yaml:"work_dir" default:"."`
		MessageLimit int           `yaml:"message_limit" default:"240"`
		Timeout      time.Duration `yaml:"timeout"`
	} `yaml:"refresh"`
	Auth struct {
		JWTSecret     string   `yaml:"jwt_secret"`
		Issuer        string   `yaml:"issuer"`
		Audience      string   `yaml:"audience"`
		CookieName    string   `yaml:"cookie_name" default:"sb-access-token"`
		ModuleAliases []string `yaml:"module_aliases" default:"[\"crypto-middleware\",\"crypto_middleware\",\"crypto\"]"`
		Directory     struct {
			Driver string `yaml:"driver" default:"postgres"`
			DSN    string `yaml:"dsn"`
		} `yaml:"directory"`
	} `yaml:"auth"`
	Cache struct {
		Type      string        `yaml:"type" default:"memory"`
		LatestTTL time.Duration `yaml:"latest_ttl" default:"30s"`
		MaxItems  int           `yaml:"max_items" default:"1000"`
		Cleanup   time.Duration `yaml:"cleanup_interval" default:"1m"`
		Redis     struct {
			Host     string `yaml:"host" default:"localhost"`
			Port     int    `yaml:"port" default:"6379"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix" default:"signaldesk"`
		} `yaml:"redis"`
	} `yaml:"cache"`
	Export struct {
		Backend    string        `yaml:"backend"`
		Consume    bool          `yaml:"consume"`
		BufferSize int           `yaml:"buffer_size" default:"64"`
		RetryMin   time.Duration `yaml:"retry_min" default:"200ms"`
		RetryMax   time.Duration `yaml:"retry_max" default:"5s"`
	} `yaml:"export"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic" default:"signaldesk.signals"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"gzip"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"100ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
			AutoCreate   bool          `yaml:"auto_create_topic"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"signaldesk-archiver"`
			Offset     string        `yaml:"auto_offset_reset" default:"earliest"`
			Workers    int           `yaml:"workers" default:"1"`
			BufferSize int           `yaml:"buffer_size" default:"64"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10000000"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"signaldesk"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes, applies defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SIGNALDESK_ENV"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("SIGNALDESK_DATA_DIR"); v != "" {
		c.Store.DataDir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("MARKET_PROVIDER"); v != "" {
		c.Market.Provider = v
	}
	if v := os.Getenv("AUTH_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("DIRECTORY_DRIVER"); v != "" {
		c.Auth.Directory.Driver = v
	}
	if v := os.Getenv("DIRECTORY_DSN"); v != "" {
		c.Auth.Directory.DSN = v
	}
	if v := os.Getenv("CACHE_TYPE"); v != "" {
		c.Cache.Type = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Cache.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Cache.Redis.Password = v
	}
	if v := os.Getenv("EXPORT_BACKEND"); v != "" {
		c.Export.Backend = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	switch c.Market.Provider {
	case "kraken", "binance":
	default:
		return fmt.Errorf("market.provider must be 'kraken' or 'binance', got '%s'", c.Market.Provider)
	}
	switch c.Auth.Directory.Driver {
	case "postgres", "sqlite3":
	default:
		return fmt.Errorf("auth.directory.driver must be 'postgres' or 'sqlite3', got '%s'", c.Auth.Directory.Driver)
	}
	switch c.Cache.Type {
	case "memory", "redis", "layered":
	default:
		return fmt.Errorf("cache.type must be 'memory', 'redis' or 'layered', got '%s'", c.Cache.Type)
	}
	switch c.Export.Backend {
	case "", "kafka", "clickhouse":
	default:
		return fmt.Errorf("export.backend must be empty, 'kafka' or 'clickhouse', got '%s'", c.Export.Backend)
	}
	if (c.Export.Backend == "kafka" || c.Export.Consume || c.Log.Collector.Enabled) && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka export, consume or log collector is enabled")
	}
	if c.Store.DataDir == "" {
		return fmt.Errorf("store.data_dir is required")
	}
	if len(c.Refresh.Command) == 0 {
		return fmt.Errorf("refresh.command cannot be empty")
	}
	switch c.Kafka.Consumer.Offset {
	case "earliest", "latest":
	default:
		return fmt.Errorf("kafka.consumer.auto_offset_reset must be 'earliest' or 'latest', got '%s'", c.Kafka.Consumer.Offset)
	}
	if !c.IsDevelopment() && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required outside development")
	}
	return nil
}

// IsDevelopment reports whether the service runs in the development environment.
func (c *Config) IsDevelopment() bool { return c.Environment == "development" }
