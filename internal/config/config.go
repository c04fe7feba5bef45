package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends.
const (
	BackendElasticsearch = "elasticsearch"
	BackendPostgres      = "postgres"
)

// Notifier kinds for the monitor.
const (
	NotifierTelegram = "telegram"
	NotifierKafka    = "kafka"
)

// Common contains store parameters shared by every service.
type Common struct {
	StoreBackend       string
	ElasticsearchAddr  string
	ElasticsearchIndex string
	PostgresDSN        string
}

// Telegram holds bot credentials.
type Telegram struct {
	BotToken string
	ChatID   string
	APIBase  string
	Timeout  time.Duration
}

// SMTP configures the optional e-mail copy of alerts and summaries.
type SMTP struct {
	Addr     string
	Username string
	Password string
	From     string
	To       []string
}

// Kafka holds the alert topic settings.
type Kafka struct {
	Brokers    []string
	AlertTopic string
}

// Monitor holds configuration for one price monitoring run.
type Monitor struct {
	Common
	Telegram Telegram
	Kafka    Kafka
	SMTP     SMTP

	OpenAIKey     string
	OpenAIModel   string
	OpenAIBaseURL string

	Threshold      float64
	ChunkSize      int
	ShopLat        float64
	ShopLon        float64
	SearchDistance int
	SearchSize     int

	ExtractDelay   time.Duration
	KeywordDelay   time.Duration
	PageDelay      time.Duration
	AlertDelay     time.Duration
	CollectTimeout time.Duration
	HTTPTimeout    time.Duration

	Schedule       string
	Notifier       string
	SourcesFile    string
	RenderEndpoint string
}

// Worker holds configuration for the Kafka -> Telegram alert worker.
type Worker struct {
	Kafka
	Telegram       Telegram
	KafkaConsumer  string
	DedupeCapacity int
	DedupeTTL      time.Duration
	BatchSize      int
}

// API describes HTTP-layer configuration.
type API struct {
	Common
	BindAddr     string
	DefaultLimit int
	MaxLimit     int
}

// Retention configures the cleanup loop.
type Retention struct {
	Common
	Interval  time.Duration
	MaxAge    time.Duration
	BatchSize int
}

// Bot configures the interactive Telegram bot.
type Bot struct {
	Common
	Telegram    Telegram
	Port        int
	PollTimeout int
	RedisAddr   string
	CursorKey   string
	CacheTTL    time.Duration
	CacheSize   int
}

// LoadMonitor builds a Monitor config from environment variables.
// All missing required variables are reported together.
func LoadMonitor() (*Monitor, error) {
	common, commonErr := loadCommon()

	c := &Monitor{
		Common: common,
		Telegram: Telegram{
			BotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
			ChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
			APIBase:  getEnv("TELEGRAM_API_BASE", "https://api.telegram.org"),
			Timeout:  getDuration("NOTIFY_TIMEOUT", "15s"),
		},
		Kafka: loadKafka(),
		SMTP:  loadSMTP(),

		OpenAIKey:     getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),

		Threshold:      getFloat("PRICE_DROP_THRESHOLD", 5.0),
		ChunkSize:      getInt("EXTRACT_CHUNK_SIZE", 8000),
		ShopLat:        getFloat("SHOP_LAT", 40.7569),
		ShopLon:        getFloat("SHOP_LON", 30.3783),
		SearchDistance: getInt("SEARCH_DISTANCE_KM", 50),
		SearchSize:     getInt("SEARCH_SIZE", 100),

		ExtractDelay:   getDuration("EXTRACT_DELAY", "500ms"),
		KeywordDelay:   getDuration("KEYWORD_DELAY", "1500ms"),
		PageDelay:      getDuration("PAGE_DELAY", "2s"),
		AlertDelay:     getDuration("ALERT_DELAY", "500ms"),
		CollectTimeout: getDuration("COLLECT_TIMEOUT", "10m"),
		HTTPTimeout:    getDuration("HTTP_TIMEOUT", "30s"),

		Schedule:       getEnv("MONITOR_SCHEDULE", ""),
		Notifier:       strings.ToLower(getEnv("NOTIFIER", NotifierTelegram)),
		SourcesFile:    getEnv("SOURCES_FILE", "sources.json5"),
		RenderEndpoint: getEnv("RENDER_ENDPOINT", ""),
	}

	var errs []error
	if commonErr != nil {
		errs = append(errs, commonErr)
	}
	if err := missing(
		"TELEGRAM_BOT_TOKEN", c.Telegram.BotToken,
		"TELEGRAM_CHAT_ID", c.Telegram.ChatID,
		"OPENAI_API_KEY", c.OpenAIKey,
	); err != nil {
		errs = append(errs, err)
	}

	if c.Threshold < 0 {
		errs = append(errs, fmt.Errorf("PRICE_DROP_THRESHOLD cannot be negative"))
	}
	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("EXTRACT_CHUNK_SIZE must be positive"))
	}
	switch c.Notifier {
	case NotifierTelegram:
	case NotifierKafka:
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, fmt.Errorf("KAFKA_BROKERS must contain at least one broker"))
		}
	default:
		errs = append(errs, fmt.Errorf("NOTIFIER must be %q or %q", NotifierTelegram, NotifierKafka))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadWorker builds a Worker config from environment variables.
func LoadWorker() (*Worker, error) {
	c := &Worker{
		Kafka: loadKafka(),
		Telegram: Telegram{
			BotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
			ChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
			APIBase:  getEnv("TELEGRAM_API_BASE", "https://api.telegram.org"),
			Timeout:  getDuration("NOTIFY_TIMEOUT", "15s"),
		},
		KafkaConsumer:  getEnv("KAFKA_CONSUMER_GROUP", "alert-worker"),
		DedupeCapacity: getInt("WORKER_DEDUPE_CAPACITY", 20000),
		DedupeTTL:      getDuration("WORKER_DEDUPE_TTL", "24h"),
		BatchSize:      getInt("WORKER_BATCH_SIZE", 10),
	}

	if err := missing(
		"TELEGRAM_BOT_TOKEN", c.Telegram.BotToken,
		"TELEGRAM_CHAT_ID", c.Telegram.ChatID,
	); err != nil {
		return nil, err
	}
	if len(c.Brokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("WORKER_BATCH_SIZE must be positive")
	}
	if c.DedupeCapacity <= 0 {
		return nil, fmt.Errorf("WORKER_DEDUPE_CAPACITY must be positive")
	}

	return c, nil
}

// LoadAPI builds an API config from environment variables.
func LoadAPI() (*API, error) {
	common, err := loadCommon()
	if err != nil {
		return nil, err
	}

	c := &API{
		Common:       common,
		BindAddr:     getEnv("API_BIND_ADDR", "0.0.0.0:8080"),
		DefaultLimit: getInt("API_PAGE_SIZE", 100),
		MaxLimit:     getInt("API_MAX_PAGE_SIZE", 500),
	}

	if c.DefaultLimit <= 0 {
		return nil, fmt.Errorf("API_PAGE_SIZE must be positive")
	}
	if c.MaxLimit <= 0 {
		return nil, fmt.Errorf("API_MAX_PAGE_SIZE must be positive")
	}
	if c.DefaultLimit > c.MaxLimit {
		return nil, fmt.Errorf("API_PAGE_SIZE cannot exceed API_MAX_PAGE_SIZE")
	}

	return c, nil
}

// LoadRetention builds a Retention config from environment variables.
func LoadRetention() (*Retention, error) {
	common, err := loadCommon()
	if err != nil {
		return nil, err
	}

	c := &Retention{
		Common:    common,
		Interval:  getDuration("RETENTION_INTERVAL", "24h"),
		MaxAge:    getDuration("RETENTION_MAX_AGE", "8760h"),
		BatchSize: getInt("RETENTION_BATCH_SIZE", 500),
	}

	if c.MaxAge <= 0 {
		return nil, fmt.Errorf("RETENTION_MAX_AGE must be positive")
	}
	if c.Interval <= 0 {
		return nil, fmt.Errorf("RETENTION_INTERVAL must be positive")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("RETENTION_BATCH_SIZE must be positive")
	}

	return c, nil
}

// LoadBot builds a Bot config from environment variables.
func LoadBot() (*Bot, error) {
	common, commonErr := loadCommon()

	c := &Bot{
		Common: common,
		Telegram: Telegram{
			BotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
			APIBase:  getEnv("TELEGRAM_API_BASE", "https://api.telegram.org"),
			Timeout:  getDuration("NOTIFY_TIMEOUT", "15s"),
		},
		Port:        getInt("PORT", 10000),
		PollTimeout: getInt("BOT_POLL_TIMEOUT", 30),
		RedisAddr:   getEnv("REDIS_ADDR", ""),
		CursorKey:   getEnv("BOT_CURSOR_KEY", "bakkal:bot:offset"),
		CacheTTL:    getDuration("BOT_CACHE_TTL", "5m"),
		CacheSize:   getInt("BOT_CACHE_SIZE", 512),
	}

	var errs []error
	if commonErr != nil {
		errs = append(errs, commonErr)
	}
	if err := missing("TELEGRAM_BOT_TOKEN", c.Telegram.BotToken); err != nil {
		errs = append(errs, err)
	}
	if c.PollTimeout < 0 {
		errs = append(errs, fmt.Errorf("BOT_POLL_TIMEOUT cannot be negative"))
	}
	if c.CacheSize <= 0 {
		errs = append(errs, fmt.Errorf("BOT_CACHE_SIZE must be positive"))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return c, nil
}

func loadCommon() (Common, error) {
	c := Common{
		StoreBackend:       strings.ToLower(getEnv("STORE_BACKEND", BackendElasticsearch)),
		ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
		ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", "price_history"),
		PostgresDSN:        getEnv("POSTGRES_DSN", ""),
	}

	switch c.StoreBackend {
	case BackendElasticsearch:
		return c, nil
	case BackendPostgres:
		return c, missing("POSTGRES_DSN", c.PostgresDSN)
	default:
		return c, fmt.Errorf("STORE_BACKEND must be %q or %q", BackendElasticsearch, BackendPostgres)
	}
}

func loadKafka() Kafka {
	return Kafka{
		Brokers:    splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092")),
		AlertTopic: getEnv("KAFKA_ALERT_TOPIC", "price_alerts"),
	}
}

func loadSMTP() SMTP {
	return SMTP{
		Addr:     getEnv("SMTP_ADDR", ""),
		Username: getEnv("SMTP_USERNAME", ""),
		Password: getEnv("SMTP_PASSWORD", ""),
		From:     getEnv("SMTP_FROM", ""),
		To:       splitAndTrim(getEnv("SMTP_TO", "")),
	}
}

// missing takes key/value pairs and reports every key whose value is blank.
func missing(pairs ...string) error {
	var keys []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			keys = append(keys, pairs[i])
		}
	}
	if len(keys) == 0 {
		return nil
	}
	return fmt.Errorf("missing required environment variables: %s", strings.Join(keys, ", "))
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return parsed
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	raw := getEnv(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil {
		fd, ferr := time.ParseDuration(fallback)
		if ferr != nil {
			panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, ferr))
		}
		return fd
	}
	return d
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
