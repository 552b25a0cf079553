// Package configs provides application configuration loaded from environment variables.
// A .env file in the working directory is loaded first when present.
package configs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all application configuration.
// Load it once at startup using AppLoad().
type AppConfig struct {
	// Storage selects the persistence gateway.
	Storage StorageConfig

	// KafkaTrade contains Kafka connection settings for trade batches.
	KafkaTrade KafkaConfig

	// CandleTopic is where flushed candles are published. Empty disables the feed.
	CandleTopic string

	// HTTPListenAddr is the address of the HTTP intake. Empty disables it.
	HTTPListenAddr string

	Dedup      DedupConfig
	Aggregator StageConfig
	TradeStore StageConfig

	Kraken  KrakenConfig
	Binance BinanceConfig

	LogLevel  string
	LogFormat string
}

type StorageConfig struct {
	// Driver is "clickhouse" or "sqlite".
	Driver string

	// ClickHouseDSN is the ClickHouse connection string.
	ClickHouseDSN string

	SQLitePath string

	// RetryAttempts is how many times a failed trade write is retried.
	RetryAttempts uint64
	RetryBase     time.Duration

	// BreakerMaxFailures is how many consecutive failed writes open the
	// circuit. Zero disables it.
	BreakerMaxFailures      int
	BreakerTimeout          time.Duration
	BreakerSuccessThreshold int
}

// KafkaConfig holds Kafka connection settings.
type KafkaConfig struct {
	// Broker is the Kafka broker address (e.g., "localhost:9092").
	Broker string

	Topic string

	// GroupID is the consumer group ID of the collector.
	GroupID string
}

type DedupConfig struct {
	// Epoch is the watermark of a key nothing is known about.
	Epoch     time.Time
	QueueSize int

	// RelayQueueSize is the backlog kept per destination before the oldest batch is dropped.
	RelayQueueSize int

	// Exchanges are the exchanges bootstrap seeds watermarks for.
	Exchanges []string

	// ResyncSchedule is a cron spec. Empty disables resync.
	ResyncSchedule string
}

// StageConfig sizes the queue in front of a downstream stage.
type StageConfig struct {
	QueueSize int

	// Overflow is "block" or "drop-oldest".
	Overflow string

	// Period is the candle bucket length. Only the aggregator uses it.
	Period time.Duration
}

type KrakenConfig struct {
	Pairs        []string
	PollInterval time.Duration
}

type BinanceConfig struct {
	Pairs         []string
	FlushInterval time.Duration
}

// getDatabaseDSN constructs the ClickHouse DSN from environment variables.
func getDatabaseDSN() string {
	dbUser := getEnv("CLICKHOUSE_USER", "user")
	dbPassword := getEnv("CLICKHOUSE_PASSWORD", "password")
	dbHost := getEnv("CLICKHOUSE_HOST", "localhost")
	dbPort := getEnv("CLICKHOUSE_TCP_PORT", "9000")
	dbName := getEnv("CLICKHOUSE_DB", "db")

	return fmt.Sprintf(
		"clickhouse://%s:%s@%s:%s/%s?dial_timeout=10s&read_timeout=20s",
		dbUser, dbPassword, dbHost, dbPort, dbName,
	)
}

var defaultEpoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// AppLoad loads all application configuration from environment variables.
// It attempts to load a .env file first (for local development).
func AppLoad() *AppConfig {
	_ = godotenv.Load() // .env is optional
	return load()
}

func load() *AppConfig {
	return &AppConfig{
		Storage: StorageConfig{
			Driver:                  getEnv("STORAGE_DRIVER", "clickhouse"),
			ClickHouseDSN:           getDatabaseDSN(),
			SQLitePath:              getEnv("SQLITE_PATH", "tickfold.db"),
			RetryAttempts:           uint64(max(getEnvInt("WRITE_RETRY_ATTEMPTS", 3), 0)),
			RetryBase:               getEnvDuration("WRITE_RETRY_BASE", 200*time.Millisecond),
			BreakerMaxFailures:      max(getEnvInt("BREAKER_MAX_FAILURES", 5), 0),
			BreakerTimeout:          getEnvDuration("BREAKER_TIMEOUT", time.Minute),
			BreakerSuccessThreshold: getEnvInt("BREAKER_SUCCESS_THRESHOLD", 3),
		},
		KafkaTrade: KafkaConfig{
			Broker:  getEnv("KAFKA_BROKER", "localhost:9092"),
			Topic:   getEnv("KAFKA_TRADE_TOPIC", "tickfold_trades"),
			GroupID: getEnv("KAFKA_TRADE_GROUP_ID", "tickfold-collector"),
		},
		CandleTopic:    getEnv("KAFKA_CANDLE_TOPIC", ""),
		HTTPListenAddr: getEnv("HTTP_LISTEN_ADDR", ":8080"),
		Dedup: DedupConfig{
			Epoch:          getEnvTime("DEDUP_EPOCH", defaultEpoch),
			QueueSize:      getEnvInt("DEDUP_QUEUE_SIZE", 256),
			RelayQueueSize: getEnvInt("DEDUP_RELAY_QUEUE_SIZE", 1024),
			Exchanges:      getEnvList("BOOTSTRAP_EXCHANGES", []string{"kraken", "binance"}),
			ResyncSchedule: getEnv("RESYNC_SCHEDULE", ""),
		},
		Aggregator: StageConfig{
			QueueSize: getEnvInt("AGGREGATOR_QUEUE_SIZE", 256),
			Overflow:  getEnv("AGGREGATOR_OVERFLOW", "drop-oldest"),
			Period:    getEnvDuration("TICK_PERIOD", 15*time.Minute),
		},
		TradeStore: StageConfig{
			QueueSize: getEnvInt("STORAGE_QUEUE_SIZE", 256),
			Overflow:  getEnv("STORAGE_OVERFLOW", "block"),
		},
		Kraken: KrakenConfig{
			Pairs:        getEnvList("KRAKEN_PAIRS", []string{"BTC/USD", "ETH/USD", "ETH/BTC"}),
			PollInterval: getEnvDuration("KRAKEN_POLL_INTERVAL", 15*time.Second),
		},
		Binance: BinanceConfig{
			Pairs:         getEnvList("BINANCE_PAIRS", []string{"BNB/BTC", "ETH/BTC", "BNB/ETH"}),
			FlushInterval: getEnvDuration("BINANCE_FLUSH_INTERVAL", 250*time.Millisecond),
		},
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
}

// getEnv returns the environment variable value or a default.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvDuration parses values such as "15m" or "500ms".
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(getEnv(key, ""))
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}

// getEnvTime parses an RFC3339 instant.
func getEnvTime(key string, defaultValue time.Time) time.Time {
	value, err := time.Parse(time.RFC3339, getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value.UTC()
}

// getEnvList splits a comma-separated value, dropping blanks.
func getEnvList(key string, defaultValue []string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
