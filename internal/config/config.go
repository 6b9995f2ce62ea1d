package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all configuration for the service
type Config struct {
	LogLevel   string
	ListenAddr string
	Chain      ChainConfig
	Aggregator AggregatorConfig
	Watcher    WatcherConfig
	Kafka      KafkaConfig
	Redis      RedisConfig
}

// ChainConfig holds the RPC endpoint and tipping contract configuration
type ChainConfig struct {
	RpcEndpoint     string
	ApiKey          string
	RateLimit       float64
	HTTPTimeout     time.Duration
	MaxRetries      int
	RetryDelay      time.Duration
	TippingContract string
}

// AggregatorConfig holds the aggregation core's tunables. TokenRate is the
// fixed native-per-token conversion used only for leaderboard ordering.
type AggregatorConfig struct {
	TokenDecimals        int32
	TokenSymbol          string
	TokenRate            decimal.Decimal
	LeaderboardSize      int
	RecentTipsSize       int
	TimestampConcurrency int
}

// WatcherConfig holds the live tip watcher configuration
type WatcherConfig struct {
	Enabled      bool
	PollInterval time.Duration
}

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Enabled       bool
	BrokerAddress string
	Topic         string
}

// RedisConfig holds the leaderboard cache configuration
type RedisConfig struct {
	Enabled bool
	Addr    string
	DB      int
	TTL     time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// Not fatal, as env vars might be set externally
	}

	config := &Config{
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		ListenAddr: getEnv("LISTEN_ADDR", ":8080"),
		Chain: ChainConfig{
			RpcEndpoint:     getEnv("RPC_ENDPOINT", "https://api.testnet.abs.xyz"),
			ApiKey:          getEnv("RPC_API_KEY", ""),
			RateLimit:       getEnvAsFloat("RPC_RATE_LIMIT", 4),
			HTTPTimeout:     time.Duration(getEnvAsInt("HTTP_TIMEOUT", 30)) * time.Second,
			MaxRetries:      getEnvAsInt("MAX_RETRIES", 1),
			RetryDelay:      time.Duration(getEnvAsInt("RETRY_DELAY", 5)) * time.Second,
			TippingContract: getEnv("TIPPING_CONTRACT", "0x1F49814E3aa4f8582c69a00421FBE9C2273046Ef"),
		},
		Aggregator: AggregatorConfig{
			TokenDecimals:        int32(getEnvAsInt("TOKEN_DECIMALS", 18)),
			TokenSymbol:          getEnv("TOKEN_SYMBOL", "WAIFU"),
			TokenRate:            getEnvAsDecimal("TOKEN_RATE", "0.001"),
			LeaderboardSize:      getEnvAsInt("LEADERBOARD_SIZE", 5),
			RecentTipsSize:       getEnvAsInt("RECENT_TIPS_SIZE", 5),
			TimestampConcurrency: getEnvAsInt("TIMESTAMP_CONCURRENCY", 8),
		},
		Watcher: WatcherConfig{
			Enabled:      getEnvAsBool("WATCHER_ENABLED", false),
			PollInterval: time.Duration(getEnvAsInt("WATCH_INTERVAL", 10)) * time.Second,
		},
		Kafka: KafkaConfig{
			Enabled:       getEnvAsBool("KAFKA_ENABLED", false),
			BrokerAddress: getEnv("KAFKA_BROKER_ADDRESS", "localhost:9092"),
			Topic:         getEnv("KAFKA_TOPIC", "tip-events"),
		},
		Redis: RedisConfig{
			Enabled: getEnvAsBool("REDIS_ENABLED", false),
			Addr:    getEnv("REDIS_ADDR", "localhost:6379"),
			DB:      getEnvAsInt("REDIS_DB", 0),
			TTL:     time.Duration(getEnvAsInt("REDIS_TTL", 60)) * time.Second,
		},
	}

	if config.Chain.TippingContract == "" {
		return nil, fmt.Errorf("TIPPING_CONTRACT must be set")
	}
	if config.Aggregator.TokenRate.IsNegative() {
		return nil, fmt.Errorf("TOKEN_RATE must not be negative")
	}

	return config, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as int or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsFloat gets an environment variable as float64 or returns a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvAsBool gets an environment variable as bool or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDecimal gets an environment variable as a decimal or returns a default value
func getEnvAsDecimal(key, defaultValue string) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	d, _ := decimal.NewFromString(defaultValue)
	return d
}
