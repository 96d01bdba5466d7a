package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64
	RateLimitRPS   int
	RateLimitBurst int

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaBrokers       []string
	KafkaGroupID       string
	EpisodeEventsTopic string
	MappingEventsTopic string

	// Episode cache
	CacheBackend    string
	EpisodeCacheTTL time.Duration

	// FHIR
	FHIRBaseURL      string
	FHIRTokenURL     string
	FHIRClientID     string
	FHIRClientSecret string
	FHIRScopes       []string

	// DocuSeal
	DocuSealAPIURL string
	DocuSealAPIKey string

	// Outbound HTTP
	HTTPClientTimeout time.Duration
	HTTPClientRetries int

	// Field mapping
	ManufacturerConfigPath string
	FuzzyMatchThreshold    float64
}

var loadEnvFile = func() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load(getEnv("ENV_FILE", ".env"))
}

func Load() *Config {
	loadEnvFile()

	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8090"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 2*1024*1024)),
		RateLimitRPS:   getIntEnv("RATE_LIMIT_RPS", 50),
		RateLimitBurst: getIntEnv("RATE_LIMIT_BURST", 100),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "msc"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "msc"),
		PostgresDB:       getEnv("POSTGRES_DB", "msc_portal"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers:       getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID:       getEnv("KAFKA_GROUP_ID", "ivr-service"),
		EpisodeEventsTopic: getEnv("EPISODE_EVENTS_TOPIC", "episode-events"),
		MappingEventsTopic: getEnv("MAPPING_EVENTS_TOPIC", "ivr-mapping-events"),

		CacheBackend:    strings.ToLower(getEnv("CACHE_BACKEND", "redis")),
		EpisodeCacheTTL: getDuration("EPISODE_CACHE_TTL", 5*time.Minute),

		FHIRBaseURL:      getEnv("FHIR_BASE_URL", ""),
		FHIRTokenURL:     getEnv("FHIR_TOKEN_URL", ""),
		FHIRClientID:     getEnv("FHIR_CLIENT_ID", ""),
		FHIRClientSecret: getEnv("FHIR_CLIENT_SECRET", ""),
		FHIRScopes:       getStringSliceEnv("FHIR_SCOPES", nil),

		DocuSealAPIURL: getEnv("DOCUSEAL_API_URL", "https://api.docuseal.com"),
		DocuSealAPIKey: getEnv("DOCUSEAL_API_KEY", ""),

		HTTPClientTimeout: getDuration("HTTP_CLIENT_TIMEOUT", 30*time.Second),
		HTTPClientRetries: getIntEnv("HTTP_CLIENT_RETRIES", 3),

		ManufacturerConfigPath: getEnv("MANUFACTURER_CONFIG_PATH", ""),
		FuzzyMatchThreshold:    getFloatEnv("FUZZY_MATCH_THRESHOLD", 0.7),
	}
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

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getStringSliceEnv splits a comma separated value, dropping empty entries.
func getStringSliceEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
