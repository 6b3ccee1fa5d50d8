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
	MaxUploadBytes int64

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
	KafkaBrokers    []string
	KafkaGroupID    string
	UploadTopic     string
	AssessmentTopic string

	// Storage
	StorageDir string

	// Risk scoring
	RiskScorer      string
	RiskRulesPath   string
	RiskArtifactDir string
	PredictorURL     string
	PredictorTimeout time.Duration
	PredictorStrict  bool

	AssessmentCacheTTL time.Duration

	// Gateway
	AuthToken          string
	RateLimitRPS       int
	RateLimitBurst     int
	CORSAllowedOrigins string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 60*time.Second),
		MaxUploadBytes: int64(getIntEnv("MAX_UPLOAD_BYTES", 50*1024*1024)),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "geririsk"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "geririsk"),
		PostgresDB:       getEnv("POSTGRES_DB", "geririsk"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers:    getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID:    getEnv("KAFKA_GROUP_ID", "geririsk-assessment"),
		UploadTopic:     getEnv("UPLOAD_TOPIC", "wearable.uploaded"),
		AssessmentTopic: getEnv("ASSESSMENT_TOPIC", "wearable.assessed"),

		StorageDir: getEnv("STORAGE_DIR", "./data/wearable-uploads"),

		RiskScorer:       strings.ToLower(getEnv("RISK_SCORER", "rules")),
		RiskRulesPath:    getEnv("RISK_RULES_PATH", ""),
		RiskArtifactDir:  getEnv("RISK_ARTIFACT_DIR", "./ml/models"),
		PredictorURL:     getEnv("PREDICTOR_URL", "http://localhost:8090/predict"),
		PredictorTimeout: getDuration("PREDICTOR_TIMEOUT", 10*time.Second),
		PredictorStrict:  getBoolEnv("PREDICTOR_STRICT", false),

		AssessmentCacheTTL: getDuration("ASSESSMENT_CACHE_TTL", 15*time.Minute),

		AuthToken:          getEnv("AUTH_TOKEN", ""),
		RateLimitRPS:       getIntEnv("RATE_LIMIT_RPS", 20),
		RateLimitBurst:     getIntEnv("RATE_LIMIT_BURST", 40),
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
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

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

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
