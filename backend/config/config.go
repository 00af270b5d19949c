package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DBDriver   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	SQLitePath string

	JWTSecret   string
	JWTTTLHours int
	ServerPort  string

	LogFormat string
	LogLevel  string

	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	StatsCacheTTLSeconds int

	ReviewDefaultStatus    string
	DefaultPassingRatio    float64
	AutoCompleteEnrollment bool
	CertificateBaseURL     string
}

func LoadConfig() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Println("Error loading .env file, using environment variables")
	}

	cfg := &Config{
		DBDriver:   strings.ToLower(getEnv("DB_DRIVER", "postgres")),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "learning_platform"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),
		SQLitePath: getEnv("SQLITE_PATH", "learning_platform.db"),

		JWTSecret:   getEnv("JWT_SECRET", "secret"),
		JWTTTLHours: getEnvInt("JWT_TTL_HOURS", 72),
		ServerPort:  getEnv("SERVER_PORT", "8080"),

		LogFormat: getEnv("LOG_FORMAT", "text"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),

		RedisAddr:            getEnv("REDIS_ADDR", ""),
		RedisPassword:        getEnv("REDIS_PASSWORD", ""),
		RedisDB:              getEnvInt("REDIS_DB", 0),
		StatsCacheTTLSeconds: getEnvInt("STATS_CACHE_TTL_SECONDS", 300),

		ReviewDefaultStatus:    strings.ToLower(getEnv("REVIEW_DEFAULT_STATUS", "approved")),
		DefaultPassingRatio:    getEnvFloat("DEFAULT_PASSING_RATIO", 0.7),
		AutoCompleteEnrollment: getEnvBool("AUTO_COMPLETE_ENROLLMENT", true),
		CertificateBaseURL:     strings.TrimRight(getEnv("CERTIFICATE_BASE_URL", "https://certificates.local"), "/"),
	}

	if cfg.ReviewDefaultStatus != "approved" && cfg.ReviewDefaultStatus != "pending" {
		log.Printf("Unknown REVIEW_DEFAULT_STATUS %q, falling back to approved", cfg.ReviewDefaultStatus)
		cfg.ReviewDefaultStatus = "approved"
	}
	if cfg.DefaultPassingRatio <= 0 || cfg.DefaultPassingRatio > 1 {
		log.Printf("DEFAULT_PASSING_RATIO %v out of range, using 0.7", cfg.DefaultPassingRatio)
		cfg.DefaultPassingRatio = 0.7
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Error converting environment variable %s to int: %v", key, err)
		return defaultValue
	}
	return intValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Printf("Error converting environment variable %s to float: %v", key, err)
		return defaultValue
	}
	return f
}

func getEnvBool(key string, defaultValue bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("Error converting environment variable %s to bool: %v", key, err)
		return defaultValue
	}
	return b
}
