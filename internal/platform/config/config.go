package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIPort string
	JWTKey  []byte
	JWTExp  time.Duration

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSslMode  string
	DBConnStr  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RunnerBaseURL   string
	RunnerAPIKey    string
	RunnerTimeout   time.Duration
	CallbackBaseURL string

	HubFanout     string // "local" or "redis"
	HubChannel    string
	HubSendBuffer int

	CorrelationRetention time.Duration
	SweepInterval        time.Duration
	SweepLockKey         string
	SweepLockTTL         time.Duration

	LogLevel  string
	LogFormat string
}

const (
	FanoutLocal = "local"
	FanoutRedis = "redis"
)

var AppConfig *Config

// Load reads an optional .env file (or the given files) and then the process environment.
func Load(envFiles ...string) {
	if err := godotenv.Load(envFiles...); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = &Config{
		APIPort:         getEnv("API_PORT", "8080"),
		JWTKey:          []byte(getEnv("JWT_SECRET", "defaultsecret")),
		JWTExp:          time.Duration(getEnvAsInt("JWT_EXPIRATION_HOURS", 4)) * time.Hour,
		DBHost:          getEnv("DB_HOST", "localhost"),
		DBPort:          getEnv("DB_PORT", "5432"),
		DBUser:          getEnv("DB_USER", "user"),
		DBPassword:      getEnv("DB_PASSWORD", "password"),
		DBName:          getEnv("DB_NAME", "recruit_db"),
		DBSslMode:       getEnv("DB_SSLMODE", "disable"),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         getEnvAsInt("REDIS_DB", 0),
		RunnerBaseURL:   strings.TrimRight(getEnv("RUNNER_BASE_URL", "https://backend.codedamn.com"), "/"),
		RunnerAPIKey:    getEnv("RUNNER_API_KEY", ""),
		RunnerTimeout:   time.Duration(getEnvAsInt("RUNNER_TIMEOUT_SECONDS", 15)) * time.Second,
		CallbackBaseURL: getEnv("CALLBACK_BASE_URL", "http://localhost:8080"),
		HubFanout:       getEnv("HUB_FANOUT", FanoutLocal),
		HubChannel:      getEnv("HUB_CHANNEL", "recruit:live-events"),
		HubSendBuffer:   getEnvAsInt("HUB_SEND_BUFFER", 16),

		CorrelationRetention: time.Duration(getEnvAsInt("CORRELATION_RETENTION_HOURS", 24)) * time.Hour,
		SweepInterval:        time.Duration(getEnvAsInt("CORRELATION_SWEEP_INTERVAL_MINUTES", 10)) * time.Minute,
		SweepLockKey:         getEnv("SWEEP_LOCK_KEY", "recruit:correlation-sweep-lock"),
		SweepLockTTL:         time.Duration(getEnvAsInt("SWEEP_LOCK_TTL_SECONDS", 300)) * time.Second,

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
	}

	AppConfig.DBConnStr = "host=" + AppConfig.DBHost +
		" port=" + AppConfig.DBPort +
		" user=" + AppConfig.DBUser +
		" password=" + AppConfig.DBPassword +
		" dbname=" + AppConfig.DBName +
		" sslmode=" + AppConfig.DBSslMode
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}
