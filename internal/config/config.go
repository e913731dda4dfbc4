package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr       string
	DataDir    string
	CORSOrigin string
	// DatabaseURL selects the Postgres KV backend when set; the default
	// empty value uses the file-backed store under DataDir.
	DatabaseURL string
	// RedisURL selects the Redis session registry when set; the default
	// empty value uses the in-memory registry.
	RedisURL       string
	SessionTTL     time.Duration
	MaxUploadBytes int64
}

func Load() Config {
	return Config{
		Addr:           getenv("NOTATE_ADDR", ":8900"),
		DataDir:        getenv("NOTATE_DATA_DIR", "./data"),
		CORSOrigin:     getenv("NOTATE_CORS_ORIGIN", "*"),
		DatabaseURL:    getenv("NOTATE_DATABASE_URL", ""),
		RedisURL:       getenv("NOTATE_REDIS_URL", ""),
		SessionTTL:     time.Duration(getenvInt("NOTATE_SESSION_TTL_SECONDS", 0)) * time.Second,
		MaxUploadBytes: int64(getenvInt("NOTATE_MAX_UPLOAD_MB", 32)) << 20,
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
