package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	DB       DBConfig
	MinIO    MinIOConfig
	JWT      JWTConfig
	Server   ServerConfig
	Storage  StorageConfig
	Sessions SessionConfig
	Cache    CacheConfig
	Migrator MigratorConfig
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type JWTConfig struct {
	Secret          string
	ExpirationHours int
}

type ServerConfig struct {
	Port string
}

type StorageConfig struct {
	// BlobDir holds pending encrypted blobs, one directory per blob id.
	BlobDir string
	// ScratchDir holds in-flight chunked upload data, one directory per
	// session id.
	ScratchDir string
	// AssetsDir holds bundled default files that can be ingested by name.
	AssetsDir     string
	MaxUploadSize int64
}

type SessionConfig struct {
	TTL          time.Duration
	ReapInterval time.Duration
}

type CacheConfig struct {
	Dir           string
	MaxBytes      int64
	TTL           time.Duration
	SweepInterval time.Duration
}

type MigratorConfig struct {
	QueueSize     int
	Workers       int
	UploadTimeout time.Duration
}

func Load() *Config {
	return &Config{
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "caelium"),
			Password: getEnv("DB_PASSWORD", "caelium_secret"),
			Name:     getEnv("DB_NAME", "caelium"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("MINIO_ACCESS_KEY", "caelium"),
			SecretKey: getEnv("MINIO_SECRET_KEY", "caelium_secret"),
			Bucket:    getEnv("MINIO_BUCKET", "caelium"),
			UseSSL:    getEnvAsBool("MINIO_USE_SSL", false),
		},
		JWT: JWTConfig{
			Secret:          getEnv("JWT_SECRET", "change-me-in-production"),
			ExpirationHours: getEnvAsInt("JWT_EXPIRATION_HOURS", 24),
		},
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Storage: StorageConfig{
			BlobDir:       getEnv("STORAGE_BLOB_DIR", "./data/blobs"),
			ScratchDir:    getEnv("STORAGE_SCRATCH_DIR", "./data/scratch"),
			AssetsDir:     getEnv("STORAGE_ASSETS_DIR", "./assets"),
			MaxUploadSize: getEnvAsInt64("STORAGE_MAX_UPLOAD_SIZE", 5*1024*1024*1024),
		},
		Sessions: SessionConfig{
			TTL:          getEnvAsDuration("UPLOAD_SESSION_TTL", 24*time.Hour),
			ReapInterval: getEnvAsDuration("UPLOAD_SESSION_REAP_INTERVAL", 1*time.Hour),
		},
		Cache: CacheConfig{
			Dir:           getEnv("CACHE_DIR", "./data/cache"),
			MaxBytes:      getEnvAsInt64("CACHE_MAX_BYTES", 1024*1024*1024),
			TTL:           getEnvAsDuration("CACHE_TTL", 24*time.Hour),
			SweepInterval: getEnvAsDuration("CACHE_SWEEP_INTERVAL", 1*time.Hour),
		},
		Migrator: MigratorConfig{
			QueueSize:     getEnvAsInt("MIGRATOR_QUEUE_SIZE", 100),
			Workers:       getEnvAsInt("MIGRATOR_WORKERS", 4),
			UploadTimeout: getEnvAsDuration("MIGRATOR_UPLOAD_TIMEOUT", 10*time.Minute),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsInt64(key string, fallback int64) int64 {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}
