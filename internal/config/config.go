package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	MongoDB   MongoDBConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Content   ContentConfig
	RateLimit RateLimitConfig
	MinIO     MinIOConfig
}

type ServerConfig struct {
	LogLevel     string
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// StorageConfig selects the document store backend: memory, mongo or postgres.
type StorageConfig struct {
	Driver string
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
	AppName  string

	PageCollection string
	DataCollection string
	JobCollection  string
	RunCollection  string
}

type PostgresConfig struct {
	DSN       string
	PageTable string
	DataTable string
	JobTable  string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns host:port, or "" when Redis is not configured.
func (r RedisConfig) Addr() string {
	if r.Host == "" {
		return ""
	}
	return r.Host + ":" + r.Port
}

type ContentConfig struct {
	PagesDir             string
	DataFile             string
	FSMode               string
	CacheTTL             time.Duration
	ConsistencyTolerance time.Duration
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env")

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "5001")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_ENVIRONMENT", "development")
	viper.SetDefault("STORAGE_DRIVER", "memory")
	viper.SetDefault("MONGODB_DATABASE", "siteadmin")
	viper.SetDefault("MONGODB_TIMEOUT", 10)
	viper.SetDefault("MONGODB_APP_NAME", "content-services")
	viper.SetDefault("MONGODB_PAGE_COLLECTION", "page_contents")
	viper.SetDefault("MONGODB_DATA_COLLECTION", "content_data")
	viper.SetDefault("MONGODB_JOB_COLLECTION", "job_openings")
	viper.SetDefault("MONGODB_RUN_COLLECTION", "sync_runs")
	viper.SetDefault("POSTGRES_PAGE_TABLE", "page_contents")
	viper.SetDefault("POSTGRES_DATA_TABLE", "content_data")
	viper.SetDefault("POSTGRES_JOB_TABLE", "job_openings")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("CONTENT_PAGES_DIR", "data/pages")
	viper.SetDefault("CONTENT_DATA_FILE", "data/content-data.json")
	viper.SetDefault("CONTENT_CACHE_TTL_SECONDS", 300)
	viper.SetDefault("CONTENT_CONSISTENCY_TOLERANCE_MS", 1000)
	viper.SetDefault("RATE_LIMIT_RPS", 10.0)
	viper.SetDefault("RATE_LIMIT_BURST", 20)
	viper.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)
	viper.SetDefault("MINIO_BUCKET", "siteadmin-backups")

	cfg := &Config{
		Server: ServerConfig{
			LogLevel:     viper.GetString("LOG_LEVEL"),
			Port:         viper.GetString("SERVER_PORT"),
			Host:         viper.GetString("SERVER_HOST"),
			Environment:  viper.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			Driver: strings.ToLower(strings.TrimSpace(viper.GetString("STORAGE_DRIVER"))),
		},
		MongoDB: MongoDBConfig{
			URI:      viper.GetString("MONGODB_URI"),
			Database: viper.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(viper.GetInt("MONGODB_TIMEOUT")) * time.Second,
			AppName:  viper.GetString("MONGODB_APP_NAME"),

			PageCollection: viper.GetString("MONGODB_PAGE_COLLECTION"),
			DataCollection: viper.GetString("MONGODB_DATA_COLLECTION"),
			JobCollection:  viper.GetString("MONGODB_JOB_COLLECTION"),
			RunCollection:  viper.GetString("MONGODB_RUN_COLLECTION"),
		},
		Postgres: PostgresConfig{
			DSN:       os.Getenv("POSTGRES_DSN"),
			PageTable: viper.GetString("POSTGRES_PAGE_TABLE"),
			DataTable: viper.GetString("POSTGRES_DATA_TABLE"),
			JobTable:  viper.GetString("POSTGRES_JOB_TABLE"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		Content: ContentConfig{
			PagesDir:             viper.GetString("CONTENT_PAGES_DIR"),
			DataFile:             viper.GetString("CONTENT_DATA_FILE"),
			FSMode:               viper.GetString("CONTENT_FS_MODE"),
			CacheTTL:             time.Duration(viper.GetInt("CONTENT_CACHE_TTL_SECONDS")) * time.Second,
			ConsistencyTolerance: time.Duration(viper.GetInt("CONTENT_CONSISTENCY_TOLERANCE_MS")) * time.Millisecond,
		},
		RateLimit: RateLimitConfig{
			Enabled:       viper.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      viper.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         viper.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: viper.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		MinIO: MinIOConfig{
			Endpoint:  viper.GetString("MINIO_ENDPOINT"),
			AccessKey: viper.GetString("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			UseSSL:    viper.GetBool("MINIO_USE_SSL"),
			Bucket:    viper.GetString("MINIO_BUCKET"),
		},
	}

	return cfg, nil
}

// Getenv exposes the viper-resolved environment (including .env values) as a
// plain lookup function for the environment classifier.
func Getenv(key string) string {
	return viper.GetString(key)
}
