package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	CORS     CORSConfig
	Log      LogConfig
	Filter   FilterConfig
	Harvest  HarvestConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	// StatementTimeout bounds every query, including filter queries built
	// from client input. Zero leaves the server default.
	StatementTimeout time.Duration
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// FilterConfig bounds what clients may ask of the filter endpoints.
type FilterConfig struct {
	DefaultItems         int
	MaxItems             int
	MaxArrayItems        int
	MaxStringLength      int
	AssociationCacheSize int
}

// HarvestConfig configures directory scanning and the harvest workers.
type HarvestConfig struct {
	UploadDir          string
	OriginalAudioDir   string
	SidecarFilename    string
	AllowedExtensions  []string
	FFProbePath        string
	WorkerConcurrency  int
	WorkerRetries      int
	ScanConcurrency    int
	MinDurationSeconds float64
	MaxOverlapSeconds  float64
	MaxOverlaps        int
	DeleteAfter        time.Duration
	DeleteRetryDelay   time.Duration
	UniquenessTTL      time.Duration
	SiteCacheTTL       time.Duration
	SummaryCacheTTL    time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),

		StatementTimeout: v.GetDuration("DB_STATEMENT_TIMEOUT"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Filter = FilterConfig{
		DefaultItems:         positiveOr(v.GetInt("FILTER_DEFAULT_ITEMS"), 25),
		MaxItems:             positiveOr(v.GetInt("FILTER_MAX_ITEMS"), 500),
		MaxArrayItems:        positiveOr(v.GetInt("FILTER_MAX_ARRAY_ITEMS"), 1000),
		MaxStringLength:      positiveOr(v.GetInt("FILTER_MAX_STRING_LENGTH"), 120),
		AssociationCacheSize: positiveOr(v.GetInt("FILTER_ASSOCIATION_CACHE_SIZE"), 256),
	}

	cfg.Harvest = HarvestConfig{
		UploadDir:          v.GetString("HARVEST_UPLOAD_DIR"),
		OriginalAudioDir:   v.GetString("HARVEST_ORIGINAL_AUDIO_DIR"),
		SidecarFilename:    v.GetString("HARVEST_SIDECAR_FILENAME"),
		AllowedExtensions:  splitAndTrim(v.GetString("HARVEST_ALLOWED_EXTENSIONS")),
		FFProbePath:        v.GetString("HARVEST_FFPROBE_PATH"),
		WorkerConcurrency:  positiveOr(v.GetInt("HARVEST_WORKER_CONCURRENCY"), 2),
		WorkerRetries:      v.GetInt("HARVEST_WORKER_RETRIES"),
		ScanConcurrency:    positiveOr(v.GetInt("HARVEST_SCAN_CONCURRENCY"), 4),
		MinDurationSeconds: v.GetFloat64("HARVEST_MIN_DURATION_SECONDS"),
		MaxOverlapSeconds:  v.GetFloat64("HARVEST_MAX_OVERLAP_SECONDS"),
		MaxOverlaps:        positiveOr(v.GetInt("HARVEST_MAX_OVERLAPS"), 5),
		DeleteAfter:        parseDuration(v.GetString("HARVEST_DELETE_AFTER"), 7*24*time.Hour),
		DeleteRetryDelay:   parseDuration(v.GetString("HARVEST_DELETE_RETRY_DELAY"), time.Hour),
		UniquenessTTL:      parseDuration(v.GetString("HARVEST_UNIQUENESS_TTL"), 30*time.Minute),
		SiteCacheTTL:       parseDuration(v.GetString("HARVEST_SITE_CACHE_TTL"), 5*time.Minute),
		SummaryCacheTTL:    parseDuration(v.GetString("HARVEST_SUMMARY_CACHE_TTL"), 5*time.Second),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "acoustic_workbench")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_STATEMENT_TIMEOUT", "30s")

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("FILTER_DEFAULT_ITEMS", 25)
	v.SetDefault("FILTER_MAX_ITEMS", 500)
	v.SetDefault("FILTER_MAX_ARRAY_ITEMS", 1000)
	v.SetDefault("FILTER_MAX_STRING_LENGTH", 120)
	v.SetDefault("FILTER_ASSOCIATION_CACHE_SIZE", 256)

	v.SetDefault("HARVEST_UPLOAD_DIR", "./uploads")
	v.SetDefault("HARVEST_ORIGINAL_AUDIO_DIR", "./original_audio")
	v.SetDefault("HARVEST_SIDECAR_FILENAME", "harvest.yml")
	v.SetDefault("HARVEST_ALLOWED_EXTENSIONS", "wav,flac,ogg,mp3,wma,webm,wv,oga,opus")
	v.SetDefault("HARVEST_FFPROBE_PATH", "")
	v.SetDefault("HARVEST_WORKER_CONCURRENCY", 2)
	v.SetDefault("HARVEST_WORKER_RETRIES", 0)
	v.SetDefault("HARVEST_SCAN_CONCURRENCY", 4)
	v.SetDefault("HARVEST_MIN_DURATION_SECONDS", 10)
	v.SetDefault("HARVEST_MAX_OVERLAP_SECONDS", 10)
	v.SetDefault("HARVEST_MAX_OVERLAPS", 5)
	v.SetDefault("HARVEST_DELETE_AFTER", "168h")
	v.SetDefault("HARVEST_DELETE_RETRY_DELAY", "1h")
	v.SetDefault("HARVEST_UNIQUENESS_TTL", "30m")
	v.SetDefault("HARVEST_SITE_CACHE_TTL", "5m")
	v.SetDefault("HARVEST_SUMMARY_CACHE_TTL", "5s")
}

func isMissingFile(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such file or directory")
}

func positiveOr(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
