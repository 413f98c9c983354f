package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Cache    CacheConfig
	Log      LogConfig
	Worker   WorkerConfig
	Sync     SyncConfig
	Fetch    FetchConfig
	Publish  PublishConfig
	Geocoder GeocoderConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	Env            string
	AllowedOrigins string
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxConns        int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// RedisConfig - кеш и потоки событий. URL (redis://...) имеет приоритет
// над Host/Port/Password/DB.
type RedisConfig struct {
	URL          string
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PingTimeout  time.Duration
}

type CacheConfig struct {
	DatasetCacheTTL time.Duration
	ListCacheTTL    time.Duration
}

type LogConfig struct {
	Level string
}

type WorkerConfig struct {
	Enabled           bool
	ConsumerGroup     string
	StreamReadTimeout time.Duration
}

// SyncConfig - периодическая синхронизация URL-датасетов
type SyncConfig struct {
	Interval    time.Duration
	Concurrency int
	OnStart     bool
}

// FetchConfig - загрузка исходных данных (URL или файл)
type FetchConfig struct {
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	MaxBytes   int64
	FilesDir   string
	UserAgent  string
}

// GeocoderConfig - поиск координат по адресу (Nominatim)
type GeocoderConfig struct {
	Enabled      bool
	BaseURL      string
	UserAgent    string
	Email        string
	CountryCodes string
	Timeout      time.Duration
}

type PublishConfig struct {
	BaseURL     string
	IconBaseURL string
}

// Load читает .env из текущей директории и переменные окружения
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile читает конфигурацию из указанного env-файла. Отсутствующий файл
// не является ошибкой: значения берутся из окружения и значений по умолчанию.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	v.AutomaticEnv()

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           v.GetString("API_HOST"),
			Port:           v.GetInt("API_PORT"),
			Env:            v.GetString("API_ENV"),
			AllowedOrigins: v.GetString("API_ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("DB_HOST"),
			Port:            v.GetInt("DB_PORT"),
			User:            v.GetString("DB_USER"),
			Password:        v.GetString("DB_PASSWORD"),
			DBName:          v.GetString("DB_NAME"),
			SSLMode:         v.GetString("DB_SSLMODE"),
			MaxConns:        v.GetInt("DB_MAX_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: time.Duration(v.GetInt("DB_CONN_MAX_LIFETIME")) * time.Second,
			ConnMaxIdleTime: time.Duration(v.GetInt("DB_CONN_MAX_IDLE_TIME")) * time.Second,
		},
		Redis: RedisConfig{
			URL:          v.GetString("REDIS_URL"),
			Host:         v.GetString("REDIS_HOST"),
			Port:         v.GetInt("REDIS_PORT"),
			Password:     v.GetString("REDIS_PASSWORD"),
			DB:           v.GetInt("REDIS_DB"),
			PoolSize:     v.GetInt("REDIS_POOL_SIZE"),
			DialTimeout:  time.Duration(v.GetInt("REDIS_DIAL_TIMEOUT")) * time.Millisecond,
			ReadTimeout:  time.Duration(v.GetInt("REDIS_READ_TIMEOUT")) * time.Millisecond,
			WriteTimeout: time.Duration(v.GetInt("REDIS_WRITE_TIMEOUT")) * time.Millisecond,
			PingTimeout:  time.Duration(v.GetInt("REDIS_PING_TIMEOUT")) * time.Second,
		},
		Cache: CacheConfig{
			DatasetCacheTTL: time.Duration(v.GetInt("DATASET_CACHE_TTL")) * time.Second,
			ListCacheTTL:    time.Duration(v.GetInt("LIST_CACHE_TTL")) * time.Second,
		},
		Log: LogConfig{
			Level: v.GetString("LOG_LEVEL"),
		},
		Worker: WorkerConfig{
			Enabled:           v.GetBool("WORKER_ENABLED"),
			ConsumerGroup:     v.GetString("WORKER_CONSUMER_GROUP"),
			StreamReadTimeout: time.Duration(v.GetInt("WORKER_STREAM_READ_TIMEOUT")) * time.Millisecond,
		},
		Sync: SyncConfig{
			Interval:    time.Duration(v.GetInt("SYNC_INTERVAL")) * time.Second,
			Concurrency: v.GetInt("SYNC_CONCURRENCY"),
			OnStart:     v.GetBool("SYNC_ON_START"),
		},
		Fetch: FetchConfig{
			Timeout:    time.Duration(v.GetInt("FETCH_TIMEOUT")) * time.Second,
			MaxRetries: v.GetInt("FETCH_MAX_RETRIES"),
			RetryDelay: time.Duration(v.GetInt("FETCH_RETRY_DELAY")) * time.Millisecond,
			MaxBytes:   v.GetInt64("FETCH_MAX_BYTES"),
			FilesDir:   v.GetString("FILES_DIR"),
			UserAgent:  v.GetString("FETCH_USER_AGENT"),
		},
		Publish: PublishConfig{
			BaseURL:     strings.TrimRight(v.GetString("PUBLIC_BASE_URL"), "/"),
			IconBaseURL: strings.TrimRight(v.GetString("ICON_BASE_URL"), "/"),
		},
		Geocoder: GeocoderConfig{
			Enabled:      !v.IsSet("GEOCODER_ENABLED") || v.GetBool("GEOCODER_ENABLED"),
			BaseURL:      strings.TrimRight(v.GetString("GEOCODER_BASE_URL"), "/"),
			UserAgent:    v.GetString("GEOCODER_USER_AGENT"),
			Email:        v.GetString("GEOCODER_EMAIL"),
			CountryCodes: v.GetString("GEOCODER_COUNTRY_CODES"),
			Timeout:      time.Duration(v.GetInt("GEOCODER_TIMEOUT")) * time.Second,
		},
	}

	cfg.applyDefaults()

	return cfg, nil
}

// Значения по умолчанию для незаданных параметров
func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.AllowedOrigins == "" {
		c.Server.AllowedOrigins = "*"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Cache.DatasetCacheTTL == 0 {
		c.Cache.DatasetCacheTTL = 10 * time.Minute
	}
	if c.Cache.ListCacheTTL == 0 {
		c.Cache.ListCacheTTL = time.Minute
	}
	if c.Worker.ConsumerGroup == "" {
		c.Worker.ConsumerGroup = "dataset-sync-workers"
	}
	if c.Redis.Host == "" {
		c.Redis.Host = "localhost"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.Redis.PoolSize <= 0 {
		c.Redis.PoolSize = 20
	}
	if c.Redis.DialTimeout <= 0 {
		c.Redis.DialTimeout = 5 * time.Second
	}
	if c.Redis.ReadTimeout <= 0 {
		c.Redis.ReadTimeout = 3 * time.Second
	}
	if c.Redis.WriteTimeout <= 0 {
		c.Redis.WriteTimeout = 3 * time.Second
	}
	if c.Redis.PingTimeout <= 0 {
		c.Redis.PingTimeout = 5 * time.Second
	}
	if c.Worker.StreamReadTimeout <= 0 {
		c.Worker.StreamReadTimeout = 5000 * time.Millisecond
	}
	if c.Sync.Interval <= 0 {
		c.Sync.Interval = time.Hour
	}
	if c.Sync.Concurrency <= 0 {
		c.Sync.Concurrency = 4
	}
	if c.Fetch.Timeout <= 0 {
		c.Fetch.Timeout = 30 * time.Second
	}
	if c.Fetch.RetryDelay == 0 {
		c.Fetch.RetryDelay = 500 * time.Millisecond
	}
	if c.Fetch.MaxBytes == 0 {
		c.Fetch.MaxBytes = 50 << 20
	}
	if c.Fetch.FilesDir == "" {
		c.Fetch.FilesDir = "./uploads"
	}
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = "openkaarten-service/1.0"
	}
	if c.Geocoder.BaseURL == "" {
		c.Geocoder.BaseURL = "https://nominatim.openstreetmap.org"
	}
	if c.Geocoder.UserAgent == "" {
		c.Geocoder.UserAgent = c.Fetch.UserAgent
	}
	if c.Geocoder.CountryCodes == "" {
		c.Geocoder.CountryCodes = "nl"
	}
	if c.Geocoder.Timeout <= 0 {
		c.Geocoder.Timeout = 10 * time.Second
	}
	if c.Publish.IconBaseURL == "" {
		c.Publish.IconBaseURL = "https://raw.githubusercontent.com/OpenGemeenten/Iconenset/64e1ee818d3339a54153d44d820381c804c24304/Regular"
	}
}

func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
		c.Database.SSLMode,
	)
}

func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}
