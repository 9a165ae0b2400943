package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Supported cache drivers.
const (
	CacheDriverSQLite = "sqlite"
	CacheDriverRedis  = "redis"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Remote RemoteConfig
	Sync   SyncConfig
	Cache  CacheConfig
	Redis  RedisConfig
	CORS   CORSConfig
	Log    LogConfig
}

// RemoteConfig points the collection client at the lab API.
type RemoteConfig struct {
	BaseURL            string
	Timeout            time.Duration
	SubjectsPath       string
	InstructorsPath    string
	LinksPath          string
	EnrollmentsPath    string
	EnrollmentPostPath string
	LinkPostPath       string
	LogPostPath        string
	PostsPath          string
	StoragePath        string
}

// SyncConfig drives the polling engine.
type SyncConfig struct {
	Interval  time.Duration
	Timezone  string
	StudentID string
	UserID    string
}

// CacheConfig selects where the current occupant is persisted.
type CacheConfig struct {
	Driver     string
	SQLitePath string
}

type RedisConfig struct {
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

// Location resolves the configured timezone, falling back to the host zone.
func (c SyncConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
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

	cfg.Remote = RemoteConfig{
		BaseURL:            strings.TrimRight(v.GetString("REMOTE_BASE_URL"), "/"),
		Timeout:            parseDuration(v.GetString("REMOTE_TIMEOUT"), 5*time.Second),
		SubjectsPath:       v.GetString("REMOTE_SUBJECTS_PATH"),
		InstructorsPath:    v.GetString("REMOTE_INSTRUCTORS_PATH"),
		LinksPath:          v.GetString("REMOTE_LINKS_PATH"),
		EnrollmentsPath:    v.GetString("REMOTE_ENROLLMENTS_PATH"),
		EnrollmentPostPath: v.GetString("REMOTE_ENROLLMENT_POST_PATH"),
		LinkPostPath:       v.GetString("REMOTE_LINK_POST_PATH"),
		LogPostPath:        v.GetString("REMOTE_LOG_POST_PATH"),
		PostsPath:          v.GetString("REMOTE_POSTS_PATH"),
		StoragePath:        strings.TrimRight(v.GetString("REMOTE_STORAGE_PATH"), "/"),
	}

	cfg.Sync = SyncConfig{
		Interval:  parseDuration(v.GetString("SYNC_INTERVAL"), time.Second),
		Timezone:  v.GetString("SYNC_TIMEZONE"),
		StudentID: v.GetString("SYNC_STUDENT_ID"),
		UserID:    v.GetString("SYNC_USER_ID"),
	}

	driver := strings.ToLower(strings.TrimSpace(v.GetString("CACHE_DRIVER")))
	if driver != CacheDriverRedis {
		driver = CacheDriverSQLite
	}
	cfg.Cache = CacheConfig{
		Driver:     driver,
		SQLitePath: v.GetString("CACHE_SQLITE_PATH"),
	}

	cfg.Redis = RedisConfig{
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

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("REMOTE_BASE_URL", "https://lockup.pro")
	v.SetDefault("REMOTE_TIMEOUT", "5s")
	v.SetDefault("REMOTE_SUBJECTS_PATH", "/api/subs")
	v.SetDefault("REMOTE_INSTRUCTORS_PATH", "/api/instructors")
	v.SetDefault("REMOTE_LINKS_PATH", "/api/linkedSubjects")
	v.SetDefault("REMOTE_ENROLLMENTS_PATH", "/api/student-subjects")
	v.SetDefault("REMOTE_ENROLLMENT_POST_PATH", "/api/student-subjects")
	v.SetDefault("REMOTE_LINK_POST_PATH", "/api/linkedSubjects")
	v.SetDefault("REMOTE_LOG_POST_PATH", "/api/logs")
	v.SetDefault("REMOTE_POSTS_PATH", "/api/posts")
	v.SetDefault("REMOTE_STORAGE_PATH", "/storage")

	v.SetDefault("SYNC_INTERVAL", "1s")
	v.SetDefault("SYNC_TIMEZONE", "")
	v.SetDefault("SYNC_STUDENT_ID", "")
	v.SetDefault("SYNC_USER_ID", "")

	v.SetDefault("CACHE_DRIVER", CacheDriverSQLite)
	v.SetDefault("CACHE_SQLITE_PATH", "./lab-sync.db")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

// viper reports a missing explicit config file as a path error rather than ConfigFileNotFoundError.
func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
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
