package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, "https://lockup.pro", cfg.Remote.BaseURL)
	assert.Equal(t, "/api/subs", cfg.Remote.SubjectsPath)
	assert.Equal(t, "/api/logs", cfg.Remote.LogPostPath)
	assert.Equal(t, "/api/posts", cfg.Remote.PostsPath)
	assert.Equal(t, "/storage", cfg.Remote.StoragePath)
	assert.Equal(t, 5*time.Second, cfg.Remote.Timeout)
	assert.Equal(t, time.Second, cfg.Sync.Interval)
	assert.Equal(t, CacheDriverSQLite, cfg.Cache.Driver)
	assert.Equal(t, "./lab-sync.db", cfg.Cache.SQLitePath)
	assert.Nil(t, cfg.CORS.AllowedOrigins)
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("REMOTE_BASE_URL", "http://lab.local/")
	v.Set("SYNC_INTERVAL", "250ms")
	v.Set("REMOTE_TIMEOUT", "-3s")
	v.Set("CACHE_DRIVER", " REDIS ")
	v.Set("ALLOWED_ORIGINS", "http://a.test, ,http://b.test")
	v.Set("SYNC_STUDENT_ID", "42")

	cfg := fromViper(v)
	assert.Equal(t, "http://lab.local", cfg.Remote.BaseURL)
	assert.Equal(t, 250*time.Millisecond, cfg.Sync.Interval)
	assert.Equal(t, 5*time.Second, cfg.Remote.Timeout)
	assert.Equal(t, CacheDriverRedis, cfg.Cache.Driver)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, "42", cfg.Sync.StudentID)
}

func TestUnknownCacheDriverFallsBackToSQLite(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("CACHE_DRIVER", "memcached")
	assert.Equal(t, CacheDriverSQLite, fromViper(v).Cache.Driver)
}

func TestSyncLocation(t *testing.T) {
	assert.Equal(t, time.Local, SyncConfig{}.Location())
	assert.Equal(t, time.Local, SyncConfig{Timezone: "Not/AZone"}.Location())
	assert.Equal(t, "UTC", SyncConfig{Timezone: "UTC"}.Location().String())
}
