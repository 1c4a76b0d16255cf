package hotdice

import (
	"path/filepath"
	"time"

	"github.com/louisbranch/hotdice/internal/platform/config"
)

// Config is the process configuration, loaded from the environment.
// Flags override individual fields per command.
type Config struct {
	CacheDir        string `env:"HOTDICE_CACHE_DIR" envDefault:"cache"`
	CacheAsync      bool   `env:"HOTDICE_CACHE_ASYNC" envDefault:"true"`
	CacheMaxPending int    `env:"HOTDICE_CACHE_MAX_PENDING" envDefault:"10000"`
	CacheFlushMS    int    `env:"HOTDICE_CACHE_FLUSH_INTERVAL_MS" envDefault:"1000"`

	// Workers is the evaluation worker count; 0 means one per CPU.
	Workers int `env:"HOTDICE_WORKERS" envDefault:"0"`
}

// LoadConfig parses the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// CachePath is the cache database location under the cache directory.
func (c Config) CachePath() string {
	return filepath.Join(c.CacheDir, "cache.db")
}

// FlushInterval converts the configured writer interval.
func (c Config) FlushInterval() time.Duration {
	return time.Duration(c.CacheFlushMS) * time.Millisecond
}
