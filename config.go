package docstat

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the docstat engine and its binaries.
type Config struct {
	// DBPath is the full path to the SQLite history database.
	// If empty, defaults to ~/.docstat/<DBName>.db
	DBPath string `json:"db_path" yaml:"db_path"`

	// DBName is the name for the database (used when DBPath is empty).
	DBName string `json:"db_name" yaml:"db_name"`

	// StorageDir controls where the database is created when DBPath
	// is not explicitly set. Options: "home" (default) uses ~/.docstat/,
	// "local" uses the current working directory.
	StorageDir string `json:"storage_dir" yaml:"storage_dir"`

	// History records every successful analysis in the database.
	History bool `json:"history" yaml:"history"`

	// MaxFileSize rejects larger documents before extraction. Zero disables the limit.
	MaxFileSize int64 `json:"max_file_size" yaml:"max_file_size"`

	// PageConcurrency bounds how many PDF pages are read in parallel.
	PageConcurrency int `json:"page_concurrency" yaml:"page_concurrency"`

	Cache  CacheConfig  `json:"cache" yaml:"cache"`
	Server ServerConfig `json:"server" yaml:"server"`
}

// CacheConfig configures the Redis statistics cache. An empty Addr disables it.
type CacheConfig struct {
	Addr     string        `json:"addr" yaml:"addr"`
	Password string        `json:"password" yaml:"password"`
	DB       int           `json:"db" yaml:"db"`
	Prefix   string        `json:"prefix" yaml:"prefix"`
	TTL      time.Duration `json:"ttl" yaml:"ttl"`
}

// ServerConfig configures cmd/server.
type ServerConfig struct {
	Addr        string `json:"addr" yaml:"addr"`
	APIKey      string `json:"api_key" yaml:"api_key"`
	CORSOrigins string `json:"cors_origins" yaml:"cors_origins"` // comma-separated, "*" for any
}

// DefaultConfig returns a Config with sensible defaults.
// History is stored in ~/.docstat/docstat.db when enabled.
func DefaultConfig() Config {
	return Config{
		DBName:          "docstat",
		StorageDir:      "home",
		History:         true,
		MaxFileSize:     100 << 20,
		PageConcurrency: 4,
		Cache: CacheConfig{
			Prefix: "docstat:",
			TTL:    24 * time.Hour,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}

// LoadConfig reads a YAML or JSON file (chosen by extension) over
// DefaultConfig. Fields absent from the file keep their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	case ".json":
		err = json.Unmarshal(data, &cfg)
	default:
		return cfg, fmt.Errorf("%w: unknown config extension %q", ErrInvalidConfig, filepath.Ext(path))
	}
	if err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from DOCSTAT_* environment variables.
// Malformed numeric values are reported and leave the field unchanged.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("DOCSTAT_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("DOCSTAT_STORAGE_DIR"); v != "" {
		c.StorageDir = v
	}
	if v := os.Getenv("DOCSTAT_HISTORY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: DOCSTAT_HISTORY: %v", ErrInvalidConfig, err)
		}
		c.History = b
	}
	if v := os.Getenv("DOCSTAT_MAX_FILE_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: DOCSTAT_MAX_FILE_SIZE: %v", ErrInvalidConfig, err)
		}
		c.MaxFileSize = n
	}
	if v := os.Getenv("DOCSTAT_PAGE_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: DOCSTAT_PAGE_CONCURRENCY: %v", ErrInvalidConfig, err)
		}
		c.PageConcurrency = n
	}
	if v := os.Getenv("DOCSTAT_REDIS_ADDR"); v != "" {
		c.Cache.Addr = v
	}
	if v := os.Getenv("DOCSTAT_REDIS_PASSWORD"); v != "" {
		c.Cache.Password = v
	}
	if v := os.Getenv("DOCSTAT_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: DOCSTAT_CACHE_TTL: %v", ErrInvalidConfig, err)
		}
		c.Cache.TTL = d
	}
	if v := os.Getenv("DOCSTAT_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("DOCSTAT_API_KEY"); v != "" {
		c.Server.APIKey = v
	}
	if v := os.Getenv("DOCSTAT_CORS_ORIGINS"); v != "" {
		c.Server.CORSOrigins = v
	}
	return nil
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	switch {
	case c.MaxFileSize < 0:
		return fmt.Errorf("%w: max_file_size must not be negative", ErrInvalidConfig)
	case c.PageConcurrency < 0:
		return fmt.Errorf("%w: page_concurrency must not be negative", ErrInvalidConfig)
	case c.Cache.TTL < 0:
		return fmt.Errorf("%w: cache.ttl must not be negative", ErrInvalidConfig)
	case c.Cache.DB < 0:
		return fmt.Errorf("%w: cache.db must not be negative", ErrInvalidConfig)
	}
	switch c.StorageDir {
	case "", "home", "local", "cwd":
	default:
		return fmt.Errorf("%w: storage_dir %q", ErrInvalidConfig, c.StorageDir)
	}
	return nil
}

// resolveDBPath computes the final database path from config fields.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}

	name := c.DBName
	if name == "" {
		name = "docstat"
	}

	switch c.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default: // "home" or empty
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db" // fallback to cwd
		}
		return filepath.Join(home, ".docstat", name+".db")
	}
}
