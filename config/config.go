// Package config resolves process settings from defaults, an optional TOML
// file and environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Storage backends.
const (
	BackendFile  = "file"
	BackendTable = "table"
)

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

const (
	DefaultListenAddr        = ":8080"
	DefaultDataDir           = "data"
	DefaultRecordsTable      = "records"
	DefaultChangeFeedWorkers = 4
	DefaultChangeFeedBuffer  = 64
	DefaultChangeFeedTimeout = 10 * time.Second
	DefaultDeduperTTL        = 24 * time.Hour
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Debug      bool   `toml:"debug"`
	LogFormat  string `toml:"log_format"`
	ListenAddr string `toml:"listen_addr"`

	DataDir                 string `toml:"data_dir"`
	StorageBackend          string `toml:"storage_backend"`
	StorageConnectionString string `toml:"storage_connection_string"`
	RecordsTable            string `toml:"records_table"`

	ChangeQueue       string        `toml:"change_queue"`
	ChangeFeedWorkers int           `toml:"change_feed_workers"`
	ChangeFeedBuffer  int           `toml:"change_feed_buffer"`
	ChangeFeedTimeout time.Duration `toml:"change_feed_timeout"`

	RedisConnectionString string        `toml:"redis_connection_string"`
	DeduperTTL            time.Duration `toml:"deduper_ttl"`

	CORSAllowOrigins []string `toml:"cors_allow_origins"`
}

// Default returns the settings used when nothing else is configured: CSV
// files under ./data, no change feed, no deduper.
func Default() *Config {
	return &Config{
		LogFormat:         LogFormatText,
		ListenAddr:        DefaultListenAddr,
		DataDir:           DefaultDataDir,
		StorageBackend:    BackendFile,
		RecordsTable:      DefaultRecordsTable,
		ChangeFeedWorkers: DefaultChangeFeedWorkers,
		ChangeFeedBuffer:  DefaultChangeFeedBuffer,
		ChangeFeedTimeout: DefaultChangeFeedTimeout,
		DeduperTTL:        DefaultDeduperTTL,
		CORSAllowOrigins:  []string{"*"},
	}
}

// Load builds the configuration. path names a TOML file; when empty the
// CONFIG_FILE environment variable is consulted, and when that is empty too
// no file is read. Environment variables override file values.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}
	if err := loadEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(cfg *Config, path string) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("%w: unknown keys %s", ErrInvalid, strings.Join(keys, ", "))
	}
	return nil
}

func loadEnv(cfg *Config) error {
	if v := os.Getenv("DEBUG"); v != "" {
		dbg, err := strconv.ParseBool(v)
		cfg.Debug = err == nil && dbg
	}
	setString(&cfg.LogFormat, "LOG_FORMAT")
	setString(&cfg.ListenAddr, "LISTEN_ADDR")
	if v := os.Getenv("FUNCTIONS_CUSTOMHANDLER_PORT"); v != "" {
		cfg.ListenAddr = ":" + v
	}
	setString(&cfg.DataDir, "DATA_DIR")
	setString(&cfg.StorageBackend, "STORAGE_BACKEND")
	setString(&cfg.StorageConnectionString, "STORAGE_CONNECTION_STRING")
	setString(&cfg.RecordsTable, "RECORDS_TABLE")
	setString(&cfg.ChangeQueue, "CHANGE_QUEUE")
	setString(&cfg.RedisConnectionString, "REDIS_CONNECTION_STRING")

	if err := setInt(&cfg.ChangeFeedWorkers, "CHANGE_FEED_WORKERS"); err != nil {
		return err
	}
	if err := setInt(&cfg.ChangeFeedBuffer, "CHANGE_FEED_BUFFER"); err != nil {
		return err
	}
	if err := setDuration(&cfg.ChangeFeedTimeout, "CHANGE_FEED_TIMEOUT"); err != nil {
		return err
	}
	if err := setDuration(&cfg.DeduperTTL, "DEDUPER_TTL"); err != nil {
		return err
	}

	if v := os.Getenv("CORS_ALLOW_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.CORSAllowOrigins = origins
	}
	return nil
}

func setString(dst *string, name string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func setInt(dst *int, name string) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalid, name, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, name string) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalid, name, err)
	}
	*dst = d
	return nil
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	switch c.LogFormat {
	case LogFormatText, LogFormatJSON:
	default:
		return fmt.Errorf("%w: log format %q", ErrInvalid, c.LogFormat)
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("%w: listen address is empty", ErrInvalid)
	}
	switch c.StorageBackend {
	case BackendFile:
		if c.DataDir == "" {
			return fmt.Errorf("%w: data directory is empty", ErrInvalid)
		}
	case BackendTable:
		if c.StorageConnectionString == "" || c.RecordsTable == "" {
			return fmt.Errorf("%w: table backend needs STORAGE_CONNECTION_STRING and RECORDS_TABLE", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: storage backend %q", ErrInvalid, c.StorageBackend)
	}
	if c.ChangeQueue != "" {
		if c.StorageConnectionString == "" {
			return fmt.Errorf("%w: change queue needs STORAGE_CONNECTION_STRING", ErrInvalid)
		}
		if c.ChangeFeedWorkers <= 0 {
			return fmt.Errorf("%w: change feed workers must be greater than zero", ErrInvalid)
		}
		if c.ChangeFeedBuffer < 0 {
			return fmt.Errorf("%w: change feed buffer must not be negative", ErrInvalid)
		}
		if c.ChangeFeedTimeout <= 0 {
			return fmt.Errorf("%w: change feed timeout must be greater than zero", ErrInvalid)
		}
	}
	if c.RedisConnectionString != "" && c.DeduperTTL <= 0 {
		return fmt.Errorf("%w: deduper ttl must be greater than zero", ErrInvalid)
	}
	return nil
}
