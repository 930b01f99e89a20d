package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/beaubromley/vimeo-sermon-search/model"
	"github.com/beaubromley/vimeo-sermon-search/storage"
	"github.com/spf13/viper"
)

const EnvPrefix = "SERMONSEARCH"

type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Storage StorageConfig `mapstructure:"storage"`
	Ingest  IngestConfig  `mapstructure:"ingest"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Search  SearchConfig  `mapstructure:"search"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func (c LogConfig) Validate() error {
	switch strings.ToLower(c.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Level)
	}
	switch c.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Format)
	}
	return nil
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type StorageConfig struct {
	Driver     string         `mapstructure:"driver"`
	SQLitePath string         `mapstructure:"sqlite_path"`
	Postgres   PostgresConfig `mapstructure:"postgres"`
	PlayerHost string         `mapstructure:"player_host"`
}

type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (c PostgresConfig) Info() storage.PostgresInfo {
	return storage.PostgresInfo{
		URL:      c.URL,
		Host:     c.Host,
		Port:     c.Port,
		User:     c.User,
		Password: c.Password,
		Database: c.Database,
		SSLMode:  c.SSLMode,
	}
}

func (c StorageConfig) Validate() error {
	switch c.Driver {
	case DriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return errors.New("storage.sqlite_path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Postgres.URL == "" && c.Postgres.Host == "" {
			return errors.New("storage.postgres.url or storage.postgres.host is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("storage.driver must be sqlite, postgres or memory, got %q", c.Driver)
	}
	if strings.TrimSpace(c.PlayerHost) == "" {
		return errors.New("storage.player_host is required")
	}
	return nil
}

type IngestConfig struct {
	Catalog     string        `mapstructure:"catalog"`
	CaptionsDir string        `mapstructure:"captions_dir"`
	Language    string        `mapstructure:"language"`
	Workers     int           `mapstructure:"workers"`
	Force       bool          `mapstructure:"force"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

func (c IngestConfig) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("ingest.workers must be at least 1, got %d", c.Workers)
	}
	if c.ReadTimeout < 0 {
		return errors.New("ingest.read_timeout cannot be negative")
	}
	return nil
}

type HTTPConfig struct {
	Port int `mapstructure:"port"`
}

func (c HTTPConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.Port)
	}
	return nil
}

type SearchConfig struct {
	IncludeTitles bool `mapstructure:"include_titles"`
	MaxResults    int  `mapstructure:"max_results"`
}

func (c SearchConfig) Validate() error {
	if c.MaxResults < 0 {
		return errors.New("search.max_results cannot be negative")
	}
	return nil
}

func (c Config) Validate() error {
	for _, v := range []interface{ Validate() error }{c.Log, c.Storage, c.Ingest, c.HTTP, c.Search} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("storage.driver", DriverSQLite)
	v.SetDefault("storage.sqlite_path", "data/transcripts.db")
	v.SetDefault("storage.player_host", model.DefaultPlayerHost)
	v.SetDefault("storage.postgres.url", "")
	v.SetDefault("storage.postgres.host", "localhost")
	v.SetDefault("storage.postgres.port", "5432")
	v.SetDefault("storage.postgres.user", "sermonsearch")
	v.SetDefault("storage.postgres.password", "sermonsearch")
	v.SetDefault("storage.postgres.database", "sermonsearch")
	v.SetDefault("storage.postgres.sslmode", "disable")
	v.SetDefault("ingest.catalog", "data/transcripts/video_data.json")
	v.SetDefault("ingest.captions_dir", "data/transcripts")
	v.SetDefault("ingest.language", "en-x-autogen")
	v.SetDefault("ingest.workers", 1)
	v.SetDefault("ingest.force", false)
	v.SetDefault("ingest.read_timeout", 30*time.Second)
	v.SetDefault("http.port", 8080)
	v.SetDefault("search.include_titles", true)
	v.SetDefault("search.max_results", 100)
}

// Load reads defaults, then the optional config file at path, then the
// SERMONSEARCH_ environment, in increasing order of precedence.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
