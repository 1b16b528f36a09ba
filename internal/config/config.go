package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"tasksync/internal/utils"
)

var configOnce sync.Once

var globalConfig *Config

var customConfigPath string // Custom config path set via --config flag

const (
	CONFIG_DIR_PATH  = "tasksync"
	CONFIG_FILE_PATH = "config.yaml"
	CONFIG_DIR_PERM  = 0755
	CONFIG_FILE_PERM = 0644

	// EnvPrefix prefixes every environment override, e.g. TASKSYNC_REMOTE_URL
	EnvPrefix = "TASKSYNC"
)

// Config represents the application configuration
type Config struct {
	UserID   string         `mapstructure:"user_id" yaml:"user_id"`
	Remote   RemoteConfig   `mapstructure:"remote" yaml:"remote"`
	Sync     SyncConfig     `mapstructure:"sync" yaml:"sync"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
}

// RemoteConfig locates the remote authority
type RemoteConfig struct {
	URL     string        `mapstructure:"url" yaml:"url" validate:"omitempty,url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"min=0"`
	// Token is the last-resort bearer token; prefer the keyring or TASKSYNC_TOKEN
	Token string `mapstructure:"token" yaml:"token,omitempty"`
}

// SyncConfig tunes auto-sync
type SyncConfig struct {
	// Entitled is the plan gate: sync commands refuse to run when false
	Entitled   bool          `mapstructure:"entitled" yaml:"entitled"`
	Interval   time.Duration `mapstructure:"interval" yaml:"interval" validate:"min=1s"`
	Debounce   time.Duration `mapstructure:"debounce" yaml:"debounce" validate:"min=0"`
	MaxBackoff time.Duration `mapstructure:"max_backoff" yaml:"max_backoff" validate:"min=0"`
	WatchDB    bool          `mapstructure:"watch_db" yaml:"watch_db"`
}

// DatabaseConfig locates the local store
type DatabaseConfig struct {
	// Path of the SQLite file; empty uses $XDG_DATA_HOME/tasksync/tasksync.db
	Path string `mapstructure:"path" yaml:"path"`
}

// LogConfig controls diagnostics
type LogConfig struct {
	Verbose    bool   `mapstructure:"verbose" yaml:"verbose"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb" validate:"min=0"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups" validate:"min=0"`
}

// ServerConfig configures `tasksync serve`
type ServerConfig struct {
	Addr  string `mapstructure:"addr" yaml:"addr" validate:"required"`
	Token string `mapstructure:"token" yaml:"token"`
}

// Default returns the configuration used when no file exists
func Default() *Config {
	return &Config{
		Remote: RemoteConfig{
			URL:     "http://localhost:8787",
			Timeout: 30 * time.Second,
		},
		Sync: SyncConfig{
			Entitled:   true,
			Interval:   30 * time.Second,
			Debounce:   2 * time.Second,
			MaxBackoff: 10 * time.Minute,
			WatchDB:    true,
		},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Server: ServerConfig{
			Addr: ":8787",
		},
	}
}

func (c Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Sync.MaxBackoff > 0 && c.Sync.MaxBackoff < c.Sync.Interval {
		return utils.ErrInvalidConfig("sync.max_backoff",
			fmt.Sprintf("%s is shorter than sync.interval (%s)", c.Sync.MaxBackoff, c.Sync.Interval))
	}
	return nil
}

// CanSync reports whether sync may run and why not.
// Entitlement and identity are decided here, before the engine is involved.
func (c *Config) CanSync() error {
	if !c.Sync.Entitled {
		return utils.ErrSyncNotEntitled()
	}
	if strings.TrimSpace(c.UserID) == "" {
		return utils.ErrMissingUserID()
	}
	if c.Remote.URL == "" {
		return utils.ErrMissingRemoteURL()
	}
	return nil
}

// SetCustomConfigPath sets a custom config path to use instead of the default user config directory.
// If path is a directory, it looks for "config.yaml" inside it.
// This must be called before GetConfig() is called for the first time.
func SetCustomConfigPath(path string) {
	if path == "" || path == "." {
		customConfigPath = filepath.Join(".", CONFIG_DIR_PATH, CONFIG_FILE_PATH)
		return
	}
	info, err := os.Stat(path)
	if err == nil && info.IsDir() {
		customConfigPath = filepath.Join(path, CONFIG_FILE_PATH)
	} else {
		customConfigPath = path
	}
}

// GetConfig loads the configuration once per process
func GetConfig() *Config {
	configOnce.Do(func() {
		configPath, err := GetConfigPath()
		if err != nil {
			log.Fatalf("Config path couldn't be retrieved: %v", err)
		}
		config, err := Load(configPath)
		if err != nil {
			log.Fatal(err)
		}
		globalConfig = config
	})
	return globalConfig
}

// GetConfigPath returns the config file location
func GetConfigPath() (string, error) {
	if customConfigPath != "" {
		return customConfigPath, nil
	}

	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config dir: %w", err)
	}
	return filepath.Join(dir, CONFIG_DIR_PATH, CONFIG_FILE_PATH), nil
}

// Load reads the YAML file at configPath (a missing file means defaults),
// applies TASKSYNC_* environment overrides and validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
		}
		utils.Debugf("No config file at %s, using defaults", configPath)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", configPath, err)
	}

	var err error
	if cfg.Database.Path, err = utils.ExpandPath(cfg.Database.Path); err != nil {
		return nil, fmt.Errorf("invalid database.path: %w", err)
	}
	if cfg.Log.File, err = utils.ExpandPath(cfg.Log.File); err != nil {
		return nil, fmt.Errorf("invalid log.file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override keys absent from the file
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("user_id", d.UserID)
	v.SetDefault("remote.url", d.Remote.URL)
	v.SetDefault("remote.timeout", d.Remote.Timeout)
	v.SetDefault("remote.token", d.Remote.Token)
	v.SetDefault("sync.entitled", d.Sync.Entitled)
	v.SetDefault("sync.interval", d.Sync.Interval)
	v.SetDefault("sync.debounce", d.Sync.Debounce)
	v.SetDefault("sync.max_backoff", d.Sync.MaxBackoff)
	v.SetDefault("sync.watch_db", d.Sync.WatchDB)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("log.verbose", d.Log.Verbose)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.token", d.Server.Token)
}

// SampleYAML renders the default configuration as YAML
func SampleYAML(userID string) ([]byte, error) {
	sample := Default()
	sample.UserID = userID
	return yaml.Marshal(sample)
}

// WriteSample writes the sample configuration to configPath. It refuses to overwrite unless force is set.
func WriteSample(configPath, userID string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("config file %s already exists", configPath)
	}

	data, err := SampleYAML(userID)
	if err != nil {
		return fmt.Errorf("failed to render sample config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(configPath), CONFIG_DIR_PERM); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(configPath, data, CONFIG_FILE_PERM)
}
