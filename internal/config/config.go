package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is looked up when no path is given.
const DefaultConfigFile = "config.json"

// Config represents runtime configuration for the tutor.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config" yaml:"basic_config"`
	Providers   map[string]ProviderConfig `json:"providers" yaml:"providers"`
	Databases   map[string]DatabaseConfig `json:"databases" yaml:"databases"`
	Redis       RedisConfig               `json:"redis" yaml:"redis"`
	Storage     StorageConfig             `json:"storage" yaml:"storage"`
	Logging     LoggingConfig             `json:"logging" yaml:"logging"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url" yaml:"base_url"`
	Model   string `json:"model" yaml:"model"`
	APIKey  string `json:"api_key" yaml:"api_key"`
}

type BasicConfig struct {
	ServerAddress     string `json:"server_address" yaml:"server_address"`
	Provider          string `json:"provider" yaml:"provider"`
	MinWorkers        int    `json:"min_workers" yaml:"min_workers"`
	MaxWorkers        int    `json:"max_workers" yaml:"max_workers"`
	QueueSize         int    `json:"queue_size" yaml:"queue_size"`
	WorkerIdleTimeout int    `json:"worker_idle_timeout" yaml:"worker_idle_timeout"` // minutes
	StreamTimeout     int    `json:"stream_timeout" yaml:"stream_timeout"`           // seconds
	SaveInterval      int    `json:"save_interval" yaml:"save_interval"`             // milliseconds
}

type DatabaseConfig struct {
	DSN      string `json:"dsn" yaml:"dsn"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	DBName   string `json:"db_name" yaml:"db_name"`
	Params   string `json:"params" yaml:"params"`
}

type RedisConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

// StorageConfig selects the key-value backend holding the session collection.
type StorageConfig struct {
	Backend string `json:"backend" yaml:"backend"` // sqlite3, mysql or redis
	Key     string `json:"key" yaml:"key"`
}

type LoggingConfig struct {
	Level string `json:"level" yaml:"level"`
}

// overrides are read from the environment after the file is decoded.
type overrides struct {
	ServerAddress string `env:"DSA_TUTOR_ADDR"`
	Provider      string `env:"DSA_TUTOR_PROVIDER"`
	Model         string `env:"DSA_TUTOR_MODEL"`
	Storage       string `env:"DSA_TUTOR_STORAGE"`
	LogLevel      string `env:"DSA_TUTOR_LOG_LEVEL"`
	APIKey        string `env:"API_KEY"`
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	return &Config{
		BasicConfig: BasicConfig{
			ServerAddress:     ":8090",
			Provider:          "gemini",
			MinWorkers:        1,
			MaxWorkers:        4,
			QueueSize:         32,
			WorkerIdleTimeout: 5,
			StreamTimeout:     120,
			SaveInterval:      250,
		},
		Providers: map[string]ProviderConfig{
			"gemini": {Model: "gemini-2.5-flash"},
		},
		Databases: map[string]DatabaseConfig{
			"sqlite3": {DSN: "./data/dsa-tutor.db"},
		},
		Storage: StorageConfig{Backend: "sqlite3", Key: "dsa-instructor-chats"},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads configuration from the provided path. JSON and YAML files are
// supported. An empty path looks for config.json and falls back to defaults
// when it does not exist. Environment overrides (and a .env file next to the
// working directory) are applied last.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	explicit := path != ""
	if path == "" {
		path = DefaultConfigFile
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	cfg := Default()
	data, err := os.ReadFile(absPath)
	switch {
	case err == nil:
		if err := decode(absPath, data, cfg); err != nil {
			return nil, err
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		absPath = ""
	default:
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}

	if err := applyOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.normalize(absPath); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
	}
	return nil
}

func applyOverrides(cfg *Config) error {
	var ov overrides
	if err := env.Parse(&ov); err != nil {
		return fmt.Errorf("parse env overrides: %w", err)
	}
	if ov.ServerAddress != "" {
		cfg.BasicConfig.ServerAddress = ov.ServerAddress
	}
	if ov.Provider != "" {
		cfg.BasicConfig.Provider = ov.Provider
	}
	if ov.Storage != "" {
		cfg.Storage.Backend = ov.Storage
	}
	if ov.LogLevel != "" {
		cfg.Logging.Level = ov.LogLevel
	}
	if ov.Model != "" || ov.APIKey != "" {
		if cfg.Providers == nil {
			cfg.Providers = make(map[string]ProviderConfig)
		}
		prov := cfg.Providers[cfg.BasicConfig.Provider]
		if ov.Model != "" {
			prov.Model = ov.Model
		}
		if ov.APIKey != "" {
			prov.APIKey = ov.APIKey
		}
		cfg.Providers[cfg.BasicConfig.Provider] = prov
	}
	return nil
}

func (c *Config) normalize(configPath string) error {
	if c.BasicConfig.Provider == "" {
		return errors.New("basic_config.provider must be configured")
	}
	c.Storage.Backend = CanonicalBackend(c.Storage.Backend)
	if c.Storage.Backend == "" {
		c.Storage.Backend = "sqlite3"
	}
	if c.Storage.Key == "" {
		c.Storage.Key = "dsa-instructor-chats"
	}
	if c.BasicConfig.MinWorkers <= 0 {
		c.BasicConfig.MinWorkers = 1
	}
	if c.BasicConfig.MaxWorkers < c.BasicConfig.MinWorkers {
		c.BasicConfig.MaxWorkers = c.BasicConfig.MinWorkers
	}
	if c.BasicConfig.QueueSize <= 0 {
		c.BasicConfig.QueueSize = 32
	}

	// relative sqlite files live next to the config file
	if configPath != "" {
		for _, name := range []string{"sqlite", "sqlite3"} {
			db, ok := c.Databases[name]
			if !ok || db.DSN == "" || filepath.IsAbs(db.DSN) || strings.HasPrefix(db.DSN, "file:") {
				continue
			}
			db.DSN = filepath.Join(filepath.Dir(configPath), db.DSN)
			c.Databases[name] = db
		}
	}
	return nil
}

// CanonicalBackend lower-cases a storage backend name and maps the sqlite
// alias to sqlite3, the key used under databases.
func CanonicalBackend(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "sqlite" {
		return "sqlite3"
	}
	return name
}

// Provider returns the active provider name and its settings.
func (c *Config) Provider() (string, ProviderConfig, error) {
	name := c.BasicConfig.Provider
	prov, ok := c.Providers[name]
	if !ok {
		return "", ProviderConfig{}, fmt.Errorf("provider %s not configured", name)
	}
	return name, prov, nil
}
