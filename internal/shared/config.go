package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

const defaultStatusTimeout = 5 * time.Second

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Database  DatabaseConfig  `toml:"database"`
	Server    ServerConfig    `toml:"server"`
	Storage   StorageConfig   `toml:"storage"`
	Cache     CacheConfig     `toml:"cache"`
	Worker    WorkerConfig    `toml:"worker"`
	RabbitMQ  RabbitMQConfig  `toml:"rabbitmq"`
	OpenNeuro OpenNeuroConfig `toml:"openneuro"`
	Log       LogConfig       `toml:"log"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig contains the directories managed datasets, uploads and icons are written to.
type StorageConfig struct {
	DataDir   string `toml:"data_dir"`
	UploadDir string `toml:"upload_dir"`
	IconDir   string `toml:"icon_dir"`
}

// CacheConfig sizes the parsed dataset view cache.
type CacheConfig struct {
	Datasets int `toml:"datasets"`
}

// WorkerConfig selects the job backend and the status query budget.
type WorkerConfig struct {
	Backend       string `toml:"backend"`
	Concurrency   int    `toml:"concurrency"`
	StatusTimeout string `toml:"status_timeout"`
}

// Timeout parses StatusTimeout, falling back to five seconds when unset or malformed.
func (w WorkerConfig) Timeout() time.Duration {
	d, err := time.ParseDuration(w.StatusTimeout)
	if err != nil || d <= 0 {
		return defaultStatusTimeout
	}
	return d
}

// RabbitMQConfig contains the broker connection used by the rabbitmq backend.
type RabbitMQConfig struct {
	URL   string `toml:"url"`
	Queue string `toml:"queue"`
}

// OpenNeuroConfig contains the S3 bucket and GraphQL API settings for remote datasets.
type OpenNeuroConfig struct {
	Bucket            string  `toml:"bucket"`
	Region            string  `toml:"region"`
	Endpoint          string  `toml:"endpoint"`
	GraphQLURL        string  `toml:"graphql_url"`
	AccessKeyID       string  `toml:"access_key_id"`
	SecretAccessKey   string  `toml:"secret_access_key"`
	APIKey            string  `toml:"api_key"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ResolveConfig loads path when it exists and falls back to defaults otherwise, then applies environment overrides.
func ResolveConfig(path string) (*Config, error) {
	config := DefaultConfig()
	if _, err := os.Stat(path); err == nil {
		loaded, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		config = loaded
	}

	if err := config.ApplyEnv(); err != nil {
		return nil, err
	}
	return config, nil
}

// ApplyEnv overrides config values with BIDSHELF_* variables (and OPENNEURO_API_KEY) when they are set.
func (c *Config) ApplyEnv() error {
	strs := map[string]*string{
		"BIDSHELF_DB_PATH":          &c.Database.Path,
		"BIDSHELF_HOST":             &c.Server.Host,
		"BIDSHELF_DATA_DIR":         &c.Storage.DataDir,
		"BIDSHELF_UPLOAD_DIR":       &c.Storage.UploadDir,
		"BIDSHELF_ICON_DIR":         &c.Storage.IconDir,
		"BIDSHELF_WORKER_BACKEND":   &c.Worker.Backend,
		"BIDSHELF_STATUS_TIMEOUT":   &c.Worker.StatusTimeout,
		"BIDSHELF_RABBITMQ_URL":     &c.RabbitMQ.URL,
		"BIDSHELF_RABBITMQ_QUEUE":   &c.RabbitMQ.Queue,
		"BIDSHELF_OPENNEURO_BUCKET": &c.OpenNeuro.Bucket,
		"BIDSHELF_S3_ENDPOINT":      &c.OpenNeuro.Endpoint,
		"BIDSHELF_S3_ACCESS_KEY":    &c.OpenNeuro.AccessKeyID,
		"BIDSHELF_S3_SECRET_KEY":    &c.OpenNeuro.SecretAccessKey,
		"BIDSHELF_LOG_LEVEL":        &c.Log.Level,
		"OPENNEURO_API_KEY":         &c.OpenNeuro.APIKey,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"BIDSHELF_PORT":               &c.Server.Port,
		"BIDSHELF_CACHE_SIZE":         &c.Cache.Datasets,
		"BIDSHELF_WORKER_CONCURRENCY": &c.Worker.Concurrency,
	}
	for key, dst := range ints {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, key, v)
		}
		*dst = n
	}

	return c.Validate()
}

// Validate checks the values the rest of the application relies on.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("%w: database.path is required", ErrInvalidConfig)
	}
	if c.Cache.Datasets <= 0 {
		return fmt.Errorf("%w: cache.datasets must be positive", ErrInvalidConfig)
	}
	switch c.Worker.Backend {
	case "local", "rabbitmq":
	default:
		return fmt.Errorf("%w: unknown worker.backend %q", ErrInvalidConfig, c.Worker.Backend)
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("%w: worker.concurrency must be positive", ErrInvalidConfig)
	}
	return nil
}
