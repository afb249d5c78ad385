package config

import (
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete application configuration
type Config struct {
	App        AppConfig        `yaml:"app"`
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	RabbitMQ   RabbitMQConfig   `yaml:"rabbitmq"`
	Logging    LoggingConfig    `yaml:"logging"`
	Worker     WorkerConfig     `yaml:"worker"`
	Training   TrainingConfig   `yaml:"training"`
	Dataset    DatasetConfig    `yaml:"dataset"`
	Artifacts  ArtifactsConfig  `yaml:"artifacts"`
	Redis      RedisConfig      `yaml:"redis"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	Schema          string        `yaml:"schema"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	RetryAttempts   int           `yaml:"retry_attempts"`
	RetryBackoff    time.Duration `yaml:"retry_backoff"`
}

// RabbitMQConfig holds RabbitMQ connection, exchange and channel configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	Channels   ChannelsConfig   `yaml:"channels"`
	Connection ConnectionConfig `yaml:"connection"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds settings shared by the per-channel queues
type QueueConfig struct {
	Durable    bool `yaml:"durable"`
	AutoDelete bool `yaml:"auto_delete"`
}

// ChannelsConfig names the routing keys events are published to.
// Each channel is consumed from a queue of the same name.
type ChannelsConfig struct {
	TrainModel string `yaml:"train_model"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int    `yaml:"prefetch_count"`
	Tag           string `yaml:"tag"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
	NoColor      bool   `yaml:"no_color"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
}

// TrainingConfig holds model training defaults
type TrainingConfig struct {
	Origin                string        `yaml:"origin"`
	DefaultEpochs         int           `yaml:"default_epochs"`
	DefaultPopulationSize int           `yaml:"default_population_size"`
	MinimalAge            time.Duration `yaml:"minimal_age"`
	TestSize              float64       `yaml:"test_size"`
	Seed                  uint64        `yaml:"seed"`
}

// DatasetConfig holds property API configuration
type DatasetConfig struct {
	PropertyAPIURL string        `yaml:"property_api_url"`
	RetryAttempts  int           `yaml:"retry_attempts"`
	RetryInterval  time.Duration `yaml:"retry_interval"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// ArtifactsConfig holds trained model storage configuration
type ArtifactsConfig struct {
	Backend      string `yaml:"backend"`
	BaseDir      string `yaml:"base_dir"`
	Bucket       string `yaml:"bucket"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// RedisConfig holds summary cache configuration. An empty Addr disables the cache.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// MetricsConfig holds Prometheus endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// ReconcilerConfig holds stuck model sweeper configuration
type ReconcilerConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Schedule  string        `yaml:"schedule"`
	Threshold time.Duration `yaml:"threshold"`
	BatchSize int           `yaml:"batch_size"`
}

// Load reads and parses the configuration file. ${VAR} references are
// expanded from the environment before parsing.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Database.RetryAttempts == 0 {
		c.Database.RetryAttempts = 10
	}
	if c.Database.RetryBackoff == 0 {
		c.Database.RetryBackoff = 2 * time.Second
	}
	if c.RabbitMQ.Exchange.Type == "" {
		c.RabbitMQ.Exchange.Type = "direct"
	}
	if c.RabbitMQ.Channels.TrainModel == "" {
		c.RabbitMQ.Channels.TrainModel = "train_model"
	}
	if c.RabbitMQ.Connection.RetryAttempts == 0 {
		c.RabbitMQ.Connection.RetryAttempts = 5
	}
	if c.RabbitMQ.Connection.RetryInterval == 0 {
		c.RabbitMQ.Connection.RetryInterval = 5 * time.Second
	}
	if c.RabbitMQ.Consumer.PrefetchCount == 0 {
		c.RabbitMQ.Consumer.PrefetchCount = 1
	}
	if c.Worker.HeartbeatInterval == 0 {
		c.Worker.HeartbeatInterval = time.Minute
	}
	if c.Worker.ShutdownTimeout == 0 {
		c.Worker.ShutdownTimeout = 30 * time.Second
	}
	if c.Worker.ReconnectInterval == 0 {
		c.Worker.ReconnectInterval = 5 * time.Second
	}
	if c.Training.Origin == "" {
		c.Training.Origin = c.App.Name
	}
	if c.Training.DefaultEpochs == 0 {
		c.Training.DefaultEpochs = 500
	}
	if c.Training.DefaultPopulationSize == 0 {
		c.Training.DefaultPopulationSize = 10
	}
	if c.Training.TestSize == 0 {
		c.Training.TestSize = 0.25
	}
	if c.Dataset.RetryAttempts == 0 {
		c.Dataset.RetryAttempts = 5
	}
	if c.Dataset.RetryInterval == 0 {
		c.Dataset.RetryInterval = 2 * time.Second
	}
	if c.Artifacts.Backend == "" {
		c.Artifacts.Backend = "filesystem"
	}
	if c.Redis.TTL == 0 {
		c.Redis.TTL = 10 * time.Second
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Reconciler.Schedule == "" {
		c.Reconciler.Schedule = "@every 5m"
	}
	if c.Reconciler.Threshold == 0 {
		c.Reconciler.Threshold = 30 * time.Minute
	}
	if c.Reconciler.BatchSize == 0 {
		c.Reconciler.BatchSize = 100
	}
}

// Validate checks the settings shared by both services
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.Database.RetryAttempts < 1 {
		return fmt.Errorf("database retry_attempts must be greater than 0")
	}

	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Channels.TrainModel == "" {
		return fmt.Errorf("rabbitmq train_model channel is required")
	}

	if c.Metrics.Enabled && (c.Metrics.Port < MinPort || c.Metrics.Port > MaxPort) {
		return fmt.Errorf("invalid metrics port: %d (must be between %d and %d)", c.Metrics.Port, MinPort, MaxPort)
	}

	return nil
}

// ValidateAPIConfig checks the settings the API service needs
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.Validate(); err != nil {
		return err
	}

	if c.Training.DefaultEpochs < 1 {
		return fmt.Errorf("training default_epochs must be greater than 0")
	}

	if c.Training.DefaultPopulationSize < 1 {
		return fmt.Errorf("training default_population_size must be greater than 0")
	}

	if c.Training.MinimalAge < 0 {
		return fmt.Errorf("training minimal_age must not be negative")
	}

	// predictions read the artifacts written by the worker
	return c.validateArtifacts()
}

// ValidateWorkerConfig checks the settings the worker service needs
func (c *Config) ValidateWorkerConfig() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.Worker.HeartbeatInterval <= 0 {
		return fmt.Errorf("worker heartbeat_interval must be greater than 0")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	if c.Training.TestSize <= 0 || c.Training.TestSize >= 1 {
		return fmt.Errorf("training test_size must be between 0 and 1")
	}

	if c.Dataset.PropertyAPIURL == "" {
		return fmt.Errorf("dataset property_api_url is required")
	}

	if err := c.validateArtifacts(); err != nil {
		return err
	}

	if c.Reconciler.Enabled {
		if _, err := cron.ParseStandard(c.Reconciler.Schedule); err != nil {
			return fmt.Errorf("invalid reconciler schedule: %w", err)
		}
		if c.Reconciler.Threshold <= c.Worker.HeartbeatInterval {
			return fmt.Errorf("reconciler threshold must be longer than the worker heartbeat_interval")
		}
	}

	return nil
}

func (c *Config) validateArtifacts() error {
	switch c.Artifacts.Backend {
	case "s3":
		if c.Artifacts.Bucket == "" {
			return fmt.Errorf("artifacts bucket is required for the s3 backend")
		}
	case "filesystem":
		if c.Artifacts.BaseDir == "" {
			return fmt.Errorf("artifacts base_dir is required for the filesystem backend")
		}
	default:
		return fmt.Errorf("unknown artifacts backend: %s", c.Artifacts.Backend)
	}
	return nil
}
