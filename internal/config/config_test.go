package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)

				// Verify some key fields are populated
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, 5432, cfg.Database.Port)
				assert.Equal(t, "gwo_db", cfg.Database.Database)
				assert.Equal(t, "test", cfg.Database.Schema)
				assert.Equal(t, "gwo_exchange", cfg.RabbitMQ.Exchange.Name)
				assert.Equal(t, "train_model", cfg.RabbitMQ.Channels.TrainModel)
				assert.Equal(t, "gwo-api-service", cfg.App.Name)
				assert.Equal(t, 5*time.Minute, cfg.Training.MinimalAge)
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Database.RetryAttempts)
	assert.Equal(t, 2*time.Second, cfg.Database.RetryBackoff)
	assert.Equal(t, "gwo-api-service", cfg.Training.Origin)
	assert.Equal(t, 0.25, cfg.Training.TestSize)
	assert.Equal(t, 5, cfg.Dataset.RetryAttempts)
	assert.Equal(t, 2*time.Second, cfg.Dataset.RetryInterval)
	assert.Equal(t, time.Minute, cfg.Worker.HeartbeatInterval)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "@every 5m", cfg.Reconciler.Schedule)
	assert.Equal(t, 30*time.Minute, cfg.Reconciler.Threshold)
	assert.Equal(t, 100, cfg.Reconciler.BatchSize)
}

func TestLoad_ExpandsEnvironment(t *testing.T) {
	t.Setenv("GWO_TEST_DB_PASSWORD", "s3cret")

	cfg, err := Load("testdata/worker_config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Database.Password)
	require.NoError(t, cfg.ValidateWorkerConfig())
}

// validConfig returns a configuration both services accept.
func validConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "gwo_db",
		},
		RabbitMQ: RabbitMQConfig{
			Host: "localhost",
			Port: 5672,
			Exchange: ExchangeConfig{
				Name: "gwo_exchange",
			},
		},
		Dataset: DatasetConfig{
			PropertyAPIURL: "http://localhost:9000",
		},
		Artifacts: ArtifactsConfig{
			BaseDir: "/tmp/gwo-artifacts",
		},
	}
	cfg.applyDefaults()
	return cfg
}

func TestConfig_ValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:      "invalid server port - too low",
			mutate:    func(c *Config) { c.Server.Port = 0 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "invalid server port - too high",
			mutate:    func(c *Config) { c.Server.Port = 70000 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "empty database host",
			mutate:    func(c *Config) { c.Database.Host = "" },
			wantErr:   true,
			errString: "database host is required",
		},
		{
			name:      "empty database name",
			mutate:    func(c *Config) { c.Database.Database = "" },
			wantErr:   true,
			errString: "database name is required",
		},
		{
			name:      "empty rabbitmq host",
			mutate:    func(c *Config) { c.RabbitMQ.Host = "" },
			wantErr:   true,
			errString: "rabbitmq host is required",
		},
		{
			name:      "empty exchange name",
			mutate:    func(c *Config) { c.RabbitMQ.Exchange.Name = "" },
			wantErr:   true,
			errString: "rabbitmq exchange name is required",
		},
		{
			name:      "empty train channel",
			mutate:    func(c *Config) { c.RabbitMQ.Channels.TrainModel = "" },
			wantErr:   true,
			errString: "rabbitmq train_model channel is required",
		},
		{
			name: "metrics enabled without port",
			mutate: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.Port = 0
			},
			wantErr:   true,
			errString: "invalid metrics port",
		},
		{
			name:      "negative minimal age",
			mutate:    func(c *Config) { c.Training.MinimalAge = -time.Minute },
			wantErr:   true,
			errString: "minimal_age",
		},
		{
			name:      "artifacts needed for predictions",
			mutate:    func(c *Config) { c.Artifacts.BaseDir = "" },
			wantErr:   true,
			errString: "base_dir is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateAPIConfig()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateWorkerConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "server port is not needed",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: false,
		},
		{
			name:      "missing property api",
			mutate:    func(c *Config) { c.Dataset.PropertyAPIURL = "" },
			wantErr:   true,
			errString: "property_api_url is required",
		},
		{
			name:      "test size out of range",
			mutate:    func(c *Config) { c.Training.TestSize = 1 },
			wantErr:   true,
			errString: "test_size",
		},
		{
			name:      "s3 without bucket",
			mutate:    func(c *Config) { c.Artifacts.Backend = "s3" },
			wantErr:   true,
			errString: "bucket is required",
		},
		{
			name:      "unknown backend",
			mutate:    func(c *Config) { c.Artifacts.Backend = "ftp" },
			wantErr:   true,
			errString: "unknown artifacts backend",
		},
		{
			name: "bad reconciler schedule",
			mutate: func(c *Config) {
				c.Reconciler.Enabled = true
				c.Reconciler.Schedule = "sometimes"
			},
			wantErr:   true,
			errString: "invalid reconciler schedule",
		},
		{
			name: "reconciler threshold shorter than heartbeat",
			mutate: func(c *Config) {
				c.Reconciler.Enabled = true
				c.Reconciler.Threshold = 30 * time.Second
			},
			wantErr:   true,
			errString: "reconciler threshold",
		},
		{
			name:      "shared settings are checked",
			mutate:    func(c *Config) { c.Database.Host = "" },
			wantErr:   true,
			errString: "database host is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateWorkerConfig()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLoad_ValidateIntegration(t *testing.T) {
	t.Run("load and validate valid config", func(t *testing.T) {
		cfg, err := Load("testdata/valid_config.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.ValidateAPIConfig()
		require.NoError(t, err)
	})

	t.Run("load config with invalid port", func(t *testing.T) {
		cfg, err := Load("testdata/invalid_port.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.ValidateAPIConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid server port")
	})

	t.Run("load config with missing database", func(t *testing.T) {
		cfg, err := Load("testdata/missing_database.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database name is required")
	})
}

func TestPortConstants(t *testing.T) {
	t.Run("port constants are correct", func(t *testing.T) {
		assert.Equal(t, 1, MinPort)
		assert.Equal(t, 65535, MaxPort)
	})

	t.Run("invalid port range", func(t *testing.T) {
		invalidPorts := []int{0, -1, 65536, 70000}
		for _, port := range invalidPorts {
			valid := port >= MinPort && port <= MaxPort
			assert.False(t, valid, "port %d should be invalid", port)
		}
	})
}
