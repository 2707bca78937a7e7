package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "test",
			Password: "test",
			Database: "test_db",
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
		},
		Gateway: GatewayConfig{
			Provider: "mock",
			Timeout:  10 * time.Second,
		},
		Payment: PaymentConfig{
			Currency: "KES",
		},
		Worker: WorkerConfig{
			BatchSize:       10,
			ReplayBatchSize: 20,
			LockTTL:         30 * time.Second,
			ChangeFeed:      ChangeFeedRedis,
		},
	}
}

func TestConfig_Validate_Success(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestConfig_Validate_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"port too low", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"port too high", func(c *Config) { c.Server.Port = 99999 }, "server.port"},
		{"read timeout", func(c *Config) { c.Server.ReadTimeout = 0 }, "server.read_timeout"},
		{"write timeout", func(c *Config) { c.Server.WriteTimeout = 0 }, "server.write_timeout"},
		{"body limit", func(c *Config) { c.Server.MaxBodyBytes = 0 }, "server.max_body_bytes"},
		{"database host", func(c *Config) { c.Database.Host = "" }, "database.host"},
		{"database port", func(c *Config) { c.Database.Port = -1 }, "database.port"},
		{"redis port", func(c *Config) { c.Redis.Port = 0 }, "redis.port"},
		{"gateway provider", func(c *Config) { c.Gateway.Provider = "" }, "gateway.provider"},
		{"gateway base url", func(c *Config) { c.Gateway.Provider = "mpesa" }, "gateway.base_url"},
		{"gateway timeout", func(c *Config) { c.Gateway.Timeout = 0 }, "gateway.timeout"},
		{"currency", func(c *Config) { c.Payment.Currency = "KSHS" }, "payment.currency"},
		{"lock ttl", func(c *Config) { c.Worker.LockTTL = 0 }, "worker.lock_ttl"},
		{"batch size", func(c *Config) { c.Worker.BatchSize = 0 }, "worker.batch_size"},
		{"replay batch size", func(c *Config) { c.Worker.ReplayBatchSize = 0 }, "worker.replay_batch_size"},
		{"change feed", func(c *Config) { c.Worker.ChangeFeed = "sns" }, "worker.change_feed"},
		{"kafka brokers", func(c *Config) {
			c.Worker.ChangeFeed = ChangeFeedKafka
			c.Worker.KafkaTopic = "t"
		}, "worker.kafka_brokers"},
		{"kafka topic", func(c *Config) {
			c.Worker.ChangeFeed = ChangeFeedKafka
			c.Worker.KafkaBrokers = []string{"localhost:9092"}
		}, "worker.kafka_topic"},
		{"short jwt secret", func(c *Config) { c.Auth.JWTSecret = "short" }, "auth.jwt_secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConfig_Validate_KafkaFeed(t *testing.T) {
	cfg := validConfig()
	cfg.Worker.ChangeFeed = ChangeFeedKafka
	cfg.Worker.KafkaBrokers = []string{"localhost:9092"}
	cfg.Worker.KafkaTopic = "sokopay.payments.changes"

	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate_MultipleErrors(t *testing.T) {
	cfg := &Config{}

	err := cfg.Validate()
	require.Error(t, err)

	errStr := err.Error()
	assert.Contains(t, errStr, "server.port")
	assert.Contains(t, errStr, "read_timeout")
	assert.Contains(t, errStr, "database.host")
	assert.Contains(t, errStr, "redis.port")
	assert.Contains(t, errStr, "gateway.provider")
	assert.Contains(t, errStr, "worker.lock_ttl")
	assert.Contains(t, errStr, "worker.change_feed")
}

func TestConfig_Validate_Production(t *testing.T) {
	t.Setenv("ENV", "production")

	cfg := validConfig()
	cfg.Database.Password = ""
	cfg.Gateway.Provider = "mpesa"
	cfg.Gateway.BaseURL = "https://gateway.example.test"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.password required in production")
	assert.Contains(t, err.Error(), "auth.jwt_secret required in production")
	assert.Contains(t, err.Error(), "gateway.api_key required in production")
}

func TestLoad_DefaultsAndEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SOKOPAY_GATEWAY_API_KEY", "from-env")
	t.Setenv("SOKOPAY_SERVER_PORT", "9090")
	t.Setenv("SOKOPAY_CALLBACK_TOKEN", "hook-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.Gateway.APIKey)
	assert.Equal(t, "hook-secret", cfg.Callback.Token)
	assert.Equal(t, "mock", cfg.Gateway.Provider)
	assert.Equal(t, "KES", cfg.Payment.Currency)
	assert.Equal(t, ChangeFeedRedis, cfg.Worker.ChangeFeed)
	assert.Equal(t, "payments:changes", cfg.Worker.ChangeFeedStream)
	assert.Equal(t, 2*time.Minute, cfg.Worker.ReplayMinAge)
	assert.Equal(t, int64(1<<20), cfg.Server.MaxBodyBytes)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "db.example.com",
		Port:     5432,
		User:     "app_user",
		Password: "secret",
		Database: "sokopay",
		SSLMode:  "require",
	}

	assert.Equal(t,
		"host=db.example.com port=5432 user=app_user password=secret dbname=sokopay sslmode=require",
		cfg.DatabaseDSN(),
	)
}

func TestRedisConfig_Addr(t *testing.T) {
	cfg := RedisConfig{Host: "redis.example.com", Port: 6380}
	assert.Equal(t, "redis.example.com:6380", cfg.RedisAddr())
}
