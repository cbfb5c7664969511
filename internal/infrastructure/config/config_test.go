package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
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
		Provider: ProviderConfig{
			Name:               "hostedpay",
			PublishableKey:     "pk_test_123",
			SecretKey:          "sk_test_456",
			APIBaseURL:         "https://api.hostedpay.test",
			WidgetBaseURL:      "https://buy.hostedpay.test",
			SuccessRedirectURL: "https://dapp.example.com/funding/success",
			FailureRedirectURL: "https://dapp.example.com/funding/failure",
			CurrencyCode:       "usdc",
		},
		Worker: WorkerConfig{
			BatchSize: 10,
			LockTTL:   30 * time.Second,
		},
	}
}

func TestConfig_Validate_Success(t *testing.T) {
	err := validConfig().Validate()
	assert.NoError(t, err)
}

func TestConfig_Validate_InvalidServerPort(t *testing.T) {
	tests := []struct {
		name string
		port int
	}{
		{"port too low", 0},
		{"port negative", -1},
		{"port too high", 99999},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Server.Port = tt.port

			err := cfg.Validate()
			assert.Error(t, err)
			assert.Contains(t, err.Error(), "server.port")
		})
	}
}

func TestConfig_Validate_MissingDatabaseHost(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Host = ""

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "database.host")
}

func TestConfig_Validate_InvalidWorkerSettings(t *testing.T) {
	cfg := validConfig()
	cfg.Worker.BatchSize = 0

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "worker.batch_size")

	cfg = validConfig()
	cfg.Worker.LockTTL = 0

	err = cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "worker.lock_ttl")
}

func TestConfig_Validate_MalformedProviderURL(t *testing.T) {
	cfg := validConfig()
	cfg.Provider.WidgetBaseURL = "not a url"

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "provider.widget_base_url")
}

func TestConfig_Validate_ShortJWTSecret(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.JWTSecret = "too-short"

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")
}

func TestConfig_Validate_ProductionRequiresSecrets(t *testing.T) {
	t.Setenv("ENV", "production")

	cfg := validConfig()
	cfg.Provider.SecretKey = ""
	cfg.Auth.JWTSecret = ""

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "provider.secret_key")
	assert.Contains(t, err.Error(), "auth.jwt_secret")
}

func TestLoad_DefaultsFromEnv(t *testing.T) {
	t.Setenv("ONRAMP_SERVER_PORT", "9090")

	cfg, err := Load()
	// Load may fail on env-specific config files; only assert when it parses.
	if err != nil {
		t.Skipf("config load unavailable in this environment: %v", err)
	}
	assert.NotNil(t, cfg)
}

func TestDatabaseDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "db.internal",
		Port:     5432,
		User:     "onramp",
		Password: "secret",
		Database: "onramp",
		SSLMode:  "require",
	}
	assert.Equal(t, "host=db.internal port=5432 user=onramp password=secret dbname=onramp sslmode=require", cfg.DatabaseDSN())
}

func TestRedisAddr(t *testing.T) {
	cfg := RedisConfig{Host: "cache.internal", Port: 6380}
	assert.Equal(t, "cache.internal:6380", cfg.RedisAddr())
}
