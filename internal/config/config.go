package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gobayes/domain/sampler"
	"gobayes/internal"
	"gobayes/internal/errors"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Database DatabaseConfig
	Stan     StanConfig
	Server   ServerConfig
	Log      LogConfig
	Sampler  SamplerConfig
}

// DatabaseConfig holds database connection settings. An empty URL keeps
// fits in memory.
type DatabaseConfig struct {
	URL            string
	MaxOpenConns   int `validate:"gte=0"`
	ConnectTimeout time.Duration
}

// Enabled reports whether fits are persisted in Postgres
func (d DatabaseConfig) Enabled() bool { return d.URL != "" }

// StanConfig locates CmdStan and its scratch space. Engine "fake" swaps
// CmdStan for the in-process test engine.
type StanConfig struct {
	Engine  string `validate:"oneof=stan fake"`
	Home    string `validate:"required"`
	WorkDir string `validate:"required"`
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port    string `validate:"required,numeric"`
	GinMode string `validate:"oneof=debug release test"`
}

// LogConfig holds the log level name
type LogConfig struct {
	Level string `validate:"oneof=ERROR WARN INFO DEBUG TRACE"`
}

// SamplerConfig is the control applied when a request leaves fields unset
type SamplerConfig struct {
	Defaults sampler.Control
}

// Load reads an optional .env file, then the environment
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile reads variables from envFile when it exists, then the
// environment. Variables already set in the environment win.
func LoadFile(envFile string) (*Config, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, errors.Wrapf(err, "failed to read %s", envFile)
			}
		}
	}

	config := &Config{
		Database: loadDatabaseConfig(),
		Stan:     loadStanConfig(),
		Server:   loadServerConfig(),
		Log:      LogConfig{Level: strings.ToUpper(getEnvOrDefault("LOG_LEVEL", "INFO"))},
	}

	samplerConfig, err := loadSamplerConfig()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load sampler configuration")
	}
	config.Sampler = *samplerConfig

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

// Logger returns a logger at the configured level
func (c *Config) Logger() *internal.Logger {
	return internal.NewLogger(internal.ParseLogLevel(c.Log.Level))
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:            os.Getenv("DATABASE_URL"),
		MaxOpenConns:   getEnvIntOrDefault("DB_MAX_OPEN_CONNS", 10),
		ConnectTimeout: getEnvDurationOrDefault("DB_CONNECT_TIMEOUT", 10*time.Second),
	}
}

func loadStanConfig() StanConfig {
	return StanConfig{
		Engine:  getEnvOrDefault("GOBAYES_ENGINE", "stan"),
		Home:    getEnvOrDefault("CMDSTAN_HOME", os.ExpandEnv("$HOME/.cmdstan")),
		WorkDir: getEnvOrDefault("GOBAYES_WORK_DIR", os.TempDir()+"/gobayes"),
	}
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Port:    getEnvOrDefault("PORT", "8080"),
		GinMode: getEnvOrDefault("GIN_MODE", "release"),
	}
}

func loadSamplerConfig() (*SamplerConfig, error) {
	var d sampler.Control
	var err error
	if d.Chains, err = getEnvInt("SAMPLER_CHAINS", d.Chains); err != nil {
		return nil, err
	}
	if d.Iterations, err = getEnvInt("SAMPLER_ITER", d.Iterations); err != nil {
		return nil, err
	}
	if os.Getenv("SAMPLER_WARMUP") != "" {
		warmup, err := getEnvInt("SAMPLER_WARMUP", 0)
		if err != nil {
			return nil, err
		}
		d.Warmup = sampler.Int(warmup)
	}
	if d.Cores, err = getEnvInt("SAMPLER_CORES", d.Cores); err != nil {
		return nil, err
	}
	if d.AdaptDelta, err = getEnvFloat("SAMPLER_ADAPT_DELTA", d.AdaptDelta); err != nil {
		return nil, err
	}
	// an iteration count without warmup gets half as warmup
	d = d.WithDefaults()
	if err := d.Validate(); err != nil {
		return nil, errors.WithCode(errors.CodeConfigInvalid, err)
	}
	return &SamplerConfig{Defaults: d}, nil
}

var validate = validator.New()

func validateConfig(config *Config) error {
	if err := validate.Struct(config); err != nil {
		return errors.ConfigInvalid(err.Error())
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvInt fails on malformed values; sampler settings must not fall back silently
func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.ConfigInvalid(key + " must be an integer")
	}
	return v, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, errors.ConfigInvalid(key + " must be a number")
	}
	return v, nil
}
