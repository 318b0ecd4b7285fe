package config

import (
	"os"
	"strconv"
	"strings"

	"gocka/domain/stats"
	"gocka/internal/errors"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	Input     InputConfig     `yaml:"input"`
	Output    OutputConfig    `yaml:"output"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
	Batch     BatchConfig     `yaml:"batch"`
	Store     StoreConfig     `yaml:"store"`
	Server    ServerConfig    `yaml:"server"`
	LogLevel  string          `yaml:"log_level" validate:"omitempty,oneof=ERROR WARN INFO DEBUG TRACE"`
}

// InputConfig locates the result logs
type InputConfig struct {
	Folder string `yaml:"folder"`
}

// OutputConfig controls which artifacts a batch run writes
type OutputConfig struct {
	WriteErrors bool   `yaml:"write_errors"`
	ErrorFormat string `yaml:"error_format" validate:"oneof=csv xlsx"`
	HTML        bool   `yaml:"html"`
}

// BootstrapConfig holds resampling settings
type BootstrapConfig struct {
	Resamples  int     `yaml:"resamples" validate:"gt=0"`
	Confidence float64 `yaml:"confidence" validate:"gt=0,lt=1"`
	Seed       int64   `yaml:"seed"`
	Workers    int     `yaml:"workers" validate:"gte=0"` // 0 means GOMAXPROCS
}

// BatchConfig holds per-log processing policy
type BatchConfig struct {
	Workers  int  `yaml:"workers" validate:"gte=1"`
	FailFast bool `yaml:"fail_fast"`
}

// StoreConfig selects the optional report database
type StoreConfig struct {
	Driver string `yaml:"driver" validate:"omitempty,oneof=sqlite postgres"`
	DSN    string `yaml:"dsn" validate:"required_with=Driver"`
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Port string `yaml:"port" validate:"required"`
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		Output: OutputConfig{
			ErrorFormat: "csv",
		},
		Bootstrap: BootstrapConfig{
			Resamples:  stats.DefaultResamples,
			Confidence: stats.DefaultConfidence,
			Seed:       42,
		},
		Batch: BatchConfig{
			Workers: 1,
		},
		Server: ServerConfig{
			Port: "8080",
		},
		LogLevel: "INFO",
	}
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, in increasing order of precedence, and validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read config file %s", path)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return &errors.AppError{
			Code:    errors.CodeConfigInvalid,
			Message: "failed to parse config file " + path,
			Cause:   err,
		}
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Input.Folder = getEnvOrDefault("CKA_FOLDER", c.Input.Folder)

	c.Output.WriteErrors = getEnvBoolOrDefault("CKA_WRITE_ERRORS", c.Output.WriteErrors)
	c.Output.ErrorFormat = strings.ToLower(getEnvOrDefault("CKA_ERROR_FORMAT", c.Output.ErrorFormat))
	c.Output.HTML = getEnvBoolOrDefault("CKA_HTML", c.Output.HTML)

	c.Bootstrap.Resamples = getEnvIntOrDefault("CKA_RESAMPLES", c.Bootstrap.Resamples)
	c.Bootstrap.Confidence = getEnvFloatOrDefault("CKA_CONFIDENCE", c.Bootstrap.Confidence)
	c.Bootstrap.Seed = int64(getEnvIntOrDefault("CKA_SEED", int(c.Bootstrap.Seed)))
	c.Bootstrap.Workers = getEnvIntOrDefault("CKA_BOOTSTRAP_WORKERS", c.Bootstrap.Workers)

	c.Batch.Workers = getEnvIntOrDefault("CKA_BATCH_WORKERS", c.Batch.Workers)
	c.Batch.FailFast = getEnvBoolOrDefault("CKA_FAIL_FAST", c.Batch.FailFast)

	c.Store.Driver = getEnvOrDefault("CKA_STORE_DRIVER", c.Store.Driver)
	c.Store.DSN = getEnvOrDefault("CKA_STORE_DSN", c.Store.DSN)

	c.Server.Port = getEnvOrDefault("PORT", c.Server.Port)
	c.LogLevel = strings.ToUpper(getEnvOrDefault("LOG_LEVEL", c.LogLevel))
}

// Validate checks struct constraints
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return &errors.AppError{
			Code:    errors.CodeConfigInvalid,
			Message: "configuration validation failed",
			Cause:   err,
		}
	}
	return nil
}

// BootstrapParams converts the resampling settings into estimator parameters
func (c *Config) BootstrapParams() stats.BootstrapParams {
	return stats.BootstrapParams{
		Resamples:  c.Bootstrap.Resamples,
		Confidence: c.Bootstrap.Confidence,
	}
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

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
