// Package config loads the application configuration from defaults,
// command-line flags, a .env file and environment variables, in that
// order of increasing priority, and validates the result.
package config

import (
	"flag"
	"log"
	"os"
	"time"

	env "github.com/caarlos0/env/v6"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds the runtime configuration of the service.
type Config struct {
	RunAddr                    string        `env:"SERVER_ADDRESS" validate:"hostname_port"`
	LogLevel                   string        `env:"LOG_LEVEL" validate:"loglevel"`
	DBFileName                 string        `env:"FILE_STORAGE_PATH" validate:"filepath"`
	DatabaseDSN                string        `env:"DATABASE_DSN"`
	DBConnectionTimeout        time.Duration `env:"DB_CONNECTION_TIMEOUT"`
	DBQueryTimeout             time.Duration `env:"DB_QUERY_TIMEOUT"`
	MigrationsDir              string        `env:"MIGRATIONS_DIR"`
	AuthCookieName             string        `env:"AUTH_COOKIE_NAME" validate:"required"`
	AuthCookieSigningSecretKey string        `env:"AUTH_COOKIE_SIGNING_SECRET_KEY" validate:"required,base64url"`
	AuthTokenTTL               time.Duration `env:"AUTH_TOKEN_TTL"`
	TrustedSubnet              string        `env:"TRUSTED_SUBNET" validate:"omitempty,cidr"`
}

func validateFilePath(fieldLevel validator.FieldLevel) bool {
	path := fieldLevel.Field().String()
	_, err := os.Stat(path)

	return err == nil || os.IsNotExist(err)
}

func validateLogLevel(fieldLevel validator.FieldLevel) bool {
	value := fieldLevel.Field().String()

	allowedLogLevels := map[string]bool{
		"debug":   true,
		"info":    true,
		"warning": true,
		"error":   true,
		"fatal":   true,
	}

	return allowedLogLevels[value]
}

func (c *Config) validate() error {
	validate := validator.New()

	err := validate.RegisterValidation("loglevel", validateLogLevel)
	if err != nil {
		return err
	}

	err = validate.RegisterValidation("filepath", validateFilePath)
	if err != nil {
		return err
	}

	return validate.Struct(c)
}

// InitOption customizes configuration loading.
type InitOption func(*initOptions)

type initOptions struct {
	disableFlagsParsing bool
}

// WithDisableFlagsParsing skips command-line flag parsing.
// It is used by tests, where the flag set belongs to the test binary.
func WithDisableFlagsParsing(disableFlagsParsing bool) InitOption {
	return func(options *initOptions) {
		options.disableFlagsParsing = disableFlagsParsing
	}
}

// New builds a validated Config from defaults, flags, .env and environment.
func New(optionsProto ...InitOption) (*Config, error) {
	options := &initOptions{
		disableFlagsParsing: false,
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	err := godotenv.Load()
	if err != nil {
		log.Printf("Unable to load .env file: %v", err)
	}

	cfg := &Config{
		RunAddr:             ":8080",
		LogLevel:            "info",
		DBFileName:          "",
		DatabaseDSN:         "",
		DBConnectionTimeout: 10 * time.Second,
		DBQueryTimeout:      5 * time.Second,
		MigrationsDir:       "cmd/compforge/migrations",
		AuthCookieName:      "compforge_session",
		// Default key is for local development only; production deployments
		// must provide AUTH_COOKIE_SIGNING_SECRET_KEY.
		AuthCookieSigningSecretKey: "c3VwZXJzZWNyZXRrZXk=",
		AuthTokenTTL:               24 * time.Hour,
		TrustedSubnet:              "",
	}
	if !options.disableFlagsParsing {
		flag.StringVar(&cfg.RunAddr, "a", cfg.RunAddr, "address and port to run server")
		flag.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "logger level")
		flag.StringVar(&cfg.DBFileName, "f", cfg.DBFileName, "JSON file name with database")
		flag.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "a string with the database connection details")
		flag.StringVar(&cfg.MigrationsDir, "m", cfg.MigrationsDir, "directory with goose migrations")
		flag.StringVar(&cfg.TrustedSubnet, "t", cfg.TrustedSubnet, "CIDR of the subnet allowed to query internal stats")
		flag.Parse()
	}

	var valuesFromEnv Config
	err = env.Parse(&valuesFromEnv)
	if err != nil {
		return nil, err
	}

	if valuesFromEnv.RunAddr != "" {
		cfg.RunAddr = valuesFromEnv.RunAddr
	}

	if valuesFromEnv.LogLevel != "" {
		cfg.LogLevel = valuesFromEnv.LogLevel
	}

	if valuesFromEnv.DBFileName != "" {
		cfg.DBFileName = valuesFromEnv.DBFileName
	}

	if valuesFromEnv.DatabaseDSN != "" {
		cfg.DatabaseDSN = valuesFromEnv.DatabaseDSN
	}

	if valuesFromEnv.DBConnectionTimeout != 0 {
		cfg.DBConnectionTimeout = valuesFromEnv.DBConnectionTimeout
	}

	if valuesFromEnv.DBQueryTimeout != 0 {
		cfg.DBQueryTimeout = valuesFromEnv.DBQueryTimeout
	}

	if valuesFromEnv.MigrationsDir != "" {
		cfg.MigrationsDir = valuesFromEnv.MigrationsDir
	}

	if valuesFromEnv.AuthCookieName != "" {
		cfg.AuthCookieName = valuesFromEnv.AuthCookieName
	}

	if valuesFromEnv.AuthCookieSigningSecretKey != "" {
		cfg.AuthCookieSigningSecretKey = valuesFromEnv.AuthCookieSigningSecretKey
	}

	if valuesFromEnv.AuthTokenTTL != 0 {
		cfg.AuthTokenTTL = valuesFromEnv.AuthTokenTTL
	}

	if valuesFromEnv.TrustedSubnet != "" {
		cfg.TrustedSubnet = valuesFromEnv.TrustedSubnet
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
