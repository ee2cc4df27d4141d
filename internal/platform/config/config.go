// Package config loads the service configuration from YAML with
// environment overrides for secrets.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		return nil, fmt.Errorf("config file path is required (use -config)")
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := defaults()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnvironmentOverrides(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return config, nil
}

func defaults() *Config {
	return &Config{
		Server:   DefaultServerConfig,
		Log:      DefaultLogConfig,
		Policies: DefaultPoliciesConfig,
		Store:    DefaultStoreConfig,
		Audit:    DefaultAuditConfig,
	}
}

// Secrets never live in the config file; they are injected through the
// environment.
var (
	EnvAuthSigningKey    = "CERTGATE_AUTH_SIGNING_KEY"
	EnvStoreDSN          = "CERTGATE_STORE_DSN"
	EnvAuditDSN          = "CERTGATE_AUDIT_DSN"
	EnvRedisPassword     = "CERTGATE_REDIS_PASSWORD"
	EnvSigningPassphrase = "CERTGATE_SIGNING_KEY_PASSPHRASE"
)

func applyEnvironmentOverrides(config *Config) {
	if key := os.Getenv(EnvAuthSigningKey); key != "" {
		config.Auth.SigningKey = key
	}
	if dsn := os.Getenv(EnvStoreDSN); dsn != "" {
		config.Store.DSN = dsn
	}
	if dsn := os.Getenv(EnvAuditDSN); dsn != "" {
		config.Audit.DSN = dsn
	}
	if config.Redis != nil {
		if password := os.Getenv(EnvRedisPassword); password != "" {
			config.Redis.Password = password
		}
	}
	if config.Signing.Local != nil {
		if passphrase := os.Getenv(EnvSigningPassphrase); passphrase != "" {
			config.Signing.Local.Passphrase = passphrase
		}
	}
}

func validateConfig(config *Config) error {
	if config.Auth.SigningKey == "" {
		return fmt.Errorf("auth.signing_key is required (or %s)", EnvAuthSigningKey)
	}
	if config.Policies.File == "" {
		return fmt.Errorf("policies.file is required")
	}
	if config.Signing.Local == nil && config.Signing.Remote == nil {
		return fmt.Errorf("at least one signing backend must be configured")
	}
	if config.Signing.Local != nil {
		if config.Signing.Local.CertFile == "" || config.Signing.Local.KeyFile == "" {
			return fmt.Errorf("signing.local requires cert_file and key_file")
		}
	}
	if config.Signing.Remote != nil && config.Signing.Remote.Endpoint == "" {
		return fmt.Errorf("signing.remote requires endpoint")
	}

	switch config.Store.Kind {
	case "memory":
	case "postgres":
		if config.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres store (or %s)", EnvStoreDSN)
		}
	default:
		return fmt.Errorf("unknown store.kind %q", config.Store.Kind)
	}

	switch config.Audit.Sink {
	case "memory":
	case "postgres":
		if config.Audit.DSN == "" && config.Store.DSN == "" {
			return fmt.Errorf("audit.dsn is required for the postgres sink (or %s)", EnvAuditDSN)
		}
	case "kafka":
		if config.Audit.Kafka == nil || len(config.Audit.Kafka.Brokers) == 0 || config.Audit.Kafka.Topic == "" {
			return fmt.Errorf("audit.kafka requires brokers and topic")
		}
	default:
		return fmt.Errorf("unknown audit.sink %q", config.Audit.Sink)
	}

	return nil
}
