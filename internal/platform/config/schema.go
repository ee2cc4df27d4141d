package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration parses Go duration strings ("30s", "24h") from YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Auth     AuthConfig     `yaml:"auth"`
	Policies PoliciesConfig `yaml:"policies"`
	Signing  SigningConfig  `yaml:"signing"`
	Store    StoreConfig    `yaml:"store"`
	Redis    *RedisConfig   `yaml:"redis"`
	Audit    AuditConfig    `yaml:"audit"`
	// Directory maps caller subjects to their groups for group-scoped
	// validators.
	Directory map[string]DirectoryEntry `yaml:"directory"`
}

type DirectoryEntry struct {
	Groups []string          `yaml:"groups"`
	Attrs  map[string]string `yaml:"attrs"`
}

type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	RequestTimeout Duration      `yaml:"request_timeout"`
}

var DefaultServerConfig = ServerConfig{
	Addr:           ":8080",
	RequestTimeout: Duration(30 * time.Second),
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

var DefaultLogConfig = LogConfig{
	Level:  "info",
	Format: "json",
}

// AuthConfig configures caller token validation.
type AuthConfig struct {
	SigningKey string `yaml:"signing_key"`
	Issuer     string `yaml:"issuer"`
	Audience   string `yaml:"audience"`
}

type PoliciesConfig struct {
	// File is the YAML policy set loaded at startup and on reload.
	File string `yaml:"file"`
	// DefaultTTL applies to policies without a signing TTL of their own.
	DefaultTTL Duration `yaml:"default_ttl"`
}

var DefaultPoliciesConfig = PoliciesConfig{
	DefaultTTL: Duration(24 * time.Hour),
}

// SigningConfig declares the available signing backends. At least one must
// be configured.
type SigningConfig struct {
	Local  *LocalBackendConfig  `yaml:"local"`
	Remote *RemoteBackendConfig `yaml:"remote"`
}

// LocalBackendConfig points at the authority key material on disk. The key
// may be sealed; the passphrase then comes from the environment.
type LocalBackendConfig struct {
	CertFile   string `yaml:"cert_file"`
	KeyFile    string `yaml:"key_file"`
	Passphrase string `yaml:"-"`
}

type RemoteBackendConfig struct {
	Endpoint string   `yaml:"endpoint"`
	Issuer   string   `yaml:"issuer"`
	Timeout  Duration `yaml:"timeout"`
}

// StoreConfig selects certificate persistence.
type StoreConfig struct {
	// Kind is "memory" or "postgres".
	Kind string `yaml:"kind"`
	DSN  string `yaml:"dsn"`
}

var DefaultStoreConfig = StoreConfig{
	Kind: "memory",
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username"`
	Password string `yaml:"-"`
	DB       int    `yaml:"db"`
}

// AuditConfig selects the audit sink.
type AuditConfig struct {
	// Sink is "memory", "postgres", or "kafka".
	Sink string `yaml:"sink"`
	// DSN for the postgres sink; defaults to the store DSN.
	DSN string `yaml:"dsn"`
	// Buffer sizes the async publisher queue; 0 means synchronous.
	Buffer int          `yaml:"buffer"`
	Kafka  *KafkaConfig `yaml:"kafka"`
}

var DefaultAuditConfig = AuditConfig{
	Sink:   "memory",
	Buffer: 256,
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}
