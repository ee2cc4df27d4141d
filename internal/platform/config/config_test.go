package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const minimalConfig = `
auth:
  signing_key: test-key
  issuer: certgate
  audience: workers
policies:
  file: /etc/certgate/policies.yaml
signing:
  local:
    cert_file: /etc/certgate/ca.pem
    key_file: /etc/certgate/ca-key.pem
`

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 30*time.Second, cfg.Server.RequestTimeout.Std())
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "memory", cfg.Store.Kind)
	assert.Equal(t, "memory", cfg.Audit.Sink)
	assert.Equal(t, 24*time.Hour, cfg.Policies.DefaultTTL.Std())
}

func TestLoadConfigOverrides(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalConfig+`
server:
  addr: ":9443"
  request_timeout: 10s
store:
  kind: postgres
  dsn: postgres://certgate@localhost/certgate
audit:
  sink: kafka
  kafka:
    brokers: ["broker-1:9092"]
    topic: certgate.audit
`))
	require.NoError(t, err)

	assert.Equal(t, ":9443", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.RequestTimeout.Std())
	assert.Equal(t, "postgres", cfg.Store.Kind)
	assert.Equal(t, "certgate.audit", cfg.Audit.Kafka.Topic)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv(EnvAuthSigningKey, "env-key")
	t.Setenv(EnvSigningPassphrase, "env-passphrase")

	cfg, err := LoadConfig(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.Auth.SigningKey)
	assert.Equal(t, "env-passphrase", cfg.Signing.Local.Passphrase)
}

func TestValidation(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing signing key",
			content: `
policies:
  file: /etc/certgate/policies.yaml
signing:
  local: {cert_file: a, key_file: b}
`,
			wantErr: "auth.signing_key",
		},
		{
			name: "missing policy file",
			content: `
auth: {signing_key: k}
signing:
  local: {cert_file: a, key_file: b}
`,
			wantErr: "policies.file",
		},
		{
			name: "no signing backend",
			content: `
auth: {signing_key: k}
policies: {file: p}
`,
			wantErr: "signing backend",
		},
		{
			name: "postgres store without dsn",
			content: minimalConfig + `
store:
  kind: postgres
`,
			wantErr: "store.dsn",
		},
		{
			name: "unknown audit sink",
			content: minimalConfig + `
audit:
  sink: carrier-pigeon
`,
			wantErr: "audit.sink",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tc.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
