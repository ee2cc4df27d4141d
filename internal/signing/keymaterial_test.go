package signing_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certgate/internal/signing"
	"certgate/pkg/testutil/pki"
)

func TestNewKeyManager(t *testing.T) {
	certPEM, keyPEM := pki.GenerateCA(t, "certgate test authority", time.Hour)

	keys, err := signing.NewKeyManager(certPEM, keyPEM, "")
	require.NoError(t, err)

	material := keys.Current()
	assert.Equal(t, "certgate test authority", material.Cert.Subject.CommonName)
	assert.NotNil(t, material.Key)
}

func TestNewKeyManager_Failures(t *testing.T) {
	certPEM, keyPEM := pki.GenerateCA(t, "certgate test authority", time.Hour)
	_, otherKey := pki.GenerateCA(t, "some other authority", time.Hour)

	tests := []struct {
		name    string
		cert    []byte
		key     []byte
		wantErr string
	}{
		{
			name:    "certificate is not pem",
			cert:    []byte("garbage"),
			key:     keyPEM,
			wantErr: "no PEM data",
		},
		{
			name:    "wrong certificate block type",
			cert:    keyPEM,
			key:     keyPEM,
			wantErr: "instead of",
		},
		{
			name:    "key is not pem",
			cert:    certPEM,
			key:     []byte("garbage"),
			wantErr: "no PEM data",
		},
		{
			name:    "key does not match certificate",
			cert:    certPEM,
			key:     otherKey,
			wantErr: "does not match",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := signing.NewKeyManager(tc.cert, tc.key, "")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestKeyManager_SealedKey(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pkcs8, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	salt := make([]byte, 16)
	nonce := make([]byte, 12)
	_, err = rand.Read(salt)
	require.NoError(t, err)
	_, err = rand.Read(nonce)
	require.NoError(t, err)

	sealed, err := signing.SealKey(pkcs8, "hunter2", salt, nonce)
	require.NoError(t, err)

	// self-signed certificate over the same key, so material matches
	certPEM := selfSign(t, key)

	t.Run("correct passphrase unseals", func(t *testing.T) {
		keys, err := signing.NewKeyManager(certPEM, sealed, "hunter2")
		require.NoError(t, err)
		assert.NotNil(t, keys.Current().Key)
	})

	t.Run("wrong passphrase fails", func(t *testing.T) {
		_, err := signing.NewKeyManager(certPEM, sealed, "wrong")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "wrong passphrase or corrupted key file")
	})

	t.Run("missing passphrase fails", func(t *testing.T) {
		_, err := signing.NewKeyManager(certPEM, sealed, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no passphrase is configured")
	})
}

func TestKeyManager_Rotate(t *testing.T) {
	oldCert, oldKey := pki.GenerateCA(t, "generation 1", time.Hour)
	newCert, newKey := pki.GenerateCA(t, "generation 2", time.Hour)

	keys, err := signing.NewKeyManager(oldCert, oldKey, "")
	require.NoError(t, err)
	assert.Equal(t, "generation 1", keys.Current().Cert.Subject.CommonName)

	require.NoError(t, keys.Rotate(newCert, newKey, ""))
	assert.Equal(t, "generation 2", keys.Current().Cert.Subject.CommonName)

	// a failed rotation leaves the current material in place
	require.Error(t, keys.Rotate(newCert, []byte("garbage"), ""))
	assert.Equal(t, "generation 2", keys.Current().Cert.Subject.CommonName)
}

// selfSign issues a minimal self-signed certificate over key's public half.
func selfSign(t *testing.T, key *rsa.PrivateKey) []byte {
	t.Helper()

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		NotBefore:    time.Now().Add(-time.Minute),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, key.Public(), key)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}
