package signing

import (
	"bytes"
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/crypto/pbkdf2"
)

// PEM block types accepted for authority material.
const (
	certBlockType      = "CERTIFICATE"
	pkcs8BlockType     = "PRIVATE KEY"
	pkcs1BlockType     = "RSA PRIVATE KEY"
	ecBlockType        = "EC PRIVATE KEY"
	sealedKeyBlockType = "CERTGATE SEALED KEY"
)

// pbkdf2 parameters for sealed keys. Changing these breaks existing sealed
// files, so treat them as part of the on-disk format.
const (
	sealedKeyIterations = 210_000
	sealedKeyLen        = 32
)

// KeyMaterial is the authority's private key and certificate. Owned
// exclusively by a signing backend; never handed upward in raw form.
type KeyMaterial struct {
	Key  crypto.Signer
	Cert *x509.Certificate
}

// KeyManager guards the current authority material. Reads at signing time
// are concurrent; rotation takes brief exclusive access so a signing call
// never observes a half-replaced pair.
type KeyManager struct {
	mu      sync.RWMutex
	current KeyMaterial
}

// NewKeyManager loads the initial material from PEM bytes. passphrase may
// be empty when the key is stored unsealed.
func NewKeyManager(certPEM, keyPEM []byte, passphrase string) (*KeyManager, error) {
	material, err := parseKeyMaterial(certPEM, keyPEM, passphrase)
	if err != nil {
		return nil, err
	}
	return &KeyManager{current: material}, nil
}

// NewKeyManagerFromFiles reads the authority certificate and key from disk.
func NewKeyManagerFromFiles(certPath, keyPath, passphrase string) (*KeyManager, error) {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("read authority certificate: %w", err)
	}
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("read authority key: %w", err)
	}
	return NewKeyManager(certPEM, keyPEM, passphrase)
}

// Current returns the active material. The returned values are read-only.
func (m *KeyManager) Current() KeyMaterial {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Rotate replaces the authority material. Concurrent signing calls either
// complete against the old pair or start against the new one.
func (m *KeyManager) Rotate(certPEM, keyPEM []byte, passphrase string) error {
	material, err := parseKeyMaterial(certPEM, keyPEM, passphrase)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = material
	return nil
}

func parseKeyMaterial(certPEM, keyPEM []byte, passphrase string) (KeyMaterial, error) {
	certDER, err := decodeSingleBlock(certPEM, certBlockType)
	if err != nil {
		return KeyMaterial{}, fmt.Errorf("authority certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return KeyMaterial{}, fmt.Errorf("parse authority certificate: %w", err)
	}

	key, err := parsePrivateKey(keyPEM, passphrase)
	if err != nil {
		return KeyMaterial{}, err
	}

	if !publicKeysMatch(cert, key) {
		return KeyMaterial{}, errors.New("authority key does not match certificate")
	}
	return KeyMaterial{Key: key, Cert: cert}, nil
}

func parsePrivateKey(keyPEM []byte, passphrase string) (crypto.Signer, error) {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, errors.New("authority key: no PEM data found")
	}

	der := block.Bytes
	if block.Type == sealedKeyBlockType {
		if passphrase == "" {
			return nil, errors.New("authority key is sealed but no passphrase is configured")
		}
		unsealed, err := unsealKey(block, passphrase)
		if err != nil {
			return nil, fmt.Errorf("unseal authority key: %w", err)
		}
		der = unsealed
	}

	switch block.Type {
	case pkcs1BlockType:
		return x509.ParsePKCS1PrivateKey(der)
	case ecBlockType:
		return x509.ParseECPrivateKey(der)
	case pkcs8BlockType, sealedKeyBlockType:
		parsed, err := x509.ParsePKCS8PrivateKey(der)
		if err != nil {
			return nil, fmt.Errorf("parse authority key: %w", err)
		}
		signer, ok := parsed.(crypto.Signer)
		if !ok {
			return nil, errors.New("authority key type does not support signing")
		}
		return signer, nil
	default:
		return nil, fmt.Errorf("unexpected PEM block %q for authority key", block.Type)
	}
}

// SealKey encrypts a PKCS#8 DER key under a passphrase, producing the PEM
// form NewKeyManager accepts. Salt and nonce must be fresh random bytes of
// 16 and 12 bytes respectively.
func SealKey(pkcs8DER []byte, passphrase string, salt, nonce []byte) ([]byte, error) {
	derived := pbkdf2.Key([]byte(passphrase), salt, sealedKeyIterations, sealedKeyLen, sha256.New)
	cipherBlock, err := aes.NewCipher(derived)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(cipherBlock)
	if err != nil {
		return nil, err
	}
	sealed := gcm.Seal(nil, nonce, pkcs8DER, nil)
	return pem.EncodeToMemory(&pem.Block{
		Type: sealedKeyBlockType,
		Headers: map[string]string{
			"Salt":  hex.EncodeToString(salt),
			"Nonce": hex.EncodeToString(nonce),
		},
		Bytes: sealed,
	}), nil
}

// unsealKey decrypts an AES-256-GCM sealed PKCS#8 key. The PEM headers
// carry the hex salt and nonce; the derivation is PBKDF2-SHA256.
func unsealKey(block *pem.Block, passphrase string) ([]byte, error) {
	salt, err := hexHeader(block, "Salt")
	if err != nil {
		return nil, err
	}
	nonce, err := hexHeader(block, "Nonce")
	if err != nil {
		return nil, err
	}

	derived := pbkdf2.Key([]byte(passphrase), salt, sealedKeyIterations, sealedKeyLen, sha256.New)
	cipherBlock, err := aes.NewCipher(derived)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(cipherBlock)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, block.Bytes, nil)
	if err != nil {
		return nil, errors.New("wrong passphrase or corrupted key file")
	}
	return plaintext, nil
}

func hexHeader(block *pem.Block, name string) ([]byte, error) {
	raw, ok := block.Headers[name]
	if !ok {
		return nil, fmt.Errorf("sealed key is missing the %s header", name)
	}
	decoded, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("sealed key header %s is not hex", name)
	}
	return decoded, nil
}

func decodeSingleBlock(data []byte, expected string) ([]byte, error) {
	block, rest := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM data found")
	}
	if block.Type != expected {
		return nil, fmt.Errorf("found PEM block %q instead of %q", block.Type, expected)
	}
	if len(rest) > 0 {
		return nil, errors.New("trailing data after PEM block")
	}
	return block.Bytes, nil
}

func publicKeysMatch(cert *x509.Certificate, key crypto.Signer) bool {
	certPub, err := x509.MarshalPKIXPublicKey(cert.PublicKey)
	if err != nil {
		return false
	}
	keyPub, err := x509.MarshalPKIXPublicKey(key.Public())
	if err != nil {
		return false
	}
	return bytes.Equal(certPub, keyPub)
}
