package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/ssh"
)

// EncryptionMethod defines how secrets are sealed at rest
type EncryptionMethod string

const (
	EncryptionNone   EncryptionMethod = "none"
	EncryptionSSHKey EncryptionMethod = "ssh_key"
)

// sealedPrefix marks a string produced by Seal so plaintext values written
// before encryption was enabled are still readable.
const sealedPrefix = "enc:v1:"

// EncryptionManager seals API keys before they are persisted. With the
// ssh_key method the AES key is derived from a signature made with the user's
// SSH key, so nothing secret is stored next to the data.
type EncryptionManager struct {
	method     EncryptionMethod
	sshKeyPath string
	passphrase string
	aesKey     []byte
}

// NewEncryptionManager creates a new encryption manager
func NewEncryptionManager(method EncryptionMethod, sshKeyPath string) *EncryptionManager {
	if method == "" {
		method = EncryptionNone
	}
	return &EncryptionManager{
		method:     method,
		sshKeyPath: ExpandPath(sshKeyPath),
	}
}

// SetPassphrase sets the passphrase for decrypting the SSH key
func (e *EncryptionManager) SetPassphrase(passphrase string) {
	e.passphrase = passphrase
}

// Initialize loads the SSH key and derives the AES key. It is a no-op for EncryptionNone.
func (e *EncryptionManager) Initialize() error {
	switch e.method {
	case EncryptionNone:
		return nil

	case EncryptionSSHKey:
		if e.sshKeyPath == "" {
			return fmt.Errorf("ssh_key encryption requires ssh_key_path")
		}

		signer, err := loadSigner(e.sshKeyPath, e.passphrase)
		if err != nil {
			return err
		}
		if Debug {
			DebugLog.Debugf("[EncryptionManager] Initialize: using %s key %s", signer.PublicKey().Type(), e.sshKeyPath)
		}

		aesKey, err := DeriveAESKeyFromSSH(signer)
		if err != nil {
			return fmt.Errorf("failed to derive encryption key: %w", err)
		}
		e.aesKey = aesKey
		return nil

	default:
		return fmt.Errorf("unknown encryption method: %s", e.method)
	}
}

// Seal encrypts a secret for storage. Empty strings and EncryptionNone pass through.
func (e *EncryptionManager) Seal(plaintext string) (string, error) {
	if plaintext == "" || e.method == EncryptionNone {
		return plaintext, nil
	}
	if e.aesKey == nil {
		return "", fmt.Errorf("encryption manager not initialized")
	}

	ciphertext, err := encryptAESGCM([]byte(plaintext), e.aesKey)
	if err != nil {
		return "", err
	}
	return sealedPrefix + base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Open reverses Seal. Values without the sealed prefix are returned unchanged.
func (e *EncryptionManager) Open(stored string) (string, error) {
	if !strings.HasPrefix(stored, sealedPrefix) {
		return stored, nil
	}
	if e.aesKey == nil {
		return "", fmt.Errorf("sealed value found but %s encryption is not initialized", e.method)
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("invalid sealed value: %w", err)
	}
	plaintext, err := decryptAESGCM(raw, e.aesKey)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// encryptAESGCM encrypts data using AES-256-GCM
// Format: [nonce (12 bytes)][ciphertext + tag]
func encryptAESGCM(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// decryptAESGCM decrypts data using AES-256-GCM
// Expects format: [nonce (12 bytes)][ciphertext + tag]
func decryptAESGCM(ciphertext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	plaintext, err := gcm.Open(nil, ciphertext[:nonceSize], ciphertext[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}

	return plaintext, nil
}

// DeriveAESKeyFromSSH derives a 32-byte AES-256 key from an SSH key signature.
// Ed25519 and RSA PKCS#1 v1.5 signatures are deterministic, so the same key
// always yields the same AES key.
func DeriveAESKeyFromSSH(signer ssh.Signer) ([]byte, error) {
	message := []byte("chatdesk-encryption-key-derivation-v1")

	signature, err := signer.Sign(rand.Reader, message)
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}

	hash := sha256.Sum256(signature.Blob)
	return hash[:], nil
}
