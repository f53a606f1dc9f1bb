package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/conectasei/conectasei/internal/interfaces"
	"github.com/conectasei/conectasei/internal/models"
)

const (
	keyIterations = 100_000
	keyLength     = 32
)

// keySalt is fixed so the derived key is stable across restarts. Rotation
// of the passphrase requires re-encrypting every tenant row.
var keySalt = []byte("conectasei-credential-vault")

// Vault encrypts tenant credentials with AES-256-GCM under a key derived
// from the configured passphrase.
type Vault struct {
	aead cipher.AEAD
}

// New derives the encryption key and prepares the cipher. The passphrase
// must be non-empty.
func New(passphrase string) (*Vault, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("%w: encryption key is not set", models.ErrConfig)
	}

	key := pbkdf2.Key([]byte(passphrase), keySalt, keyIterations, keyLength, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GCM: %w", err)
	}

	return &Vault{aead: aead}, nil
}

var _ interfaces.CredentialVault = (*Vault)(nil)

// Encrypt serializes and seals the credentials. Empty credentials encrypt
// to the empty string so an unset pair round-trips as unset.
func (v *Vault) Encrypt(creds models.Credentials) (string, error) {
	if creds.Email == "" && creds.Password == "" {
		return "", nil
	}

	plaintext, err := json.Marshal(creds)
	if err != nil {
		return "", fmt.Errorf("failed to serialize credentials: %w", err)
	}

	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := v.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. The empty string decrypts to empty credentials.
func (v *Vault) Decrypt(ciphertext string) (models.Credentials, error) {
	if ciphertext == "" {
		return models.Credentials{}, nil
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return models.Credentials{}, fmt.Errorf("failed to decode credentials: %w", err)
	}
	if len(raw) < v.aead.NonceSize() {
		return models.Credentials{}, fmt.Errorf("credential ciphertext too short")
	}

	nonce, sealed := raw[:v.aead.NonceSize()], raw[v.aead.NonceSize():]
	plaintext, err := v.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return models.Credentials{}, fmt.Errorf("failed to decrypt credentials: %w", err)
	}

	var creds models.Credentials
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return models.Credentials{}, fmt.Errorf("failed to deserialize credentials: %w", err)
	}
	return creds, nil
}
