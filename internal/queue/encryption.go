package queue

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"os"

	"golang.org/x/crypto/pbkdf2"
)

const (
	encryptionSecretEnv = "COURIER_QUEUE_ENCRYPTION_SECRET"
	encryptionSalt      = "courier-queue-v1"
	keyIterations       = 100000
	keySize             = 32
	nonceSize           = 12
	minSecretLength     = 32
)

// encryptor protects the queue file at rest. Fallback items can carry
// message bodies and media bytes, so the file gets the same treatment a
// remote store would give them. Encryption is enabled by setting
// COURIER_QUEUE_ENCRYPTION_SECRET; without it the file is plaintext JSON.
type encryptor struct {
	gcm cipher.AEAD
}

func newEncryptor() (*encryptor, error) {
	secret := os.Getenv(encryptionSecretEnv)
	if secret == "" {
		return &encryptor{}, nil
	}

	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("queue encryption secret must be at least %d characters long", minSecretLength)
	}

	key := pbkdf2.Key([]byte(secret), []byte(encryptionSalt), keyIterations, keySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &encryptor{gcm: gcm}, nil
}

func (e *encryptor) seal(plaintext []byte) ([]byte, error) {
	if e.gcm == nil {
		return plaintext, nil
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return e.gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func (e *encryptor) open(data []byte) ([]byte, error) {
	if e.gcm == nil {
		return data, nil
	}

	if len(data) < nonceSize {
		return nil, fmt.Errorf("queue file too short to contain nonce")
	}

	plaintext, err := e.gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt queue file: %w", err)
	}

	return plaintext, nil
}
