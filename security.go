package gatecache

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"
)

const (
	// scryptN is the CPU/memory cost parameter for scrypt key derivation
	scryptN = 32768
	// scryptR is the block size parameter for scrypt
	scryptR = 8
	// scryptP is the parallelization parameter for scrypt
	scryptP = 1
	// keyLength is the desired key length for AES-256
	keyLength = 32
)

// EncryptedEntityStore wraps a KeyedEntityStore, sealing stored bodies with
// AES-256-GCM. Digests address the plaintext, so a hit read back through
// the wrapper still verifies against X-Content-Digest.
type EncryptedEntityStore struct {
	inner KeyedEntityStore
	gcm   cipher.AEAD
}

// NewEncryptedEntityStore derives an AES-256 key from passphrase with
// scrypt and returns the encrypting wrapper.
func NewEncryptedEntityStore(inner KeyedEntityStore, passphrase string) (*EncryptedEntityStore, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("encryption passphrase cannot be empty")
	}
	gcm, err := initEncryption(passphrase)
	if err != nil {
		return nil, err
	}
	return &EncryptedEntityStore{inner: inner, gcm: gcm}, nil
}

// Write seals body and stores the ciphertext under the plaintext digest.
func (s *EncryptedEntityStore) Write(ctx context.Context, body io.Reader) (string, int64, error) {
	plain, err := io.ReadAll(body)
	if err != nil {
		return "", 0, err
	}
	digest := EntityDigest(plain)
	sealed, err := encrypt(s.gcm, plain)
	if err != nil {
		return "", 0, err
	}
	if _, err := s.inner.WriteKeyed(ctx, digest, bytes.NewReader(sealed)); err != nil {
		return "", 0, err
	}
	return digest, int64(len(plain)), nil
}

// WriteKeyed seals body and stores the ciphertext under digest.
func (s *EncryptedEntityStore) WriteKeyed(ctx context.Context, digest string, body io.Reader) (int64, error) {
	plain, err := io.ReadAll(body)
	if err != nil {
		return 0, err
	}
	sealed, err := encrypt(s.gcm, plain)
	if err != nil {
		return 0, err
	}
	if _, err := s.inner.WriteKeyed(ctx, digest, bytes.NewReader(sealed)); err != nil {
		return 0, err
	}
	return int64(len(plain)), nil
}

// Read opens the sealed body under digest and returns the plaintext.
func (s *EncryptedEntityStore) Read(ctx context.Context, digest string) (io.ReadCloser, error) {
	rc, err := s.inner.Read(ctx, digest)
	if err != nil {
		return nil, err
	}
	sealed, err := io.ReadAll(rc)
	closeErr := rc.Close()
	if err != nil {
		return nil, err
	}
	if closeErr != nil {
		return nil, closeErr
	}
	plain, err := decrypt(s.gcm, sealed)
	if err != nil {
		return nil, fmt.Errorf("entity decrypt failed for %q: %w", digest, err)
	}
	return io.NopCloser(bytes.NewReader(plain)), nil
}

// Purge removes the sealed body under digest.
func (s *EncryptedEntityStore) Purge(ctx context.Context, digest string) error {
	return s.inner.Purge(ctx, digest)
}

// initEncryption initializes the AES-256-GCM cipher using the passphrase.
func initEncryption(passphrase string) (cipher.AEAD, error) {
	// Fixed salt; the passphrase is the secret. Rotating the salt would
	// orphan every stored body.
	salt := sha256.Sum256([]byte("gatecache-entitystore-salt-v1"))
	key, err := scrypt.Key([]byte(passphrase), salt[:], scryptN, scryptR, scryptP, keyLength)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// encrypt seals data, prepending the random nonce.
func encrypt(gcm cipher.AEAD, data []byte) ([]byte, error) {
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, data, nil), nil
}

// decrypt opens data sealed by encrypt.
func decrypt(gcm cipher.AEAD, data []byte) ([]byte, error) {
	if len(data) < gcm.NonceSize() {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce := data[:gcm.NonceSize()]
	ciphertext := data[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plain, nil
}
