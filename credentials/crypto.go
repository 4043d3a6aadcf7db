package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	stderrors "errors"
	"fmt"

	"github.com/goliatone/go-errors"
	"golang.org/x/crypto/bcrypt"
)

// secretHashCost is lower than a password cost on purpose: OTP codes live
// five minutes and carry 20 bits of entropy, the hash only has to outlast
// a leaked store snapshot within that window.
const secretHashCost = 8

// Keys holds the key material for credential protection.
type Keys struct {
	// HMACKey keys the deterministic destination hash.
	HMACKey []byte
	// EncryptionKey is the AES key sealing destinations at rest.
	EncryptionKey []byte
}

// NewToken returns a fresh opaque credential token.
func NewToken() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// NewNumericCode returns a random zero-padded code of n digits.
func NewNumericCode(n int) (string, error) {
	const digits = "0123456789"

	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to generate code")
	}

	for i := range b {
		b[i] = digits[int(b[i])%len(digits)]
	}

	return string(b), nil
}

// HashDestination computes the deterministic keyed hash of a destination,
// used for store lookups and rate limiting without holding the raw value.
func (k Keys) HashDestination(destination string) string {
	mac := hmac.New(sha256.New, k.HMACKey)
	mac.Write([]byte(destination))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Seal encrypts a destination for storage.
func (k Keys) Seal(destination string) (string, error) {
	block, err := aes.NewCipher(k.EncryptionKey)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(destination), nil)

	return base64.URLEncoding.EncodeToString(ciphertext), nil
}

// Open decrypts a sealed destination.
func (k Keys) Open(sealed string) (string, error) {
	data, err := base64.URLEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}

	block, err := aes.NewCipher(k.EncryptionKey)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("sealed destination too short")
	}

	nonce, encrypted := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, encrypted, nil)
	if err != nil {
		return "", fmt.Errorf("failed to open sealed destination: %w", err)
	}

	return string(plaintext), nil
}

// HashSecret will generate a hash for an OTP code
func HashSecret(secret string) (string, error) {
	if secret == "" {
		return "", errors.New("secret must not be empty", errors.CategoryBadInput)
	}

	h, err := bcrypt.GenerateFromPassword([]byte(secret), secretHashCost)
	return string(h), err
}

// CompareSecret will validate the given cleartext secret matches the hash
func CompareSecret(secret, hash string) (bool, error) {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)); err != nil {
		if stderrors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
