package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/pbkdf2"
)

const (
	SaltSize     = 16     // Salt size in bytes
	KeySize      = 32     // AES-256 key size
	NonceSize    = 12     // GCM nonce size
	TagSize      = 16     // GCM authentication tag size
	DefaultIters = 390000 // PBKDF2-HMAC-SHA256 iterations
)

var (
	ErrAuthFailed = errors.New("authentication failed")
	// ErrInvalidToken is returned for tokens that cannot even be parsed.
	// It matches ErrAuthFailed with errors.Is.
	ErrInvalidToken = fmt.Errorf("%w: malformed token", ErrAuthFailed)
	ErrEncoding     = errors.New("invalid utf-8 encoding")
	ErrInvalidKey   = errors.New("invalid key size")
)

// tokenEncoding is the padded URL-safe alphabet. Strict decoding rejects
// non-zero trailing bits so every bit of a token is significant.
var tokenEncoding = base64.URLEncoding.Strict()

// KDF handles key derivation from passwords
type KDF struct {
	Salt       []byte
	Iterations int
}

// NewKDF creates a new KDF with a random salt
func NewKDF() (*KDF, error) {
	salt, err := GenerateRandom(SaltSize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	return &KDF{
		Salt:       salt,
		Iterations: DefaultIters,
	}, nil
}

// DeriveKey derives an encryption key from a password
func (k *KDF) DeriveKey(password []byte) []byte {
	return pbkdf2.Key(password, k.Salt, k.Iterations, KeySize, sha256.New)
}

// Encryptor provides authenticated encryption with AES-256-GCM.
// The AEAD is built once; Encrypt and Decrypt are safe for concurrent use.
type Encryptor struct {
	key  []byte
	aead cipher.AEAD
}

// NewEncryptor creates a new encryptor with the given key
func NewEncryptor(key []byte) (*Encryptor, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKey, len(key), KeySize)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Encryptor{
		key:  key,
		aead: gcm,
	}, nil
}

// Encrypt encrypts plaintext and returns nonce || ciphertext || tag
func (e *Encryptor) Encrypt(plaintext []byte) ([]byte, error) {
	nonce, err := GenerateRandom(NonceSize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Seal appends to the nonce slice, so the result is nonce-prefixed
	return e.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt verifies and decrypts nonce || ciphertext || tag
func (e *Encryptor) Decrypt(sealed []byte) ([]byte, error) {
	if len(sealed) < NonceSize+TagSize {
		return nil, ErrInvalidToken
	}

	nonce := sealed[:NonceSize]
	plaintext, err := e.aead.Open(nil, nonce, sealed[NonceSize:], nil)
	if err != nil {
		return nil, ErrAuthFailed
	}

	return plaintext, nil
}

// EncryptString encrypts UTF-8 text into a base64url token
func (e *Encryptor) EncryptString(plaintext string) ([]byte, error) {
	if !utf8.ValidString(plaintext) {
		return nil, ErrEncoding
	}

	sealed, err := e.Encrypt([]byte(plaintext))
	if err != nil {
		return nil, err
	}
	return EncodeToken(sealed), nil
}

// DecryptString decodes and decrypts a base64url token into UTF-8 text
func (e *Encryptor) DecryptString(token []byte) (string, error) {
	sealed, err := DecodeToken(token)
	if err != nil {
		return "", err
	}

	plaintext, err := e.Decrypt(sealed)
	if err != nil {
		return "", err
	}
	defer ClearBytes(plaintext)

	if !utf8.Valid(plaintext) {
		return "", ErrEncoding
	}

	return string(plaintext), nil
}

// EncodeToken encodes sealed bytes with the token alphabet
func EncodeToken(sealed []byte) []byte {
	token := make([]byte, tokenEncoding.EncodedLen(len(sealed)))
	tokenEncoding.Encode(token, sealed)
	return token
}

// DecodeToken strictly decodes a token into sealed bytes
func DecodeToken(token []byte) ([]byte, error) {
	sealed := make([]byte, tokenEncoding.DecodedLen(len(token)))
	n, err := tokenEncoding.Decode(sealed, token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return sealed[:n], nil
}

// Destroy zeroes the raw key bytes. The expanded AES key schedule inside
// the AEAD is not reachable from here and stays in memory until collected.
func (e *Encryptor) Destroy() {
	ClearBytes(e.key)
}

// ClearBytes securely clears a byte slice
func ClearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// ConstantTimeCompare performs a constant-time comparison of two byte slices
func ConstantTimeCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// GenerateRandom generates n random bytes
func GenerateRandom(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return b, nil
}
