// Package crypto provides cryptographic operations for tokenseal.
//
// Encryption uses AES-256-GCM with:
//   - 32-byte key derived from password via PBKDF2
//   - 12-byte random nonce per encryption operation
//   - 16-byte authentication tag; tampered tokens are rejected outright
//
// Tokens are base64url(nonce || ciphertext || tag), padded, decoded strictly.
//
// Key derivation uses PBKDF2-HMAC-SHA256 with:
//   - 16-byte random salt (stored unencrypted next to the data)
//   - 390,000 iterations
//
// Memory safety:
//   - Use ClearBytes() to zero sensitive data after use
//   - Call Encryptor.Destroy() when done with encryption operations
package crypto
