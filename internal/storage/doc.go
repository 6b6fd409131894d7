// Package storage provides the BBolt database interface for the tokenseal vault.
//
// Database structure uses four buckets:
//   - config: KDF iterations, timestamps, vault id (unencrypted)
//   - index: Token names, sizes, timestamps (unencrypted, for ls/status)
//   - tokens: Encrypted token values
//   - private: Encrypted password checksum
//
// The salt is not stored here; it lives in its own salt file next to the
// database so that the cipher can be rebuilt without opening the vault.
//
// BBolt provides ACID transactions, file locking, and corruption detection.
package storage
