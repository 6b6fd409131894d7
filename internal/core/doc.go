// Package core provides the password cipher and the token vault built on it.
//
// Cipher derives an AES-256-GCM key from a password and a 16-byte salt with
// PBKDF2-HMAC-SHA256 (390,000 iterations). The salt is the only state written
// to disk; it lives in a salt file (default "salt.txt") inside an explicit
// storage directory. Two constructors select how the salt is obtained:
//   - NewFreshSalt: generate a salt, optionally persisting it immediately
//   - NewExistingSalt: load the persisted salt so the same key is re-derived
//
// Vault stores named tokens encrypted by a Cipher:
//   - Init: Create the vault and its password checksum
//   - Put/Get/Remove: Manage encrypted tokens
//   - List/Status: Inspect the vault without a password
//   - Diff: Compare a stored token with a candidate value
//   - ChangePassword: Re-encrypt every token under a new password, optionally rotating the salt
package core
