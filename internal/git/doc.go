// Package git provides git integration status checks for tokenseal.
//
// Checks performed:
//   - Whether the salt file is tracked by git (losing it orphans every token)
//   - Whether the vault file is tracked by git
//   - Whether .env files, which may carry TOKENSEAL_PASSWORD, are tracked (should not be)
package git
