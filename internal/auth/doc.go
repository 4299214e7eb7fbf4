// Package auth provides authentication and session lifecycle for Stockroom Core.
//
// It implements:
//   - Argon2id password hashing (OWASP 2025 recommendation)
//   - Signed, time-bounded identity tokens (JWT HS256) with per-issuance JTI
//   - A persisted revocation list so logout invalidates a token before its
//     natural expiry
//   - Account directory persistence (SQLite)
//   - Orchestration of register / login / refresh / logout
//
// Identity tokens are stateless by default: validity is a function of
// signature and expiration. The revocation list is the single server-side
// exception, consulted on every Authenticate and Refresh so that a
// logged-out token fails immediately rather than lingering until expiry.
package auth
