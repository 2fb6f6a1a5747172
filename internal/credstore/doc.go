// Package credstore provides persistent storage abstractions for the
// credential pair (access and refresh tokens) used to authenticate calls
// against the platform API.
//
// Supports several storage backends with different security and deployment tradeoffs:
//   - File: Local filesystem storage with atomic writes and secure permissions
//   - Env: Read-only environment variable access (requires external secret management)
//   - Keyring: OS-native credential storage (macOS Keychain, Windows Credential Manager, etc.)
//   - Bolt: Embedded bbolt database, useful when the surrounding application already keeps one
//   - Mem: In-process storage for tests and embedding applications
//
// The refresh protocol requires writable storage; the read-only env backend
// only suits deployments where credentials are rotated externally.
package credstore
