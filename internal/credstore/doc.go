// Package credstore persists the two bearer credentials of a session: the
// short-lived access token and the refresh token used to mint new ones.
//
// Three backends are available:
//   - File: a single JSON document with atomic writes and 0600 permissions
//   - Keyring: OS-native credential storage (macOS Keychain, Windows Credential Manager, Secret Service)
//   - Memory: process-local storage, lost on exit
//
// All backends treat a missing key as ErrNotFound and make Clear the only way
// to drop a whole session.
package credstore
