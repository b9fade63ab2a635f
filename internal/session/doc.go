// Package session manages the authenticated state of the client and keeps
// outbound requests authorized.
//
// Transport is an http.RoundTripper that attaches the stored access token to
// every request. When the backend answers 401, the transport exchanges the
// stored refresh token for a new access token and replays the request once:
//
//	store := credstore.NewMemoryStore()
//	refresher, _ := backend.New(baseURL)
//	client := &http.Client{Transport: session.NewTransport(store, refresher)}
//
// Concurrent requests that fail with 401 share a single exchange. If the
// exchange fails, or no refresh token is stored, the session is cleared and
// callers are expected to route the user back to login.
//
// Manager covers the rest of the session lifecycle: persisting the token pair
// after login or signup, logout, and deriving State from the store.
package session
