// Package devbackend is an in-memory implementation of the video backend API
// for local development and end-to-end tests of the client.
//
// It issues HS256 JWT access and refresh tokens, keeps users and the video
// catalogue in memory, and mints short-lived playback tokens bound to a single
// video. State is lost when the process exits.
package devbackend
