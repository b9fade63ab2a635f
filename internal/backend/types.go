package backend

import (
	"net/url"
	"strings"
)

// SignupRequest is the payload of POST /auth/signup.
type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the payload of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// tokenResponse is returned by signup, login and refresh.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// User is the public profile returned by GET /auth/me.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	// CreatedAt is passed through as sent; backends differ in timestamp format.
	CreatedAt string `json:"created_at"`
}

type meResponse struct {
	User User `json:"user"`
}

// Video is a dashboard entry.
type Video struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	ThumbnailURL string `json:"thumbnail_url"`
}

type dashboardResponse struct {
	Items []Video `json:"items"`
}

// PlaybackToken authorizes fetching the stream URL of one video.
type PlaybackToken struct {
	Token   string `json:"token"`
	VideoID string `json:"video_id"`
	// Exp is the expiry as a Unix timestamp.
	Exp int64 `json:"exp"`
}

// Stream types reported by the backend or inferred from the URL.
const (
	StreamTypeMP4   = "mp4"
	StreamTypeEmbed = "embed"
)

// Stream locates the playable media of a video.
type Stream struct {
	URL        string  `json:"url"`
	WatchURL   *string `json:"watch_url,omitempty"`
	StreamType *string `json:"stream_type,omitempty"`
}

// Kind returns the stream type, inferring it from the URL when the backend
// did not report one. It returns "" when nothing can be inferred.
func (s *Stream) Kind() string {
	if s.StreamType != nil && *s.StreamType != "" {
		return *s.StreamType
	}
	if strings.Contains(s.URL, "youtube.com/embed") {
		return StreamTypeEmbed
	}
	if strings.HasSuffix(strings.ToLower(s.URL), ".mp4") {
		return StreamTypeMP4
	}
	return ""
}

// embedPlayerParams make embedded players start inline with minimal chrome.
var embedPlayerParams = url.Values{
	"autoplay":       {"1"},
	"controls":       {"1"},
	"playsinline":    {"1"},
	"modestbranding": {"1"},
	"rel":            {"0"},
}

// PlayerURL returns the URL to open in a player. Embed URLs get the player
// parameters appended; other URLs are returned unchanged.
func (s *Stream) PlayerURL() string {
	if s.Kind() != StreamTypeEmbed {
		return s.URL
	}
	join := "?"
	if strings.Contains(s.URL, "?") {
		join = "&"
	}
	return s.URL + join + embedPlayerParams.Encode()
}
