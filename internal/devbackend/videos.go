package devbackend

import (
	"errors"
	"net/url"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Video is a catalogue entry.
type Video struct {
	ID           string
	Title        string
	Description  string
	YouTubeID    string
	VideoURL     string
	ThumbnailURL string
	Active       bool
}

var youtubeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{6,}$`)

var errInvalidYouTubeID = errors.New("invalid youtube_id")

// VideoID derives a stable catalogue id from a YouTube id, so ids survive restarts.
func VideoID(youtubeID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://www.youtube.com/watch?v="+youtubeID)).String()
}

// DefaultCatalog returns the public sample videos the backend starts with.
func DefaultCatalog() []Video {
	return []Video{
		{
			ID:           VideoID("sample1"),
			Title:        "Big Buck Bunny (Sample)",
			Description:  "A public sample MP4 that plays reliably in mobile players.",
			YouTubeID:    "sample1",
			VideoURL:     "https://commondatastorage.googleapis.com/gtv-videos-bucket/sample/BigBuckBunny.mp4",
			ThumbnailURL: "https://commondatastorage.googleapis.com/gtv-videos-bucket/sample/images/BigBuckBunny.jpg",
			Active:       true,
		},
		{
			ID:           VideoID("sample2"),
			Title:        "Elephant Dream (Sample)",
			Description:  "Another public sample MP4 for testing dashboard and playback.",
			YouTubeID:    "sample2",
			VideoURL:     "https://commondatastorage.googleapis.com/gtv-videos-bucket/sample/ElephantsDream.mp4",
			ThumbnailURL: "https://commondatastorage.googleapis.com/gtv-videos-bucket/sample/images/ElephantsDream.jpg",
			Active:       true,
		},
	}
}

// videoSummary is a dashboard item.
type videoSummary struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// streamResponse is the body of GET /video/{id}/stream.
type streamResponse struct {
	URL        string  `json:"url"`
	WatchURL   *string `json:"watch_url"`
	StreamType string  `json:"stream_type"`
}

// catalog is an immutable, ordered video list; later entries are newer.
type catalog struct {
	videos []Video
	byID   map[string]Video
}

func newCatalog(videos []Video) *catalog {
	c := &catalog{
		videos: videos,
		byID:   make(map[string]Video, len(videos)),
	}
	for _, v := range videos {
		c.byID[v.ID] = v
	}
	return c
}

// active returns the video if it exists and is active.
func (c *catalog) active(id string) (Video, bool) {
	v, ok := c.byID[id]
	return v, ok && v.Active
}

// dashboard lists up to limit active videos, newest first.
func (c *catalog) dashboard(limit int) []videoSummary {
	items := make([]videoSummary, 0, min(limit, len(c.videos)))
	for i := len(c.videos) - 1; i >= 0 && len(items) < limit; i-- {
		v := c.videos[i]
		if !v.Active {
			continue
		}
		items = append(items, videoSummary{
			ID:           v.ID,
			Title:        v.Title,
			Description:  v.Description,
			ThumbnailURL: v.ThumbnailURL,
		})
	}
	return items
}

// resolveStream prefers a direct media URL and falls back to a YouTube embed.
func resolveStream(v Video) (streamResponse, error) {
	if direct := safeHTTPURL(v.VideoURL); direct != "" {
		return streamResponse{URL: direct, StreamType: "mp4"}, nil
	}

	youtubeID := strings.TrimSpace(v.YouTubeID)
	if !youtubeIDPattern.MatchString(youtubeID) {
		return streamResponse{}, errInvalidYouTubeID
	}
	watch := "https://www.youtube.com/watch?v=" + youtubeID
	return streamResponse{
		URL:        "https://www.youtube.com/embed/" + youtubeID,
		WatchURL:   &watch,
		StreamType: "embed",
	}, nil
}

// safeHTTPURL returns raw if it is an absolute http(s) URL, else "".
func safeHTTPURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ""
	}
	return raw
}
