package devbackend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/httplog/v3"
	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
)

// maxRequestBody caps JSON request bodies.
const maxRequestBody = 1 << 20

type subjectKey struct{}

// subject returns the user id authenticated by requireToken.
func subject(ctx context.Context) string {
	id, _ := ctx.Value(subjectKey{}).(string)
	return id
}

type signupRequest struct {
	Name     string `json:"name" validate:"max=200"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type accessTokenResponse struct {
	AccessToken string `json:"access_token"`
}

type playbackTokenResponse struct {
	Token   string `json:"token"`
	Exp     int64  `json:"exp"`
	VideoID string `json:"video_id"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req signupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := s.validate.Struct(req); err != nil {
		writeJSONError(ctx, w, validationMessage(err), http.StatusBadRequest)
		return
	}

	u, err := s.users.create(req.Name, req.Email, req.Password, s.cfg.now())
	switch {
	case errors.Is(err, errEmailTaken):
		writeJSONError(ctx, w, err.Error(), http.StatusConflict)
		return
	case errors.Is(err, errEmptyEmail), errors.Is(err, errEmptyPassword), errors.Is(err, errLongPassword):
		writeJSONError(ctx, w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		slog.ErrorContext(ctx, "failed to create user", "error", err)
		writeJSONError(ctx, w, "internal server error", http.StatusInternalServerError)
		return
	}

	s.writeTokenPair(ctx, w, u.ID, http.StatusCreated)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, ok := s.users.authenticate(req.Email, req.Password)
	if !ok {
		writeJSONError(ctx, w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	s.writeTokenPair(ctx, w, u.ID, http.StatusOK)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accessToken, _, err := s.tokens.issue(tokenTypeAccess, subject(ctx), "", s.cfg.accessTTL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to issue access token", "error", err)
		writeJSONError(ctx, w, "internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(ctx, w, accessTokenResponse{AccessToken: accessToken}, http.StatusOK)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	u, ok := s.users.get(subject(ctx))
	if !ok {
		writeJSONError(ctx, w, "user not found", http.StatusNotFound)
		return
	}

	writeJSON(ctx, w, map[string]publicUser{"user": u.public()}, http.StatusOK)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	writeJSON(ctx, w, map[string][]videoSummary{"items": s.catalog.dashboard(s.cfg.dashboardLimit)}, http.StatusOK)
}

func (s *Server) handlePlaybackToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	videoID := r.PathValue("id")

	if _, ok := s.catalog.active(videoID); !ok {
		writeJSONError(ctx, w, "video not found", http.StatusNotFound)
		return
	}

	token, expiresAt, err := s.tokens.issue(tokenTypePlayback, subject(ctx), videoID, s.cfg.playbackTTL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to issue playback token", "error", err)
		writeJSONError(ctx, w, "internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(ctx, w, playbackTokenResponse{
		Token:   token,
		Exp:     expiresAt.Unix(),
		VideoID: videoID,
	}, http.StatusOK)
}

// handleStream authorizes by playback token only, so media players can
// follow the link without the user's bearer token.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	videoID := r.PathValue("id")

	c, err := s.tokens.verify(r.URL.Query().Get("token"), tokenTypePlayback)
	if err != nil || c.VideoID == "" {
		writeJSONError(ctx, w, "invalid or expired token", http.StatusUnauthorized)
		return
	}
	if c.VideoID != videoID {
		writeJSONError(ctx, w, "token does not match video", http.StatusForbidden)
		return
	}

	video, ok := s.catalog.active(videoID)
	if !ok {
		writeJSONError(ctx, w, "video not found", http.StatusNotFound)
		return
	}

	stream, err := resolveStream(video)
	if err != nil {
		slog.ErrorContext(ctx, "video has no playable source", "video.id", videoID, "error", err)
		writeJSONError(ctx, w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(ctx, w, stream, http.StatusOK)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, map[string]string{"status": "ok"}, http.StatusOK)
}

// requireToken rejects requests without a valid bearer token of type typ and
// makes its subject available to next.
func (s *Server) requireToken(typ tokenType, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeJSONError(ctx, w, "missing authorization header", http.StatusUnauthorized)
			return
		}

		c, err := s.tokens.verify(raw, typ)
		if err != nil {
			message := "invalid token"
			switch {
			case errors.Is(err, jwt.ErrTokenExpired):
				message = "token has expired"
			case errors.Is(err, errWrongTokenType):
				message = fmt.Sprintf("only %s tokens are allowed", typ)
			}
			writeJSONError(ctx, w, message, http.StatusUnauthorized)
			return
		}

		httplog.SetAttrs(ctx, slog.String("user.id", c.Subject))
		next(w, r.WithContext(context.WithValue(ctx, subjectKey{}, c.Subject)))
	})
}

func (s *Server) writeTokenPair(ctx context.Context, w http.ResponseWriter, userID string, status int) {
	accessToken, _, err := s.tokens.issue(tokenTypeAccess, userID, "", s.cfg.accessTTL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to issue access token", "error", err)
		writeJSONError(ctx, w, "internal server error", http.StatusInternalServerError)
		return
	}
	refreshToken, _, err := s.tokens.issue(tokenTypeRefresh, userID, "", s.cfg.refreshTTL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to issue refresh token", "error", err)
		writeJSONError(ctx, w, "internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(ctx, w, tokenPairResponse{AccessToken: accessToken, RefreshToken: refreshToken}, status)
}

// decodeJSON decodes the request body into v, answering 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(v); err != nil {
		writeJSONError(r.Context(), w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// validationMessage describes the first failed field of a validation error.
func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "invalid request"
	}

	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " must not be empty"
	case "email":
		return fe.Field() + " must be a valid email address"
	case "max":
		return fe.Field() + " is too long"
	default:
		return fe.Field() + " is invalid"
	}
}
