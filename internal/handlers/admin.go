package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	pkghttp "github.com/avikram1/campusauth/pkg/http"
)

// SessionCleanupService runs the expired-session sweep on demand
type SessionCleanupService interface {
	CleanupExpiredSessions(ctx context.Context) (int64, error)
}

// AdminHandler handles operational endpoints gated by a shared secret
type AdminHandler struct {
	cleanup       SessionCleanupService
	cleanupSecret string
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(cleanup SessionCleanupService, cleanupSecret string) *AdminHandler {
	return &AdminHandler{
		cleanup:       cleanup,
		cleanupSecret: cleanupSecret,
	}
}

// SessionCleanupResponse reports the outcome of a cleanup sweep
type SessionCleanupResponse struct {
	CleanedSessions int64  `json:"cleanedSessions"`
	Timestamp       string `json:"timestamp"`
}

// SessionCleanup force-clears stale sessions. Intended to be hit by a cron
// scheduler with the shared bearer secret; safe to call repeatedly.
func (h *AdminHandler) SessionCleanup(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		pkghttp.WriteUnauthorized(w, "Invalid or missing bearer token")
		return
	}

	cleaned, err := h.cleanup.CleanupExpiredSessions(r.Context())
	if err != nil {
		pkghttp.WriteInternalError(w, "Session cleanup failed")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, &SessionCleanupResponse{
		CleanedSessions: cleaned,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *AdminHandler) authorized(r *http.Request) bool {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return false
	}

	token := strings.TrimPrefix(header, "Bearer ")
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.cleanupSecret)) == 1
}
