package http

import (
	"net/http"

	"go.uber.org/zap"
)

// Sessions ends shopper sessions.
type Sessions interface {
	Drop(sessionID string)
}

type SessionHandler struct {
	sessions Sessions
	logger   *zap.Logger
}

func NewSessionHandler(sessions Sessions, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// End discards the caller's session and its cart and expires the cookie.
func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	if sessionID := requestSession(r); sessionID != "" {
		h.sessions.Drop(sessionID)
		h.logger.Info("session ended by client", zap.String("session_id", sessionID))
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}
