package handlers

import (
	"net/http"

	"quickchat/internal/middleware"
	"quickchat/internal/websocket"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
)

func (s *Server) upgrader() *ws.Upgrader {
	return &ws.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// HandleWebSocket upgrades to a live session. The token comes from ?token=
// or the token header; without a valid one the session is anonymous and only
// receives online-set broadcasts.
func (s *Server) HandleWebSocket() http.HandlerFunc {
	upgrader := s.upgrader()
	return func(w http.ResponseWriter, r *http.Request) {
		userID := uuid.Nil
		tokenString := r.URL.Query().Get("token")
		if tokenString == "" {
			tokenString = middleware.TokenFromRequest(r)
		}
		if tokenString != "" {
			claims, err := s.Tokens.ValidateToken(tokenString)
			if err != nil {
				s.log.Infow("websocket token rejected, continuing anonymous", "error", err)
			} else {
				userID = claims.UserID
			}
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// The upgrader has already answered the request.
			s.log.Debugw("websocket upgrade failed", "error", err)
			return
		}

		websocket.NewSession(conn, userID, s.sessionDeps()).Start()
	}
}
