package handlers

import (
	"net/http"
	"time"
)

// HandleStatus answers the liveness check the web client polls.
func (s *Server) HandleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Server is live"))
	}
}

// HandleHealth reports presence and session counts.
func (s *Server) HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]interface{}{
			"status":      "healthy",
			"onlineUsers": s.Registry.Len(),
			"sessions":    s.Hub.Count(),
			"server_time": time.Now().UTC(),
		}
		if s.Metrics != nil {
			body["uptime"] = s.Metrics.Uptime().Round(time.Second).String()
		}
		writeJSON(w, http.StatusOK, body)
	}
}
