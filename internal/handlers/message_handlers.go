package handlers

import (
	"net/http"

	"quickchat/internal/api"
)

// SendMessageRequest needs text or an image; the engine enforces that.
type SendMessageRequest struct {
	Text  string `json:"text"`
	Image string `json:"image"`
}

// HandleSidebarUsers lists every other user with per-sender unseen counts.
func (s *Server) HandleSidebarUsers() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUserID(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		users, err := s.Engine.ListUsers(r.Context(), userID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		counts, err := s.Engine.UnseenCounts(r.Context(), userID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		unseen := make(map[string]int, len(counts))
		for _, u := range users {
			if n := counts[u.ID]; n > 0 {
				unseen[u.ID.String()] = n
			}
		}
		writeJSON(w, http.StatusOK, api.SidebarResponse{
			Success:        true,
			Users:          users,
			UnseenMessages: unseen,
		})
	}
}

// HandleOpenConversation returns the thread with {id} and marks what they
// sent to the caller as seen.
func (s *Server) HandleOpenConversation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUserID(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		otherID, err := pathID(r, "user")
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		messages, err := s.Engine.OpenConversation(r.Context(), userID, otherID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, api.MessagesResponse{Success: true, Messages: messages})
	}
}

func (s *Server) HandleMarkSeen() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		messageID, err := pathID(r, "message")
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		if err := s.Engine.MarkSeen(r.Context(), messageID); err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, api.Response{Success: true})
	}
}

// HandleSendMessage stores a message to {id} and pushes it if they are
// online.
func (s *Server) HandleSendMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		senderID, err := currentUserID(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		receiverID, err := pathID(r, "receiver")
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		var req SendMessageRequest
		if err := s.decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		msg, err := s.Engine.CreateMessage(r.Context(), senderID, receiverID, req.Text, req.Image)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, api.NewMessageResponse{Success: true, NewMessage: msg})
	}
}
