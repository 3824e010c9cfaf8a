package handlers

import (
	"net/http"

	"quickchat/internal/api"
	"quickchat/internal/models"
)

// SignupRequest represents a request to create an account
type SignupRequest struct {
	FullName string `json:"fullName" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Bio      string `json:"bio" validate:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// UpdateProfileRequest updates the caller's profile. ProfilePic is an already
// hosted image reference; empty keeps the current one.
type UpdateProfileRequest struct {
	FullName   string `json:"fullName" validate:"required"`
	Bio        string `json:"bio"`
	ProfilePic string `json:"profilePic"`
}

// HandleSignup creates an account and returns it with a session token.
func (s *Server) HandleSignup() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SignupRequest
		if err := s.decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		user, err := s.Engine.Register(r.Context(), req.FullName, req.Email, req.Password, req.Bio)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		token, err := s.Tokens.GenerateToken(user.ID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, api.AuthResponse{
			Success:  true,
			UserData: user,
			Token:    token,
			Message:  "Account created successfully",
		})
	}
}

func (s *Server) HandleLogin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := s.decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		user, err := s.Engine.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		token, err := s.Tokens.GenerateToken(user.ID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, api.AuthResponse{
			Success:  true,
			UserData: user,
			Token:    token,
			Message:  "Login successful",
		})
	}
}

// HandleCheckAuth returns the user behind the token.
func (s *Server) HandleCheckAuth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUserID(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		user, err := s.Engine.GetUser(r.Context(), userID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, api.UserResponse{Success: true, User: user})
	}
}

// HandleUpdateProfile updates name and bio, and the picture when given. Every
// branch answers.
func (s *Server) HandleUpdateProfile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUserID(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		var req UpdateProfileRequest
		if err := s.decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		user, err := s.Engine.UpdateProfile(r.Context(), userID, models.ProfileUpdate{
			FullName:   req.FullName,
			Bio:        req.Bio,
			ProfilePic: req.ProfilePic,
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, api.UserResponse{Success: true, User: user})
	}
}

// HandleOnlineUsers returns the ids of connected users.
func (s *Server) HandleOnlineUsers() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids := s.Engine.OnlineUserIDs()
		online := make([]string, len(ids))
		for i, id := range ids {
			online[i] = id.String()
		}
		writeJSON(w, http.StatusOK, api.OnlineUsersResponse{Success: true, OnlineUsers: online})
	}
}
