package api

import "quickchat/internal/models"

// Response is the body every failing request and bare acknowledgements get.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

type AuthResponse struct {
	Success  bool         `json:"success"`
	UserData *models.User `json:"userData"`
	Token    string       `json:"token"`
	Message  string       `json:"message,omitempty"`
}

type UserResponse struct {
	Success bool         `json:"success"`
	User    *models.User `json:"user"`
}

type SidebarResponse struct {
	Success        bool           `json:"success"`
	Users          []*models.User `json:"users"`
	UnseenMessages map[string]int `json:"unseenMessages"`
}

type MessagesResponse struct {
	Success  bool              `json:"success"`
	Messages []*models.Message `json:"messages"`
}

type NewMessageResponse struct {
	Success    bool            `json:"success"`
	NewMessage *models.Message `json:"newMessage"`
}

type OnlineUsersResponse struct {
	Success     bool     `json:"success"`
	OnlineUsers []string `json:"onlineUsers"`
}
