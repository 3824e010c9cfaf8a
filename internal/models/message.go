package models

import (
	"time"

	"github.com/google/uuid"
)

// Message is a direct message between two users. Seen is the only field that
// changes after creation and it only ever goes from false to true.
type Message struct {
	ID         uuid.UUID `json:"_id" db:"id"`
	SenderID   uuid.UUID `json:"senderId" db:"sender_id"`
	ReceiverID uuid.UUID `json:"receiverId" db:"receiver_id"`
	Text       string    `json:"text,omitempty" db:"text"`
	Image      string    `json:"image,omitempty" db:"image"`
	Seen       bool      `json:"seen" db:"seen"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}

// HasContent reports whether the message carries text or an image.
func (m *Message) HasContent() bool {
	return m.Text != "" || m.Image != ""
}
