package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID             uuid.UUID `json:"_id" db:"id"`
	Email          string    `json:"email" db:"email"`
	FullName       string    `json:"fullName" db:"full_name"`
	HashedPassword string    `json:"-" db:"password_hash"`
	ProfilePic     string    `json:"profilePic" db:"profile_pic"`
	Bio            string    `json:"bio" db:"bio"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time `json:"updatedAt" db:"updated_at"`
}

// ProfileUpdate carries the mutable profile fields. An empty ProfilePic keeps
// the stored one.
type ProfileUpdate struct {
	FullName   string
	Bio        string
	ProfilePic string
}
