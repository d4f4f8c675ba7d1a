package domain

import "time"

// Profile is a local user identity. ID is the profile's peer ID, the same
// identifier orders use for buyer, vendor and moderator.
type Profile struct {
	ID           string    `json:"peer_id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // Never expose
	Handle       string    `json:"handle,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
