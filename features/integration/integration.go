// Package integration stores per-user provider credentials. Tokens are
// sealed before they reach the database and opened only at the moment a
// connector needs one.
package integration

import "time"

type Integration struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Provider    string    `json:"provider"`
	SealedToken string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
