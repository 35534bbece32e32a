package services

import (
	"time"

	"github.com/google/uuid"
)

type SessionState int

const (
	SignedOut SessionState = iota
	SignedIn
)

func (s SessionState) String() string {
	if s == SignedIn {
		return "signed_in"
	}
	return "signed_out"
}

// Session is the identity of one authenticated caller. It is built from a
// bearer token by the auth middleware and handed to every operation that
// needs to know who is asking.
type Session struct {
	UserID    uuid.UUID    `json:"user_id"`
	TokenID   string       `json:"-"`
	ExpiresAt time.Time    `json:"expires_at"`
	State     SessionState `json:"-"`
}

func (s *Session) Active() bool {
	return s != nil && s.State == SignedIn && s.UserID != uuid.Nil
}
