// Package conversation holds the ordered turn log of a single chat session.
//
// A [Store] is append-only: turns are never edited, reordered or dropped
// except by [Store.Reset], which re-initialises the whole session. The full
// history is what gets sent to the completion provider on every exchange, so
// the store renders itself as provider messages via [Store.Messages].
package conversation

import (
	"errors"
	"time"
)

// Role identifies who authored a [Turn].
type Role string

const (
	// RoleUser marks text typed or spoken by the learner.
	RoleUser Role = "user"

	// RoleAssistant marks text produced by the completion provider (or the
	// session greeting).
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Label returns the capitalised role name used in transcripts ("User",
// "Assistant").
func (r Role) Label() string {
	switch r {
	case RoleUser:
		return "User"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// Turn is one entry in the conversation. Turns are values; the store only
// hands out copies.
type Turn struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

var (
	// ErrInvalidRole is returned when a turn carries a role other than
	// [RoleUser] or [RoleAssistant].
	ErrInvalidRole = errors.New("conversation: invalid role")

	// ErrInvalidRoleSequence is returned by a strict store when a turn would
	// repeat the role of the previous turn.
	ErrInvalidRoleSequence = errors.New("conversation: invalid role sequence")
)
