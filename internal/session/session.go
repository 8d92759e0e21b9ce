// Package session keeps per-user conversation state between updates.
package session

import (
	"context"
	"errors"

	"medbot/internal/models"
)

// State identifies a conversation step
type State string

// StateIdle means the user has no active conversation
const StateIdle State = "idle"

// ErrNotFound is returned by Load when the user has no session
var ErrNotFound = errors.New("session not found")

// Session is the in-progress conversation of one user
type Session struct {
	UserID int64 `json:"user_id"`
	State  State `json:"state"`

	// Draft collects drug fields before they are committed
	Draft models.DrugRecord `json:"draft"`
	// EditTarget is the draft field being re-entered from the confirmation step
	EditTarget string `json:"edit_target,omitempty"`
	// PendingTargetUserID is the user a ban or statistics query is about
	PendingTargetUserID int64  `json:"pending_target_user_id,omitempty"`
	SearchQuery         string `json:"search_query,omitempty"`
	// LastBarcode is the most recently scanned barcode
	LastBarcode string `json:"last_barcode,omitempty"`
	Contact     string `json:"contact,omitempty"`
}

// New returns an idle session for the user
func New(userID int64) *Session {
	return &Session{UserID: userID, State: StateIdle}
}

// Reset discards all collected data and returns the session to idle
func (s *Session) Reset() {
	*s = Session{UserID: s.UserID, State: StateIdle}
}

// Active reports whether a conversation is in progress
func (s *Session) Active() bool {
	return s.State != "" && s.State != StateIdle
}

// Store persists sessions keyed by user id
type Store interface {
	Load(ctx context.Context, userID int64) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, userID int64) error
	Close() error
}
