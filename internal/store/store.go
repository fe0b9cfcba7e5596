// Package store persists users, consultation sessions and chat messages.
//
// Two implementations share the Store interface: Memory, used for local runs
// and tests, and Postgres, backed by database/sql and lib/pq.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidStatus = errors.New("invalid session status")
	ErrInvalidInput  = errors.New("invalid input")
	ErrConflict      = errors.New("already exists")
)

type UserStore interface {
	CreateUser(ctx context.Context, in NewUser) (*User, error)
	GetUser(ctx context.Context, id string) (*User, error)
}

type SessionStore interface {
	CreateSession(ctx context.Context, in NewSession) (*Session, error)
	SessionByID(ctx context.Context, id string) (*Session, error)
	SessionByRoom(ctx context.Context, roomID string) (*Session, error)
	UpdateSessionStatus(ctx context.Context, id string, status Status, endTime *time.Time) (*Session, error)
	// UserSessions lists sessions where the user is patient or therapist, newest first.
	UserSessions(ctx context.Context, userID string) ([]Session, error)
}

type MessageStore interface {
	CreateMessage(ctx context.Context, in NewChatMessage) (*ChatMessage, error)
	// SessionMessages returns the history of a session ordered by CreatedAt ascending.
	SessionMessages(ctx context.Context, sessionID string) ([]ChatMessage, error)
}

type Store interface {
	UserStore
	SessionStore
	MessageStore
	Close() error
}

func validateNewSession(in *NewSession) error {
	if in.RoomID == "" || in.PatientID == "" {
		return ErrInvalidInput
	}
	if in.Status == "" {
		in.Status = StatusScheduled
	}
	if !in.Status.Valid() {
		return ErrInvalidStatus
	}
	return nil
}

func validateNewMessage(in *NewChatMessage) error {
	if in.SessionID == "" || in.SenderID == "" || in.Body == "" {
		return ErrInvalidInput
	}
	if in.Kind == "" {
		in.Kind = MessageUser
	}
	return nil
}

func validateNewUser(in *NewUser) error {
	if in.Username == "" || in.FullName == "" {
		return ErrInvalidInput
	}
	if in.Role == "" {
		in.Role = RolePatient
	}
	return nil
}
