package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store. Records are lost on restart.
type Memory struct {
	mu       sync.RWMutex
	users    map[string]*User
	sessions map[string]*Session
	byRoom   map[string]string
	messages map[string][]ChatMessage

	now func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		users:    make(map[string]*User),
		sessions: make(map[string]*Session),
		byRoom:   make(map[string]string),
		messages: make(map[string][]ChatMessage),
		now:      time.Now,
	}
}

func (m *Memory) CreateUser(_ context.Context, in NewUser) (*User, error) {
	if err := validateNewUser(&in); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Username == in.Username {
			return nil, ErrConflict
		}
	}

	now := m.now().UTC()
	u := &User{
		ID:        uuid.NewString(),
		Username:  in.Username,
		Email:     in.Email,
		FullName:  in.FullName,
		Role:      in.Role,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.users[u.ID] = u

	out := *u
	return &out, nil
}

func (m *Memory) GetUser(_ context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *u
	return &out, nil
}

func (m *Memory) CreateSession(_ context.Context, in NewSession) (*Session, error) {
	if err := validateNewSession(&in); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.byRoom[in.RoomID]; taken {
		return nil, ErrConflict
	}

	s := &Session{
		ID:          uuid.NewString(),
		RoomID:      in.RoomID,
		PatientID:   in.PatientID,
		TherapistID: in.TherapistID,
		Status:      in.Status,
		StartTime:   in.StartTime,
		Notes:       in.Notes,
		CreatedAt:   m.now().UTC(),
	}
	m.sessions[s.ID] = s
	m.byRoom[s.RoomID] = s.ID

	out := *s
	return &out, nil
}

func (m *Memory) SessionByID(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *s
	return &out, nil
}

func (m *Memory) SessionByRoom(ctx context.Context, roomID string) (*Session, error) {
	m.mu.RLock()
	id, ok := m.byRoom[roomID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.SessionByID(ctx, id)
}

func (m *Memory) UpdateSessionStatus(_ context.Context, id string, status Status, endTime *time.Time) (*Session, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	s.Status = status
	if endTime != nil {
		t := endTime.UTC()
		s.EndTime = &t
	}

	out := *s
	return &out, nil
}

func (m *Memory) UserSessions(_ context.Context, userID string) ([]Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Session, 0)
	for _, s := range m.sessions {
		if s.PatientID == userID || s.TherapistID == userID {
			out = append(out, *s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) CreateMessage(_ context.Context, in NewChatMessage) (*ChatMessage, error) {
	if err := validateNewMessage(&in); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[in.SessionID]; !ok {
		return nil, ErrNotFound
	}

	msg := ChatMessage{
		ID:        uuid.NewString(),
		SessionID: in.SessionID,
		SenderID:  in.SenderID,
		Body:      in.Body,
		Kind:      in.Kind,
		CreatedAt: m.now().UTC(),
	}
	// Appending under the lock keeps history in commit order, which is
	// also CreatedAt order.
	m.messages[in.SessionID] = append(m.messages[in.SessionID], msg)

	return &msg, nil
}

func (m *Memory) SessionMessages(_ context.Context, sessionID string) ([]ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := m.messages[sessionID]
	out := make([]ChatMessage, len(history))
	copy(out, history)
	return out, nil
}

func (m *Memory) Close() error { return nil }
