package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestMemory() *Memory {
	m := NewMemory()
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	var tick int
	m.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return m
}

func TestMemory_SessionLifecycle(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory()

	s, err := m.CreateSession(ctx, NewSession{RoomID: "room-1", PatientID: "p1"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if s.Status != StatusScheduled {
		t.Fatalf("status=%q, want %q", s.Status, StatusScheduled)
	}

	got, err := m.SessionByRoom(ctx, "room-1")
	if err != nil {
		t.Fatalf("SessionByRoom: %v", err)
	}
	if got.ID != s.ID {
		t.Fatalf("SessionByRoom id=%q, want %q", got.ID, s.ID)
	}

	if _, err := m.CreateSession(ctx, NewSession{RoomID: "room-1", PatientID: "p2"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate room err=%v, want ErrConflict", err)
	}

	end := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	updated, err := m.UpdateSessionStatus(ctx, s.ID, StatusCompleted, &end)
	if err != nil {
		t.Fatalf("UpdateSessionStatus: %v", err)
	}
	if updated.Status != StatusCompleted || updated.EndTime == nil || !updated.EndTime.Equal(end) {
		t.Fatalf("updated=%+v, want completed at %v", updated, end)
	}

	if _, err := m.UpdateSessionStatus(ctx, s.ID, Status("paused"), nil); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("invalid status err=%v, want ErrInvalidStatus", err)
	}
	if _, err := m.UpdateSessionStatus(ctx, "missing", StatusActive, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing session err=%v, want ErrNotFound", err)
	}
}

func TestMemory_UserSessionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory()

	first, _ := m.CreateSession(ctx, NewSession{RoomID: "a", PatientID: "p1"})
	second, _ := m.CreateSession(ctx, NewSession{RoomID: "b", PatientID: "p2", TherapistID: "p1"})
	if _, err := m.CreateSession(ctx, NewSession{RoomID: "c", PatientID: "other"}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	sessions, err := m.UserSessions(ctx, "p1")
	if err != nil {
		t.Fatalf("UserSessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("len=%d, want 2", len(sessions))
	}
	if sessions[0].ID != second.ID || sessions[1].ID != first.ID {
		t.Fatalf("order=[%s %s], want [%s %s]", sessions[0].ID, sessions[1].ID, second.ID, first.ID)
	}
}

func TestMemory_MessagesAssignIDAndOrder(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory()

	s, _ := m.CreateSession(ctx, NewSession{RoomID: "room", PatientID: "p1"})

	for _, body := range []string{"hello", "how are you", "fine"} {
		if _, err := m.CreateMessage(ctx, NewChatMessage{SessionID: s.ID, SenderID: "p1", Body: body}); err != nil {
			t.Fatalf("CreateMessage(%q): %v", body, err)
		}
	}

	history, err := m.SessionMessages(ctx, s.ID)
	if err != nil {
		t.Fatalf("SessionMessages: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("len=%d, want 3", len(history))
	}
	for i := 1; i < len(history); i++ {
		if !history[i-1].CreatedAt.Before(history[i].CreatedAt) {
			t.Fatalf("history not ascending at %d", i)
		}
	}
	if history[0].ID == "" || history[0].Kind != MessageUser {
		t.Fatalf("first=%+v, want id and user kind", history[0])
	}

	if _, err := m.CreateMessage(ctx, NewChatMessage{SessionID: "nope", SenderID: "p1", Body: "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown session err=%v, want ErrNotFound", err)
	}
	if _, err := m.CreateMessage(ctx, NewChatMessage{SessionID: s.ID, SenderID: "p1"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty body err=%v, want ErrInvalidInput", err)
	}
}

func TestMemory_Users(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory()

	u, err := m.CreateUser(ctx, NewUser{Username: "demo", FullName: "Demo Patient"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.Role != RolePatient || !u.IsActive {
		t.Fatalf("user=%+v, want active patient", u)
	}
	if _, err := m.CreateUser(ctx, NewUser{Username: "demo", FullName: "Again"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate username err=%v, want ErrConflict", err)
	}
	got, err := m.GetUser(ctx, u.ID)
	if err != nil || got.Username != "demo" {
		t.Fatalf("GetUser=%+v, %v", got, err)
	}
}
