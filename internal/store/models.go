package store

import "time"

// Role is the part a user plays in a consultation.
type Role string

const (
	RolePatient   Role = "patient"
	RoleTherapist Role = "therapist"
	RoleAdmin     Role = "admin"
)

// Status is the lifecycle state of a consultation session.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is one of the known session states.
func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusActive, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// MessageKind separates participant chat from system notices.
type MessageKind string

const (
	MessageUser   MessageKind = "user"
	MessageSystem MessageKind = "system"
)

type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	FullName  string    `json:"fullName"`
	Role      Role      `json:"role"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type NewUser struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	FullName string `json:"fullName"`
	Role     Role   `json:"role,omitempty"`
}

// Session is one consultation, bound to exactly one room id.
type Session struct {
	ID          string     `json:"id"`
	RoomID      string     `json:"roomId"`
	PatientID   string     `json:"patientId"`
	TherapistID string     `json:"therapistId,omitempty"`
	Status      Status     `json:"status"`
	StartTime   *time.Time `json:"startTime,omitempty"`
	EndTime     *time.Time `json:"endTime,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

type NewSession struct {
	RoomID      string     `json:"roomId,omitempty"`
	PatientID   string     `json:"patientId"`
	TherapistID string     `json:"therapistId,omitempty"`
	Status      Status     `json:"status,omitempty"`
	StartTime   *time.Time `json:"startTime,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

// ChatMessage is the canonical stored chat record. ID and CreatedAt are
// assigned by the store, never by the relay.
type ChatMessage struct {
	ID        string      `json:"id"`
	SessionID string      `json:"sessionId"`
	SenderID  string      `json:"senderId"`
	Body      string      `json:"body"`
	Kind      MessageKind `json:"kind"`
	CreatedAt time.Time   `json:"createdAt"`
}

type NewChatMessage struct {
	SessionID string
	SenderID  string
	Body      string
	Kind      MessageKind
}
