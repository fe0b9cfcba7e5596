package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id          TEXT PRIMARY KEY,
	username    TEXT NOT NULL UNIQUE,
	email       TEXT UNIQUE,
	full_name   TEXT NOT NULL,
	role        TEXT NOT NULL DEFAULT 'patient',
	is_active   BOOLEAN NOT NULL DEFAULT TRUE,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS consultation_sessions (
	id            TEXT PRIMARY KEY,
	room_id       TEXT NOT NULL UNIQUE,
	patient_id    TEXT NOT NULL,
	therapist_id  TEXT,
	status        TEXT NOT NULL DEFAULT 'scheduled',
	start_time    TIMESTAMPTZ,
	end_time      TIMESTAMPTZ,
	notes         TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS chat_messages (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL REFERENCES consultation_sessions(id),
	sender_id   TEXT NOT NULL,
	body        TEXT NOT NULL,
	kind        TEXT NOT NULL DEFAULT 'user',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp()
);

CREATE INDEX IF NOT EXISTS chat_messages_session_created_idx
	ON chat_messages (session_id, created_at);
`

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// Postgres is a Store backed by PostgreSQL through lib/pq.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects to dsn, verifies the connection and applies the schema.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

func (p *Postgres) CreateUser(ctx context.Context, in NewUser) (*User, error) {
	if err := validateNewUser(&in); err != nil {
		return nil, err
	}

	row := p.db.QueryRowContext(ctx, `
		INSERT INTO users (id, username, email, full_name, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, username, email, full_name, role, is_active, created_at, updated_at`,
		uuid.NewString(), in.Username, nullString(in.Email), in.FullName, string(in.Role))

	u, err := scanUser(row)
	if err != nil {
		return nil, translate(err)
	}
	return u, nil
}

func (p *Postgres) GetUser(ctx context.Context, id string) (*User, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, username, email, full_name, role, is_active, created_at, updated_at
		FROM users WHERE id = $1`, id)

	u, err := scanUser(row)
	if err != nil {
		return nil, translate(err)
	}
	return u, nil
}

const sessionColumns = `id, room_id, patient_id, therapist_id, status, start_time, end_time, notes, created_at`

func (p *Postgres) CreateSession(ctx context.Context, in NewSession) (*Session, error) {
	if err := validateNewSession(&in); err != nil {
		return nil, err
	}

	row := p.db.QueryRowContext(ctx, `
		INSERT INTO consultation_sessions (id, room_id, patient_id, therapist_id, status, start_time, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+sessionColumns,
		uuid.NewString(), in.RoomID, in.PatientID, nullString(in.TherapistID),
		string(in.Status), nullTime(in.StartTime), nullString(in.Notes))

	s, err := scanSession(row)
	if err != nil {
		return nil, translate(err)
	}
	return s, nil
}

func (p *Postgres) SessionByID(ctx context.Context, id string) (*Session, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM consultation_sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if err != nil {
		return nil, translate(err)
	}
	return s, nil
}

func (p *Postgres) SessionByRoom(ctx context.Context, roomID string) (*Session, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM consultation_sessions WHERE room_id = $1`, roomID)
	s, err := scanSession(row)
	if err != nil {
		return nil, translate(err)
	}
	return s, nil
}

func (p *Postgres) UpdateSessionStatus(ctx context.Context, id string, status Status, endTime *time.Time) (*Session, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	row := p.db.QueryRowContext(ctx, `
		UPDATE consultation_sessions
		SET status = $2, end_time = COALESCE($3, end_time)
		WHERE id = $1
		RETURNING `+sessionColumns,
		id, string(status), nullTime(endTime))

	s, err := scanSession(row)
	if err != nil {
		return nil, translate(err)
	}
	return s, nil
}

func (p *Postgres) UserSessions(ctx context.Context, userID string) ([]Session, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM consultation_sessions
		WHERE patient_id = $1 OR therapist_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query user sessions: %w", err)
	}
	defer rows.Close()

	out := make([]Session, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (p *Postgres) CreateMessage(ctx context.Context, in NewChatMessage) (*ChatMessage, error) {
	if err := validateNewMessage(&in); err != nil {
		return nil, err
	}

	var msg ChatMessage
	var kind string
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO chat_messages (id, session_id, sender_id, body, kind)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, session_id, sender_id, body, kind, created_at`,
		uuid.NewString(), in.SessionID, in.SenderID, in.Body, string(in.Kind),
	).Scan(&msg.ID, &msg.SessionID, &msg.SenderID, &msg.Body, &kind, &msg.CreatedAt)
	if err != nil {
		return nil, translate(err)
	}
	msg.Kind = MessageKind(kind)
	msg.CreatedAt = msg.CreatedAt.UTC()
	return &msg, nil
}

func (p *Postgres) SessionMessages(ctx context.Context, sessionID string) ([]ChatMessage, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, session_id, sender_id, body, kind, created_at
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY created_at ASC, id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	out := make([]ChatMessage, 0)
	for rows.Next() {
		var msg ChatMessage
		var kind string
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.SenderID, &msg.Body, &kind, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Kind = MessageKind(kind)
		msg.CreatedAt = msg.CreatedAt.UTC()
		out = append(out, msg)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*User, error) {
	var u User
	var email sql.NullString
	var role string
	if err := row.Scan(&u.ID, &u.Username, &email, &u.FullName, &role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Email = email.String
	u.Role = Role(role)
	return &u, nil
}

func scanSession(row scanner) (*Session, error) {
	var s Session
	var therapist, notes sql.NullString
	var start, end sql.NullTime
	var status string
	if err := row.Scan(&s.ID, &s.RoomID, &s.PatientID, &therapist, &status, &start, &end, &notes, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.TherapistID = therapist.String
	s.Notes = notes.String
	s.Status = Status(status)
	if start.Valid {
		t := start.Time.UTC()
		s.StartTime = &t
	}
	if end.Valid {
		t := end.Time.UTC()
		s.EndTime = &t
	}
	s.CreatedAt = s.CreatedAt.UTC()
	return &s, nil
}

// translate maps driver errors onto the package sentinels.
func translate(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return fmt.Errorf("%w: %s", ErrConflict, pqErr.Constraint)
		case pqForeignKeyViolation:
			return fmt.Errorf("%w: %s", ErrNotFound, pqErr.Constraint)
		}
	}
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
