package signaling

import (
	"log/slog"
	"sync"
)

// room is one entry of the RoomTable. gone is set, under mu, when the last
// member leaves; a gone room is never handed out again.
type room struct {
	id      string
	mu      sync.Mutex
	members map[*Conn]struct{}
	gone    bool
}

func (r *room) snapshot(exclude *Conn) []*Conn {
	out := make([]*Conn, 0, len(r.members))
	for c := range r.members {
		if c != exclude {
			out = append(out, c)
		}
	}
	return out
}

// RoomTable maps room ids to their current members.
//
// Membership changes are serialized per room. The table lock only guards
// the map itself and is never held while a room lock is being acquired, so
// different rooms never wait on each other.
type RoomTable struct {
	log   *slog.Logger
	mu    sync.Mutex
	rooms map[string]*room
}

func NewRoomTable(logger *slog.Logger) *RoomTable {
	return &RoomTable{
		log:   logger,
		rooms: make(map[string]*room),
	}
}

// acquire returns the live room for id, creating it if needed.
func (t *RoomTable) acquire(id string) *room {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.rooms[id]
	if !ok {
		r = &room{id: id, members: make(map[*Conn]struct{})}
		t.rooms[id] = r
	}
	return r
}

func (t *RoomTable) lookup(id string) *room {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rooms[id]
}

// Join moves c into roomID, leaving its previous room first, and announces
// it to the members already present. Joining the room c is already in is a
// no-op.
func (t *RoomTable) Join(c *Conn, roomID string) {
	if c.Room() == roomID {
		return
	}
	t.Leave(c)

	for {
		r := t.acquire(roomID)

		r.mu.Lock()
		if r.gone {
			// Emptied and removed between acquire and lock; take a fresh one.
			r.mu.Unlock()
			continue
		}
		r.members[c] = struct{}{}
		c.setRoom(roomID)
		others := r.snapshot(c)
		size := len(r.members)
		r.mu.Unlock()

		t.log.Info("peer joined", "room", roomID, "conn", c.ID(), "sender", c.SenderID(), "members", size)
		t.deliver(roomID, others, peerJoinedFrame(roomID, c.SenderID()))
		return
	}
}

// Leave removes c from its current room. The room is deleted when it
// becomes empty; otherwise the remaining members get peer-left. Calling
// Leave on a connection outside any room does nothing.
func (t *RoomTable) Leave(c *Conn) {
	roomID := c.Room()
	if roomID == "" {
		return
	}
	c.setRoom("")

	r := t.lookup(roomID)
	if r == nil {
		return
	}

	r.mu.Lock()
	if _, ok := r.members[c]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.members, c)

	var others []*Conn
	if len(r.members) == 0 {
		r.gone = true
		t.mu.Lock()
		if t.rooms[roomID] == r {
			delete(t.rooms, roomID)
		}
		t.mu.Unlock()
	} else {
		others = r.snapshot(nil)
	}
	r.mu.Unlock()

	if others == nil {
		t.log.Info("room deleted", "room", roomID)
		return
	}
	t.log.Info("peer left", "room", roomID, "conn", c.ID(), "members", len(others))
	t.deliver(roomID, others, peerLeftFrame(roomID, c.SenderID()))
}

// Broadcast sends env to every member of roomID except exclude, which may
// be nil. It returns the number of members the frame was queued for. An
// unknown room is not an error: it may have emptied a moment ago.
func (t *RoomTable) Broadcast(roomID string, env Envelope, exclude *Conn) int {
	return t.BroadcastFrame(roomID, encode(env), exclude)
}

// BroadcastFrame is Broadcast for a frame that is already encoded.
func (t *RoomTable) BroadcastFrame(roomID string, frame []byte, exclude *Conn) int {
	members := t.Members(roomID)
	if members == nil {
		return 0
	}
	targets := members[:0]
	for _, m := range members {
		if m != exclude {
			targets = append(targets, m)
		}
	}
	return t.deliver(roomID, targets, frame)
}

// Members returns a snapshot of roomID's members, or nil if the room does
// not exist.
func (t *RoomTable) Members(roomID string) []*Conn {
	r := t.lookup(roomID)
	if r == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gone {
		return nil
	}
	return r.snapshot(nil)
}

// Len is the number of rooms with at least one member.
func (t *RoomTable) Len() int {
	t.mu.Lock()
	rooms := make([]*room, 0, len(t.rooms))
	for _, r := range t.rooms {
		rooms = append(rooms, r)
	}
	t.mu.Unlock()

	n := 0
	for _, r := range rooms {
		r.mu.Lock()
		if !r.gone && len(r.members) > 0 {
			n++
		}
		r.mu.Unlock()
	}
	return n
}

// deliver queues frame on each target independently; a full or closed
// queue only costs that target its copy.
func (t *RoomTable) deliver(roomID string, targets []*Conn, frame []byte) int {
	sent := 0
	for _, c := range targets {
		if c.trySend(frame) {
			sent++
			continue
		}
		t.log.Warn("dropped frame for unwritable member", "room", roomID, "conn", c.ID())
	}
	return sent
}
