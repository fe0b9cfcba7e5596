package signaling

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testConn(id, sender string) *Conn {
	c := newConn(id, nil, 16, testLogger())
	c.setSenderID(sender)
	return c
}

// drain returns every envelope queued on c so far.
func drain(t *testing.T, c *Conn) []Envelope {
	t.Helper()
	var out []Envelope
	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				return out
			}
			var env Envelope
			if err := json.Unmarshal(frame, &env); err != nil {
				t.Fatalf("queued frame is not an envelope: %v", err)
			}
			out = append(out, env)
		default:
			return out
		}
	}
}

func kinds(envs []Envelope) []Kind {
	out := make([]Kind, len(envs))
	for i, e := range envs {
		out[i] = e.Kind
	}
	return out
}

func TestRoomTable_JoinNotifiesOtherMembersOnly(t *testing.T) {
	table := NewRoomTable(testLogger())
	a := testConn("a", "alice")
	b := testConn("b", "bob")

	table.Join(a, "R1")
	if got := drain(t, a); len(got) != 0 {
		t.Fatalf("joiner of empty room got %v, want nothing", kinds(got))
	}

	table.Join(b, "R1")

	gotA := drain(t, a)
	if len(gotA) != 1 || gotA[0].Kind != KindPeerJoined || gotA[0].SenderID != "bob" {
		t.Fatalf("a got %+v, want one peer-joined from bob", gotA)
	}
	if gotB := drain(t, b); len(gotB) != 0 {
		t.Fatalf("b got %v, want no notification about itself", kinds(gotB))
	}

	if n := len(table.Members("R1")); n != 2 {
		t.Fatalf("members=%d, want 2", n)
	}
}

func TestRoomTable_LeaveBeforeJoin(t *testing.T) {
	table := NewRoomTable(testLogger())
	a := testConn("a", "alice")
	b := testConn("b", "bob")

	table.Join(a, "R1")
	table.Join(b, "R1")
	drain(t, a)

	table.Join(a, "R2")

	if a.Room() != "R2" {
		t.Fatalf("a.Room()=%q, want R2", a.Room())
	}
	members := table.Members("R1")
	if len(members) != 1 || members[0] != b {
		t.Fatalf("R1 members=%v, want only b", members)
	}
	if gotB := drain(t, b); len(gotB) != 1 || gotB[0].Kind != KindPeerLeft {
		t.Fatalf("b got %v, want one peer-left", kinds(gotB))
	}
	if table.Len() != 2 {
		t.Fatalf("rooms=%d, want 2", table.Len())
	}
}

func TestRoomTable_RejoinSameRoomIsNoop(t *testing.T) {
	table := NewRoomTable(testLogger())
	a := testConn("a", "alice")
	b := testConn("b", "bob")

	table.Join(a, "R1")
	table.Join(b, "R1")
	drain(t, a)

	table.Join(b, "R1")
	if got := drain(t, a); len(got) != 0 {
		t.Fatalf("a got %v after duplicate join, want nothing", kinds(got))
	}
}

func TestRoomTable_LeaveNotifiesAndDeletesEmptyRoom(t *testing.T) {
	table := NewRoomTable(testLogger())
	a := testConn("a", "alice")
	b := testConn("b", "bob")

	table.Join(a, "R1")
	table.Join(b, "R1")
	drain(t, a)

	table.Leave(b)

	gotA := drain(t, a)
	if len(gotA) != 1 || gotA[0].Kind != KindPeerLeft || gotA[0].SenderID != "bob" {
		t.Fatalf("a got %+v, want exactly one peer-left from bob", gotA)
	}
	members := table.Members("R1")
	if len(members) != 1 || members[0] != a {
		t.Fatalf("R1 members=%v, want only a", members)
	}

	table.Leave(a)
	if table.Members("R1") != nil {
		t.Fatalf("R1 still present after last member left")
	}
	if table.Len() != 0 {
		t.Fatalf("rooms=%d, want 0", table.Len())
	}
}

func TestRoomTable_LeaveIsIdempotent(t *testing.T) {
	table := NewRoomTable(testLogger())
	a := testConn("a", "alice")

	table.Leave(a)

	table.Join(a, "R1")
	table.Leave(a)
	table.Leave(a)

	if a.Room() != "" {
		t.Fatalf("a.Room()=%q, want empty", a.Room())
	}
	if table.Len() != 0 {
		t.Fatalf("rooms=%d, want 0", table.Len())
	}
}

func TestRoomTable_BroadcastToUnknownRoomIsNoop(t *testing.T) {
	table := NewRoomTable(testLogger())
	if n := table.Broadcast("ghost", Envelope{Kind: KindOffer}, nil); n != 0 {
		t.Fatalf("recipients=%d, want 0", n)
	}
}

func TestRoomTable_StalledMemberDoesNotBlockOthers(t *testing.T) {
	table := NewRoomTable(testLogger())
	slow := newConn("slow", nil, 1, testLogger())
	fast := testConn("fast", "fast")
	closed := testConn("closed", "closed")

	table.Join(slow, "R1")
	table.Join(fast, "R1")
	table.Join(closed, "R1")
	drain(t, fast)
	closed.closeSend()

	// slow's single slot is already taken by the peer-joined from fast.
	n := table.Broadcast("R1", Envelope{Kind: KindOffer, RoomID: "R1"}, nil)
	if n != 1 {
		t.Fatalf("recipients=%d, want 1", n)
	}
	if got := drain(t, fast); len(got) != 1 || got[0].Kind != KindOffer {
		t.Fatalf("fast got %v, want one offer", kinds(got))
	}
}

func TestRoomTable_ConcurrentChurnKeepsInvariants(t *testing.T) {
	table := NewRoomTable(testLogger())

	const workers = 16
	const rounds = 200
	rooms := []string{"R1", "R2", "R3"}

	var wg sync.WaitGroup
	stop := make(chan struct{})

	// Observer: a present room is never empty.
	observerDone := make(chan error, 1)
	go func() {
		for {
			select {
			case <-stop:
				observerDone <- nil
				return
			default:
			}
			for _, id := range rooms {
				if m := table.Members(id); m != nil && len(m) == 0 {
					observerDone <- fmt.Errorf("room %s present with zero members", id)
					return
				}
			}
		}
	}()

	conns := make([]*Conn, workers)
	for i := range conns {
		conns[i] = newConn(fmt.Sprintf("c%d", i), nil, 1024, testLogger())
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(c *Conn, seed int) {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				table.Join(c, rooms[(seed+r)%len(rooms)])
				if r%3 == 0 {
					table.Leave(c)
				}
				// Keep queues from filling so drops don't hide bugs.
				for len(c.send) > 0 {
					<-c.send
				}
			}
		}(conns[i], i)
	}
	wg.Wait()
	close(stop)
	if err := <-observerDone; err != nil {
		t.Fatal(err)
	}

	// Each connection is in at most one room.
	seen := make(map[*Conn]string)
	for _, id := range rooms {
		for _, c := range table.Members(id) {
			if prev, dup := seen[c]; dup {
				t.Fatalf("%s is a member of both %s and %s", c.ID(), prev, id)
			}
			seen[c] = id
			if c.Room() != id {
				t.Fatalf("%s.Room()=%q but listed in %s", c.ID(), c.Room(), id)
			}
		}
	}

	for _, c := range conns {
		table.Leave(c)
	}
	if table.Len() != 0 {
		t.Fatalf("rooms=%d after everyone left, want 0", table.Len())
	}
}
