package signaling

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BioHazard786/mindconnect/internal/store"
)

type fakeGateway struct {
	mu    sync.Mutex
	saved []ChatInput
	err   error
}

func (g *fakeGateway) SaveChat(_ context.Context, in ChatInput) (*store.ChatMessage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.saved = append(g.saved, in)
	return &store.ChatMessage{
		ID:        "msg-1",
		SessionID: "s-1",
		SenderID:  in.SenderID,
		Body:      in.Body,
		Kind:      store.MessageUser,
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}, nil
}

func newTestRouter(gw ChatGateway) (*Router, *RoomTable) {
	table := NewRoomTable(testLogger())
	return NewRouter(table, gw, testLogger()), table
}

// joinedPair returns two connections that have both joined roomID, with
// their queues drained.
func joinedPair(t *testing.T, r *Router, roomID string) (*Conn, *Conn) {
	t.Helper()
	a := testConn("a", "")
	b := testConn("b", "")
	ctx := context.Background()
	r.Dispatch(ctx, a, []byte(`{"kind":"join","roomId":"`+roomID+`","senderId":"alice"}`))
	r.Dispatch(ctx, b, []byte(`{"kind":"join","roomId":"`+roomID+`","senderId":"bob"}`))
	drain(t, a)
	drain(t, b)
	return a, b
}

func TestRouter_JoinRecordsSender(t *testing.T) {
	r, table := newTestRouter(&fakeGateway{})
	a, b := joinedPair(t, r, "R1")

	if a.SenderID() != "alice" || b.SenderID() != "bob" {
		t.Fatalf("senders=%q,%q, want alice,bob", a.SenderID(), b.SenderID())
	}
	if n := len(table.Members("R1")); n != 2 {
		t.Fatalf("members=%d, want 2", n)
	}
}

func TestRouter_SignalForwardedByteExact(t *testing.T) {
	r, _ := newTestRouter(&fakeGateway{})
	a, b := joinedPair(t, r, "R1")

	frame := []byte(`{"kind":"offer", "roomId":"R1","senderId":"alice","payload":{"sdp":"v=0\r\n","type":"offer","extra":[1,2,3]}}`)
	r.Dispatch(context.Background(), a, frame)

	select {
	case got := <-b.send:
		if !bytes.Equal(got, frame) {
			t.Fatalf("forwarded frame=%s, want %s", got, frame)
		}
	default:
		t.Fatal("b received nothing")
	}
	if got := drain(t, a); len(got) != 0 {
		t.Fatalf("sender got its own signal back: %v", kinds(got))
	}
}

func TestRouter_SignalPreservesPerSenderOrder(t *testing.T) {
	r, _ := newTestRouter(&fakeGateway{})
	a, b := joinedPair(t, r, "R1")

	frames := []string{
		`{"kind":"offer","payload":1}`,
		`{"kind":"ice-candidate","payload":2}`,
		`{"kind":"ice-candidate","payload":3}`,
	}
	for _, f := range frames {
		r.Dispatch(context.Background(), a, []byte(f))
	}
	for i, want := range frames {
		got := <-b.send
		if string(got) != want {
			t.Fatalf("frame %d=%s, want %s", i, got, want)
		}
	}
}

func TestRouter_SignalBeforeJoinDropped(t *testing.T) {
	r, table := newTestRouter(&fakeGateway{})
	lone := testConn("x", "")

	r.Dispatch(context.Background(), lone, []byte(`{"kind":"answer","roomId":"R1","payload":{}}`))

	if table.Len() != 0 {
		t.Fatalf("rooms=%d, want 0", table.Len())
	}
	if got := drain(t, lone); len(got) != 0 {
		t.Fatalf("sender got %v, want nothing", kinds(got))
	}
}

func TestRouter_ChatStoredThenBroadcastToAll(t *testing.T) {
	gw := &fakeGateway{}
	r, _ := newTestRouter(gw)
	a, b := joinedPair(t, r, "R1")

	r.Dispatch(context.Background(), a, []byte(`{"kind":"chat","roomId":"R1","senderId":"alice","payload":"hello"}`))

	gotA := drain(t, a)
	gotB := drain(t, b)
	if len(gotA) != 1 || len(gotB) != 1 {
		t.Fatalf("a got %d, b got %d frames, want 1 each", len(gotA), len(gotB))
	}
	if !bytes.Equal(gotA[0].Payload, gotB[0].Payload) {
		t.Fatalf("members saw different records: %s vs %s", gotA[0].Payload, gotB[0].Payload)
	}

	var msg store.ChatMessage
	if err := json.Unmarshal(gotB[0].Payload, &msg); err != nil {
		t.Fatalf("decode chat record: %v", err)
	}
	if msg.ID != "msg-1" || msg.Body != "hello" || msg.SenderID != "alice" {
		t.Fatalf("record=%+v", msg)
	}
	if len(gw.saved) != 1 || gw.saved[0].RoomID != "R1" {
		t.Fatalf("saved=%+v", gw.saved)
	}
}

func TestRouter_ChatObjectPayloadCarriesSession(t *testing.T) {
	gw := &fakeGateway{}
	r, _ := newTestRouter(gw)
	a, _ := joinedPair(t, r, "R1")

	r.Dispatch(context.Background(), a, []byte(`{"kind":"chat","payload":{"sessionId":"s-9","body":"hi"}}`))

	if len(gw.saved) != 1 {
		t.Fatalf("saved=%d, want 1", len(gw.saved))
	}
	in := gw.saved[0]
	if in.SessionID != "s-9" || in.Body != "hi" || in.SenderID != "alice" {
		t.Fatalf("input=%+v", in)
	}
}

func TestRouter_ChatStoreFailureOnlyTellsSender(t *testing.T) {
	r, _ := newTestRouter(&fakeGateway{err: errors.New("db down")})
	a, b := joinedPair(t, r, "R1")

	r.Dispatch(context.Background(), a, []byte(`{"kind":"chat","payload":"hello"}`))

	gotA := drain(t, a)
	if len(gotA) != 1 || gotA[0].Kind != KindError {
		t.Fatalf("a got %v, want one error", kinds(gotA))
	}
	var ep ErrorPayload
	if err := json.Unmarshal(gotA[0].Payload, &ep); err != nil || ep.Error == "" {
		t.Fatalf("error payload=%s (%v)", gotA[0].Payload, err)
	}
	if gotB := drain(t, b); len(gotB) != 0 {
		t.Fatalf("b got %v, want nothing", kinds(gotB))
	}
}

func TestRouter_IgnoresUnknownAndMalformed(t *testing.T) {
	r, table := newTestRouter(&fakeGateway{})
	a, b := joinedPair(t, r, "R1")

	for _, f := range []string{
		`{"kind":"foo","payload":{}}`,
		`not json`,
		`{"roomId":"R1"}`,
		`{"kind":"join"}`,
		`{"kind":"chat","payload":""}`,
	} {
		r.Dispatch(context.Background(), a, []byte(f))
	}

	if got := drain(t, a); len(got) != 0 {
		t.Fatalf("a got %v, want nothing", kinds(got))
	}
	if got := drain(t, b); len(got) != 0 {
		t.Fatalf("b got %v, want nothing", kinds(got))
	}
	if a.Room() != "R1" || len(table.Members("R1")) != 2 {
		t.Fatalf("membership changed after bad frames")
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		want    any
		wantErr bool
	}{
		{"join", `{"kind":"join","roomId":"R","senderId":"u"}`, &JoinRequest{RoomID: "R", SenderID: "u"}, false},
		{"join without room", `{"kind":"join","senderId":"u"}`, nil, true},
		{"chat string", `{"kind":"chat","roomId":"R","payload":"hi"}`, &ChatRequest{RoomID: "R", Body: "hi"}, false},
		{"chat object", `{"kind":"chat","payload":{"sessionId":"s","body":"hi"}}`, &ChatRequest{SessionID: "s", Body: "hi"}, false},
		{"chat number", `{"kind":"chat","payload":42}`, nil, true},
		{"unknown", `{"kind":"foo"}`, &Unknown{Kind: "foo"}, false},
		{"no kind", `{"payload":1}`, nil, true},
		{"garbage", `{`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.frame))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformed) {
					t.Fatalf("err=%v, want ErrMalformed", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			switch want := tt.want.(type) {
			case *JoinRequest:
				if g, ok := got.(*JoinRequest); !ok || *g != *want {
					t.Fatalf("got %#v, want %#v", got, want)
				}
			case *ChatRequest:
				if g, ok := got.(*ChatRequest); !ok || *g != *want {
					t.Fatalf("got %#v, want %#v", got, want)
				}
			case *Unknown:
				if g, ok := got.(*Unknown); !ok || *g != *want {
					t.Fatalf("got %#v, want %#v", got, want)
				}
			}
		})
	}

	sig, err := Decode([]byte(`{"kind":"ice-candidate","payload":{"candidate":"x"}}`))
	if err != nil {
		t.Fatalf("Decode signal: %v", err)
	}
	if s, ok := sig.(*Signal); !ok || s.Kind != KindICECandidate {
		t.Fatalf("got %#v, want *Signal", sig)
	}
}
