package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chatline-app/chat-service/internal/domain"
	"github.com/chatline-app/chat-service/internal/protocol"

	"github.com/gorilla/websocket"
)

type fakeAuth struct {
	tokens map[string][2]string // token -> {userID, username}
}

func (f *fakeAuth) ValidateToken(token string) (string, string, error) {
	if id, ok := f.tokens[token]; ok {
		return id[0], id[1], nil
	}
	return "", "", fmt.Errorf("unknown token")
}

func (f *fakeAuth) SetStatus(context.Context, string, domain.UserStatus) error { return nil }

type fakeMembers struct {
	members map[string]map[string]bool // roomID -> userID -> member
}

func (f *fakeMembers) IsMember(_ context.Context, roomID, userID string) (bool, error) {
	return f.members[roomID][userID], nil
}

type fakeMessages struct {
	members *fakeMembers
	seq     atomic.Int64
}

func (f *fakeMessages) Create(ctx context.Context, roomID, senderID, content string, quotedID *string) (*domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, domain.ErrEmptyContent
	}
	if ok, _ := f.members.IsMember(ctx, roomID, senderID); !ok {
		return nil, domain.ErrNotMember
	}
	return &domain.Message{
		ID:        fmt.Sprintf("m%d", f.seq.Add(1)),
		RoomID:    roomID,
		SenderID:  senderID,
		Content:   content,
		QuotedID:  quotedID,
		CreatedAt: time.Now(),
	}, nil
}

func newTestServer(t *testing.T, members map[string]map[string]bool) (*httptest.Server, *Server) {
	t.Helper()
	auth := &fakeAuth{tokens: map[string][2]string{
		"tok-alice": {"u1", "alice"},
		"tok-bob":   {"u2", "bob"},
		"tok-carol": {"u3", "carol"},
	}}
	mem := &fakeMembers{members: members}
	srv := NewServer(NewHub(), auth, mem, &fakeMessages{members: mem})

	ts := httptest.NewServer(http.HandlerFunc(srv.HandleWS))
	t.Cleanup(ts.Close)
	return ts, srv
}

func dial(t *testing.T, ts *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/?access_token=" + token
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func sendEvent(t *testing.T, c *websocket.Conn, typ protocol.EventType, payload any) {
	t.Helper()
	ev, err := protocol.NewEvent(typ, payload)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.WriteJSON(ev); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

// waitEvent читает события, пропуская фоновые user-status, пока не встретит
// нужный тип или не истечёт таймаут.
func waitEvent(t *testing.T, c *websocket.Conn, typ protocol.EventType) *protocol.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		_ = c.SetReadDeadline(deadline)
		var ev protocol.Event
		if err := c.ReadJSON(&ev); err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		if ev.Type == typ {
			return &ev
		}
		if ev.Type == protocol.TypeUserStatus {
			continue
		}
		t.Fatalf("expected %s, got %s", typ, ev.Type)
	}
}

func expectSilence(t *testing.T, c *websocket.Conn, typ protocol.EventType) {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	for {
		var ev protocol.Event
		if err := c.ReadJSON(&ev); err != nil {
			return // таймаут — тишина, как и ожидалось
		}
		if ev.Type == typ {
			t.Fatalf("unexpected %s", typ)
		}
	}
}

func TestSendMessageFansOutToRoomOnly(t *testing.T) {
	ts, _ := newTestServer(t, map[string]map[string]bool{
		"r1": {"u1": true, "u2": true},
		"r2": {"u3": true},
	})

	alice := dial(t, ts, "tok-alice")
	bob := dial(t, ts, "tok-bob")
	carol := dial(t, ts, "tok-carol")

	sendEvent(t, alice, protocol.TypeJoinChatroom, protocol.RoomRef{RoomID: "r1"})
	sendEvent(t, bob, protocol.TypeJoinChatroom, protocol.RoomRef{RoomID: "r1"})
	sendEvent(t, carol, protocol.TypeJoinChatroom, protocol.RoomRef{RoomID: "r2"})
	time.Sleep(100 * time.Millisecond) // join обрабатывается readLoop-ом

	sendEvent(t, alice, protocol.TypeSendMessage, protocol.SendMessagePayload{
		RoomID: "r1", Content: "hello", ClientTag: "tag-1",
	})

	// отправитель получает подтверждение с его clientTag
	ev := waitEvent(t, alice, protocol.TypeNewMessage)
	var got protocol.MessagePayload
	if err := json.Unmarshal(ev.Data, &got); err != nil {
		t.Fatal(err)
	}
	if got.ClientTag != "tag-1" || got.Message.Content != "hello" {
		t.Fatalf("unexpected payload: %+v", got)
	}

	// участник комнаты получает broadcast
	waitEvent(t, bob, protocol.TypeNewMessage)

	// чужая комната — тишина
	expectSilence(t, carol, protocol.TypeNewMessage)
}

func TestNonMemberSendGetsScopedError(t *testing.T) {
	ts, _ := newTestServer(t, map[string]map[string]bool{
		"r1": {"u1": true},
	})

	alice := dial(t, ts, "tok-alice")
	bob := dial(t, ts, "tok-bob")

	sendEvent(t, alice, protocol.TypeJoinChatroom, protocol.RoomRef{RoomID: "r1"})
	// транспортная подписка принимается вслепую даже для не-участника
	sendEvent(t, bob, protocol.TypeJoinChatroom, protocol.RoomRef{RoomID: "r1"})
	time.Sleep(100 * time.Millisecond)

	sendEvent(t, bob, protocol.TypeSendMessage, protocol.SendMessagePayload{
		RoomID: "r1", Content: "sneaky",
	})

	// ошибка уходит только инициатору
	waitEvent(t, bob, protocol.TypeMessageError)
	expectSilence(t, alice, protocol.TypeNewMessage)
}

func TestTypingTaggedAndNeverEchoed(t *testing.T) {
	ts, _ := newTestServer(t, map[string]map[string]bool{
		"r1": {"u1": true, "u2": true},
	})

	alice := dial(t, ts, "tok-alice")
	aliceTab2 := dial(t, ts, "tok-alice")
	bob := dial(t, ts, "tok-bob")

	sendEvent(t, alice, protocol.TypeJoinChatroom, protocol.RoomRef{RoomID: "r1"})
	sendEvent(t, aliceTab2, protocol.TypeJoinChatroom, protocol.RoomRef{RoomID: "r1"})
	sendEvent(t, bob, protocol.TypeJoinChatroom, protocol.RoomRef{RoomID: "r1"})
	time.Sleep(100 * time.Millisecond)

	sendEvent(t, alice, protocol.TypeTyping, protocol.TypingPayload{RoomID: "r1", IsTyping: true})

	ev := waitEvent(t, bob, protocol.TypeTyping)
	var p protocol.TypingPayload
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		t.Fatal(err)
	}
	// идентичность проставляет сервер, клиентскому payload-у не доверяем
	if p.UserID != "u1" || p.Username != "alice" || !p.IsTyping {
		t.Fatalf("unexpected typing payload: %+v", p)
	}

	// автору не эхоится ни в одну вкладку
	expectSilence(t, alice, protocol.TypeTyping)
	expectSilence(t, aliceTab2, protocol.TypeTyping)
}

func TestRelayMessageSentExcludesSender(t *testing.T) {
	ts, _ := newTestServer(t, map[string]map[string]bool{
		"r1": {"u1": true, "u2": true},
	})

	alice := dial(t, ts, "tok-alice")
	bob := dial(t, ts, "tok-bob")

	sendEvent(t, alice, protocol.TypeJoinChatroom, protocol.RoomRef{RoomID: "r1"})
	sendEvent(t, bob, protocol.TypeJoinChatroom, protocol.RoomRef{RoomID: "r1"})
	time.Sleep(100 * time.Millisecond)

	// HTTP-путь уже сохранил сообщение; сокетом идёт только relay
	sendEvent(t, alice, protocol.TypeMessageSent, protocol.MessagePayload{
		RoomID: "r1",
		Message: domain.Message{
			ID: "m1", RoomID: "r1", SenderID: "u1", Content: "stored", CreatedAt: time.Now(),
		},
	})

	waitEvent(t, bob, protocol.TypeNewMessage)
	expectSilence(t, alice, protocol.TypeNewMessage)
}

func TestMessageDeletedBroadcast(t *testing.T) {
	ts, _ := newTestServer(t, map[string]map[string]bool{
		"r1": {"u1": true, "u2": true},
	})

	alice := dial(t, ts, "tok-alice")
	bob := dial(t, ts, "tok-bob")

	sendEvent(t, alice, protocol.TypeJoinChatroom, protocol.RoomRef{RoomID: "r1"})
	sendEvent(t, bob, protocol.TypeJoinChatroom, protocol.RoomRef{RoomID: "r1"})
	time.Sleep(100 * time.Millisecond)

	sendEvent(t, alice, protocol.TypeMessageDeleted, protocol.MessageDeletedPayload{
		RoomID: "r1", MessageID: "m1",
	})

	ev := waitEvent(t, bob, protocol.TypeMessageDeleted)
	var p protocol.MessageDeletedPayload
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		t.Fatal(err)
	}
	if p.MessageID != "m1" {
		t.Fatalf("unexpected payload: %+v", p)
	}
}

func TestHandshakeRejectsBadToken(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/?access_token=bogus"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected handshake rejection")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}
}

func TestReactionRelayedToOthersOnly(t *testing.T) {
	ts, _ := newTestServer(t, map[string]map[string]bool{
		"r1": {"u1": true, "u2": true},
	})

	alice := dial(t, ts, "tok-alice")
	bob := dial(t, ts, "tok-bob")

	sendEvent(t, alice, protocol.TypeJoinChatroom, protocol.RoomRef{RoomID: "r1"})
	sendEvent(t, bob, protocol.TypeJoinChatroom, protocol.RoomRef{RoomID: "r1"})
	time.Sleep(100 * time.Millisecond)

	sendEvent(t, alice, protocol.TypeReactionAdded, protocol.MessagePayload{
		RoomID: "r1",
		Message: domain.Message{
			ID: "m1", RoomID: "r1", SenderID: "u2", Content: "hi", CreatedAt: time.Now(),
			Reactions: []domain.Reaction{{UserID: "u1", Emoji: "👍", CreatedAt: time.Now()}},
		},
	})

	ev := waitEvent(t, bob, protocol.TypeReactionUpdated)
	var p protocol.MessagePayload
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		t.Fatalf("decode reaction-updated: %v", err)
	}
	if len(p.Message.Reactions) != 1 || p.Message.Reactions[0].Emoji != "👍" {
		t.Fatalf("reaction set lost in relay: %+v", p.Message.Reactions)
	}

	// инициатор уже применил набор локально — эха ему нет
	expectSilence(t, alice, protocol.TypeReactionUpdated)
}

func TestNonMemberReactionGetsScopedError(t *testing.T) {
	ts, _ := newTestServer(t, map[string]map[string]bool{
		"r1": {"u2": true},
	})

	alice := dial(t, ts, "tok-alice")
	bob := dial(t, ts, "tok-bob")
	sendEvent(t, bob, protocol.TypeJoinChatroom, protocol.RoomRef{RoomID: "r1"})
	time.Sleep(100 * time.Millisecond)

	sendEvent(t, alice, protocol.TypeReactionAdded, protocol.MessagePayload{
		RoomID:  "r1",
		Message: domain.Message{ID: "m1", RoomID: "r1"},
	})

	waitEvent(t, alice, protocol.TypeMessageError)
	expectSilence(t, bob, protocol.TypeReactionUpdated)
}
