package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chatline-app/chat-service/internal/protocol"

	"github.com/gorilla/websocket"
)

// wsStub принимает соединения и записывает входящие события по номеру
// соединения; reject заставляет отвечать 401.
type wsStub struct {
	mu       sync.Mutex
	upgrader websocket.Upgrader
	conns    []*websocket.Conn
	events   [][]protocol.Event
	reject   bool          // 401 до апгрейда
	fail     bool          // 503: сеть "лежит"
	hold     chan struct{} // если задан, handler ждёт закрытия перед апгрейдом
	holding  int
}

func (s *wsStub) handler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	reject, fail, hold := s.reject, s.fail, s.hold
	s.mu.Unlock()
	if reject {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	if fail {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	if hold != nil {
		s.mu.Lock()
		s.holding++
		s.mu.Unlock()
		<-hold
	}

	c, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	idx := len(s.conns)
	s.conns = append(s.conns, c)
	s.events = append(s.events, nil)
	s.mu.Unlock()

	for {
		var ev protocol.Event
		if err := c.ReadJSON(&ev); err != nil {
			return
		}
		s.mu.Lock()
		s.events[idx] = append(s.events[idx], ev)
		s.mu.Unlock()
	}
}

func (s *wsStub) connCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *wsStub) eventsOf(idx int) []protocol.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.Event, len(s.events[idx]))
	copy(out, s.events[idx])
	return out
}

func (s *wsStub) dropAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		_ = c.Close()
	}
}

func (s *wsStub) setReject(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reject = v
}

func (s *wsStub) setFail(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = v
}

func (s *wsStub) setHold(ch chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hold = ch
}

func (s *wsStub) holdingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holding
}

func newWSStub(t *testing.T) (*wsStub, string) {
	t.Helper()
	stub := &wsStub{}
	ts := httptest.NewServer(http.HandlerFunc(stub.handler))
	t.Cleanup(ts.Close)
	return stub, "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestConnectRejectedIsAuthError(t *testing.T) {
	stub, url := newWSStub(t)
	stub.setReject(true)

	c := NewConn(url, newFakeClock(), 5, 2*time.Second, Handlers{})
	err := c.Connect(context.Background(), "bad-token")

	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
}

func TestConnectNetworkFailureIsConnectError(t *testing.T) {
	c := NewConn("ws://127.0.0.1:1/ws", newFakeClock(), 5, 2*time.Second, Handlers{})
	err := c.Connect(context.Background(), "tok")

	var connErr *ConnectError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected ConnectError, got %v", err)
	}
}

// После разрыва соединение восстанавливается и заново подписывается на все
// открытые комнаты; в таймлайне реконнекта — фиксированные паузы.
func TestReconnectResubscribes(t *testing.T) {
	stub, url := newWSStub(t)
	clock := newFakeClock()

	var states []ConnState
	var mu sync.Mutex
	c := NewConn(url, clock, 5, 2*time.Second, Handlers{
		OnStateChange: func(s ConnState) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		},
	})
	defer c.Disconnect()

	if err := c.Connect(context.Background(), "tok"); err != nil {
		t.Fatal(err)
	}
	c.JoinRoom("r1")
	c.JoinRoom("r2")
	waitFor(t, func() bool { return stub.connCount() == 1 && len(stub.eventsOf(0)) == 2 })

	stub.dropAll()
	waitFor(t, func() bool { return stub.connCount() == 2 })
	// подписки повторены на новом соединении
	waitFor(t, func() bool { return len(stub.eventsOf(1)) == 2 })

	for _, ev := range stub.eventsOf(1) {
		if ev.Type != protocol.TypeJoinChatroom {
			t.Fatalf("expected join-chatroom resubscribe, got %s", ev.Type)
		}
	}

	waitFor(t, func() bool { return c.State() == StateConnected })
	mu.Lock()
	defer mu.Unlock()
	seenReconnecting := false
	for _, s := range states {
		if s == StateReconnecting {
			seenReconnecting = true
		}
	}
	if !seenReconnecting {
		t.Fatalf("expected reconnecting transition, states: %v", states)
	}

	// пауза между попытками — фиксированная
	for _, d := range clock.sleeps() {
		if d != 2*time.Second {
			t.Fatalf("expected fixed 2s backoff, got %v", d)
		}
	}
}

// Бюджет исчерпан — деградация в offline, попыток ровно attempts.
func TestReconnectGivesUpAfterBudget(t *testing.T) {
	stub, url := newWSStub(t)
	clock := newFakeClock()

	c := NewConn(url, clock, 3, 2*time.Second, Handlers{})
	defer c.Disconnect()

	if err := c.Connect(context.Background(), "tok"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return stub.connCount() == 1 })

	stub.setFail(true)
	stub.dropAll()

	waitFor(t, func() bool { return c.State() == StateOffline })
	if got := len(clock.sleeps()); got != 3 {
		t.Fatalf("expected exactly 3 backoff sleeps, got %d", got)
	}
}

// Отклонённый токен при реконнекте — retry бессмыслен, сразу offline.
func TestReconnectStopsOnAuthReject(t *testing.T) {
	stub, url := newWSStub(t)
	clock := newFakeClock()

	c := NewConn(url, clock, 5, 2*time.Second, Handlers{})
	defer c.Disconnect()

	if err := c.Connect(context.Background(), "tok"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return stub.connCount() == 1 })

	stub.setReject(true)
	stub.dropAll()

	waitFor(t, func() bool { return c.State() == StateOffline })
	if got := len(clock.sleeps()); got != 1 {
		t.Fatalf("auth reject must stop retries after first attempt, got %d sleeps", got)
	}
}

func TestDisconnectIdempotent(t *testing.T) {
	stub, url := newWSStub(t)
	c := NewConn(url, newFakeClock(), 5, 2*time.Second, Handlers{})

	if err := c.Connect(context.Background(), "tok"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return stub.connCount() == 1 })

	c.Disconnect()
	c.Disconnect()

	if c.State() != StateDisconnected {
		t.Fatalf("expected disconnected, got %s", c.State())
	}
	if err := c.SendTyping("r1", true); err == nil {
		t.Fatal("send on closed connection must fail")
	}
}

func TestDisconnectDuringReconnectDialDiscardsSocket(t *testing.T) {
	stub, url := newWSStub(t)
	clock := newFakeClock()
	c := NewConn(url, clock, 5, 2*time.Second, Handlers{})
	if err := c.Connect(context.Background(), "tok"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	c.JoinRoom("r1")

	hold := make(chan struct{})
	stub.setHold(hold)
	stub.dropAll() // reconnect стартует и виснет в dial

	waitFor(t, func() bool { return stub.holdingCount() == 1 })
	c.Disconnect()
	close(hold) // dial завершается успешным апгрейдом

	waitFor(t, func() bool { return stub.connCount() == 2 })
	time.Sleep(150 * time.Millisecond)

	// свежий сокет закрыт, а не установлен
	if got := c.State(); got != StateDisconnected {
		t.Fatalf("state %s after disconnect, want %s", got, StateDisconnected)
	}
	if evs := stub.eventsOf(1); len(evs) != 0 {
		t.Fatalf("discarded socket must not receive traffic: %v", evs)
	}
}

func TestDisconnectDuringConnectDial(t *testing.T) {
	stub, url := newWSStub(t)
	hold := make(chan struct{})
	stub.setHold(hold)

	c := NewConn(url, newFakeClock(), 5, 2*time.Second, Handlers{})
	done := make(chan error, 1)
	go func() { done <- c.Connect(context.Background(), "tok") }()

	waitFor(t, func() bool { return stub.holdingCount() == 1 })
	c.Disconnect()
	close(hold)

	err := <-done
	var connErr *ConnectError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected ConnectError after teardown, got %v", err)
	}
	if got := c.State(); got != StateDisconnected {
		t.Fatalf("state %s, want %s", got, StateDisconnected)
	}
}
