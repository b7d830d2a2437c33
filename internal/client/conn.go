package client

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/chatline-app/chat-service/internal/domain"
	"github.com/chatline-app/chat-service/internal/protocol"

	"github.com/gorilla/websocket"
)

type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnected    ConnState = "connected"
	StateReconnecting ConnState = "reconnecting"
	StateOffline      ConnState = "offline" // бюджет реконнектов исчерпан
)

// Handlers — типизированная таблица диспетчеризации входящих событий.
// Задаётся один раз при создании соединения, поэтому reconnect физически
// не может привести к дублю или утечке подписчиков. Обработчики обязаны
// быть идемпотентными: after-reconnect гонки дают at-least-once доставку.
type Handlers struct {
	OnNewMessage      func(protocol.MessagePayload)
	OnMessageUpdated  func(protocol.MessagePayload)
	OnMessageDeleted  func(protocol.MessageDeletedPayload)
	OnReactionUpdated func(protocol.MessagePayload)
	OnTyping          func(protocol.TypingPayload)
	OnUserStatus      func(protocol.UserStatusPayload)
	OnNewChatroom     func(protocol.ChatroomPayload)
	OnMessageError    func(protocol.ErrorPayload)
	OnStateChange     func(ConnState)
}

// Conn владеет одним постоянным двунаправленным соединением с сервером.
type Conn struct {
	url      string
	dialer   *websocket.Dialer
	clock    Clock
	attempts int
	delay    time.Duration
	handlers Handlers

	mu     sync.Mutex
	ws     *websocket.Conn
	token  string
	open   map[string]struct{} // комнаты, которые клиент держит открытыми
	state  ConnState
	closed bool
}

func NewConn(url string, clock Clock, attempts int, delay time.Duration, handlers Handlers) *Conn {
	if attempts <= 0 {
		attempts = 5
	}
	if delay <= 0 {
		delay = 2 * time.Second
	}
	return &Conn{
		url:      url,
		dialer:   websocket.DefaultDialer,
		clock:    clock,
		attempts: attempts,
		delay:    delay,
		handlers: handlers,
		open:     make(map[string]struct{}),
		state:    StateDisconnected,
	}
}

// Connect выполняет handshake. Отклонённый токен — AuthError (без retry),
// сетевой сбой — ConnectError.
func (c *Conn) Connect(ctx context.Context, token string) error {
	c.mu.Lock()
	if c.ws != nil {
		c.mu.Unlock()
		return nil
	}
	c.token = token
	c.closed = false
	c.mu.Unlock()

	ws, err := c.dial(ctx)
	if err != nil {
		return err
	}

	// Disconnect мог прийти, пока dial был in-flight: свежий сокет
	// не устанавливаем, а закрываем.
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = ws.Close()
		return &ConnectError{Err: errors.New("connection closed")}
	}
	c.ws = ws
	c.mu.Unlock()

	c.setState(StateConnected)
	c.resubscribe()
	go c.readPump(ws)
	return nil
}

func (c *Conn) dial(ctx context.Context) (*websocket.Conn, error) {
	ws, resp, err := c.dialer.DialContext(ctx, c.url+"?access_token="+c.token, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, &AuthError{Err: err}
		}
		return nil, &ConnectError{Err: err}
	}
	return ws, nil
}

// Disconnect идемпотентен.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	ws := c.ws
	c.ws = nil
	c.mu.Unlock()

	if ws != nil {
		_ = ws.Close()
	}
	c.setState(StateDisconnected)
}

func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) setState(s ConnState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	if c.handlers.OnStateChange != nil {
		c.handlers.OnStateChange(s)
	}
}

// JoinRoom — fire-and-forget подписка; комната запоминается, чтобы
// resubscribe повторил её после reconnect-а (транспортное членство
// не переживает разрыв).
func (c *Conn) JoinRoom(roomID string) {
	c.mu.Lock()
	c.open[roomID] = struct{}{}
	c.mu.Unlock()
	_ = c.sendEvent(protocol.TypeJoinChatroom, protocol.RoomRef{RoomID: roomID})
}

func (c *Conn) LeaveRoom(roomID string) {
	c.mu.Lock()
	delete(c.open, roomID)
	c.mu.Unlock()
	_ = c.sendEvent(protocol.TypeLeaveChatroom, protocol.RoomRef{RoomID: roomID})
}

// SendTyping реализует TypingEmitter.
func (c *Conn) SendTyping(roomID string, isTyping bool) error {
	return c.sendEvent(protocol.TypeTyping, protocol.TypingPayload{
		RoomID:   roomID,
		IsTyping: isTyping,
	})
}

// SendMessage — socket-путь создания сообщения; clientTag связывает эхо
// сервера с оптимистичной записью.
func (c *Conn) SendMessage(roomID, content string, quotedID *string, clientTag string) error {
	return c.sendEvent(protocol.TypeSendMessage, protocol.SendMessagePayload{
		RoomID:    roomID,
		Content:   content,
		QuotedID:  quotedID,
		ClientTag: clientTag,
	})
}

// EmitMessageSent рассылает уже сохранённое (HTTP-путь) сообщение остальным.
func (c *Conn) EmitMessageSent(m domain.Message) error {
	return c.sendEvent(protocol.TypeMessageSent, protocol.MessagePayload{
		RoomID:  m.RoomID,
		Message: m,
	})
}

func (c *Conn) EmitMessageEdited(m domain.Message) error {
	return c.sendEvent(protocol.TypeMessageEdited, protocol.MessagePayload{
		RoomID:  m.RoomID,
		Message: m,
	})
}

// EmitReactionAdded рассылает сообщение с обновлённым набором реакций.
func (c *Conn) EmitReactionAdded(m domain.Message) error {
	return c.sendEvent(protocol.TypeReactionAdded, protocol.MessagePayload{
		RoomID:  m.RoomID,
		Message: m,
	})
}

func (c *Conn) EmitMessageDeleted(roomID, messageID string) error {
	return c.sendEvent(protocol.TypeMessageDeleted, protocol.MessageDeletedPayload{
		RoomID:    roomID,
		MessageID: messageID,
	})
}

func (c *Conn) sendEvent(t protocol.EventType, data any) error {
	ev, err := protocol.NewEvent(t, data)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws == nil {
		return &ConnectError{Err: errors.New("not connected")}
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.ws.WriteJSON(ev)
}

// resubscribe повторяет join-chatroom для всех открытых комнат.
func (c *Conn) resubscribe() {
	c.mu.Lock()
	rooms := make([]string, 0, len(c.open))
	for id := range c.open {
		rooms = append(rooms, id)
	}
	c.mu.Unlock()

	for _, id := range rooms {
		_ = c.sendEvent(protocol.TypeJoinChatroom, protocol.RoomRef{RoomID: id})
	}
}

func (c *Conn) readPump(ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			break
		}
		ev, err := protocol.ParseEvent(data)
		if err != nil {
			continue
		}
		c.dispatch(ev)
	}

	_ = ws.Close()

	c.mu.Lock()
	closed := c.closed
	if c.ws == ws {
		c.ws = nil
	}
	c.mu.Unlock()

	if !closed {
		c.reconnect()
	}
}

// reconnect — ограниченный бэкофф: фиксированная задержка, не более
// attempts попыток, дальше — деградация в offline.
func (c *Conn) reconnect() {
	c.setState(StateReconnecting)

	for i := 1; i <= c.attempts; i++ {
		c.clock.Sleep(c.delay)

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		ws, err := c.dial(context.Background())
		if err != nil {
			var authErr *AuthError
			if errors.As(err, &authErr) {
				// токен отклонён — retry бессмыслен
				slog.Warn("reconnect rejected", "err", err)
				c.setState(StateOffline)
				return
			}
			slog.Debug("reconnect attempt failed", "attempt", i, "err", err)
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = ws.Close()
			return
		}
		c.ws = ws
		c.mu.Unlock()

		c.setState(StateConnected)
		c.resubscribe()
		go c.readPump(ws)
		return
	}

	c.setState(StateOffline)
}

// dispatch — единственный диспетчер входящих событий.
func (c *Conn) dispatch(ev *protocol.Event) {
	switch ev.Type {
	case protocol.TypeNewMessage:
		var p protocol.MessagePayload
		if decodeEvent(ev, &p) && c.handlers.OnNewMessage != nil {
			c.handlers.OnNewMessage(p)
		}
	case protocol.TypeMessageUpdated:
		var p protocol.MessagePayload
		if decodeEvent(ev, &p) && c.handlers.OnMessageUpdated != nil {
			c.handlers.OnMessageUpdated(p)
		}
	case protocol.TypeMessageDeleted:
		var p protocol.MessageDeletedPayload
		if decodeEvent(ev, &p) && c.handlers.OnMessageDeleted != nil {
			c.handlers.OnMessageDeleted(p)
		}
	case protocol.TypeReactionUpdated:
		var p protocol.MessagePayload
		if decodeEvent(ev, &p) && c.handlers.OnReactionUpdated != nil {
			c.handlers.OnReactionUpdated(p)
		}
	case protocol.TypeTyping:
		var p protocol.TypingPayload
		if decodeEvent(ev, &p) && c.handlers.OnTyping != nil {
			c.handlers.OnTyping(p)
		}
	case protocol.TypeUserStatus:
		var p protocol.UserStatusPayload
		if decodeEvent(ev, &p) && c.handlers.OnUserStatus != nil {
			c.handlers.OnUserStatus(p)
		}
	case protocol.TypeNewChatroom:
		var p protocol.ChatroomPayload
		if decodeEvent(ev, &p) && c.handlers.OnNewChatroom != nil {
			c.handlers.OnNewChatroom(p)
		}
	case protocol.TypeMessageError:
		var p protocol.ErrorPayload
		if decodeEvent(ev, &p) && c.handlers.OnMessageError != nil {
			c.handlers.OnMessageError(p)
		}
	}
}

func decodeEvent(ev *protocol.Event, dst any) bool {
	return json.Unmarshal(ev.Data, dst) == nil
}
