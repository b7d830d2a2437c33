package ws

import (
	"log/slog"
	"sync"
	"time"

	"github.com/chatline-app/chat-service/internal/protocol"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Conn — одно авторизованное соединение. rooms защищён мьютексом Hub.
type Conn struct {
	id       string
	conn     *websocket.Conn
	userID   string
	username string
	rooms    map[string]struct{}

	send      chan *protocol.Event
	closeOnce sync.Once
	closed    chan struct{}
}

func newConn(c *websocket.Conn, userID, username string, sendBuffer int) *Conn {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &Conn{
		id:       uuid.New().String(),
		conn:     c,
		userID:   userID,
		username: username,
		rooms:    make(map[string]struct{}),
		send:     make(chan *protocol.Event, sendBuffer),
		closed:   make(chan struct{}),
	}
}

// Send ставит событие в исходящую очередь. Переполненный буфер означает
// мёртвого или безнадёжно отстающего подписчика — соединение закрывается,
// соседи по комнате не затрагиваются.
func (c *Conn) Send(ev *protocol.Event) {
	select {
	case c.send <- ev:
	case <-c.closed:
	default:
		slog.Warn("ws send buffer full, dropping connection",
			"user", c.userID, "conn", c.id)
		c.Close()
	}
}

func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
	})
}

func (c *Conn) UserID() string   { return c.userID }
func (c *Conn) Username() string { return c.username }

// writeLoop сериализует запись в сокет и шлёт ping-и.
func (c *Conn) writeLoop(pingEvery time.Duration) {
	ticker := time.NewTicker(pingEvery)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case ev := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil,
				time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}
