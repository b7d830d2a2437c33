package ws

import (
	"sync"

	"github.com/chatline-app/chat-service/internal/protocol"
)

// Hub — process-scoped реестр соединений: connID -> conn и roomID -> поднабор
// соединений. Записи удаляются на disconnect/leave, фоновых чисток по таймеру нет.
type Hub struct {
	mu    sync.RWMutex
	conns map[*Conn]struct{}
	rooms map[string]map[*Conn]struct{} // roomID -> set of connections
}

func NewHub() *Hub {
	return &Hub{
		conns: make(map[*Conn]struct{}),
		rooms: make(map[string]map[*Conn]struct{}),
	}
}

func (h *Hub) Add(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c] = struct{}{}
}

// Remove убирает соединение из реестра и из всех комнат.
func (h *Hub) Remove(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.conns, c)
	for roomID := range c.rooms {
		h.leaveLocked(c, roomID)
	}
}

// Join — транспортная подписка. Принимается вслепую: авторитетная проверка
// членства выполняется заново на каждом write-событии.
func (h *Hub) Join(c *Conn, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rs, ok := h.rooms[roomID]
	if !ok {
		rs = make(map[*Conn]struct{})
		h.rooms[roomID] = rs
	}
	rs[c] = struct{}{}
	c.rooms[roomID] = struct{}{}
}

func (h *Hub) Leave(c *Conn, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, roomID)
	delete(c.rooms, roomID)
}

func (h *Hub) leaveLocked(c *Conn, roomID string) {
	if rs, ok := h.rooms[roomID]; ok {
		delete(rs, c)
		if len(rs) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// BroadcastRoom рассылает событие всем соединениям комнаты. except != nil
// исключает соединение отправителя (typing, relay-события). Отправка идёт в
// буфер каждого соединения: медленный подписчик не блокирует остальных.
func (h *Hub) BroadcastRoom(roomID string, ev *protocol.Event, except *Conn) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if rs, ok := h.rooms[roomID]; ok {
		for c := range rs {
			if c == except {
				continue
			}
			c.Send(ev) // best-effort
		}
	}
}

// BroadcastRoomUser — как BroadcastRoom, но исключает все соединения
// пользователя (typing не должен прилетать автору ни в одной вкладке).
func (h *Hub) BroadcastRoomUser(roomID string, ev *protocol.Event, exceptUserID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if rs, ok := h.rooms[roomID]; ok {
		for c := range rs {
			if c.userID == exceptUserID {
				continue
			}
			c.Send(ev)
		}
	}
}

// BroadcastAll — user-status и другие глобальные события.
func (h *Hub) BroadcastAll(ev *protocol.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.conns {
		c.Send(ev)
	}
}

// ConnsForUser возвращает число активных соединений пользователя (мульти-вкладки).
func (h *Hub) ConnsForUser(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for c := range h.conns {
		if c.userID == userID {
			n++
		}
	}
	return n
}
