package client

import (
	"sync"

	"github.com/chatline-app/chat-service/internal/domain"
)

// RoomList — клиентское состояние списка чатов: порядок "свежие сверху",
// lastMessage-сводка, unreadCount (локальный, на зрителя) и presence-флаги.
type RoomList struct {
	mu       sync.Mutex
	rooms    []domain.Chatroom
	selected string
	unread   map[string]int
	statuses map[string]domain.UserStatus
}

func NewRoomList() *RoomList {
	return &RoomList{
		unread:   make(map[string]int),
		statuses: make(map[string]domain.UserStatus),
	}
}

func (l *RoomList) SetRooms(rooms []domain.Chatroom) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rooms = append([]domain.Chatroom(nil), rooms...)
}

// Add добавляет комнату в начало списка, если её ещё нет (socket-событие
// new-chatroom; дубликаты после reconnect игнорируются).
func (l *RoomList) Add(room domain.Chatroom) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, r := range l.rooms {
		if r.ID == room.ID {
			return
		}
	}
	l.rooms = append([]domain.Chatroom{room}, l.rooms...)
}

// Select делает комнату активной и сбрасывает её unreadCount.
func (l *RoomList) Select(roomID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.selected = roomID
	delete(l.unread, roomID)
}

func (l *RoomList) Selected() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.selected
}

// ApplyLastMessage обновляет сводку, двигает комнату наверх и инкрементит
// unread, если комната не активна.
func (l *RoomList) ApplyLastMessage(roomID string, m domain.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := -1
	for i := range l.rooms {
		if l.rooms[i].ID == roomID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}

	room := l.rooms[idx]
	room.LastMessage = &domain.MessageSummary{
		MessageID: m.ID,
		Content:   m.Content,
		SenderID:  m.SenderID,
		Timestamp: m.CreatedAt,
	}
	if l.selected != roomID {
		l.unread[roomID]++
	}

	l.rooms = append(l.rooms[:idx], l.rooms[idx+1:]...)
	l.rooms = append([]domain.Chatroom{room}, l.rooms...)
}

// ApplyMessageDeleted заменяет сводку, если удалено именно последнее сообщение.
func (l *RoomList) ApplyMessageDeleted(roomID, messageID string, newLast *domain.MessageSummary) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.rooms {
		if l.rooms[i].ID != roomID {
			continue
		}
		if l.rooms[i].LastMessage != nil && l.rooms[i].LastMessage.MessageID == messageID {
			l.rooms[i].LastMessage = newLast
		}
		return
	}
}

func (l *RoomList) SetUserStatus(userID string, status domain.UserStatus) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.statuses[userID] = status
}

func (l *RoomList) UserStatus(userID string) domain.UserStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.statuses[userID]; ok {
		return s
	}
	return domain.StatusOffline
}

func (l *RoomList) Unread(roomID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.unread[roomID]
}

func (l *RoomList) Rooms() []domain.Chatroom {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.Chatroom, len(l.rooms))
	copy(out, l.rooms)
	return out
}
