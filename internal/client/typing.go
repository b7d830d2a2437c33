package client

import (
	"sync"
	"time"

	"github.com/chatline-app/chat-service/internal/protocol"
)

type TypingEmitter interface {
	SendTyping(roomID string, isTyping bool) error
}

// TypingTracker ограничивает исходящие typing-события: не чаще одного
// typing:start на throttle-окно при непрерывном наборе, typing:stop через
// debounce после последнего нажатия (каждое нажатие переarmивает таймер).
// Объём событий — O(1) на окно, а не O(нажатий).
type TypingTracker struct {
	mu sync.Mutex

	clock    Clock
	emitter  TypingEmitter
	throttle time.Duration
	debounce time.Duration

	lastStart  map[string]time.Time
	stopTimers map[string]Timer

	// входящая сторона: roomID -> userID -> username, пока флаг typing активен
	peers map[string]map[string]string
}

func NewTypingTracker(clock Clock, emitter TypingEmitter, throttle, debounce time.Duration) *TypingTracker {
	if throttle <= 0 {
		throttle = 3 * time.Second
	}
	if debounce <= 0 {
		debounce = 4 * time.Second
	}
	return &TypingTracker{
		clock:      clock,
		emitter:    emitter,
		throttle:   throttle,
		debounce:   debounce,
		lastStart:  make(map[string]time.Time),
		stopTimers: make(map[string]Timer),
		peers:      make(map[string]map[string]string),
	}
}

// Keystroke вызывается на каждое нажатие в поле ввода комнаты.
func (t *TypingTracker) Keystroke(roomID string) {
	t.mu.Lock()

	now := t.clock.Now()
	emitStart := false
	if last, ok := t.lastStart[roomID]; !ok || now.Sub(last) > t.throttle {
		t.lastStart[roomID] = now
		emitStart = true
	}

	if timer, ok := t.stopTimers[roomID]; ok {
		timer.Stop()
	}
	t.stopTimers[roomID] = t.clock.AfterFunc(t.debounce, func() {
		t.emitStop(roomID)
	})

	t.mu.Unlock()

	if emitStart {
		_ = t.emitter.SendTyping(roomID, true)
	}
}

// StopNow используется при отправке сообщения или уходе из комнаты.
func (t *TypingTracker) StopNow(roomID string) {
	t.mu.Lock()
	timer, ok := t.stopTimers[roomID]
	if ok {
		timer.Stop()
	}
	t.mu.Unlock()

	if ok {
		t.emitStop(roomID)
	}
}

func (t *TypingTracker) emitStop(roomID string) {
	t.mu.Lock()
	delete(t.stopTimers, roomID)
	t.mu.Unlock()

	_ = t.emitter.SendTyping(roomID, false)
}

// Apply обрабатывает входящий typing-broadcast другого пользователя.
func (t *TypingTracker) Apply(p protocol.TypingPayload) {
	t.mu.Lock()
	defer t.mu.Unlock()

	room := t.peers[p.RoomID]
	if p.IsTyping {
		if room == nil {
			room = make(map[string]string)
			t.peers[p.RoomID] = room
		}
		room[p.UserID] = p.Username
		return
	}
	if room != nil {
		delete(room, p.UserID)
		if len(room) == 0 {
			delete(t.peers, p.RoomID)
		}
	}
}

// TypingUsers — кто сейчас печатает в комнате (userID -> username).
func (t *TypingTracker) TypingUsers(roomID string) map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]string, len(t.peers[roomID]))
	for id, name := range t.peers[roomID] {
		out[id] = name
	}
	return out
}

// ClearRoom сбрасывает входящее состояние при навигации из комнаты: сервер
// не имеет таймаута для typing-записей отвалившегося пира, локальная очистка
// при навигации — принятая аппроксимация.
func (t *TypingTracker) ClearRoom(roomID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.peers, roomID)
}
