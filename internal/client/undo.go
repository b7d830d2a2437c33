package client

import (
	"context"
	"sync"
	"time"
)

type MessageDeleter interface {
	DeleteMessage(ctx context.Context, messageID string) error
}

// UndoState — состояние сообщения с точки зрения планировщика удаления.
type UndoState int

const (
	UndoVisible UndoState = iota
	UndoPending
	UndoDeleted
)

type pendingUndo struct {
	roomID   string
	deadline time.Time
	timer    Timer
}

// UndoScheduler откладывает авторитетное удаление на undo-окно. Пока запись
// в PendingUndo, UI показывает плейсхолдер с отменой; Cancel до дедлайна
// возвращает Visible без единого сетевого вызова. По истечении окна удаление
// уходит во внешний store, и только при успехе рассылается подтверждение.
type UndoScheduler struct {
	mu      sync.Mutex
	clock   Clock
	window  time.Duration
	api     MessageDeleter
	pending map[string]*pendingUndo
	deleted map[string]struct{}

	// onDeleted вызывается после успешного авторитетного удаления;
	// onFailed — при провале: состояние откатывается в Visible.
	onDeleted func(roomID, messageID string)
	onFailed  func(roomID, messageID string, err error)
}

func NewUndoScheduler(clock Clock, api MessageDeleter, window time.Duration,
	onDeleted func(roomID, messageID string),
	onFailed func(roomID, messageID string, err error)) *UndoScheduler {
	if window <= 0 {
		window = 6 * time.Second
	}
	return &UndoScheduler{
		clock:     clock,
		window:    window,
		api:       api,
		pending:   make(map[string]*pendingUndo),
		deleted:   make(map[string]struct{}),
		onDeleted: onDeleted,
		onFailed:  onFailed,
	}
}

// Request стартует undo-окно. Повторный Request по тому же сообщению
// замещает предыдущий таймер: активен максимум один.
func (u *UndoScheduler) Request(roomID, messageID string) time.Time {
	u.mu.Lock()
	defer u.mu.Unlock()

	if prev, ok := u.pending[messageID]; ok {
		prev.timer.Stop()
	}

	deadline := u.clock.Now().Add(u.window)
	u.pending[messageID] = &pendingUndo{
		roomID:   roomID,
		deadline: deadline,
		timer: u.clock.AfterFunc(u.window, func() {
			u.fire(roomID, messageID)
		}),
	}
	return deadline
}

// Cancel до дедлайна возвращает сообщение в Visible; сетевых вызовов нет.
func (u *UndoScheduler) Cancel(messageID string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	p, ok := u.pending[messageID]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(u.pending, messageID)
	return true
}

// State — текущее состояние сообщения и дедлайн, если оно в PendingUndo.
func (u *UndoScheduler) State(messageID string) (UndoState, time.Time) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if p, ok := u.pending[messageID]; ok {
		return UndoPending, p.deadline
	}
	if _, ok := u.deleted[messageID]; ok {
		return UndoDeleted, time.Time{}
	}
	return UndoVisible, time.Time{}
}

func (u *UndoScheduler) fire(roomID, messageID string) {
	u.mu.Lock()
	if _, ok := u.pending[messageID]; !ok {
		// отменили в гонке с таймером
		u.mu.Unlock()
		return
	}
	delete(u.pending, messageID)
	u.mu.Unlock()

	if err := u.api.DeleteMessage(context.Background(), messageID); err != nil {
		// провал авторитетного удаления: возврат в Visible, не ретраим
		if u.onFailed != nil {
			u.onFailed(roomID, messageID, &ConflictOnDelete{MessageID: messageID, Err: err})
		}
		return
	}

	u.mu.Lock()
	u.deleted[messageID] = struct{}{}
	u.mu.Unlock()

	if u.onDeleted != nil {
		u.onDeleted(roomID, messageID)
	}
}
