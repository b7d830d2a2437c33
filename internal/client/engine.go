package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chatline-app/chat-service/internal/domain"
	"github.com/chatline-app/chat-service/internal/protocol"

	"github.com/google/uuid"
)

const defaultConfirmTimeout = 15 * time.Second

// Options собирает настройки движка; нулевые значения заменяются дефолтами.
type Options struct {
	BaseURL           string // http://host:port
	WSURL             string // ws://host:port/ws
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	TypingThrottle    time.Duration
	TypingDebounce    time.Duration
	UndoWindow        time.Duration
	PageSize          int
	ConfirmTimeout    time.Duration
	Clock             Clock
}

// Engine — корневой объект клиента: связывает REST API, socket-соединение
// и локальные реконсиляционные структуры. Все входящие события проходят
// через единый диспетчер соединения и применяются к store идемпотентно,
// поэтому повторная доставка после reconnect-а безопасна.
type Engine struct {
	api       *API
	conn      *Conn
	store     *Store
	rooms     *RoomList
	typing    *TypingTracker
	paginator *Paginator
	undo      *UndoScheduler
	clock     Clock

	confirmTimeout time.Duration

	mu            sync.Mutex
	self          domain.User
	confirmTimers map[string]Timer // clientTag -> таймер ожидания подтверждения

	// OnChange дёргается после каждого применённого события — сигнал UI
	// перечитать состояние. OnError получает message-error и провалы undo.
	OnChange func()
	OnError  func(err error)
}

func NewEngine(opts Options) *Engine {
	clock := opts.Clock
	if clock == nil {
		clock = NewClock()
	}
	confirm := opts.ConfirmTimeout
	if confirm <= 0 {
		confirm = defaultConfirmTimeout
	}

	e := &Engine{
		api:            NewAPI(opts.BaseURL, opts.PageSize),
		store:          NewStore(),
		rooms:          NewRoomList(),
		clock:          clock,
		confirmTimeout: confirm,
		confirmTimers:  make(map[string]Timer),
	}
	e.paginator = NewPaginator(e.api, e.store)
	e.undo = NewUndoScheduler(clock, e.api, opts.UndoWindow, e.onUndoDeleted, e.onUndoFailed)

	e.conn = NewConn(opts.WSURL, clock, opts.ReconnectAttempts, opts.ReconnectDelay, Handlers{
		OnNewMessage:      e.onNewMessage,
		OnMessageUpdated:  e.onMessageUpdated,
		OnMessageDeleted:  e.onMessageDeleted,
		OnReactionUpdated: e.onReactionUpdated,
		OnTyping:          e.onTyping,
		OnUserStatus:      e.onUserStatus,
		OnNewChatroom:     e.onNewChatroom,
		OnMessageError:    e.onMessageError,
		OnStateChange:     func(ConnState) { e.changed() },
	})
	e.typing = NewTypingTracker(clock, e.conn, opts.TypingThrottle, opts.TypingDebounce)
	return e
}

// Login аутентифицируется, открывает socket и загружает список комнат.
func (e *Engine) Login(ctx context.Context, username, password string) error {
	user, err := e.api.Login(ctx, username, password)
	if err != nil {
		return err
	}
	return e.start(ctx, *user)
}

func (e *Engine) Register(ctx context.Context, username, email, password string) error {
	user, err := e.api.Register(ctx, username, email, password)
	if err != nil {
		return err
	}
	return e.start(ctx, *user)
}

func (e *Engine) start(ctx context.Context, user domain.User) error {
	e.mu.Lock()
	e.self = user
	e.mu.Unlock()

	if err := e.conn.Connect(ctx, e.api.Token()); err != nil {
		return err
	}

	rooms, err := e.api.ListChatrooms(ctx)
	if err != nil {
		return err
	}
	e.rooms.SetRooms(rooms)
	e.changed()
	return nil
}

func (e *Engine) Close() {
	e.conn.Disconnect()
}

func (e *Engine) Self() domain.User {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.self
}

func (e *Engine) Store() *Store          { return e.store }
func (e *Engine) Rooms() *RoomList       { return e.rooms }
func (e *Engine) Typing() *TypingTracker { return e.typing }
func (e *Engine) Undo() *UndoScheduler   { return e.undo }
func (e *Engine) ConnState() ConnState   { return e.conn.State() }
func (e *Engine) API() *API              { return e.api }

// OpenRoom выбирает комнату: сброс непрочитанных, socket-подписка,
// первая страница истории.
func (e *Engine) OpenRoom(ctx context.Context, roomID string) error {
	prev := e.rooms.Selected()
	if prev != "" && prev != roomID {
		e.closeRoom(prev)
	}

	e.rooms.Select(roomID)
	e.conn.JoinRoom(roomID)
	if err := e.paginator.OpenRoom(ctx, roomID); err != nil {
		return err
	}
	e.changed()
	return nil
}

func (e *Engine) CloseRoom(roomID string) {
	e.closeRoom(roomID)
	e.changed()
}

func (e *Engine) closeRoom(roomID string) {
	e.typing.StopNow(roomID)
	e.typing.ClearRoom(roomID)
	e.conn.LeaveRoom(roomID)
	e.paginator.CloseRoom(roomID)
	e.store.DropRoom(roomID)
}

// LoadOlder подтягивает следующую страницу истории с сохранением якоря скролла.
func (e *Engine) LoadOlder(ctx context.Context, roomID string, vp Viewport) (bool, error) {
	loaded, err := e.paginator.LoadOlder(ctx, roomID, vp)
	if loaded {
		e.changed()
	}
	return loaded, err
}

// Keystroke — сигнал набора текста; троттлинг внутри трекера.
func (e *Engine) Keystroke(roomID string) {
	e.typing.Keystroke(roomID)
}

// SendMessage — оптимистичная отправка: запись Pending появляется сразу,
// подтверждение приходит либо HTTP-ответом, либо socket-эхом; что первым —
// неважно, AppendConfirmed идемпотентен. Если подтверждения нет в пределах
// confirmTimeout, запись переводится в Failed.
func (e *Engine) SendMessage(ctx context.Context, roomID, content string, quotedID *string) (string, error) {
	tag := uuid.NewString()

	e.mu.Lock()
	self := e.self
	e.mu.Unlock()

	e.store.AddPending(roomID, tag, self.ID, self.Username, content, quotedID, e.clock.Now())
	e.armConfirmTimer(roomID, tag)
	e.changed()

	m, err := e.api.CreateMessage(ctx, roomID, content, quotedID)
	if err != nil {
		e.stopConfirmTimer(tag)
		e.store.FailPending(roomID, tag)
		e.changed()
		return tag, err
	}

	e.stopConfirmTimer(tag)
	e.store.AppendConfirmed(*m, tag)
	e.rooms.ApplyLastMessage(roomID, *m)
	e.changed()

	if err := e.conn.EmitMessageSent(*m); err != nil {
		slog.Debug("message-sent relay skipped", "err", err)
	}
	return tag, nil
}

// RetryMessage повторяет неудавшуюся отправку: старая Failed-запись
// убирается, сообщение уходит заново под новым тегом.
func (e *Engine) RetryMessage(ctx context.Context, roomID, tag, content string, quotedID *string) (string, error) {
	e.store.DiscardPending(roomID, tag)
	return e.SendMessage(ctx, roomID, content, quotedID)
}

func (e *Engine) DiscardMessage(roomID, tag string) {
	if e.store.DiscardPending(roomID, tag) {
		e.changed()
	}
}

func (e *Engine) armConfirmTimer(roomID, tag string) {
	t := e.clock.AfterFunc(e.confirmTimeout, func() {
		e.mu.Lock()
		_, live := e.confirmTimers[tag]
		delete(e.confirmTimers, tag)
		e.mu.Unlock()
		if live && e.store.FailPending(roomID, tag) {
			slog.Warn("send confirmation timed out", "room_id", roomID, "client_tag", tag)
			e.changed()
		}
	})

	e.mu.Lock()
	e.confirmTimers[tag] = t
	e.mu.Unlock()
}

func (e *Engine) stopConfirmTimer(tag string) {
	e.mu.Lock()
	t, ok := e.confirmTimers[tag]
	delete(e.confirmTimers, tag)
	e.mu.Unlock()
	if ok {
		t.Stop()
	}
}

// EditMessage правит содержимое; остальные поля записи неприкосновенны.
func (e *Engine) EditMessage(ctx context.Context, messageID, content string) error {
	m, err := e.api.EditMessage(ctx, messageID, content)
	if err != nil {
		return err
	}
	e.store.ApplyEdit(*m)
	e.changed()

	if err := e.conn.EmitMessageEdited(*m); err != nil {
		slog.Debug("message-edited relay skipped", "err", err)
	}
	return nil
}

// DeleteMessage стартует undo-окно. Локально сообщение остаётся на месте —
// UI рисует плейсхолдер по Undo().State; авторитетное удаление и тумбстоун
// применяются только по истечении окна.
// ToggleReaction ставит или снимает собственную реакцию локально и
// ретранслирует сообщение с обновлённым набором. Реакции эфемерны:
// сервер их не хранит, история приходит без них.
func (e *Engine) ToggleReaction(roomID, messageID, emoji string) bool {
	e.mu.Lock()
	self := e.self
	e.mu.Unlock()

	m, ok := e.store.ToggleReaction(roomID, messageID, domain.Reaction{
		UserID:    self.ID,
		Emoji:     emoji,
		CreatedAt: e.clock.Now(),
	})
	if !ok {
		return false
	}
	e.changed()

	if err := e.conn.EmitReactionAdded(m); err != nil {
		slog.Debug("reaction relay skipped", "err", err)
	}
	return true
}

func (e *Engine) onReactionUpdated(p protocol.MessagePayload) {
	e.store.ApplyReactions(p.RoomID, p.Message.ID, p.Message.Reactions)
	e.changed()
}

func (e *Engine) DeleteMessage(roomID, messageID string) time.Time {
	deadline := e.undo.Request(roomID, messageID)
	e.changed()
	return deadline
}

// UndoDelete отменяет удаление до дедлайна; ни одного сетевого вызова.
func (e *Engine) UndoDelete(messageID string) bool {
	ok := e.undo.Cancel(messageID)
	if ok {
		e.changed()
	}
	return ok
}

func (e *Engine) onUndoDeleted(roomID, messageID string) {
	e.store.ApplyDelete(roomID, messageID, e.clock.Now())
	e.rooms.ApplyMessageDeleted(roomID, messageID, nil)
	e.changed()

	if err := e.conn.EmitMessageDeleted(roomID, messageID); err != nil {
		slog.Debug("message-deleted relay skipped", "err", err)
	}
}

func (e *Engine) onUndoFailed(roomID, messageID string, err error) {
	slog.Warn("delete failed", "room_id", roomID, "message_id", messageID, "err", err)
	e.fail(err)
	e.changed()
}

func (e *Engine) onNewMessage(p protocol.MessagePayload) {
	if p.ClientTag != "" {
		e.stopConfirmTimer(p.ClientTag)
	}
	e.store.AppendConfirmed(p.Message, p.ClientTag)
	e.rooms.ApplyLastMessage(p.RoomID, p.Message)
	// автор отправил сообщение — его индикатор набора гаснет
	e.typing.Apply(protocol.TypingPayload{
		RoomID:   p.RoomID,
		UserID:   p.Message.SenderID,
		IsTyping: false,
	})
	e.changed()
}

func (e *Engine) onMessageUpdated(p protocol.MessagePayload) {
	e.store.ApplyEdit(p.Message)
	e.changed()
}

func (e *Engine) onMessageDeleted(p protocol.MessageDeletedPayload) {
	e.store.ApplyDelete(p.RoomID, p.MessageID, e.clock.Now())
	e.rooms.ApplyMessageDeleted(p.RoomID, p.MessageID, nil)
	e.changed()
}

func (e *Engine) onTyping(p protocol.TypingPayload) {
	e.typing.Apply(p)
	e.changed()
}

func (e *Engine) onUserStatus(p protocol.UserStatusPayload) {
	e.rooms.SetUserStatus(p.UserID, p.Status)
	e.changed()
}

func (e *Engine) onNewChatroom(p protocol.ChatroomPayload) {
	e.rooms.Add(p.Chatroom)
	e.changed()
}

func (e *Engine) onMessageError(p protocol.ErrorPayload) {
	e.fail(fmt.Errorf("server rejected message: %s", p.Error))
}

func (e *Engine) changed() {
	if e.OnChange != nil {
		e.OnChange()
	}
}

func (e *Engine) fail(err error) {
	if e.OnError != nil {
		e.OnError(err)
	}
}
