package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/chatline-app/chat-service/internal/domain"
	"github.com/chatline-app/chat-service/internal/protocol"

	"github.com/gorilla/websocket"
)

type AuthSvc interface {
	ValidateToken(token string) (userID, username string, err error)
	SetStatus(ctx context.Context, userID string, status domain.UserStatus) error
}

type MemberSvc interface {
	IsMember(ctx context.Context, roomID, userID string) (bool, error)
}

type MessageSvc interface {
	Create(ctx context.Context, roomID, senderID, content string, quotedID *string) (*domain.Message, error)
}

type Server struct {
	upgrader   websocket.Upgrader
	hub        *Hub
	authSvc    AuthSvc
	memberSvc  MemberSvc
	messageSvc MessageSvc

	pingEvery  time.Duration
	sendBuffer int
}

func NewServer(hub *Hub, auth AuthSvc, member MemberSvc, message MessageSvc) *Server {
	return &Server{
		hub:        hub,
		authSvc:    auth,
		memberSvc:  member,
		messageSvc: message,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		pingEvery:  15 * time.Second,
		sendBuffer: 256,
	}
}

func (s *Server) SetPingEvery(d time.Duration) {
	if d > 0 {
		s.pingEvery = d
	}
}

func (s *Server) SetSendBuffer(n int) {
	if n > 0 {
		s.sendBuffer = n
	}
}

// WS endpoint: GET /ws?access_token=... (или Authorization: Bearer).
// Аутентификация выполняется один раз при открытии; отказ — явная ошибка,
// соединение никогда не бросается молча.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("access_token"))
	if token == "" {
		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			token = strings.TrimSpace(auth[7:])
		}
	}
	if token == "" {
		http.Error(w, "missing access_token", http.StatusUnauthorized)
		return
	}

	userID, username, err := s.authSvc.ValidateToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "err", err)
		return
	}

	c := newConn(conn, userID, username, s.sendBuffer)
	s.hub.Add(c)

	ctx := context.Background()
	if err := s.authSvc.SetStatus(ctx, userID, domain.StatusOnline); err != nil {
		slog.Debug("ws set status online failed", "user", userID, "err", err)
	}
	s.broadcastStatus(userID, domain.StatusOnline)

	go c.writeLoop(s.pingEvery)
	s.readLoop(ctx, c)

	s.hub.Remove(c)
	c.Close()

	// offline только когда закрыта последняя вкладка пользователя
	if s.hub.ConnsForUser(userID) == 0 {
		if err := s.authSvc.SetStatus(ctx, userID, domain.StatusOffline); err != nil {
			slog.Debug("ws set status offline failed", "user", userID, "err", err)
		}
		s.broadcastStatus(userID, domain.StatusOffline)
	}
}

func (s *Server) broadcastStatus(userID string, status domain.UserStatus) {
	ev, err := protocol.NewEvent(protocol.TypeUserStatus, protocol.UserStatusPayload{
		UserID: userID,
		Status: status,
	})
	if err != nil {
		return
	}
	s.hub.BroadcastAll(ev)
}

// BroadcastNewChatroom уведомляет участников о созданной комнате (HTTP-путь).
func (s *Server) BroadcastNewChatroom(room *domain.Chatroom) {
	ev, err := protocol.NewEvent(protocol.TypeNewChatroom, protocol.ChatroomPayload{Chatroom: *room})
	if err != nil {
		return
	}
	s.hub.BroadcastAll(ev)
}

func (s *Server) readLoop(ctx context.Context, c *Conn) {
	defer c.Close()

	c.conn.SetReadLimit(1 << 20)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		ev, err := protocol.ParseEvent(data)
		if err != nil {
			continue
		}
		s.dispatch(ctx, c, ev)
	}
}

// dispatch обрабатывает одно входящее событие. События одной комнаты
// сериализуются порядком чтения сокета; гарантия порядка между комнатами
// отсутствует.
func (s *Server) dispatch(ctx context.Context, c *Conn, ev *protocol.Event) {
	switch ev.Type {
	case protocol.TypeJoinChatroom:
		var p protocol.RoomRef
		if decode(ev.Data, &p) != nil || p.RoomID == "" {
			return
		}
		s.hub.Join(c, p.RoomID)

	case protocol.TypeLeaveChatroom:
		var p protocol.RoomRef
		if decode(ev.Data, &p) != nil || p.RoomID == "" {
			return
		}
		s.hub.Leave(c, p.RoomID)

	case protocol.TypeTyping:
		var p protocol.TypingPayload
		if decode(ev.Data, &p) != nil || p.RoomID == "" {
			return
		}
		// тегируем отправителя; автору не эхоим ни в одну вкладку
		out, err := protocol.NewEvent(protocol.TypeTyping, protocol.TypingPayload{
			RoomID:   p.RoomID,
			UserID:   c.userID,
			Username: c.username,
			IsTyping: p.IsTyping,
		})
		if err != nil {
			return
		}
		s.hub.BroadcastRoomUser(p.RoomID, out, c.userID)

	case protocol.TypeSendMessage:
		s.handleSendMessage(ctx, c, ev)

	case protocol.TypeMessageSent:
		// relay уже сохранённого сообщения (HTTP-путь создания)
		s.relayMessage(ctx, c, ev, protocol.TypeNewMessage)

	case protocol.TypeMessageEdited:
		s.relayMessage(ctx, c, ev, protocol.TypeMessageUpdated)

	case protocol.TypeReactionAdded:
		// реакции не персистятся: сервер только ретранслирует сообщение
		// с обновлённым набором остальным участникам
		s.relayMessage(ctx, c, ev, protocol.TypeReactionUpdated)

	case protocol.TypeMessageDeleted:
		var p protocol.MessageDeletedPayload
		if decode(ev.Data, &p) != nil || p.RoomID == "" {
			return
		}
		if !s.requireMember(ctx, c, p.RoomID) {
			return
		}
		out, err := protocol.NewEvent(protocol.TypeMessageDeleted, p)
		if err != nil {
			return
		}
		s.hub.BroadcastRoom(p.RoomID, out, c)

	default:
		// ignore
	}
}

// handleSendMessage — socket-путь создания: валидация и членство в сервисе,
// подтверждённое сообщение уходит всем участникам, включая другие соединения
// отправителя. Ошибка — scoped message-error только инициатору.
func (s *Server) handleSendMessage(ctx context.Context, c *Conn, ev *protocol.Event) {
	var p protocol.SendMessagePayload
	if decode(ev.Data, &p) != nil || p.RoomID == "" {
		s.sendError(c, "roomId and content are required")
		return
	}

	m, err := s.messageSvc.Create(ctx, p.RoomID, c.userID, p.Content, p.QuotedID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotMember):
			s.sendError(c, "not a member of this chatroom")
		case errors.Is(err, domain.ErrEmptyContent), errors.Is(err, domain.ErrContentTooLong):
			s.sendError(c, err.Error())
		default:
			slog.Warn("ws send message failed", "room", p.RoomID, "user", c.userID, "err", err)
			s.sendError(c, "failed to send message")
		}
		return
	}

	out, err := protocol.NewEvent(protocol.TypeNewMessage, protocol.MessagePayload{
		RoomID:    m.RoomID,
		Message:   *m,
		ClientTag: p.ClientTag,
	})
	if err != nil {
		return
	}
	s.hub.BroadcastRoom(m.RoomID, out, nil)
}

// relayMessage рассылает уже подтверждённое сообщение остальным участникам.
// Членство перепроверяется заново: между join и отправкой оно могло измениться.
func (s *Server) relayMessage(ctx context.Context, c *Conn, ev *protocol.Event, outType protocol.EventType) {
	var p protocol.MessagePayload
	if decode(ev.Data, &p) != nil || p.RoomID == "" {
		return
	}
	if !s.requireMember(ctx, c, p.RoomID) {
		return
	}
	out, err := protocol.NewEvent(outType, p)
	if err != nil {
		return
	}
	s.hub.BroadcastRoom(p.RoomID, out, c)
}

func (s *Server) requireMember(ctx context.Context, c *Conn, roomID string) bool {
	ok, err := s.memberSvc.IsMember(ctx, roomID, c.userID)
	if err != nil {
		slog.Warn("ws membership check failed", "room", roomID, "user", c.userID, "err", err)
		s.sendError(c, "failed to verify membership")
		return false
	}
	if !ok {
		s.sendError(c, "not a member of this chatroom")
		return false
	}
	return true
}

func (s *Server) sendError(c *Conn, msg string) {
	ev, err := protocol.NewEvent(protocol.TypeMessageError, protocol.ErrorPayload{Error: msg})
	if err != nil {
		return
	}
	c.Send(ev)
}

func decode(raw json.RawMessage, dst any) error {
	return json.Unmarshal(raw, dst)
}
