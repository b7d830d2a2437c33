package service

import (
	"context"
	"strings"
	"time"

	"github.com/chatline-app/chat-service/internal/domain"
)

const maxContentLength = 4000

type MessageService struct {
	messages MessageRepo
	rooms    ChatroomRepo
	now      func() time.Time
}

func NewMessageService(messages MessageRepo, rooms ChatroomRepo, now func() time.Time) *MessageService {
	if now == nil {
		now = time.Now
	}
	return &MessageService{messages: messages, rooms: rooms, now: now}
}

// Create валидирует контент, повторно проверяет членство и сохраняет сообщение.
// Членство проверяется на каждой отправке: подписка на транспортном уровне ничего
// не гарантирует.
func (s *MessageService) Create(ctx context.Context, roomID, senderID, content string, quotedID *string) (*domain.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, domain.ErrEmptyContent
	}
	if len(content) > maxContentLength {
		return nil, domain.ErrContentTooLong
	}

	ok, err := s.rooms.IsMember(ctx, roomID, senderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrNotMember
	}

	m := &domain.Message{
		RoomID:   roomID,
		SenderID: senderID,
		Content:  content,
		QuotedID: quotedID,
	}
	if err := s.messages.Create(ctx, m); err != nil {
		return nil, err
	}

	if err := s.rooms.SetLastMessage(ctx, roomID, &m.ID); err != nil {
		return nil, err
	}
	return m, nil
}

// Edit разрешён только отправителю; меняется только content + edit-флаги.
func (s *MessageService) Edit(ctx context.Context, messageID, actorID, content string) (*domain.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, domain.ErrEmptyContent
	}
	if len(content) > maxContentLength {
		return nil, domain.ErrContentTooLong
	}

	m, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if m.SenderID != actorID {
		return nil, domain.ErrNotSender
	}

	at := s.now()
	if err := s.messages.Edit(ctx, messageID, content, at); err != nil {
		return nil, err
	}
	m.Content = content
	m.IsEdited = true
	m.EditedAt = &at
	return m, nil
}

// Delete — soft delete (tombstone). Возвращает новое последнее видимое сообщение
// комнаты (nil, если не осталось) для обновления lastMessage.
func (s *MessageService) Delete(ctx context.Context, messageID, actorID string) (roomID string, newLast *domain.Message, err error) {
	m, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return "", nil, err
	}
	if m.SenderID != actorID {
		return "", nil, domain.ErrNotSender
	}

	if err := s.messages.SoftDelete(ctx, messageID, s.now()); err != nil {
		return "", nil, err
	}

	last, err := s.messages.LastVisible(ctx, m.RoomID)
	switch {
	case err == nil:
		err = s.rooms.SetLastMessage(ctx, m.RoomID, &last.ID)
	case err == domain.ErrMessageNotFound:
		last = nil
		err = s.rooms.SetLastMessage(ctx, m.RoomID, nil)
	}
	if err != nil {
		return "", nil, err
	}
	return m.RoomID, last, nil
}

// History — постраничная история; членство проверяется и на чтении.
func (s *MessageService) History(ctx context.Context, roomID, userID string, page, pageSize int) ([]domain.Message, domain.Pagination, error) {
	ok, err := s.rooms.IsMember(ctx, roomID, userID)
	if err != nil {
		return nil, domain.Pagination{}, err
	}
	if !ok {
		return nil, domain.Pagination{}, domain.ErrNotMember
	}
	return s.messages.ListPage(ctx, roomID, page, pageSize)
}
