package service

import (
	"context"
	"time"

	"github.com/chatline-app/chat-service/internal/domain"
)

// Интерфейсы хранилища; реализация — internal/postgres.

type UserRepo interface {
	Create(ctx context.Context, u *domain.User) error
	Get(ctx context.Context, id string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	SetStatus(ctx context.Context, id string, status domain.UserStatus, at time.Time) error
}

type ChatroomRepo interface {
	Create(ctx context.Context, room *domain.Chatroom) error
	Get(ctx context.Context, id string) (*domain.Chatroom, error)
	ListForUser(ctx context.Context, userID string) ([]domain.Chatroom, error)
	AddMembers(ctx context.Context, roomID string, userIDs []string) error
	IsMember(ctx context.Context, roomID, userID string) (bool, error)
	SetLastMessage(ctx context.Context, roomID string, messageID *string) error
}

type MessageRepo interface {
	Create(ctx context.Context, m *domain.Message) error
	Get(ctx context.Context, id string) (*domain.Message, error)
	ListPage(ctx context.Context, roomID string, page, pageSize int) ([]domain.Message, domain.Pagination, error)
	Edit(ctx context.Context, id, content string, at time.Time) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
	LastVisible(ctx context.Context, roomID string) (*domain.Message, error)
}
