package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chatline-app/chat-service/internal/domain"
)

type ChatroomService struct {
	rooms ChatroomRepo
}

func NewChatroomService(rooms ChatroomRepo) *ChatroomService {
	return &ChatroomService{rooms: rooms}
}

// Create создаёт комнату; создатель становится admin, остальные — member.
func (s *ChatroomService) Create(ctx context.Context, name string, roomType domain.RoomType, creatorID string, memberIDs []string) (*domain.Chatroom, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("room name is required")
	}
	if roomType != domain.RoomPersonal && roomType != domain.RoomGroup {
		roomType = domain.RoomGroup
	}

	room := &domain.Chatroom{
		Name:      name,
		Type:      roomType,
		CreatedBy: creatorID,
		Members:   []domain.Member{{UserID: creatorID, Role: domain.RoleAdmin}},
	}
	for _, uid := range memberIDs {
		if uid == creatorID {
			continue
		}
		room.Members = append(room.Members, domain.Member{UserID: uid, Role: domain.RoleMember})
	}

	if err := s.rooms.Create(ctx, room); err != nil {
		return nil, fmt.Errorf("rooms.Create: %w", err)
	}
	return room, nil
}

func (s *ChatroomService) Get(ctx context.Context, id string) (*domain.Chatroom, error) {
	return s.rooms.Get(ctx, id)
}

func (s *ChatroomService) ListForUser(ctx context.Context, userID string) ([]domain.Chatroom, error) {
	return s.rooms.ListForUser(ctx, userID)
}

// AddMembers — добавить участников может только текущий участник комнаты.
func (s *ChatroomService) AddMembers(ctx context.Context, roomID, actorID string, memberIDs []string) (*domain.Chatroom, error) {
	ok, err := s.rooms.IsMember(ctx, roomID, actorID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrNotMember
	}

	if err := s.rooms.AddMembers(ctx, roomID, memberIDs); err != nil {
		return nil, fmt.Errorf("rooms.AddMembers: %w", err)
	}
	return s.rooms.Get(ctx, roomID)
}

func (s *ChatroomService) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	return s.rooms.IsMember(ctx, roomID, userID)
}
