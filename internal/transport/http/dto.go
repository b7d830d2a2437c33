package http

import (
	"time"

	"github.com/chatline-app/chat-service/internal/domain"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type UserItem struct {
	ID       string            `json:"id"`
	Username string            `json:"username"`
	Email    string            `json:"email"`
	Status   domain.UserStatus `json:"status"`
	LastSeen time.Time         `json:"lastSeen"`
}

type AuthResponse struct {
	User  UserItem `json:"user"`
	Token string   `json:"token"`
}

type CreateChatroomRequest struct {
	Name      string   `json:"name"`
	Type      string   `json:"type"` // personal|group
	MemberIDs []string `json:"memberIds"`
}

type AddMembersRequest struct {
	MemberIDs []string `json:"memberIds"`
}

type ChatroomResponse struct {
	Chatroom domain.Chatroom `json:"chatroom"`
}

type ChatroomsResponse struct {
	Chatrooms []domain.Chatroom `json:"chatrooms"`
}

type CreateMessageRequest struct {
	RoomID   string  `json:"roomId"`
	Content  string  `json:"content"`
	QuotedID *string `json:"quotedMessageId,omitempty"`
}

type EditMessageRequest struct {
	Content string `json:"content"`
}

type MessageResponse struct {
	Message domain.Message `json:"message"`
}

// MessagesResponse — контракт history API: страница + pagination{page,pages}.
type MessagesResponse struct {
	Messages   []domain.Message  `json:"messages"`
	Pagination domain.Pagination `json:"pagination"`
}

func toUserItem(u *domain.User) UserItem {
	return UserItem{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		Status:   u.Status,
		LastSeen: u.LastSeen,
	}
}
