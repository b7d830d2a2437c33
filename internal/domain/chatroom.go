package domain

import "time"

type RoomType string

const (
	RoomPersonal RoomType = "personal"
	RoomGroup    RoomType = "group"
)

type MemberRole string

const (
	RoleAdmin  MemberRole = "admin"
	RoleMember MemberRole = "member"
)

type Member struct {
	UserID   string     `db:"user_id" json:"userId"`
	Role     MemberRole `db:"role" json:"role"`
	JoinedAt time.Time  `db:"joined_at" json:"joinedAt"`
}

// MessageSummary — последнее сообщение комнаты для списка чатов.
type MessageSummary struct {
	MessageID string    `json:"messageId"`
	Content   string    `json:"content"`
	SenderID  string    `json:"senderId"`
	Timestamp time.Time `json:"timestamp"`
}

type Chatroom struct {
	ID          string          `db:"id" json:"id"`
	Name        string          `db:"name" json:"name"`
	Type        RoomType        `db:"type" json:"type"`
	Members     []Member        `db:"-" json:"members"`
	LastMessage *MessageSummary `db:"-" json:"lastMessage,omitempty"`
	CreatedBy   string          `db:"created_by" json:"createdBy"`
	CreatedAt   time.Time       `db:"created_at" json:"createdAt"`
}
