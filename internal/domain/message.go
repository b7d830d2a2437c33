package domain

import "time"

// Message identity (ID, RoomID, SenderID, CreatedAt) is immutable once persisted.
// Content and the edit/delete flags mutate only through the edit/delete flow.
type Message struct {
	ID         string     `db:"id" json:"id"`
	RoomID     string     `db:"room_id" json:"roomId"`
	SenderID   string     `db:"sender_id" json:"senderId"`
	SenderName string     `db:"sender_name" json:"senderName"`
	Content    string     `db:"content" json:"content"`
	QuotedID   *string    `db:"quoted_id" json:"quotedMessageId,omitempty"`
	Reactions  []Reaction `db:"-" json:"reactions,omitempty"`
	IsEdited   bool       `db:"is_edited" json:"isEdited"`
	EditedAt   *time.Time `db:"edited_at" json:"editedAt,omitempty"`
	IsDeleted  bool       `db:"is_deleted" json:"isDeleted"`
	DeletedAt  *time.Time `db:"deleted_at" json:"deletedAt,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
}

// Reaction — emoji-отметка на сообщении; уникальна по паре userId+emoji.
// Реакции живут только в транспортном слое: история их не хранит.
type Reaction struct {
	UserID    string    `json:"userId"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"createdAt"`
}

// Pagination — page-номер и общее количество страниц, как их отдаёт history API.
type Pagination struct {
	Page  int `json:"page"`
	Pages int `json:"pages"`
}
