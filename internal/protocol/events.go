// Package protocol defines the WebSocket event envelope shared by the
// server router and the client engine.
package protocol

import (
	"encoding/json"

	"github.com/chatline-app/chat-service/internal/domain"
)

// EventType identifies the type of a WebSocket event.
type EventType string

const (
	// client -> server
	TypeJoinChatroom  EventType = "join-chatroom"
	TypeLeaveChatroom EventType = "leave-chatroom"
	TypeTyping        EventType = "typing"
	TypeSendMessage   EventType = "send-message"
	TypeMessageSent   EventType = "message-sent"
	TypeMessageEdited EventType = "message-edited"
	TypeReactionAdded EventType = "reaction-added"

	// server -> client
	TypeNewMessage      EventType = "new-message"
	TypeMessageUpdated  EventType = "message-updated"
	TypeReactionUpdated EventType = "reaction-updated"
	TypeMessageError    EventType = "message-error"
	TypeUserStatus      EventType = "user-status"
	TypeNewChatroom     EventType = "new-chatroom"

	// both directions
	TypeMessageDeleted EventType = "message-deleted"
)

// Event wraps every WebSocket frame with a type tag.
type Event struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func NewEvent(t EventType, data any) (*Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Event{Type: t, Data: raw}, nil
}

func ParseEvent(raw []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

type RoomRef struct {
	RoomID string `json:"roomId"`
}

// TypingPayload: client -> server carries only the flag; the server tags the
// broadcast with the sender identity and never echoes it back to the sender.
type TypingPayload struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId,omitempty"`
	Username string `json:"username,omitempty"`
	IsTyping bool   `json:"isTyping"`
}

// SendMessagePayload — socket-based message create.
type SendMessagePayload struct {
	RoomID    string  `json:"roomId"`
	Content   string  `json:"content"`
	QuotedID  *string `json:"quotedMessageId,omitempty"`
	ClientTag string  `json:"clientTag,omitempty"` // optimistic-entry correlation id
}

// MessagePayload carries a full confirmed message (new/updated relays).
type MessagePayload struct {
	RoomID    string         `json:"roomId"`
	Message   domain.Message `json:"message"`
	ClientTag string         `json:"clientTag,omitempty"`
}

type MessageDeletedPayload struct {
	RoomID    string `json:"roomId"`
	MessageID string `json:"messageId"`
}

// ErrorPayload is scoped to the originator, never broadcast.
type ErrorPayload struct {
	Error string `json:"error"`
}

type UserStatusPayload struct {
	UserID string            `json:"userId"`
	Status domain.UserStatus `json:"status"`
}

type ChatroomPayload struct {
	Chatroom domain.Chatroom `json:"chatroom"`
}
