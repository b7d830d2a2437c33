package domain

import "errors"

var (
	ErrRoomNotFound    = errors.New("chatroom not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrNotMember       = errors.New("user is not a member of the chatroom")
	ErrNotSender       = errors.New("user is not the sender of the message")
	ErrEmptyContent    = errors.New("empty message content")
	ErrContentTooLong  = errors.New("message content too long")
	ErrUserExists      = errors.New("username or email already taken")
	ErrInvalidLogin    = errors.New("invalid username or password")
)
