package client

import "fmt"

// Таксономия ошибок клиента (см. propagation policy в engine):
//   - AuthError       — фатальна для соединения, без retry, нужен re-login;
//   - ConnectError    — сетевые сбои, ретраится бэкоффом менеджера соединения;
//   - MembershipError — не ретраится, scoped на конкретный запрос;
//   - ValidationError — отбрасывается до любого сетевого вызова;
//   - ConflictOnDelete — авторитетный delete не прошёл после undo-окна.

type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return fmt.Sprintf("auth: %v", e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string { return fmt.Sprintf("connect: %v", e.Err) }
func (e *ConnectError) Unwrap() error { return e.Err }

type MembershipError struct {
	Reason string
}

func (e *MembershipError) Error() string {
	if e.Reason == "" {
		return "not a member of the chatroom"
	}
	return e.Reason
}

type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "validation: " + e.Reason }

type ConflictOnDelete struct {
	MessageID string
	Err       error
}

func (e *ConflictOnDelete) Error() string {
	return fmt.Sprintf("delete of message %s failed: %v", e.MessageID, e.Err)
}
func (e *ConflictOnDelete) Unwrap() error { return e.Err }
