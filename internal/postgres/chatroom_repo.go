package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/chatline-app/chat-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ChatroomRepository struct {
	db *pgxpool.Pool
}

func NewChatroomRepository(db *pgxpool.Pool) *ChatroomRepository {
	return &ChatroomRepository{db: db}
}

// Create вставляет комнату и всех участников в одной транзакции.
func (r *ChatroomRepository) Create(ctx context.Context, room *domain.Chatroom) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO chatrooms (name, type, created_by)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`
	if err := tx.QueryRow(ctx, query, room.Name, room.Type, room.CreatedBy).
		Scan(&room.ID, &room.CreatedAt); err != nil {
		return err
	}

	for i := range room.Members {
		m := &room.Members[i]
		if err := tx.QueryRow(ctx, `
			INSERT INTO chatroom_members (room_id, user_id, role)
			VALUES ($1, $2, $3)
			ON CONFLICT (room_id, user_id) DO UPDATE SET role=EXCLUDED.role
			RETURNING joined_at`,
			room.ID, m.UserID, m.Role).Scan(&m.JoinedAt); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *ChatroomRepository) Get(ctx context.Context, id string) (*domain.Chatroom, error) {
	var room domain.Chatroom
	query := `
		SELECT c.id, c.name, c.type, c.created_by, c.created_at,
		       m.id, m.content, m.sender_id, m.created_at
		FROM chatrooms c
		LEFT JOIN messages m ON m.id = c.last_message_id
		WHERE c.id=$1`
	var last domain.MessageSummary
	var lastID, lastContent, lastSender *string
	var lastTS *time.Time
	err := r.db.QueryRow(ctx, query, id).Scan(
		&room.ID, &room.Name, &room.Type, &room.CreatedBy, &room.CreatedAt,
		&lastID, &lastContent, &lastSender, &lastTS)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, err
	}
	if lastID != nil {
		last.MessageID = *lastID
		last.Content = *lastContent
		last.SenderID = *lastSender
		last.Timestamp = *lastTS
		room.LastMessage = &last
	}

	members, err := r.listMembers(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	room.Members = members

	return &room, nil
}

// ListForUser возвращает комнаты пользователя, свежие сверху (по последнему сообщению).
func (r *ChatroomRepository) ListForUser(ctx context.Context, userID string) ([]domain.Chatroom, error) {
	query := `
		SELECT c.id, c.name, c.type, c.created_by, c.created_at,
		       m.id, m.content, m.sender_id, m.created_at
		FROM chatrooms c
		JOIN chatroom_members cm ON cm.room_id = c.id AND cm.user_id = $1
		LEFT JOIN messages m ON m.id = c.last_message_id
		ORDER BY COALESCE(m.created_at, c.created_at) DESC`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Chatroom
	for rows.Next() {
		var room domain.Chatroom
		var lastID, lastContent, lastSender *string
		var lastTS *time.Time
		if err := rows.Scan(
			&room.ID, &room.Name, &room.Type, &room.CreatedBy, &room.CreatedAt,
			&lastID, &lastContent, &lastSender, &lastTS); err != nil {
			return nil, err
		}
		if lastID != nil {
			room.LastMessage = &domain.MessageSummary{
				MessageID: *lastID,
				Content:   *lastContent,
				SenderID:  *lastSender,
				Timestamp: *lastTS,
			}
		}
		out = append(out, room)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		members, err := r.listMembers(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Members = members
	}

	return out, nil
}

func (r *ChatroomRepository) listMembers(ctx context.Context, roomID string) ([]domain.Member, error) {
	rows, err := r.db.Query(ctx, `
		SELECT user_id, role, joined_at
		FROM chatroom_members
		WHERE room_id=$1
		ORDER BY joined_at ASC`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []domain.Member
	for rows.Next() {
		var m domain.Member
		if err := rows.Scan(&m.UserID, &m.Role, &m.JoinedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *ChatroomRepository) AddMembers(ctx context.Context, roomID string, userIDs []string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, uid := range userIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO chatroom_members (room_id, user_id, role)
			VALUES ($1, $2, 'member')
			ON CONFLICT (room_id, user_id) DO NOTHING`, roomID, uid); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// IsMember проверяется на каждом write-событии, не только при join:
// членство может измениться между подпиской и отправкой.
func (r *ChatroomRepository) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM chatroom_members WHERE room_id=$1 AND user_id=$2)`,
		roomID, userID).Scan(&exists)
	return exists, err
}

// SetLastMessage обновляет указатель last_message_id (NULL — если сообщений не осталось).
func (r *ChatroomRepository) SetLastMessage(ctx context.Context, roomID string, messageID *string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE chatrooms SET last_message_id=$2 WHERE id=$1`, roomID, messageID)
	return err
}
