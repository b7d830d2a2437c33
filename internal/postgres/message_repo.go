package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/chatline-app/chat-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MessageRepository struct {
	db *pgxpool.Pool
}

func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(ctx context.Context, m *domain.Message) error {
	query := `
		INSERT INTO messages (room_id, sender_id, content, quoted_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`
	if err := r.db.QueryRow(ctx, query, m.RoomID, m.SenderID, m.Content, m.QuotedID).
		Scan(&m.ID, &m.CreatedAt); err != nil {
		return err
	}
	return r.db.QueryRow(ctx,
		`SELECT username FROM users WHERE id=$1`, m.SenderID).Scan(&m.SenderName)
}

func (r *MessageRepository) Get(ctx context.Context, id string) (*domain.Message, error) {
	var m domain.Message
	query := `
		SELECT m.id, m.room_id, m.sender_id, u.username, m.content, m.quoted_id,
		       m.is_edited, m.edited_at, m.is_deleted, m.deleted_at, m.created_at
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.id=$1`
	err := r.db.QueryRow(ctx, query, id).Scan(
		&m.ID, &m.RoomID, &m.SenderID, &m.SenderName, &m.Content, &m.QuotedID,
		&m.IsEdited, &m.EditedAt, &m.IsDeleted, &m.DeletedAt, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, err
	}
	return &m, nil
}

// ListPage возвращает страницу истории по номеру. page=1 — самые свежие
// сообщения; внутри страницы порядок created_at ASC, как ожидает клиент.
func (r *MessageRepository) ListPage(ctx context.Context, roomID string, page, pageSize int) ([]domain.Message, domain.Pagination, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	var total int
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE room_id=$1`, roomID).Scan(&total); err != nil {
		return nil, domain.Pagination{}, err
	}
	pages := (total + pageSize - 1) / pageSize
	if pages == 0 {
		pages = 1
	}

	query := `
		SELECT m.id, m.room_id, m.sender_id, u.username, m.content, m.quoted_id,
		       m.is_edited, m.edited_at, m.is_deleted, m.deleted_at, m.created_at
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.room_id=$1
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT $2 OFFSET $3`
	rows, err := r.db.Query(ctx, query, roomID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, domain.Pagination{}, err
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(
			&m.ID, &m.RoomID, &m.SenderID, &m.SenderName, &m.Content, &m.QuotedID,
			&m.IsEdited, &m.EditedAt, &m.IsDeleted, &m.DeletedAt, &m.CreatedAt); err != nil {
			return nil, domain.Pagination{}, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Pagination{}, err
	}

	// выборка DESC — разворачиваем в ASC
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}

	return out, domain.Pagination{Page: page, Pages: pages}, nil
}

func (r *MessageRepository) Edit(ctx context.Context, id, content string, at time.Time) error {
	ct, err := r.db.Exec(ctx, `
		UPDATE messages
		SET content=$2, is_edited=TRUE, edited_at=$3
		WHERE id=$1 AND is_deleted=FALSE`, id, content, at)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrMessageNotFound
	}
	return nil
}

// SoftDelete оставляет запись на месте (tombstone), контент затирается.
func (r *MessageRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	ct, err := r.db.Exec(ctx, `
		UPDATE messages
		SET is_deleted=TRUE, deleted_at=$2, content=''
		WHERE id=$1`, id, at)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrMessageNotFound
	}
	return nil
}

// LastVisible — свежайшее неудалённое сообщение комнаты (для пересчёта lastMessage).
func (r *MessageRepository) LastVisible(ctx context.Context, roomID string) (*domain.Message, error) {
	var m domain.Message
	query := `
		SELECT m.id, m.room_id, m.sender_id, u.username, m.content, m.quoted_id,
		       m.is_edited, m.edited_at, m.is_deleted, m.deleted_at, m.created_at
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.room_id=$1 AND m.is_deleted=FALSE
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT 1`
	err := r.db.QueryRow(ctx, query, roomID).Scan(
		&m.ID, &m.RoomID, &m.SenderID, &m.SenderName, &m.Content, &m.QuotedID,
		&m.IsEdited, &m.EditedAt, &m.IsDeleted, &m.DeletedAt, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, err
	}
	return &m, nil
}
