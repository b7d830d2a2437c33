package client

import (
	"sync"
	"time"

	"github.com/chatline-app/chat-service/internal/domain"
)

// SendState — явная машина состояний оптимистичной отправки.
type SendState int

const (
	StateConfirmed SendState = iota
	StatePending
	StateFailed
)

// Entry — сообщение в локальной коллекции комнаты. Для оптимистичных записей
// ID временный (pending-<tag>), пока не придёт подтверждение сервера.
type Entry struct {
	domain.Message
	State     SendState
	ClientTag string
}

// Store — per-room упорядоченная коллекция сообщений. Инварианты:
// сортировка по CreatedAt ASC, уникальные ID, записи никогда физически не
// удаляются (delete — tombstone). Единственный write-path к коллекциям.
type Store struct {
	mu    sync.Mutex
	rooms map[string][]Entry
}

func NewStore() *Store {
	return &Store{rooms: make(map[string][]Entry)}
}

// ReplacePage1 — открытие комнаты: полная замена видимого окна.
func (s *Store) ReplacePage1(roomID string, msgs []domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]Entry, 0, len(msgs))
	seen := make(map[string]struct{}, len(msgs))
	for _, m := range msgs {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		entries = append(entries, Entry{Message: m})
	}
	sortEntries(entries)
	s.rooms[roomID] = entries
}

// PrependOlder — пагинация: дедуп по ID, склейка в голову, существующие
// записи не переупорядочиваются.
func (s *Store) PrependOlder(roomID string, msgs []domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.rooms[roomID]
	ids := make(map[string]struct{}, len(existing))
	for _, e := range existing {
		ids[e.ID] = struct{}{}
	}

	var fresh []Entry
	for _, m := range msgs {
		if _, dup := ids[m.ID]; dup {
			continue
		}
		ids[m.ID] = struct{}{}
		fresh = append(fresh, Entry{Message: m})
	}
	if len(fresh) == 0 {
		return
	}
	sortEntries(fresh)
	s.rooms[roomID] = append(fresh, existing...)
}

// AddPending вставляет оптимистичную запись с временным ID.
func (s *Store) AddPending(roomID, tag, senderID, senderName, content string, quotedID *string, at time.Time) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := Entry{
		Message: domain.Message{
			ID:         "pending-" + tag,
			RoomID:     roomID,
			SenderID:   senderID,
			SenderName: senderName,
			Content:    content,
			QuotedID:   quotedID,
			CreatedAt:  at,
		},
		State:     StatePending,
		ClientTag: tag,
	}
	s.rooms[roomID] = insertSorted(s.rooms[roomID], e)
	return e
}

// AppendConfirmed применяет подтверждённое сервером сообщение. Если clientTag
// совпадает с ожидающей оптимистичной записью — она замещается (не дублируется);
// если ID уже известен — запись перезаписывается на месте; иначе вставка по
// порядку. Идемпотентна.
func (s *Store) AppendConfirmed(m domain.Message, clientTag string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.rooms[m.RoomID]

	for i := range entries {
		if entries[i].ID == m.ID {
			entries[i] = Entry{Message: m}
			return
		}
	}

	if clientTag != "" {
		for i := range entries {
			if entries[i].State == StatePending && entries[i].ClientTag == clientTag {
				// подтверждение замещает оптимистичную запись
				rest := append(entries[:i:i], entries[i+1:]...)
				s.rooms[m.RoomID] = insertSorted(rest, Entry{Message: m})
				return
			}
		}
	}

	s.rooms[m.RoomID] = insertSorted(entries, Entry{Message: m})
}

// FailPending переводит оптимистичную запись в Failed; запись остаётся видимой,
// решение retry/discard — за вызывающим.
func (s *Store) FailPending(roomID, tag string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.rooms[roomID]
	for i := range entries {
		if entries[i].State == StatePending && entries[i].ClientTag == tag {
			entries[i].State = StateFailed
			return true
		}
	}
	return false
}

// DiscardPending физически убирает неподтверждённую запись (только Pending/Failed).
func (s *Store) DiscardPending(roomID, tag string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.rooms[roomID]
	for i := range entries {
		if entries[i].State != StateConfirmed && entries[i].ClientTag == tag {
			s.rooms[roomID] = append(entries[:i:i], entries[i+1:]...)
			return true
		}
	}
	return false
}

// ApplyEdit мутирует только content и edit-флаги; identity не трогается.
func (s *Store) ApplyEdit(m domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.rooms[m.RoomID]
	for i := range entries {
		if entries[i].ID == m.ID {
			entries[i].Content = m.Content
			entries[i].IsEdited = m.IsEdited
			entries[i].EditedAt = m.EditedAt
			return
		}
	}
}

// ApplyReactions заменяет набор реакций сообщения целиком: входящее
// reaction-updated несёт авторитетный набор, merge не нужен.
func (s *Store) ApplyReactions(roomID, messageID string, reactions []domain.Reaction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.rooms[roomID]
	for i := range entries {
		if entries[i].ID == messageID {
			entries[i].Reactions = append([]domain.Reaction(nil), reactions...)
			return
		}
	}
}

// ToggleReaction добавляет или снимает собственную реакцию. Работает только
// по подтверждённым записям: у pending временный ID, который никому не известен.
// Возвращает сообщение с обновлённым набором для ретрансляции.
func (s *Store) ToggleReaction(roomID, messageID string, r domain.Reaction) (domain.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.rooms[roomID]
	for i := range entries {
		if entries[i].ID != messageID {
			continue
		}
		if entries[i].State != StateConfirmed || entries[i].IsDeleted {
			return domain.Message{}, false
		}
		kept := entries[i].Reactions[:0:0]
		removed := false
		for _, have := range entries[i].Reactions {
			if have.UserID == r.UserID && have.Emoji == r.Emoji {
				removed = true
				continue
			}
			kept = append(kept, have)
		}
		if !removed {
			kept = append(kept, r)
		}
		entries[i].Reactions = kept
		return entries[i].Message, true
	}
	return domain.Message{}, false
}

// ApplyDelete — tombstone: запись остаётся в коллекции, индексы не сдвигаются.
func (s *Store) ApplyDelete(roomID, messageID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.rooms[roomID]
	for i := range entries {
		if entries[i].ID == messageID {
			if !entries[i].IsDeleted {
				entries[i].IsDeleted = true
				entries[i].DeletedAt = &at
				entries[i].Content = ""
			}
			return
		}
	}
}

// Messages возвращает копию коллекции комнаты.
func (s *Store) Messages(roomID string) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.rooms[roomID]
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

// DropRoom сбрасывает коллекцию при закрытии комнаты; окно перечитывается
// с page 1 при повторном открытии (механизм consistency-repair).
func (s *Store) DropRoom(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, roomID)
}

func sortEntries(entries []Entry) {
	// вставками: страницы приходят почти отсортированными
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].CreatedAt.Before(entries[j-1].CreatedAt); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

// insertSorted вставляет после последней записи с CreatedAt <= e.CreatedAt:
// равные таймстемпы сохраняют порядок прибытия.
func insertSorted(entries []Entry, e Entry) []Entry {
	pos := len(entries)
	for pos > 0 && entries[pos-1].CreatedAt.After(e.CreatedAt) {
		pos--
	}
	entries = append(entries, Entry{})
	copy(entries[pos+1:], entries[pos:])
	entries[pos] = e
	return entries
}
