package client

import (
	"context"
	"sync"

	"github.com/chatline-app/chat-service/internal/domain"
)

// Viewport — то, что контроллер знает о прокручиваемом окне сообщений.
// Реализация — дело UI; контроллер лишь корректирует смещение на дельту
// высоты, привнесённую prepend-ом.
type Viewport interface {
	ContentHeight() int
	ScrollTop() int
	SetScrollTop(offset int)
}

type HistoryFetcher interface {
	FetchMessages(ctx context.Context, roomID string, page int) ([]domain.Message, domain.Pagination, error)
}

// Cursor продвигается только вперёд; page 1 — полная замена окна, страницы
// выше — prepend.
type Cursor struct {
	Page    int
	HasMore bool
}

// Paginator — single-flight подгрузка истории per room с сохранением
// scroll-якоря.
type Paginator struct {
	mu       sync.Mutex
	cursors  map[string]*Cursor
	inflight map[string]bool

	api   HistoryFetcher
	store *Store
}

func NewPaginator(api HistoryFetcher, store *Store) *Paginator {
	return &Paginator{
		cursors:  make(map[string]*Cursor),
		inflight: make(map[string]bool),
		api:      api,
		store:    store,
	}
}

// OpenRoom загружает page 1 и строит курсор заново: состояние пагинации не
// переживает закрытие комнаты.
func (p *Paginator) OpenRoom(ctx context.Context, roomID string) error {
	p.mu.Lock()
	if p.inflight[roomID] {
		p.mu.Unlock()
		return nil
	}
	p.inflight[roomID] = true
	p.mu.Unlock()

	msgs, pg, err := p.api.FetchMessages(ctx, roomID, 1)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.inflight[roomID] = false
	if err != nil {
		return err
	}

	p.store.ReplacePage1(roomID, msgs)
	p.cursors[roomID] = &Cursor{Page: 1, HasMore: pg.Page < pg.Pages}
	return nil
}

// LoadOlder — триггер "scroll достиг верха". No-op, если hasMore=false или
// fetch по комнате уже в полёте (single-flight). После prepend-а смещение
// корректируется ровно на дельту высоты контента, чтобы якорь не прыгал.
func (p *Paginator) LoadOlder(ctx context.Context, roomID string, vp Viewport) (bool, error) {
	p.mu.Lock()
	cur, ok := p.cursors[roomID]
	if !ok || !cur.HasMore || p.inflight[roomID] {
		p.mu.Unlock()
		return false, nil
	}
	p.inflight[roomID] = true
	next := cur.Page + 1
	p.mu.Unlock()

	msgs, pg, err := p.api.FetchMessages(ctx, roomID, next)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.inflight[roomID] = false
	if err != nil {
		return false, err
	}

	heightBefore := 0
	scrollBefore := 0
	if vp != nil {
		heightBefore = vp.ContentHeight()
		scrollBefore = vp.ScrollTop()
	}

	p.store.PrependOlder(roomID, msgs)

	if vp != nil {
		delta := vp.ContentHeight() - heightBefore
		vp.SetScrollTop(scrollBefore + delta)
	}

	// курсор только растёт
	if cur, ok := p.cursors[roomID]; ok {
		if pg.Page > cur.Page {
			cur.Page = pg.Page
		}
		cur.HasMore = pg.Page < pg.Pages
	}
	return true, nil
}

// Cursor возвращает снапшот курсора комнаты.
func (p *Paginator) Cursor(roomID string) (Cursor, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.cursors[roomID]; ok {
		return *c, true
	}
	return Cursor{}, false
}

// CloseRoom сбрасывает курсор; scroll-позиция нигде не кешируется.
func (p *Paginator) CloseRoom(roomID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.cursors, roomID)
	delete(p.inflight, roomID)
}
