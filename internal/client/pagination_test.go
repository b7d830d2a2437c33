package client

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/chatline-app/chat-service/internal/domain"
)

// fakeHistory отдаёт заранее нарезанные страницы (в ASC-порядке, как сервер).
type fakeHistory struct {
	mu    sync.Mutex
	pages map[int][]domain.Message
	total int
	calls []int
	block chan struct{} // если не nil, FetchMessages ждёт закрытия
}

func (f *fakeHistory) FetchMessages(_ context.Context, _ string, page int) ([]domain.Message, domain.Pagination, error) {
	f.mu.Lock()
	f.calls = append(f.calls, page)
	block := f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pages[page], domain.Pagination{Page: page, Pages: f.total}, nil
}

func historyOf(roomID string, perPage ...int) *fakeHistory {
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	pages := make(map[int][]domain.Message)
	seq := 0
	// страница 1 — самые свежие; нумеруем так, чтобы page N+1 была старше page N
	for p := len(perPage); p >= 1; p-- {
		n := perPage[p-1]
		var msgs []domain.Message
		for i := 0; i < n; i++ {
			msgs = append(msgs, msg(fmt.Sprintf("m%03d", seq), roomID, base.Add(time.Duration(seq)*time.Second)))
			seq++
		}
		pages[p] = msgs
	}
	return &fakeHistory{pages: pages, total: len(perPage)}
}

func TestOpenRoomLoadsPageOne(t *testing.T) {
	api := historyOf("r1", 20, 20)
	p := NewPaginator(api, NewStore())

	if err := p.OpenRoom(context.Background(), "r1"); err != nil {
		t.Fatal(err)
	}
	cur, ok := p.Cursor("r1")
	if !ok || cur.Page != 1 || !cur.HasMore {
		t.Fatalf("expected cursor {1,true}, got %+v", cur)
	}
}

// Page 2 из 2 на три сообщения: hasMore гаснет, дубликатов с уже
// загруженными двадцатью нет.
func TestLoadOlderShortLastPage(t *testing.T) {
	api := historyOf("r1", 20, 3)
	store := NewStore()
	p := NewPaginator(api, store)

	if err := p.OpenRoom(context.Background(), "r1"); err != nil {
		t.Fatal(err)
	}
	loaded, err := p.LoadOlder(context.Background(), "r1", nil)
	if err != nil || !loaded {
		t.Fatalf("expected load, got loaded=%v err=%v", loaded, err)
	}

	entries := store.Messages("r1")
	if len(entries) != 23 {
		t.Fatalf("expected 23 messages, got %d", len(entries))
	}
	if !assertSortedUnique(entries) {
		t.Fatalf("collection not sorted-unique: %v", sortedIDs(entries))
	}

	cur, _ := p.Cursor("r1")
	if cur.Page != 2 || cur.HasMore {
		t.Fatalf("expected cursor {2,false}, got %+v", cur)
	}

	// дальше грузить нечего
	loaded, err = p.LoadOlder(context.Background(), "r1", nil)
	if err != nil || loaded {
		t.Fatalf("expected no-op, got loaded=%v err=%v", loaded, err)
	}
}

func TestLoadOlderMonotonicCursor(t *testing.T) {
	api := historyOf("r1", 5, 5, 5)
	p := NewPaginator(api, NewStore())

	_ = p.OpenRoom(context.Background(), "r1")
	_, _ = p.LoadOlder(context.Background(), "r1", nil)
	_, _ = p.LoadOlder(context.Background(), "r1", nil)

	cur, _ := p.Cursor("r1")
	if cur.Page != 3 || cur.HasMore {
		t.Fatalf("expected cursor {3,false}, got %+v", cur)
	}
	want := []int{1, 2, 3}
	if len(api.calls) != len(want) {
		t.Fatalf("expected calls %v, got %v", want, api.calls)
	}
	for i := range want {
		if api.calls[i] != want[i] {
			t.Fatalf("expected calls %v, got %v", want, api.calls)
		}
	}
}

// Два конкурентных триггера — один fetch.
func TestLoadOlderSingleFlight(t *testing.T) {
	api := historyOf("r1", 5, 5)
	p := NewPaginator(api, NewStore())

	if err := p.OpenRoom(context.Background(), "r1"); err != nil {
		t.Fatal(err)
	}

	block := make(chan struct{})
	api.mu.Lock()
	api.block = block
	api.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = p.LoadOlder(context.Background(), "r1", nil)
	}()

	// подождать, пока первый fetch повиснет на block
	for {
		api.mu.Lock()
		n := len(api.calls)
		api.mu.Unlock()
		if n == 2 { // page1 + зависший page2
			break
		}
		time.Sleep(time.Millisecond)
	}

	loaded, err := p.LoadOlder(context.Background(), "r1", nil)
	if err != nil || loaded {
		t.Fatalf("second trigger must be a no-op, got loaded=%v err=%v", loaded, err)
	}

	api.mu.Lock()
	api.block = nil
	api.mu.Unlock()
	close(block)
	<-done

	api.mu.Lock()
	calls := len(api.calls)
	api.mu.Unlock()
	if calls != 2 {
		t.Fatalf("expected exactly 2 fetches, got %d", calls)
	}
}

// measureViewport имитирует рост контента после prepend-а: высота
// пропорциональна числу сообщений в store.
type measureViewport struct {
	store     *Store
	roomID    string
	rowHeight int
	scrollTop int
}

func (v *measureViewport) ContentHeight() int { return len(v.store.Messages(v.roomID)) * v.rowHeight }
func (v *measureViewport) ScrollTop() int     { return v.scrollTop }
func (v *measureViewport) SetScrollTop(n int) { v.scrollTop = n }

func TestLoadOlderPreservesScrollAnchor(t *testing.T) {
	api := historyOf("r1", 20, 10)
	store := NewStore()
	p := NewPaginator(api, store)
	_ = p.OpenRoom(context.Background(), "r1")

	vp := &measureViewport{store: store, roomID: "r1", rowHeight: 30, scrollTop: 0}

	loaded, err := p.LoadOlder(context.Background(), "r1", vp)
	if err != nil || !loaded {
		t.Fatalf("expected load, got loaded=%v err=%v", loaded, err)
	}

	// 10 новых сообщений по 30px — смещение растёт ровно на 300
	if vp.scrollTop != 300 {
		t.Fatalf("expected scrollTop 300, got %d", vp.scrollTop)
	}
}

func TestCloseRoomResetsCursor(t *testing.T) {
	api := historyOf("r1", 5, 5)
	p := NewPaginator(api, NewStore())

	_ = p.OpenRoom(context.Background(), "r1")
	_, _ = p.LoadOlder(context.Background(), "r1", nil)
	p.CloseRoom("r1")

	if _, ok := p.Cursor("r1"); ok {
		t.Fatal("cursor must not survive room close")
	}

	// повторное открытие начинается с page 1
	_ = p.OpenRoom(context.Background(), "r1")
	cur, _ := p.Cursor("r1")
	if cur.Page != 1 {
		t.Fatalf("expected fresh cursor, got %+v", cur)
	}
}
