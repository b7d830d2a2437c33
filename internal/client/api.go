package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chatline-app/chat-service/internal/domain"
)

// API — клиент внешнего CRUD-коллаборатора (REST поверх net/http).
// Коды ответов транслируются в клиентскую таксономию ошибок.
type API struct {
	base string
	hc   *http.Client

	mu       sync.Mutex
	token    string
	pageSize int
}

func NewAPI(base string, pageSize int) *API {
	if pageSize <= 0 {
		pageSize = 20
	}
	return &API{
		base:     strings.TrimSuffix(base, "/"),
		hc:       &http.Client{Timeout: 15 * time.Second},
		pageSize: pageSize,
	}
}

func (a *API) SetToken(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = token
}

func (a *API) Token() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.token
}

type authResponse struct {
	User  domain.User `json:"user"`
	Token string      `json:"token"`
}

func (a *API) Login(ctx context.Context, username, password string) (*domain.User, error) {
	var resp authResponse
	err := a.do(ctx, http.MethodPost, "/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, &resp)
	if err != nil {
		return nil, err
	}
	a.SetToken(resp.Token)
	return &resp.User, nil
}

func (a *API) Register(ctx context.Context, username, email, password string) (*domain.User, error) {
	var resp authResponse
	err := a.do(ctx, http.MethodPost, "/auth/register", map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return nil, err
	}
	a.SetToken(resp.Token)
	return &resp.User, nil
}

func (a *API) ListChatrooms(ctx context.Context) ([]domain.Chatroom, error) {
	var resp struct {
		Chatrooms []domain.Chatroom `json:"chatrooms"`
	}
	if err := a.do(ctx, http.MethodGet, "/chatrooms", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Chatrooms, nil
}

func (a *API) CreateChatroom(ctx context.Context, name string, roomType domain.RoomType, memberIDs []string) (*domain.Chatroom, error) {
	var resp struct {
		Chatroom domain.Chatroom `json:"chatroom"`
	}
	err := a.do(ctx, http.MethodPost, "/chatrooms", map[string]any{
		"name":      name,
		"type":      roomType,
		"memberIds": memberIDs,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp.Chatroom, nil
}

func (a *API) AddMembers(ctx context.Context, roomID string, memberIDs []string) (*domain.Chatroom, error) {
	var resp struct {
		Chatroom domain.Chatroom `json:"chatroom"`
	}
	err := a.do(ctx, http.MethodPost, "/chatrooms/"+roomID+"/members", map[string]any{
		"memberIds": memberIDs,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp.Chatroom, nil
}

// FetchMessages реализует HistoryFetcher для пагинатора.
func (a *API) FetchMessages(ctx context.Context, roomID string, page int) ([]domain.Message, domain.Pagination, error) {
	var resp struct {
		Messages   []domain.Message  `json:"messages"`
		Pagination domain.Pagination `json:"pagination"`
	}
	path := fmt.Sprintf("/messages/%s?page=%d&pageSize=%d", roomID, page, a.pageSize)
	if err := a.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, domain.Pagination{}, err
	}
	return resp.Messages, resp.Pagination, nil
}

func (a *API) CreateMessage(ctx context.Context, roomID, content string, quotedID *string) (*domain.Message, error) {
	var resp struct {
		Message domain.Message `json:"message"`
	}
	err := a.do(ctx, http.MethodPost, "/messages", map[string]any{
		"roomId":          roomID,
		"content":         content,
		"quotedMessageId": quotedID,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp.Message, nil
}

func (a *API) EditMessage(ctx context.Context, messageID, content string) (*domain.Message, error) {
	var resp struct {
		Message domain.Message `json:"message"`
	}
	err := a.do(ctx, http.MethodPut, "/messages/"+messageID, map[string]string{
		"content": content,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp.Message, nil
}

// DeleteMessage реализует MessageDeleter для undo-планировщика.
func (a *API) DeleteMessage(ctx context.Context, messageID string) error {
	return a.do(ctx, http.MethodDelete, "/messages/"+messageID, nil, nil)
}

func (a *API) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if t := a.Token(); t != "" {
		req.Header.Set("Authorization", "Bearer "+t)
	}

	resp, err := a.hc.Do(req)
	if err != nil {
		return &ConnectError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var er struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&er)
		if er.Error == "" {
			er.Error = resp.Status
		}

		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return &AuthError{Err: fmt.Errorf("%s", er.Error)}
		case http.StatusForbidden:
			return &MembershipError{Reason: er.Error}
		case http.StatusBadRequest:
			return &ValidationError{Reason: er.Error}
		default:
			return fmt.Errorf("%s %s: %s", method, path, er.Error)
		}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
