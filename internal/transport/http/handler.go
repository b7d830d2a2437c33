package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/chatline-app/chat-service/internal/domain"
	"github.com/chatline-app/chat-service/internal/service"
	httpmw "github.com/chatline-app/chat-service/internal/transport/http/middleware"
	"github.com/chatline-app/chat-service/internal/transport/ws"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	authSvc     *service.AuthService
	chatroomSvc *service.ChatroomService
	messageSvc  *service.MessageService
	wsServer    *ws.Server

	pageSize int
}

func NewHandler(auth *service.AuthService, chatroom *service.ChatroomService, message *service.MessageService, wsServer *ws.Server, pageSize int) *Handler {
	if pageSize <= 0 {
		pageSize = 20
	}
	return &Handler{
		authSvc:     auth,
		chatroomSvc: chatroom,
		messageSvc:  message,
		wsServer:    wsServer,
		pageSize:    pageSize,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// POST /auth/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}
	res, err := h.authSvc.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, domain.ErrUserExists) {
			writeJSON(w, http.StatusConflict, ErrorResponse{Error: "user already exists"})
			return
		}
		slog.Error("handler.Register:", slog.Any("err", err))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusCreated, AuthResponse{User: toUserItem(res.User), Token: res.AccessToken})
}

// POST /auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}
	res, err := h.authSvc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidLogin) {
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})
			return
		}
		slog.Error("handler.Login:", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{User: toUserItem(res.User), Token: res.AccessToken})
}

// POST /chatrooms
func (h *Handler) CreateChatroom(w http.ResponseWriter, r *http.Request) {
	var req CreateChatroomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}
	userID := httpmw.UserIDFromCtx(r.Context())

	room, err := h.chatroomSvc.Create(r.Context(), req.Name, domain.RoomType(req.Type), userID, req.MemberIDs)
	if err != nil {
		slog.Error("handler.CreateChatroom:", slog.Any("err", err))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	// участники узнают о комнате socket-событием, не через список
	h.wsServer.BroadcastNewChatroom(room)

	writeJSON(w, http.StatusCreated, ChatroomResponse{Chatroom: *room})
}

// GET /chatrooms
func (h *Handler) ListChatrooms(w http.ResponseWriter, r *http.Request) {
	userID := httpmw.UserIDFromCtx(r.Context())
	rooms, err := h.chatroomSvc.ListForUser(r.Context(), userID)
	if err != nil {
		slog.Error("handler.ListChatrooms:", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	if rooms == nil {
		rooms = []domain.Chatroom{}
	}

	writeJSON(w, http.StatusOK, ChatroomsResponse{Chatrooms: rooms})
}

// POST /chatrooms/{id}/members
func (h *Handler) AddMembers(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")
	userID := httpmw.UserIDFromCtx(r.Context())

	var req AddMembersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}

	room, err := h.chatroomSvc.AddMembers(r.Context(), roomID, userID, req.MemberIDs)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotMember):
			writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "not a member"})
		case errors.Is(err, domain.ErrRoomNotFound):
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "chatroom not found"})
		default:
			slog.Error("handler.AddMembers:", slog.Any("err", err))
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		}
		return
	}

	writeJSON(w, http.StatusOK, ChatroomResponse{Chatroom: *room})
}

// GET /messages/{roomID}?page=&pageSize=
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	userID := httpmw.UserIDFromCtx(r.Context())

	page := 1
	if s := r.URL.Query().Get("page"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			page = n
		}
	}
	pageSize := h.pageSize
	if s := r.URL.Query().Get("pageSize"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			pageSize = n
		}
	}

	msgs, pg, err := h.messageSvc.History(r.Context(), roomID, userID, page, pageSize)
	if err != nil {
		if errors.Is(err, domain.ErrNotMember) {
			writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "not a member"})
			return
		}
		slog.Error("handler.GetMessages:", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}

	writeJSON(w, http.StatusOK, MessagesResponse{Messages: msgs, Pagination: pg})
}

// POST /messages
func (h *Handler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	var req CreateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}
	userID := httpmw.UserIDFromCtx(r.Context())

	m, err := h.messageSvc.Create(r.Context(), req.RoomID, userID, req.Content, req.QuotedID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotMember):
			writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "not a member"})
		case errors.Is(err, domain.ErrEmptyContent), errors.Is(err, domain.ErrContentTooLong):
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		default:
			slog.Error("handler.CreateMessage:", slog.Any("err", err))
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		}
		return
	}

	writeJSON(w, http.StatusCreated, MessageResponse{Message: *m})
}

// PUT /messages/{id}
func (h *Handler) EditMessage(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "id")
	userID := httpmw.UserIDFromCtx(r.Context())

	var req EditMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}

	m, err := h.messageSvc.Edit(r.Context(), messageID, userID, req.Content)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrMessageNotFound):
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "message not found"})
		case errors.Is(err, domain.ErrNotSender):
			writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "not the sender"})
		case errors.Is(err, domain.ErrEmptyContent), errors.Is(err, domain.ErrContentTooLong):
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		default:
			slog.Error("handler.EditMessage:", slog.Any("err", err))
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		}
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: *m})
}

// DELETE /messages/{id}
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "id")
	userID := httpmw.UserIDFromCtx(r.Context())

	_, _, err := h.messageSvc.Delete(r.Context(), messageID, userID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrMessageNotFound):
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "message not found"})
		case errors.Is(err, domain.ErrNotSender):
			writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "not the sender"})
		default:
			slog.Error("handler.DeleteMessage:", slog.Any("err", err))
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
