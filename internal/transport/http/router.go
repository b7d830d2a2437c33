package http

import (
	"net/http"
	"time"

	httpmw "github.com/chatline-app/chat-service/internal/transport/http/middleware"
	"github.com/chatline-app/chat-service/internal/transport/ws"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func NewRouter(h *Handler, auth httpmw.TokenValidator, wsServer *ws.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middlewareChi.RequestID)
	r.Use(middlewareChi.RealIP)
	r.Use(middlewareChi.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// WS endpoint: токен проверяется внутри handshake
	r.Get("/ws", wsServer.HandleWS)

	r.Post("/auth/register", h.Register)
	r.Post("/auth/login", h.Login)

	// Все остальные маршруты требуют bearer-токен
	r.Group(func(pr chi.Router) {
		pr.Use(httpmw.AuthMiddleware(auth))
		pr.Use(middlewareChi.Timeout(30 * time.Second))

		pr.Route("/chatrooms", func(cr chi.Router) {
			cr.Post("/", h.CreateChatroom)
			cr.Get("/", h.ListChatrooms)
			cr.Post("/{id}/members", h.AddMembers)
		})

		pr.Route("/messages", func(mr chi.Router) {
			mr.Post("/", h.CreateMessage)
			mr.Get("/{roomID}", h.GetMessages)
			mr.Put("/{id}", h.EditMessage)
			mr.Delete("/{id}", h.DeleteMessage)
		})
	})

	// health
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}
