package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"chatserver/internal/config"
	"chatserver/internal/domain"
	"chatserver/internal/security"
	"chatserver/internal/service"
	"chatserver/internal/ws"
)

// NewRouter constructs the main HTTP router and wires routes, services, and
// middleware.
func NewRouter(
	cfg *config.Config,
	users domain.UserRepository,
	hub *ws.Hub,
	tokenSvc *security.TokenService,
	authSvc *service.AuthService,
	userSvc *service.UserService,
	chatSvc *service.ChatService,
	historySvc *service.HistoryService,
	uploadSvc *service.UploadService,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
		r.Route("/users", func(r chi.Router) {
			r.Post("/signup", handleSignup(authSvc))
			r.Post("/login", handleLogin(authSvc))

			r.Group(func(r chi.Router) {
				r.Use(AuthMiddleware(tokenSvc, users))
				r.Get("/all", handleListUsers(userSvc))
				r.Get("/admin", handleGetAdmin(userSvc))
				r.Get("/{userID}", handleGetUser(userSvc))
			})
		})
	})

	// Chunked video uploads land outside the realtime channel; the body cap
	// leaves headroom for base64 framing around one chunk.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
		r.Use(AuthMiddleware(tokenSvc, users))
		r.Post("/upload-chunk", handleUploadChunk(uploadSvc, int64(cfg.MaxAttachmentBytes())))
	})

	// The websocket stays outside the request timeout: its read loop runs on
	// the request context for the whole connection lifetime, and a deadline
	// here would start failing events a minute after connect.
	r.Get("/ws", ws.MakeHandler(hub, tokenSvc, users, chatSvc, historySvc, cfg.CORSOrigins))

	return r
}

// writeJSON is a small helper to send JSON responses.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}
