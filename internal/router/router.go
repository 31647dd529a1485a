package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"acadium-backend/internal/handlers"
	"acadium-backend/internal/middleware"
	"acadium-backend/internal/websocket"
)

func New(
	jwtAuth *middleware.JWTAuth,
	progressHandler *handlers.ProgressHandler,
	functionHandler *handlers.FunctionHandler,
	catalogHandler *handlers.CatalogHandler,
	writeLimiter *middleware.RateLimiter,
	wsHub *websocket.Hub,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// ──── Remote function (any origin) ────
	r.Route("/functions/v1", func(r chi.Router) {
		r.Use(middleware.FunctionCORS)
		r.Use(chimiddleware.Timeout(15 * time.Second))
		r.Options("/update-progress", functionHandler.Preflight)
		r.Post("/update-progress", functionHandler.WithLimiter(writeLimiter).UpdateProgress)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.CORS(frontendURL))

		// ──── Catalog Routes (public) ────
		r.Route("/catalog", func(r chi.Router) {
			r.Get("/", catalogHandler.List)
			r.Get("/{toolID}", catalogHandler.Get)
		})

		// ──── Progress Routes ────
		r.Route("/progress", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/", progressHandler.List)
			r.Get("/summary", progressHandler.Summary)
			r.Get("/{toolID}", progressHandler.GetTool)

			r.Group(func(r chi.Router) {
				r.Use(writeLimiter.Middleware)
				r.Put("/{toolID}/steps/{stepID}", progressHandler.CompleteStep)
				r.Delete("/{toolID}/steps/{stepID}", progressHandler.IncompleteStep)
			})
		})

		// ──── WebSocket ────
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}
