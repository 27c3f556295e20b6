// Package server builds the local control API the order UI talks to
package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"paraderos-agent/internal/handlers"
	"paraderos-agent/internal/metrics"
	"paraderos-agent/internal/middleware"
	"paraderos-agent/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Deps struct {
	Agent   handlers.Agent
	Tracker handlers.Tracker
	Orders  handlers.Orders
	Metrics *metrics.Collector
	// Hub serves the live event feed at /ws when set
	Hub            *websocket.Hub
	JWTSecret      string
	AllowedOrigins []string
	// PasswordHash enables POST /auth/token when set
	PasswordHash string
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)

	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", handlers.Health())
	r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	r.Post("/auth/token", handlers.IssueControlToken(d.JWTSecret, d.PasswordHash))

	// authenticated in the handler, the token may arrive as a query param
	if d.Hub != nil {
		r.Get("/ws", websocket.HandleWebSocket(d.Hub, d.JWTSecret))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(d.JWTSecret))

		r.Get("/status", handlers.GetStatus(d.Agent))

		r.Post("/tracking/start", handlers.StartTracking(d.Tracker))
		r.Post("/tracking/stop", handlers.StopTracking(d.Tracker))
		r.Post("/watchdog/run", handlers.RunWatchdog(d.Agent))

		r.Post("/session/login", handlers.Login(d.Orders))
		r.Post("/session/verify", handlers.VerifySession(d.Orders))
		r.Post("/session/logout", handlers.Logout(d.Orders))

		r.Post("/orders/{id}/take", handlers.TakeOrder(d.Orders))
		r.Post("/orders/complete", handlers.CompleteOrder(d.Orders))
		r.Post("/orders/sync", handlers.SyncOrders(d.Orders))

		r.Post("/logs/diagnostic", handlers.ReceiveDiagnosticLog())
	})

	return r
}

// Serve runs the control API on addr until ctx is done
func Serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("🚀 Control API listening on http://%s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		log.Println("🔴 Control API stopped")
		return nil
	}
}
