package rest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rocketscienceinc/neon-tictactoe/internal/entity"
)

const shutdownTimeout = 5 * time.Second

type gameManager interface {
	Snapshot() *entity.Snapshot
	SelectMode(ctx context.Context, mode entity.Mode)
	ReturnToMenu(ctx context.Context)
	NewGame(ctx context.Context)
	Play(ctx context.Context, cell int) bool
	ConnectPeripheral(ctx context.Context) (string, error)
	DisconnectPeripheral(ctx context.Context) error
}

type Server struct {
	logger *slog.Logger
	router chi.Router
}

// New builds the router. Extra handlers such as the websocket endpoint are attached with Mount.
func New(logger *slog.Logger, game gameManager) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	ping := NewPingHandler()
	handler := newGameHandler(logger, game)

	router.Get("/ping", ping.PingHandler)
	router.Get("/state", handler.state)
	router.Post("/mode", handler.selectMode)
	router.Post("/menu", handler.menu)
	router.Route("/game", func(r chi.Router) {
		r.Post("/new", handler.newGame)
		r.Post("/move", handler.move)
	})
	router.Route("/peripheral", func(r chi.Router) {
		r.Post("/connect", handler.connect)
		r.Post("/disconnect", handler.disconnect)
	})

	return &Server{
		logger: logger.With("component", "rest"),
		router: router,
	}
}

func (that *Server) Mount(pattern string, handler http.Handler) {
	that.router.Handle(pattern, handler)
}

func (that *Server) Handler() http.Handler {
	return that.router
}

// Start serves until ctx is done and then shuts the server down gracefully.
func (that *Server) Start(ctx context.Context, port string) error {
	log := that.logger.With("method", "Start")

	srv := &http.Server{
		Addr:        ":" + port,
		Handler:     that.router,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}

	return nil
}
