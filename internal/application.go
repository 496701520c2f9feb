package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rocketscienceinc/neon-tictactoe/internal/apperror"
	"github.com/rocketscienceinc/neon-tictactoe/internal/config"
	"github.com/rocketscienceinc/neon-tictactoe/internal/peripheral"
	"github.com/rocketscienceinc/neon-tictactoe/internal/repository"
	"github.com/rocketscienceinc/neon-tictactoe/internal/repository/storage"
	"github.com/rocketscienceinc/neon-tictactoe/internal/service"
	"github.com/rocketscienceinc/neon-tictactoe/internal/transport/ble"
	"github.com/rocketscienceinc/neon-tictactoe/internal/transport/kcp"
	"github.com/rocketscienceinc/neon-tictactoe/internal/usecase"
	"github.com/rocketscienceinc/neon-tictactoe/transport/rest"
	"github.com/rocketscienceinc/neon-tictactoe/transport/websocket"
)

var ErrAddrNotFound = errors.New("redis address string is empty")

// RunApp - runs the application.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Info("Received signal, shutting down", "signal", sig)
		cancel()
	}()

	dialer, err := newDialer(logger, &conf.Peripheral)
	if err != nil {
		return fmt.Errorf("could not create peripheral driver: %w", err)
	}

	link := peripheral.NewLink(logger, dialer)
	suggester := service.NewSuggester(logger, newGenerator(ctx, log, &conf.Suggester), conf.Suggester.Timeout)

	gameManager := usecase.NewGameManager(logger, link, suggester, conf.Suggester.ThinkDelay)
	defer gameManager.Close()

	hub := websocket.NewHub(logger)
	gameManager.AddPublisher(hub)
	go hub.Run(ctx)

	if conf.Redis.Enabled {
		redisAddrString := conf.Redis.GetRedisAddr()
		if redisAddrString == "" {
			return ErrAddrNotFound
		}

		redisStorage, err := storage.NewRedisStorage(ctx, redisAddrString)
		if err != nil {
			return fmt.Errorf("could not connect to redis storage: %w", err)
		}

		defer func() {
			if err := redisStorage.Close(); err != nil {
				log.Error("could not close redis storage", "error", err)
			}
		}()

		gameManager.AddPublisher(repository.NewSnapshotRepository(logger, redisStorage.Connection))
	}

	server := rest.New(logger, gameManager)
	server.Mount("/ws", websocket.New(logger, gameManager, hub))

	log.Info("Starting HTTP server", "port", conf.HTTPPort, "peripheral_driver", conf.Peripheral.Driver)

	if err = server.Start(ctx, conf.HTTPPort); err != nil {
		return fmt.Errorf("HTTP server error: %w", err)
	}

	log.Info("Application context canceled, shutting down")

	return nil
}

func newDialer(logger *slog.Logger, conf *config.Peripheral) (peripheral.Dialer, error) {
	switch conf.Driver {
	case config.DriverKCP:
		return kcp.NewDialer(logger, conf.KCPAddr, conf.ServiceUUID, 0)
	default:
		return ble.NewDialer(logger, conf.ServiceUUID, conf.CharacteristicUUID, conf.ScanTimeout)
	}
}

// newGenerator returns nil when no credential is configured, which makes every suggestion random.
func newGenerator(ctx context.Context, log *slog.Logger, conf *config.Suggester) service.Generator {
	generator, err := service.NewGeminiGenerator(ctx, service.GeminiOptions{
		APIKey:          conf.APIKey,
		Model:           conf.Model,
		Temperature:     conf.Temperature,
		MaxOutputTokens: conf.MaxOutputTokens,
	})
	if err != nil {
		if errors.Is(err, apperror.ErrMissingCredential) {
			log.Warn("API_KEY is not set, the assisted opponent plays random moves")
		} else {
			log.Error("could not create suggester client, the assisted opponent plays random moves", "error", err)
		}

		return nil
	}

	return generator
}
