// Command peripheral-emulator stands in for a wireless game board. It accepts centrals over KCP,
// mirrors each one's board and answers every move with a random free cell.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/rocketscienceinc/neon-tictactoe/internal/entity"
	"github.com/rocketscienceinc/neon-tictactoe/internal/tictactoe"
	"github.com/rocketscienceinc/neon-tictactoe/internal/transport/kcp"
)

type config struct {
	Addr        string        `env:"EMULATOR_ADDR" env-default:"127.0.0.1:7777"`
	Name        string        `env:"EMULATOR_NAME" env-default:"Neon Board"`
	ServiceUUID string        `env:"EMULATOR_SERVICE_UUID" env-default:"12345678-1234-1234-1234-123456789abc"`
	ReplyDelay  time.Duration `env:"EMULATOR_REPLY_DELAY" env-default:"400ms"`
	LogLevel    string        `env:"LOG_LEVEL" env-default:"info"`
}

func main() {
	var conf config
	if err := cleanenv.ReadEnv(&conf); err != nil {
		fmt.Fprintf(os.Stderr, "unable to read environment: %v\n", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if conf.LogLevel == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, &conf); err != nil {
		logger.Error("emulator stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, conf *config) error {
	log := logger.With("component", "emulator")

	listener, err := kcp.Listen(logger, conf.Addr, conf.ServiceUUID, conf.Name)
	if err != nil {
		return err
	}

	log.Info("advertising game service", "addr", listener.Addr().String(), "name", conf.Name)

	return serve(ctx, log, listener, conf.ReplyDelay)
}

// serve plays with every accepted central in its own goroutine until ctx is done.
func serve(ctx context.Context, log *slog.Logger, listener *kcp.Listener, delay time.Duration) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	stop := context.AfterFunc(ctx, func() { _ = listener.Close() })
	defer stop()

	for {
		peer, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to accept central: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			play(ctx, log, peer, delay)
		}()
	}
}

// play serves one central until it goes away.
func play(ctx context.Context, log *slog.Logger, peer *kcp.Peer, delay time.Duration) {
	defer peer.Close()

	stop := context.AfterFunc(ctx, func() { _ = peer.Close() })
	defer stop()

	state := entity.NewGameState()

	for {
		cell, err := peer.ReadMove()
		if err != nil {
			if errors.Is(err, kcp.ErrInvalidMovePayload) {
				log.Warn("ignoring malformed move", "error", err)
				continue
			}
			log.Info("central left", "error", err)
			return
		}

		state = mirror(log, state, cell)
		if state.IsFinished() {
			continue
		}

		reply, ok := pick(state.Board)
		if !ok {
			continue
		}

		time.Sleep(delay)

		state, _ = tictactoe.ApplyMove(state, reply)
		if err = peer.SendMove(reply); err != nil {
			log.Error("failed to answer", "error", err)
			return
		}

		log.Debug("answered", "received", cell, "sent", reply)
	}
}

// mirror applies a received move. A move the mirror cannot apply means the central started a new
// game, so the board is cleared first.
func mirror(log *slog.Logger, state entity.GameState, cell int) entity.GameState {
	if next, ok := tictactoe.ApplyMove(state, cell); ok {
		return next
	}

	log.Info("central started a new game")

	next, _ := tictactoe.ApplyMove(entity.NewGameState(), cell)

	return next
}

func pick(board entity.Board) (int, bool) {
	available := board.EmptyCells()
	if len(available) == 0 {
		return 0, false
	}

	return available[rand.IntN(len(available))], true
}
