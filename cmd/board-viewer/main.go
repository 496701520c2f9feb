// Command board-viewer is a read-only view process. It prints the last stored snapshot and then
// every snapshot the game service publishes to Redis.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/rocketscienceinc/neon-tictactoe/internal/apperror"
	"github.com/rocketscienceinc/neon-tictactoe/internal/entity"
	"github.com/rocketscienceinc/neon-tictactoe/internal/repository"
	"github.com/rocketscienceinc/neon-tictactoe/internal/repository/storage"
)

type config struct {
	RedisAddr string `env:"VIEWER_REDIS_ADDR" env-default:"localhost:6379"`
	LogLevel  string `env:"LOG_LEVEL" env-default:"info"`
}

type snapshotSource interface {
	GetLatest(ctx context.Context) (*entity.Snapshot, error)
	Subscribe(ctx context.Context) (<-chan *entity.Snapshot, error)
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
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisStorage, err := storage.NewRedisStorage(ctx, conf.RedisAddr)
	if err != nil {
		logger.Error("viewer stopped", "error", err)
		os.Exit(1)
	}
	defer redisStorage.Close()

	repo := repository.NewSnapshotRepository(logger, redisStorage.Connection)

	if err = watch(ctx, logger, repo, os.Stdout); err != nil {
		logger.Error("viewer stopped", "error", err)
		os.Exit(1)
	}
}

// watch subscribes first so nothing published after the initial read is missed.
func watch(ctx context.Context, logger *slog.Logger, source snapshotSource, out io.Writer) error {
	log := logger.With("component", "viewer")

	snapshots, err := source.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to follow snapshots: %w", err)
	}

	latest, err := source.GetLatest(ctx)
	switch {
	case errors.Is(err, apperror.ErrSnapshotNotFound):
		log.Info("no game published yet")
	case err != nil:
		return fmt.Errorf("failed to read latest snapshot: %w", err)
	default:
		fmt.Fprint(out, render(latest))
	}

	for snapshot := range snapshots {
		if latest != nil && snapshot.GameID == latest.GameID && snapshot.Version <= latest.Version {
			continue
		}
		latest = snapshot

		fmt.Fprint(out, render(snapshot))
	}

	return nil
}

func render(snapshot *entity.Snapshot) string {
	var b strings.Builder

	fmt.Fprintf(&b, "mode: %s  version: %d\n", snapshot.Mode, snapshot.Version)

	for row := 0; row < 3; row++ {
		cells := make([]string, 3)
		for col := range cells {
			mark := snapshot.Board[row*3+col]
			if mark == entity.EmptyCell {
				mark = "."
			}
			cells[col] = string(mark)
		}
		b.WriteString(strings.Join(cells, " "))
		b.WriteByte('\n')
	}

	if snapshot.Status != "" {
		b.WriteString(snapshot.Status)
		b.WriteByte('\n')
	}

	if snapshot.Connection.LastError != "" {
		fmt.Fprintf(&b, "peripheral: %s\n", snapshot.Connection.LastError)
	}

	b.WriteByte('\n')

	return b.String()
}
