package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/neon-tictactoe/internal/apperror"
	"github.com/rocketscienceinc/neon-tictactoe/internal/entity"
)

const (
	SnapshotKey   = "tictactoe:snapshot"
	StateChannel  = "tictactoe:state"
	subscribeSize = 16
)

type SnapshotRepository interface {
	Publish(ctx context.Context, snapshot *entity.Snapshot) error
	GetLatest(ctx context.Context) (*entity.Snapshot, error)
	Subscribe(ctx context.Context) (<-chan *entity.Snapshot, error)
}

type dbSnapshot struct {
	logger *slog.Logger
	client *redis.Client
}

func NewSnapshotRepository(logger *slog.Logger, client *redis.Client) SnapshotRepository {
	return &dbSnapshot{
		logger: logger.With("component", "snapshot_repository"),
		client: client,
	}
}

// Publish overwrites the stored snapshot and announces it on the state channel.
func (that *dbSnapshot) Publish(ctx context.Context, snapshot *entity.Snapshot) error {
	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("could not marshal snapshot: %w", err)
	}

	_, err = that.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, SnapshotKey, snapshotJSON, 0)
		pipe.Publish(ctx, StateChannel, snapshotJSON)

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}

	return nil
}

func (that *dbSnapshot) GetLatest(ctx context.Context) (*entity.Snapshot, error) {
	response, err := that.client.Get(ctx, SnapshotKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, apperror.ErrSnapshotNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	var snapshot entity.Snapshot
	if err = json.Unmarshal([]byte(response), &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return &snapshot, nil
}

// Subscribe streams snapshots published by any process until ctx is done. Snapshots older than
// the last delivered version are skipped.
func (that *dbSnapshot) Subscribe(ctx context.Context) (<-chan *entity.Snapshot, error) {
	log := that.logger.With("method", "Subscribe")

	pubsub := that.client.Subscribe(ctx, StateChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", StateChannel, err)
	}

	snapshots := make(chan *entity.Snapshot, subscribeSize)

	go func() {
		defer close(snapshots)
		defer pubsub.Close()

		var lastGameID string
		var lastVersion uint64
		messages := pubsub.Channel()

		for {
			select {
			case <-ctx.Done():
				return
			case message, ok := <-messages:
				if !ok {
					return
				}

				var snapshot entity.Snapshot
				if err := json.Unmarshal([]byte(message.Payload), &snapshot); err != nil {
					log.Error("failed to unmarshal snapshot", "error", err)
					continue
				}

				if snapshot.GameID == lastGameID && snapshot.Version <= lastVersion {
					continue
				}
				lastGameID, lastVersion = snapshot.GameID, snapshot.Version

				select {
				case snapshots <- &snapshot:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return snapshots, nil
}
