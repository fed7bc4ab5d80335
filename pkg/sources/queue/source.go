// Package queue provides the Redis list intake: external systems push launch
// requests onto a list, the source pops them and starts the referenced
// trigger.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	popTimeout     = 1 * time.Second
	connectTimeout = 5 * time.Second
)

// ErrQueueNameMissing is returned when the source configuration names no
// list to consume.
var ErrQueueNameMissing = errors.New("queue source requires a queue name")

// LaunchFunc starts the trigger a popped message references.
type LaunchFunc func(ctx context.Context, triggerID string, data map[string]any) error

// launchRequest is the wire format of one list entry.
type launchRequest struct {
	TriggerID string         `json:"trigger_id"`
	Data      map[string]any `json:"data"`
}

type Source struct {
	queue      string
	connection map[string]string

	client redis.UniversalClient
	launch LaunchFunc
	logger *slog.Logger
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewSource(config map[string]any, logger *slog.Logger) (*Source, error) {
	queue, _ := config["queue"].(string)
	if queue == "" {
		return nil, ErrQueueNameMissing
	}

	connectionConfig, _ := config["connection"].(map[string]any)

	connection := make(map[string]string)
	for k, v := range connectionConfig {
		if value, ok := v.(string); ok {
			connection[k] = value
		}
	}

	return &Source{
		queue:      queue,
		connection: connection,
		stopCh:     make(chan struct{}),
		logger:     logger.With("module", "queue_source", "queue", queue),
	}, nil
}

// Start connects to Redis and consumes the list until Stop or context
// cancellation.
func (s *Source) Start(ctx context.Context, launch LaunchFunc) error {
	s.logger.InfoContext(ctx, "Starting queue source")
	s.launch = launch

	if err := s.connect(ctx); err != nil {
		return fmt.Errorf("connecting queue source: %w", err)
	}

	s.wg.Add(1)

	go s.consume(ctx)

	return nil
}

func (s *Source) connect(ctx context.Context) error {
	addr := s.connection["addr"]
	if addr == "" {
		addr = "localhost:6379"
	}

	db := 0

	if dbStr := s.connection["db"]; dbStr != "" {
		if _, err := fmt.Sscanf(dbStr, "%d", &db); err != nil {
			return fmt.Errorf("invalid db value %q: %w", dbStr, err)
		}
	}

	s.client = redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: s.connection["password"],
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	s.logger.InfoContext(ctx, "Connected to Redis", "addr", addr, "db", db)

	return nil
}

func (s *Source) consume(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			s.logger.InfoContext(ctx, "Queue source stopped")

			return
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "Context cancelled, stopping queue source")

			return
		default:
			if err := s.processMessage(ctx); err != nil {
				s.logger.ErrorContext(ctx, "Error processing message", "error", err)
				time.Sleep(1 * time.Second)
			}
		}
	}
}

func (s *Source) processMessage(ctx context.Context) error {
	result, err := s.client.BLPop(ctx, popTimeout, s.queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}

		return fmt.Errorf("failed to pop message from queue: %w", err)
	}

	if len(result) < 2 {
		return nil
	}

	message := result[1]

	var request launchRequest
	if err := json.Unmarshal([]byte(message), &request); err != nil {
		return fmt.Errorf("malformed launch request %q: %w", message, err)
	}

	if request.TriggerID == "" {
		return fmt.Errorf("launch request without trigger_id: %q", message)
	}

	s.logger.InfoContext(ctx, "Received launch request", "trigger_id", request.TriggerID)

	go func() {
		if err := s.launch(ctx, request.TriggerID, request.Data); err != nil {
			s.logger.ErrorContext(ctx, "Error launching trigger",
				"trigger_id", request.TriggerID, "error", err)
		}
	}()

	return nil
}

func (s *Source) Stop(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Stopping queue source")

	close(s.stopCh)
	s.wg.Wait()

	if s.client != nil {
		if err := s.client.Close(); err != nil {
			s.logger.ErrorContext(ctx, "Error closing Redis client", "error", err)
		}
	}

	return nil
}
