package manager

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"inclusiveai-offline/internal/database"
	"inclusiveai-offline/pkg/models"
)

// Syncer drains the offline mutation outbox in FIFO order. Failed items move
// to the end of the queue with their retry count incremented; items exceeding
// the retry cap are dropped with a warning rather than requeued forever.
type Syncer struct {
	db         *database.DB
	maxRetries int
	httpClient *http.Client
	logger     *slog.Logger
}

// NewSyncer creates a new outbox drainer
func NewSyncer(db *database.DB, maxRetries int) *Syncer {
	return &Syncer{
		db:         db,
		maxRetries: maxRetries,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: slog.Default(),
	}
}

// Enqueue appends one item to the outbox
func (s *Syncer) Enqueue(item *models.SyncItem) error {
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	return s.db.EnqueueSyncItem(item)
}

// Flush replays every queued item once. Successfully replayed entries are
// removed; only the failed subset is re-queued.
func (s *Syncer) Flush(ctx context.Context) error {
	items, err := s.db.ListSyncItems()
	if err != nil {
		return fmt.Errorf("failed to list sync items: %w", err)
	}
	if len(items) == 0 {
		return nil
	}

	s.logger.Info("Flushing sync queue", "items", len(items))

	var failed int
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := s.replay(ctx, item); err != nil {
			failed++
			if item.RetryCount+1 >= s.maxRetries {
				s.logger.Warn("Dropping sync item after retry cap",
					"item_id", item.ID,
					"url", item.URL,
					"retries", item.RetryCount+1,
					"error", err)
				if deleteErr := s.db.DeleteSyncItem(item.ID); deleteErr != nil {
					s.logger.Error("Failed to drop sync item", "item_id", item.ID, "error", deleteErr)
				}
				continue
			}

			s.logger.Warn("Sync item failed, re-queueing",
				"item_id", item.ID,
				"url", item.URL,
				"retry_count", item.RetryCount+1,
				"error", err)
			if requeueErr := s.db.RequeueSyncItem(item); requeueErr != nil {
				s.logger.Error("Failed to requeue sync item", "item_id", item.ID, "error", requeueErr)
			}
			continue
		}

		if err := s.db.DeleteSyncItem(item.ID); err != nil {
			s.logger.Error("Failed to remove synced item", "item_id", item.ID, "error", err)
		}
	}

	s.logger.Info("Sync queue flushed", "replayed", len(items)-failed, "failed", failed)
	return nil
}

// replay performs one queued HTTP request
func (s *Syncer) replay(ctx context.Context, item *models.SyncItem) error {
	req, err := http.NewRequestWithContext(ctx, item.Method, item.URL, strings.NewReader(item.Body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for key, value := range item.Headers {
		req.Header.Set(key, value)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	return nil
}
