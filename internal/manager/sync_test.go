package manager

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"inclusiveai-offline/internal/database"
	"inclusiveai-offline/pkg/models"
)

func setupSyncer(t *testing.T, maxRetries int) (*Syncer, *database.DB) {
	t.Helper()
	db, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSyncer(db, maxRetries), db
}

func queueItem(id, url string) *models.SyncItem {
	return &models.SyncItem{
		ID:        id,
		URL:       url,
		Method:    http.MethodPost,
		Headers:   map[string]string{"Content-Type": "application/json"},
		Body:      `{"lessonId":"lesson-1","score":95}`,
		CreatedAt: time.Now(),
	}
}

func TestFlushKeepsOnlyFailedItems(t *testing.T) {
	var requests int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&requests, 1)
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	syncer, db := setupSyncer(t, 5)

	require.NoError(t, syncer.Enqueue(queueItem("item-1", server.URL+"/ok")))
	require.NoError(t, syncer.Enqueue(queueItem("item-2", server.URL+"/fail")))
	require.NoError(t, syncer.Enqueue(queueItem("item-3", server.URL+"/ok")))

	require.NoError(t, syncer.Flush(context.Background()))

	remaining, err := db.ListSyncItems()
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.Equal(t, "item-2", remaining[0].ID)
	require.Equal(t, 1, remaining[0].RetryCount)
	require.Equal(t, int64(3), atomic.LoadInt64(&requests))
}

func TestFlushReplaysRequestVerbatim(t *testing.T) {
	var gotMethod, gotBody, gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		gotBody = string(buf)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	syncer, db := setupSyncer(t, 5)
	require.NoError(t, syncer.Enqueue(queueItem("item-1", server.URL+"/progress")))
	require.NoError(t, syncer.Flush(context.Background()))

	require.Equal(t, http.MethodPost, gotMethod)
	require.Equal(t, "application/json", gotContentType)
	require.Equal(t, `{"lessonId":"lesson-1","score":95}`, gotBody)

	count, err := db.CountSyncItems()
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestFlushDropsItemAtRetryCap(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	syncer, db := setupSyncer(t, 2)

	exhausted := queueItem("item-1", server.URL+"/fail")
	exhausted.RetryCount = 1
	require.NoError(t, syncer.Enqueue(exhausted))

	require.NoError(t, syncer.Flush(context.Background()))

	count, err := db.CountSyncItems()
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestFlushUnreachableServerRequeues(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	syncer, db := setupSyncer(t, 5)
	require.NoError(t, syncer.Enqueue(queueItem("item-1", url+"/progress")))
	require.NoError(t, syncer.Flush(context.Background()))

	remaining, err := db.ListSyncItems()
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.Equal(t, 1, remaining[0].RetryCount)
}

func TestFlushEmptyQueue(t *testing.T) {
	syncer, _ := setupSyncer(t, 5)
	require.NoError(t, syncer.Flush(context.Background()))
}

func TestEnqueueStampsCreatedAt(t *testing.T) {
	syncer, db := setupSyncer(t, 5)

	item := queueItem("item-1", "https://api.example.com/progress")
	item.CreatedAt = time.Time{}
	require.NoError(t, syncer.Enqueue(item))

	items, err := db.ListSyncItems()
	require.NoError(t, err)
	require.False(t, items[0].CreatedAt.IsZero())
}
