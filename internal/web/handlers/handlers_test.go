package handlers

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"inclusiveai-offline/internal/contentapi/mocks"
	"inclusiveai-offline/internal/database"
	"inclusiveai-offline/internal/manager"
	"inclusiveai-offline/internal/swcache"
	"inclusiveai-offline/pkg/models"
)

type fakeEstimator struct {
	estimate manager.StorageEstimate
}

func (f fakeEstimator) Estimate() (manager.StorageEstimate, error) {
	return f.estimate, nil
}

type testEnv struct {
	handlers *Handlers
	manager  *manager.Manager
	db       *database.DB
	client   *mocks.MockContentClient
}

func setup(t *testing.T, estimate manager.StorageEstimate) *testEnv {
	t.Helper()
	db, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctrl := gomock.NewController(t)
	client := mocks.NewMockContentClient(ctrl)
	cache := swcache.New(db, "http://remote.invalid")
	estimator := fakeEstimator{estimate: estimate}
	contentManager := manager.New(db, client, cache, estimator, t.TempDir(), 5)

	return &testEnv{
		handlers: NewHandlers(contentManager, estimator),
		manager:  contentManager,
		db:       db,
		client:   client,
	}
}

func roomyEstimate() manager.StorageEstimate {
	return manager.StorageEstimate{
		Total:     100 * 1024 * 1024 * 1024,
		Used:      10 * 1024 * 1024 * 1024,
		Available: 50 * 1024 * 1024 * 1024,
	}
}

func sealedPackage(t *testing.T, id string) *models.OfflinePackage {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	pkg := &models.OfflinePackage{
		ID:        id,
		Version:   "1.0.0",
		StudentID: "student-1",
		Culture:   "maya",
		Language:  "es-GT",
		Lessons: []models.OfflineLesson{
			{ID: "lesson-1", Title: "Los números", Description: "Contar del 1 al 10"},
		},
		CreatedAt: now,
		ExpiresAt: now.Add(models.PackageTTL),
	}
	require.NoError(t, pkg.Seal())
	return pkg
}

func emptyBundle(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	archive := zip.NewWriter(&buf)
	entry, err := archive.Create("package.json")
	require.NoError(t, err)
	_, err = entry.Write([]byte("{}"))
	require.NoError(t, err)
	require.NoError(t, archive.Close())
	return buf.Bytes()
}

func TestStatus(t *testing.T) {
	env := setup(t, roomyEstimate())

	require.NoError(t, env.manager.EnqueueSync(&models.SyncItem{
		ID:     "sync-1",
		URL:    "https://api.example.com/progress",
		Method: "POST",
	}))

	recorder := httptest.NewRecorder()
	env.handlers.Status(recorder, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	require.Equal(t, http.StatusOK, recorder.Code)

	var status struct {
		Online      bool                    `json:"online"`
		Storage     manager.StorageEstimate `json:"storage"`
		PendingSync int                     `json:"pending_sync"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &status))
	require.False(t, status.Online)
	require.Equal(t, roomyEstimate(), status.Storage)
	require.Equal(t, 1, status.PendingSync)
}

func TestAvailablePackagesEmpty(t *testing.T) {
	env := setup(t, roomyEstimate())

	recorder := httptest.NewRecorder()
	env.handlers.AvailablePackages(recorder, httptest.NewRequest(http.MethodGet, "/api/packages/available", nil))

	require.Equal(t, http.StatusOK, recorder.Code)
	require.JSONEq(t, "[]", recorder.Body.String())
}

func TestInstalledPackages(t *testing.T) {
	env := setup(t, roomyEstimate())
	pkg := sealedPackage(t, "pkg-1")
	require.NoError(t, env.db.PutInstalledPackage(pkg, time.Now()))

	recorder := httptest.NewRecorder()
	env.handlers.InstalledPackages(recorder, httptest.NewRequest(http.MethodGet, "/api/packages/installed", nil))

	require.Equal(t, http.StatusOK, recorder.Code)

	var installed []models.InstalledPackage
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &installed))
	require.Len(t, installed, 1)
	require.Equal(t, "pkg-1", installed[0].Package.ID)
}

func TestDownloadPackage(t *testing.T) {
	env := setup(t, roomyEstimate())
	pkg := sealedPackage(t, "pkg-1")
	bundle := emptyBundle(t)

	env.client.EXPECT().FetchManifest(gomock.Any(), "pkg-1").Return(pkg, nil)
	env.client.EXPECT().FetchBundle(gomock.Any(), "pkg-1").
		Return(io.NopCloser(bytes.NewReader(bundle)), int64(len(bundle)), nil)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/api/packages/pkg-1/download", nil)
	request.SetPathValue("id", "pkg-1")
	env.handlers.DownloadPackage(recorder, request)

	require.Contains(t, []int{http.StatusOK, http.StatusAccepted}, recorder.Code)

	// The download is small; it settles almost immediately.
	require.Eventually(t, func() bool {
		progress := env.manager.Progress("pkg-1")
		return progress != nil && progress.State == models.StateInstalled
	}, 5*time.Second, 10*time.Millisecond)

	_, err := env.db.GetInstalledPackage("pkg-1")
	require.NoError(t, err)
}

func TestDownloadPackageInsufficientStorage(t *testing.T) {
	env := setup(t, manager.StorageEstimate{Available: 1})
	pkg := sealedPackage(t, "pkg-1")

	env.client.EXPECT().FetchManifest(gomock.Any(), "pkg-1").Return(pkg, nil)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/api/packages/pkg-1/download", nil)
	request.SetPathValue("id", "pkg-1")
	env.handlers.DownloadPackage(recorder, request)

	require.Equal(t, http.StatusInsufficientStorage, recorder.Code)
}

func TestDownloadPackageMissingID(t *testing.T) {
	env := setup(t, roomyEstimate())

	recorder := httptest.NewRecorder()
	env.handlers.DownloadPackage(recorder, httptest.NewRequest(http.MethodPost, "/api/packages//download", nil))

	require.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestDownloadProgressNotFound(t *testing.T) {
	env := setup(t, roomyEstimate())

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/api/packages/pkg-1/progress", nil)
	request.SetPathValue("id", "pkg-1")
	env.handlers.DownloadProgress(recorder, request)

	require.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestUninstallPackage(t *testing.T) {
	env := setup(t, roomyEstimate())
	require.NoError(t, env.db.PutInstalledPackage(sealedPackage(t, "pkg-1"), time.Now()))

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodDelete, "/api/packages/pkg-1", nil)
	request.SetPathValue("id", "pkg-1")
	env.handlers.UninstallPackage(recorder, request)
	require.Equal(t, http.StatusNoContent, recorder.Code)

	recorder = httptest.NewRecorder()
	request = httptest.NewRequest(http.MethodDelete, "/api/packages/pkg-1", nil)
	request.SetPathValue("id", "pkg-1")
	env.handlers.UninstallPackage(recorder, request)
	require.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestRefreshPackagesOffline(t *testing.T) {
	env := setup(t, roomyEstimate())

	// Offline refresh is a no-op that reports the (empty) cached list.
	recorder := httptest.NewRecorder()
	env.handlers.RefreshPackages(recorder, httptest.NewRequest(http.MethodPost, "/api/packages/refresh", nil))

	require.Equal(t, http.StatusOK, recorder.Code)
	require.JSONEq(t, "[]", recorder.Body.String())
}

func TestEnqueueSync(t *testing.T) {
	env := setup(t, roomyEstimate())

	payload := `{"url":"https://api.example.com/progress","method":"POST","body":"{\"score\":95}"}`
	recorder := httptest.NewRecorder()
	env.handlers.EnqueueSync(recorder, httptest.NewRequest(http.MethodPost, "/api/sync", strings.NewReader(payload)))

	require.Equal(t, http.StatusAccepted, recorder.Code)

	var item models.SyncItem
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &item))
	require.NotEmpty(t, item.ID)

	pending, err := env.manager.PendingSyncItems()
	require.NoError(t, err)
	require.Equal(t, 1, pending)
}

func TestEnqueueSyncRejectsBadPayload(t *testing.T) {
	env := setup(t, roomyEstimate())

	tests := []struct {
		name    string
		payload string
	}{
		{"malformed json", `{"url": `},
		{"missing url", `{"method":"POST"}`},
		{"missing method", `{"url":"https://api.example.com/x"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			env.handlers.EnqueueSync(recorder, httptest.NewRequest(http.MethodPost, "/api/sync", strings.NewReader(tt.payload)))
			require.Equal(t, http.StatusBadRequest, recorder.Code)
		})
	}
}

func TestFlushSyncReportsPending(t *testing.T) {
	env := setup(t, roomyEstimate())

	require.NoError(t, env.manager.EnqueueSync(&models.SyncItem{
		ID:     "sync-1",
		URL:    "https://api.example.com/progress",
		Method: "POST",
	}))

	// Offline: the queue is untouched.
	recorder := httptest.NewRecorder()
	env.handlers.FlushSync(recorder, httptest.NewRequest(http.MethodPost, "/api/sync/flush", nil))

	require.Equal(t, http.StatusOK, recorder.Code)
	require.JSONEq(t, `{"pending": 1}`, recorder.Body.String())
}

func TestSearchLessons(t *testing.T) {
	env := setup(t, roomyEstimate())
	require.NoError(t, env.db.PutInstalledPackage(sealedPackage(t, "pkg-1"), time.Now()))

	recorder := httptest.NewRecorder()
	env.handlers.SearchLessons(recorder, httptest.NewRequest(http.MethodGet, "/api/lessons/search?q=n%C3%BAmeros", nil))

	require.Equal(t, http.StatusOK, recorder.Code)

	var matches []struct {
		PackageID string `json:"package_id"`
		LessonID  string `json:"lesson_id"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &matches))
	require.Len(t, matches, 1)
	require.Equal(t, "pkg-1", matches[0].PackageID)
	require.Equal(t, "lesson-1", matches[0].LessonID)
}

func TestSearchLessonsRequiresQuery(t *testing.T) {
	env := setup(t, roomyEstimate())

	recorder := httptest.NewRecorder()
	env.handlers.SearchLessons(recorder, httptest.NewRequest(http.MethodGet, "/api/lessons/search", nil))

	require.Equal(t, http.StatusBadRequest, recorder.Code)
}
