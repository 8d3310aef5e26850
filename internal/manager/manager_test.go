package manager

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"inclusiveai-offline/internal/contentapi/mocks"
	"inclusiveai-offline/internal/database"
	"inclusiveai-offline/internal/errs"
	"inclusiveai-offline/internal/swcache"
	"inclusiveai-offline/pkg/models"
)

type fakeEstimator struct {
	estimate StorageEstimate
	err      error
}

func (f fakeEstimator) Estimate() (StorageEstimate, error) {
	return f.estimate, f.err
}

func roomyEstimator() fakeEstimator {
	return fakeEstimator{estimate: StorageEstimate{
		Total:     100 * 1024 * 1024 * 1024,
		Available: 50 * 1024 * 1024 * 1024,
	}}
}

type testEnv struct {
	manager      *Manager
	db           *database.DB
	client       *mocks.MockContentClient
	resourcesDir string
}

func setupManager(t *testing.T, storage StorageEstimator) *testEnv {
	t.Helper()
	db, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctrl := gomock.NewController(t)
	client := mocks.NewMockContentClient(ctrl)
	cache := swcache.New(db, "http://remote.invalid")
	resourcesDir := filepath.Join(t.TempDir(), "resources")

	return &testEnv{
		manager:      New(db, client, cache, storage, resourcesDir, 5),
		db:           db,
		client:       client,
		resourcesDir: resourcesDir,
	}
}

// sealedPackage builds a minimal verifiable package with one resource
func sealedPackage(t *testing.T, id string) *models.OfflinePackage {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	pkg := &models.OfflinePackage{
		ID:        id,
		Version:   "1.0.0",
		StudentID: "student-1",
		Culture:   "maya",
		Language:  "es-GT",
		Resources: []models.OfflineResource{
			{
				ID:            "res1",
				Type:          models.ResourceImage,
				URL:           "https://cdn.example.com/numeros.png",
				LocalPath:     "/generator/resources/res1.jpg",
				Size:          1000,
				OptimizedSize: 11,
			},
		},
		Metadata:  models.PackageMetadata{TotalResources: 1, TotalSize: 11},
		CreatedAt: now,
		ExpiresAt: now.Add(models.PackageTTL),
	}
	require.NoError(t, pkg.Seal())
	return pkg
}

// bundleBytes builds the zip bundle matching sealedPackage
func bundleBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	archive := zip.NewWriter(&buf)

	manifest, err := archive.Create("package.json")
	require.NoError(t, err)
	_, err = manifest.Write([]byte("{}"))
	require.NoError(t, err)

	entry, err := archive.Create("resources/res1.jpg")
	require.NoError(t, err)
	_, err = entry.Write([]byte("image-bytes"))
	require.NoError(t, err)

	require.NoError(t, archive.Close())
	return buf.Bytes()
}

func TestDownloadInstallsPackage(t *testing.T) {
	env := setupManager(t, roomyEstimator())
	pkg := sealedPackage(t, "pkg-1")
	bundle := bundleBytes(t)

	env.client.EXPECT().FetchManifest(gomock.Any(), "pkg-1").Return(pkg, nil)
	env.client.EXPECT().FetchBundle(gomock.Any(), "pkg-1").
		Return(io.NopCloser(bytes.NewReader(bundle)), int64(len(bundle)), nil)

	require.NoError(t, env.manager.Download(context.Background(), "pkg-1"))

	progress := env.manager.Progress("pkg-1")
	require.NotNil(t, progress)
	require.Equal(t, models.StateInstalled, progress.State)
	require.Equal(t, 100.0, progress.Progress)

	installed, err := env.db.GetInstalledPackage("pkg-1")
	require.NoError(t, err)
	require.Equal(t, pkg.Checksum, installed.Package.Checksum)

	// Resource extracted flattened, manifest skipped, temp file gone.
	data, err := os.ReadFile(filepath.Join(env.resourcesDir, "res1.jpg"))
	require.NoError(t, err)
	require.Equal(t, []byte("image-bytes"), data)

	_, err = os.Stat(filepath.Join(env.resourcesDir, "package.json"))
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(env.resourcesDir, "pkg-1.zip.tmp"))
	require.True(t, os.IsNotExist(err))

	// Manifest and resource pre-cached for offline serving.
	status, _, _, err := env.db.GetCachedResponse(swcache.GeneralCacheName, "/offline-content/pkg-1.json")
	require.NoError(t, err)
	require.Equal(t, 200, status)
	_, _, body, err := env.db.GetCachedResponse(swcache.GeneralCacheName, "/offline-content/resources/res1.jpg")
	require.NoError(t, err)
	require.Equal(t, []byte("image-bytes"), body)
}

func TestDownloadAlreadyInFlight(t *testing.T) {
	env := setupManager(t, roomyEstimator())

	env.manager.downloads["pkg-1"] = &models.DownloadProgress{
		PackageID: "pkg-1",
		State:     models.StateDownloading,
		Progress:  42,
	}

	err := env.manager.Download(context.Background(), "pkg-1")
	require.ErrorIs(t, err, errs.ErrDownloadInProgress)

	// The in-flight state is untouched.
	progress := env.manager.Progress("pkg-1")
	require.Equal(t, models.StateDownloading, progress.State)
	require.Equal(t, 42.0, progress.Progress)
}

func TestDownloadInsufficientStorage(t *testing.T) {
	env := setupManager(t, fakeEstimator{estimate: StorageEstimate{Available: 10}})
	pkg := sealedPackage(t, "pkg-1")

	env.client.EXPECT().FetchManifest(gomock.Any(), "pkg-1").Return(pkg, nil)

	err := env.manager.Download(context.Background(), "pkg-1")
	require.ErrorIs(t, err, errs.ErrInsufficientStorage)

	progress := env.manager.Progress("pkg-1")
	require.Equal(t, models.StateFailed, progress.State)
	require.NotEmpty(t, progress.Error)
}

func TestDownloadFailsVerification(t *testing.T) {
	env := setupManager(t, roomyEstimator())
	pkg := sealedPackage(t, "pkg-1")
	pkg.Checksum = "tampered"

	// No FetchBundle expectation: a tampered manifest must be rejected
	// before any bundle bytes are requested
	env.client.EXPECT().FetchManifest(gomock.Any(), "pkg-1").Return(pkg, nil)

	err := env.manager.Download(context.Background(), "pkg-1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "integrity")

	require.Equal(t, models.StateFailed, env.manager.Progress("pkg-1").State)

	_, err = env.db.GetInstalledPackage("pkg-1")
	require.ErrorIs(t, err, errs.ErrPackageNotFound)

	// Nothing was extracted for the rejected package
	entries, err := os.ReadDir(env.resourcesDir)
	if err == nil {
		require.Empty(t, entries)
	} else {
		require.True(t, os.IsNotExist(err))
	}
}

func TestProgressIsMonotonic(t *testing.T) {
	env := setupManager(t, roomyEstimator())
	env.manager.downloads["pkg-1"] = &models.DownloadProgress{
		PackageID: "pkg-1",
		State:     models.StateDownloading,
		Progress:  50,
	}

	env.manager.setProgress("pkg-1", 30)
	require.Equal(t, 50.0, env.manager.Progress("pkg-1").Progress)

	env.manager.setProgress("pkg-1", 75)
	require.Equal(t, 75.0, env.manager.Progress("pkg-1").Progress)
}

func TestUninstall(t *testing.T) {
	env := setupManager(t, roomyEstimator())
	pkg := sealedPackage(t, "pkg-1")

	require.NoError(t, env.db.PutInstalledPackage(pkg, time.Now()))
	require.NoError(t, env.db.PutCachedResponse(swcache.GeneralCacheName,
		"/offline-content/pkg-1.json", 200, nil, []byte("{}")))

	require.NoError(t, env.manager.Uninstall("pkg-1"))

	_, err := env.db.GetInstalledPackage("pkg-1")
	require.ErrorIs(t, err, errs.ErrPackageNotFound)

	_, _, _, err = env.db.GetCachedResponse(swcache.GeneralCacheName, "/offline-content/pkg-1.json")
	require.ErrorIs(t, err, errs.ErrNotCached)

	require.ErrorIs(t, env.manager.Uninstall("pkg-1"), errs.ErrPackageNotFound)
}

func TestRefreshEvictsExpiredPackages(t *testing.T) {
	env := setupManager(t, roomyEstimator())

	expired := sealedPackage(t, "pkg-expired")
	expired.ExpiresAt = time.Now().Add(-time.Hour)
	fresh := sealedPackage(t, "pkg-fresh")

	require.NoError(t, env.db.PutInstalledPackage(expired, time.Now().Add(-31*24*time.Hour)))
	require.NoError(t, env.db.PutInstalledPackage(fresh, time.Now()))

	summaries := []models.PackageSummary{{ID: "pkg-new", StudentID: "student-1"}}
	env.client.EXPECT().ListPackages(gomock.Any()).Return(summaries, nil)

	env.manager.mu.Lock()
	env.manager.online = true
	env.manager.mu.Unlock()

	require.NoError(t, env.manager.Refresh(context.Background()))
	require.Equal(t, summaries, env.manager.AvailablePackages())

	installed, err := env.db.ListInstalledPackages()
	require.NoError(t, err)
	require.Len(t, installed, 1)
	require.Equal(t, "pkg-fresh", installed[0].Package.ID)
}

func TestRefreshOfflineIsNoop(t *testing.T) {
	env := setupManager(t, roomyEstimator())

	// No ListPackages expectation: calling it would fail the test.
	require.NoError(t, env.manager.Refresh(context.Background()))
	require.Empty(t, env.manager.AvailablePackages())
}

func TestSetOnlineTransition(t *testing.T) {
	env := setupManager(t, roomyEstimator())

	env.client.EXPECT().ListPackages(gomock.Any()).Return(nil, nil).Times(1)

	env.manager.SetOnline(context.Background(), true)
	require.True(t, env.manager.Online())

	// Repeating the same state is not a transition.
	env.manager.SetOnline(context.Background(), true)

	env.manager.SetOnline(context.Background(), false)
	require.False(t, env.manager.Online())
}

func TestRecoverOrphans(t *testing.T) {
	env := setupManager(t, roomyEstimator())
	require.NoError(t, os.MkdirAll(env.resourcesDir, 0o755))

	orphan := filepath.Join(env.resourcesDir, "pkg-1.zip.tmp")
	keep := filepath.Join(env.resourcesDir, "res1.jpg")
	require.NoError(t, os.WriteFile(orphan, []byte("partial"), 0o644))
	require.NoError(t, os.WriteFile(keep, []byte("image"), 0o644))

	require.NoError(t, env.manager.RecoverOrphans())

	_, err := os.Stat(orphan)
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(keep)
	require.NoError(t, err)
}

func TestRecoverOrphansMissingDir(t *testing.T) {
	env := setupManager(t, roomyEstimator())
	require.NoError(t, env.manager.RecoverOrphans())
}

func TestExtractBundleSkipsUnsafeEntries(t *testing.T) {
	var buf bytes.Buffer
	archive := zip.NewWriter(&buf)

	for name, body := range map[string]string{
		"package.json":       "{}",
		"resources/safe.jpg": "ok",
		"../escape.jpg":      "bad",
	} {
		entry, err := archive.Create(name)
		require.NoError(t, err)
		_, err = entry.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, archive.Close())

	dir := t.TempDir()
	bundlePath := filepath.Join(dir, "bundle.zip")
	require.NoError(t, os.WriteFile(bundlePath, buf.Bytes(), 0o644))

	destDir := filepath.Join(dir, "out")
	extracted, err := extractBundle(bundlePath, destDir)
	require.NoError(t, err)

	names := make([]string, 0, len(extracted))
	for _, p := range extracted {
		names = append(names, filepath.Base(p))
	}
	require.Contains(t, names, "safe.jpg")
	require.NotContains(t, names, "package.json")

	_, err = os.Stat(filepath.Join(dir, "escape.jpg"))
	require.True(t, os.IsNotExist(err))
}
