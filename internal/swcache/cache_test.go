package swcache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"inclusiveai-offline/internal/errs"
	"inclusiveai-offline/pkg/models"
)

func TestInstallPreCachesStaticAssets(t *testing.T) {
	served := make(map[string]bool)
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sounds/achievement.mp3" {
			http.NotFound(w, r)
			return
		}
		served[r.URL.Path] = true
		w.Write([]byte("asset:" + r.URL.Path))
	}))
	defer remote.Close()

	cache, db := setupCache(t, remote.URL)
	require.NoError(t, cache.Install(context.Background()))

	// Everything the remote served landed in the static cache.
	for _, asset := range StaticAssets {
		if asset == "/sounds/achievement.mp3" {
			_, _, _, err := db.GetCachedResponse(StaticCacheName, asset)
			require.ErrorIs(t, err, errs.ErrNotCached)
			continue
		}
		require.True(t, served[asset], "asset %s was not fetched", asset)
		status, _, body, err := db.GetCachedResponse(StaticCacheName, asset)
		require.NoError(t, err)
		require.Equal(t, 200, status)
		require.Equal(t, "asset:"+asset, string(body))
	}
}

func TestActivatePurgesStaleCaches(t *testing.T) {
	cache, db := setupCache(t, "http://remote.invalid")

	require.NoError(t, db.PutCachedResponse(StaticCacheName, "/", 200, nil, []byte("keep")))
	require.NoError(t, db.PutCachedResponse(GeneralCacheName, "/x", 200, nil, []byte("keep")))
	require.NoError(t, db.PutCachedResponse("inclusive-ai-coach-v0", "/old", 200, nil, []byte("stale")))
	require.NoError(t, db.PutCachedResponse("inclusive-ai-static-v0", "/old", 200, nil, []byte("stale")))

	require.NoError(t, cache.Activate())

	names, err := db.ListCacheNames()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{StaticCacheName, GeneralCacheName}, names)
}

func cachedPackage(t *testing.T, resourcesDir string) *models.OfflinePackage {
	t.Helper()
	require.NoError(t, os.MkdirAll(resourcesDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(resourcesDir, "res1.jpg"), []byte("image-bytes"), 0o644))

	return &models.OfflinePackage{
		ID:        "pkg-1",
		Version:   "1.0.0",
		StudentID: "student-1",
		Resources: []models.OfflineResource{
			{ID: "res1", Type: models.ResourceImage, LocalPath: "/generator/resources/res1.jpg"},
			{ID: "res2", Type: models.ResourceAudio, LocalPath: "/generator/resources/missing.m4a"},
		},
		CreatedAt: time.Now(),
	}
}

func TestCachePackage(t *testing.T) {
	cache, db := setupCache(t, "http://remote.invalid")
	resourcesDir := t.TempDir()
	pkg := cachedPackage(t, resourcesDir)

	require.NoError(t, cache.CachePackage(pkg, resourcesDir))

	status, headers, _, err := db.GetCachedResponse(GeneralCacheName, "/offline-content/pkg-1.json")
	require.NoError(t, err)
	require.Equal(t, 200, status)
	require.Equal(t, "application/json", headers["Content-Type"])

	_, _, body, err := db.GetCachedResponse(GeneralCacheName, "/offline-content/resources/res1.jpg")
	require.NoError(t, err)
	require.Equal(t, []byte("image-bytes"), body)

	// The missing extracted file is skipped, not fatal.
	_, _, _, err = db.GetCachedResponse(GeneralCacheName, "/offline-content/resources/missing.m4a")
	require.ErrorIs(t, err, errs.ErrNotCached)
}

func TestUncachePackage(t *testing.T) {
	cache, db := setupCache(t, "http://remote.invalid")
	resourcesDir := t.TempDir()
	pkg := cachedPackage(t, resourcesDir)

	require.NoError(t, cache.CachePackage(pkg, resourcesDir))
	require.NoError(t, cache.UncachePackage("pkg-1"))

	_, _, _, err := db.GetCachedResponse(GeneralCacheName, "/offline-content/pkg-1.json")
	require.ErrorIs(t, err, errs.ErrNotCached)
	_, _, _, err = db.GetCachedResponse(GeneralCacheName, "/offline-content/resources/res1.jpg")
	require.ErrorIs(t, err, errs.ErrNotCached)

	entries, err := db.ListPackageCacheURLs("pkg-1")
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestUncachePackageAfterManifestEntryGone(t *testing.T) {
	cache, db := setupCache(t, "http://remote.invalid")
	resourcesDir := t.TempDir()
	pkg := cachedPackage(t, resourcesDir)

	require.NoError(t, cache.CachePackage(pkg, resourcesDir))

	// Resource entries must still be evicted when the manifest entry was
	// already removed out of band
	require.NoError(t, db.DeleteCachedResponse(GeneralCacheName, "/offline-content/pkg-1.json"))

	require.NoError(t, cache.UncachePackage("pkg-1"))

	_, _, _, err := db.GetCachedResponse(GeneralCacheName, "/offline-content/resources/res1.jpg")
	require.ErrorIs(t, err, errs.ErrNotCached)

	entries, err := db.ListPackageCacheURLs("pkg-1")
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestHandleMessage(t *testing.T) {
	cache, db := setupCache(t, "http://remote.invalid")
	resourcesDir := t.TempDir()
	pkg := cachedPackage(t, resourcesDir)

	require.NoError(t, cache.HandleMessage(Message{
		Type:    MessageCachePackage,
		Package: pkg,
	}, resourcesDir))

	_, _, _, err := db.GetCachedResponse(GeneralCacheName, "/offline-content/pkg-1.json")
	require.NoError(t, err)

	require.NoError(t, cache.HandleMessage(Message{
		Type:      MessageUncachePackage,
		PackageID: "pkg-1",
	}, resourcesDir))

	_, _, _, err = db.GetCachedResponse(GeneralCacheName, "/offline-content/pkg-1.json")
	require.ErrorIs(t, err, errs.ErrNotCached)
}

func TestHandleMessageRejectsMalformed(t *testing.T) {
	cache, _ := setupCache(t, "http://remote.invalid")

	require.Error(t, cache.HandleMessage(Message{Type: MessageCachePackage}, t.TempDir()))
	require.Error(t, cache.HandleMessage(Message{Type: MessageUncachePackage}, t.TempDir()))
	require.Error(t, cache.HandleMessage(Message{Type: "UNKNOWN"}, t.TempDir()))
}
