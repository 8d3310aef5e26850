package swcache

import (
	"bytes"
	"io"
	"net/http"
)

// OfflineBody is the payload of the 503 returned when neither network nor
// cache can satisfy a request
const OfflineBody = "Contenido no disponible offline"

// Proxy serves requests with service-worker fetch semantics: cache-first for
// static assets, network-first with cache fallback for everything else.
// Only GET requests are intercepted; other methods pass straight through.
type Proxy struct {
	cache *Cache
}

// NewProxy creates a proxy over the given cache layer
func NewProxy(cache *Cache) *Proxy {
	return &Proxy{cache: cache}
}

// ServeHTTP implements the fetch strategies
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		p.passThrough(w, r)
		return
	}

	if isStaticAsset(r.URL.Path) {
		p.cacheFirst(w, r)
		return
	}

	p.networkFirst(w, r)
}

func isStaticAsset(path string) bool {
	for _, asset := range StaticAssets {
		if asset == path {
			return true
		}
	}
	return false
}

// cacheFirst serves the cached copy when present, otherwise fetches and caches
func (p *Proxy) cacheFirst(w http.ResponseWriter, r *http.Request) {
	status, headers, body, err := p.cache.db.GetCachedResponse(StaticCacheName, r.URL.Path)
	if err == nil {
		writeResponse(w, status, headers, body)
		return
	}

	status, headers, body, err = p.fetchRemote(r)
	if err != nil {
		p.serveOffline(w)
		return
	}

	if status == http.StatusOK {
		if cacheErr := p.cache.db.PutCachedResponse(StaticCacheName, r.URL.Path, status, headers, body); cacheErr != nil {
			p.cache.logger.Warn("Failed to cache static response", "path", r.URL.Path, "error", cacheErr)
		}
	}

	writeResponse(w, status, headers, body)
}

// networkFirst fetches from the remote, falling back to the dynamic cache
func (p *Proxy) networkFirst(w http.ResponseWriter, r *http.Request) {
	status, headers, body, err := p.fetchRemote(r)
	if err == nil {
		if status == http.StatusOK {
			if cacheErr := p.cache.db.PutCachedResponse(DynamicCacheName, r.URL.Path, status, headers, body); cacheErr != nil {
				p.cache.logger.Warn("Failed to cache dynamic response", "path", r.URL.Path, "error", cacheErr)
			}
		}
		writeResponse(w, status, headers, body)
		return
	}

	for _, cacheName := range []string{DynamicCacheName, GeneralCacheName} {
		status, headers, body, cacheErr := p.cache.db.GetCachedResponse(cacheName, r.URL.Path)
		if cacheErr == nil {
			writeResponse(w, status, headers, body)
			return
		}
	}

	p.serveOffline(w)
}

// fetchRemote performs the network leg of a strategy
func (p *Proxy) fetchRemote(r *http.Request) (int, map[string]string, []byte, error) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, p.cache.remoteURL+r.URL.RequestURI(), nil)
	if err != nil {
		return 0, nil, nil, err
	}

	resp, err := p.cache.client.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, err
	}

	headers := map[string]string{}
	if contentType := resp.Header.Get("Content-Type"); contentType != "" {
		headers["Content-Type"] = contentType
	}

	return resp.StatusCode, headers, body, nil
}

// passThrough forwards a non-GET request to the remote without caching
func (p *Proxy) passThrough(w http.ResponseWriter, r *http.Request) {
	var reqBody io.Reader
	if r.Body != nil {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(r.Context(), r.Method, p.cache.remoteURL+r.URL.RequestURI(), reqBody)
	if err != nil {
		http.Error(w, "failed to create request", http.StatusInternalServerError)
		return
	}
	req.Header = r.Header.Clone()

	resp, err := p.cache.client.Do(req)
	if err != nil {
		p.serveOffline(w)
		return
	}
	defer resp.Body.Close()

	for key, values := range resp.Header {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		p.cache.logger.Warn("Failed to relay response body", "error", err)
	}
}

func (p *Proxy) serveOffline(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusServiceUnavailable)
	if _, err := w.Write([]byte(OfflineBody)); err != nil {
		p.cache.logger.Warn("Failed to write offline response", "error", err)
	}
}

func writeResponse(w http.ResponseWriter, status int, headers map[string]string, body []byte) {
	for key, value := range headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
