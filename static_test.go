package octosite

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/coffyg/octosite/kvasset"
)

const (
	testIndexBody = "<!doctype html><title>shell</title>"
	testAppBody   = "console.log('app')"
)

// fetcherFunc adapts a function to AssetFetcher.
type fetcherFunc func(ctx context.Context, req *http.Request, opts kvasset.Options) (*kvasset.Response, error)

func (f fetcherFunc) GetAsset(ctx context.Context, req *http.Request, opts kvasset.Options) (*kvasset.Response, error) {
	return f(ctx, req, opts)
}

// recordingFetcher wraps a fetcher and remembers the options of every call.
type recordingFetcher struct {
	mu    sync.Mutex
	next  AssetFetcher
	calls []kvasset.Options
	paths []string
}

func (r *recordingFetcher) GetAsset(ctx context.Context, req *http.Request, opts kvasset.Options) (*kvasset.Response, error) {
	r.mu.Lock()
	r.calls = append(r.calls, opts)
	mapped := req
	if opts.MapRequestToAsset != nil {
		mapped = opts.MapRequestToAsset(req)
	}
	r.paths = append(r.paths, mapped.URL.Path)
	r.mu.Unlock()
	return r.next.GetAsset(ctx, req, opts)
}

func newTestStore(t *testing.T, files map[string]string) *kvasset.MemoryStore {
	t.Helper()
	store := kvasset.NewMemoryStore()
	for key, body := range files {
		if err := store.Put(context.Background(), &kvasset.Entry{Key: key, Body: []byte(body)}); err != nil {
			t.Fatalf("Failed to seed %s: %v", key, err)
		}
	}
	return store
}

func newAssetRouter(fetcher AssetFetcher, config AssetConfig, opts ...RouterOption) *Router[string] {
	router := NewRouter[string](opts...)
	router.Fallback(Assets[string](fetcher, config))
	return router
}

func assertSecurityHeaders(t *testing.T, h http.Header) {
	t.Helper()
	expected := map[string]string{
		"Content-Security-Policy":   contentSecurityPolicy,
		"Strict-Transport-Security": "max-age=1000",
		"Cache-Control":             "public, max-age=31536000, immutabe",
		"X-Xss-Protection":          "1; mode=block",
		"X-Frame-Options":           "DENY",
		"X-Content-Type-Options":    "nosniff",
		"Referrer-Policy":           "strict-origin-when-cross-origin",
	}
	for name, value := range expected {
		values := h.Values(name)
		if len(values) != 1 {
			t.Errorf("Expected exactly one %s header, got %v", name, values)
			continue
		}
		if values[0] != value {
			t.Errorf("Expected %s %q, got %q", name, value, values[0])
		}
	}
}

func TestAssetsServesStoredAsset(t *testing.T) {
	store := newTestStore(t, map[string]string{
		"index.html": testIndexBody,
		"app.js":     testAppBody,
	})
	router := newAssetRouter(kvasset.NewHandler(store, kvasset.HandlerConfig{}), AssetConfig{})

	req := httptest.NewRequest(http.MethodGet, "https://example.com/app.js", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if w.Body.String() != testAppBody {
		t.Errorf("Expected body %q, got %q", testAppBody, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/javascript; charset=utf-8" {
		t.Errorf("Expected javascript content type, got %q", ct)
	}
	if w.Header().Get("ETag") == "" {
		t.Error("Expected an ETag header")
	}
	assertSecurityHeaders(t, w.Header())
}

func TestAssetsOverridesStoreHeaders(t *testing.T) {
	fetcher := fetcherFunc(func(ctx context.Context, req *http.Request, opts kvasset.Options) (*kvasset.Response, error) {
		header := make(http.Header)
		header.Set("Content-Type", "text/css; charset=utf-8")
		header.Add("Cache-Control", "no-cache")
		header.Add("Cache-Control", "private")
		header.Set("X-Frame-Options", "SAMEORIGIN")
		return &kvasset.Response{
			Status: http.StatusOK,
			Header: header,
			Body:   strings.NewReader("body{}"),
			Key:    "site.css",
		}, nil
	})
	router := newAssetRouter(fetcher, AssetConfig{})

	req := httptest.NewRequest(http.MethodGet, "https://example.com/site.css", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assertSecurityHeaders(t, w.Header())
	if ct := w.Header().Get("Content-Type"); ct != "text/css; charset=utf-8" {
		t.Errorf("Expected store content type to survive, got %q", ct)
	}
}

func TestAssetsDoesNotMutateStoreResponse(t *testing.T) {
	shared := make(http.Header)
	shared.Set("Content-Type", "text/plain")
	fetcher := fetcherFunc(func(ctx context.Context, req *http.Request, opts kvasset.Options) (*kvasset.Response, error) {
		return &kvasset.Response{Status: http.StatusOK, Header: shared, Body: strings.NewReader("x")}, nil
	})
	router := newAssetRouter(fetcher, AssetConfig{})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "https://example.com/a.txt", nil))

	if len(shared) != 1 {
		t.Errorf("Expected store header to stay untouched, got %v", shared)
	}
}

func TestAssetsFallsBackToIndex(t *testing.T) {
	store := newTestStore(t, map[string]string{"index.html": testIndexBody})
	router := newAssetRouter(kvasset.NewHandler(store, kvasset.HandlerConfig{}), AssetConfig{})

	req := httptest.NewRequest(http.MethodGet, "https://example.com/missing-asset.xyz", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if w.Body.String() != testIndexBody {
		t.Errorf("Expected index body, got %q", w.Body.String())
	}
	if w.Header().Get("X-Frame-Options") != "DENY" {
		t.Errorf("Expected X-Frame-Options DENY, got %q", w.Header().Get("X-Frame-Options"))
	}
	assertSecurityHeaders(t, w.Header())
}

func TestAssetsFallbackUsesRequestOrigin(t *testing.T) {
	store := newTestStore(t, map[string]string{"index.html": testIndexBody})
	rec := &recordingFetcher{next: kvasset.NewHandler(store, kvasset.HandlerConfig{})}
	router := newAssetRouter(rec, AssetConfig{})

	req := httptest.NewRequest(http.MethodGet, "https://example.com/deep/client/route", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	if len(rec.paths) != 2 {
		t.Fatalf("Expected 2 lookups, got %d", len(rec.paths))
	}
	if rec.paths[1] != "/index.html" {
		t.Errorf("Expected fallback lookup of /index.html, got %s", rec.paths[1])
	}
}

func TestAssetsFallbackMissing(t *testing.T) {
	store := newTestStore(t, nil)
	router := newAssetRouter(kvasset.NewHandler(store, kvasset.HandlerConfig{}), AssetConfig{})

	req := httptest.NewRequest(http.MethodGet, "https://example.com/nothing.js", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected status 404, got %d", w.Code)
	}
	if w.Body.String() != "Not Found" {
		t.Errorf("Expected body %q, got %q", "Not Found", w.Body.String())
	}
	assertSecurityHeaders(t, w.Header())
}

func TestAssetsFallbackOnStoreError(t *testing.T) {
	storeDown := errors.New("store unavailable")
	calls := 0
	fetcher := fetcherFunc(func(ctx context.Context, req *http.Request, opts kvasset.Options) (*kvasset.Response, error) {
		calls++
		if calls == 1 {
			return nil, &kvasset.LookupError{Status: http.StatusInternalServerError, Key: "app.js", Err: storeDown}
		}
		return &kvasset.Response{Status: http.StatusOK, Header: make(http.Header), Body: strings.NewReader(testIndexBody)}, nil
	})

	tests := []struct {
		name       string
		policy     FallbackPolicy
		wantStatus int
		wantBody   string
	}{
		{"any error falls back", FallbackOnAnyError, http.StatusOK, testIndexBody},
		{"not found only", FallbackOnNotFound, http.StatusInternalServerError, "Internal Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls = 0
			router := newAssetRouter(fetcher, AssetConfig{Policy: tt.policy})

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "https://example.com/app.js", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
			if w.Body.String() != tt.wantBody {
				t.Errorf("Expected body %q, got %q", tt.wantBody, w.Body.String())
			}
		})
	}
}

func TestAssetsNotFoundPolicyKeepsClientErrors(t *testing.T) {
	store := newTestStore(t, map[string]string{
		"index.html": testIndexBody,
		"app.js":     testAppBody,
	})
	router := newAssetRouter(kvasset.NewHandler(store, kvasset.HandlerConfig{}), AssetConfig{Policy: FallbackOnNotFound})

	tests := []struct {
		name   string
		method string
		target string
		status int
	}{
		{"post", http.MethodPost, "https://example.com/app.js", http.StatusMethodNotAllowed},
		{"oversized key", http.MethodGet, "https://example.com/" + strings.Repeat("a", 1100) + ".js", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(tt.method, tt.target, nil))

			if w.Code != tt.status {
				t.Fatalf("Expected status %d, got %d", tt.status, w.Code)
			}
			if w.Body.String() != http.StatusText(tt.status) {
				t.Errorf("Expected body %q, got %q", http.StatusText(tt.status), w.Body.String())
			}
			assertSecurityHeaders(t, w.Header())
		})
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "https://example.com/app.js", nil))
	if allow := w.Header().Get("Allow"); allow != "GET, HEAD" {
		t.Errorf("Expected Allow %q, got %q", "GET, HEAD", allow)
	}
}

func TestAssetsFallbackStoreErrorIsUnexpected(t *testing.T) {
	fetcher := fetcherFunc(func(ctx context.Context, req *http.Request, opts kvasset.Options) (*kvasset.Response, error) {
		return nil, &kvasset.LookupError{Status: http.StatusInternalServerError, Err: errors.New("disk on fire")}
	})

	w := httptest.NewRecorder()
	newAssetRouter(fetcher, AssetConfig{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "https://example.com/", nil))
	if w.Code != http.StatusInternalServerError || w.Body.String() != "Internal Error" {
		t.Errorf("Expected 500 Internal Error, got %d %q", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	newAssetRouter(fetcher, AssetConfig{}, WithDebug(true)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "https://example.com/", nil))
	if !strings.Contains(w.Body.String(), "disk on fire") {
		t.Errorf("Expected debug body to carry the error text, got %q", w.Body.String())
	}
}

func TestAssetsDebugBypassesCache(t *testing.T) {
	store := newTestStore(t, map[string]string{"index.html": testIndexBody})

	for _, debug := range []bool{false, true} {
		rec := &recordingFetcher{next: kvasset.NewHandler(store, kvasset.HandlerConfig{})}
		router := newAssetRouter(rec, AssetConfig{Debug: debug})
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "https://example.com/gone.png", nil))

		if len(rec.calls) != 2 {
			t.Fatalf("Expected 2 lookups, got %d", len(rec.calls))
		}
		for i, opts := range rec.calls {
			if opts.BypassCache != debug {
				t.Errorf("debug=%v lookup %d: expected BypassCache %v", debug, i, debug)
			}
		}
	}
}

func TestAssetsIdempotentHeaders(t *testing.T) {
	store := newTestStore(t, map[string]string{"app.js": testAppBody})
	router := newAssetRouter(kvasset.NewHandler(store, kvasset.HandlerConfig{}), AssetConfig{})

	var headers []http.Header
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "https://example.com/app.js", nil))
		h := w.Header().Clone()
		h.Del(HeaderXRequestID)
		headers = append(headers, h)
	}

	if !reflect.DeepEqual(headers[0], headers[1]) {
		t.Errorf("Expected identical headers, got\n%v\n%v", headers[0], headers[1])
	}
	assertSecurityHeaders(t, headers[1])
}

func TestAssetsHead(t *testing.T) {
	store := newTestStore(t, map[string]string{"app.js": testAppBody})
	router := newAssetRouter(kvasset.NewHandler(store, kvasset.HandlerConfig{}), AssetConfig{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodHead, "https://example.com/app.js", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("Expected empty body for HEAD, got %q", w.Body.String())
	}
	if w.Header().Get("Content-Length") != "18" {
		t.Errorf("Expected Content-Length 18, got %q", w.Header().Get("Content-Length"))
	}
}

func TestAssetsCustomFallbackPath(t *testing.T) {
	store := newTestStore(t, map[string]string{"app/shell.html": "shell"})
	router := newAssetRouter(kvasset.NewHandler(store, kvasset.HandlerConfig{}), AssetConfig{FallbackPath: "/app/shell.html"})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "https://example.com/app/users/42", nil))

	body, _ := io.ReadAll(w.Result().Body)
	if string(body) != "shell" {
		t.Errorf("Expected custom fallback body, got %q", body)
	}
}

func TestParseFallbackPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    FallbackPolicy
		wantErr bool
	}{
		{"", FallbackOnAnyError, false},
		{"any_error", FallbackOnAnyError, false},
		{"NOT_FOUND", FallbackOnNotFound, false},
		{"sometimes", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseFallbackPolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFallbackPolicy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFallbackPolicy(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if FallbackOnNotFound.String() != "not_found" {
		t.Errorf("Unexpected String(): %s", FallbackOnNotFound)
	}
}
