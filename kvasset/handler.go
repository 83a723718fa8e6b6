package kvasset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Options tune a single GetAsset call.
type Options struct {
	// BypassCache skips the edge cache for both read and write.
	BypassCache bool

	// MapRequestToAsset rewrites the request before its path becomes a
	// store key. Nil means MapRequestToAsset.
	MapRequestToAsset func(*http.Request) *http.Request
}

// Response describes a resolved asset. Body is nil for HEAD requests and
// 304 answers.
type Response struct {
	Status int
	Header http.Header
	Body   io.Reader
	Key    string
}

// LookupError is returned when a request cannot be resolved to an asset.
type LookupError struct {
	Status int
	Key    string
	Method string
	Err    error
}

func (e *LookupError) Error() string {
	switch e.Status {
	case http.StatusNotFound:
		return fmt.Sprintf("kvasset: could not find %q in the asset store", e.Key)
	case http.StatusMethodNotAllowed:
		return fmt.Sprintf("kvasset: %s is not a valid request method", e.Method)
	}
	return fmt.Sprintf("kvasset: lookup %q: %v", e.Key, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// StatusCode is the HTTP status a client should see for this failure.
func (e *LookupError) StatusCode() int {
	return e.Status
}

// ErrMethodNotAllowed is wrapped by LookupError for non GET/HEAD requests.
var ErrMethodNotAllowed = errors.New("kvasset: method not allowed")

// HandlerConfig configures the edge cache in front of the store.
type HandlerConfig struct {
	CacheMaxSize  int64
	CacheMaxFiles int
	// CacheTTL is how long a cached entry is served before the store is
	// asked again. Zero keeps entries until they are evicted.
	CacheTTL time.Duration
}

// Handler resolves requests to stored assets.
type Handler struct {
	store Store
	cache *edgeCache
}

func NewHandler(store Store, cfg HandlerConfig) *Handler {
	return &Handler{
		store: store,
		cache: newEdgeCache(cfg.CacheMaxSize, cfg.CacheMaxFiles, cfg.CacheTTL),
	}
}

// Store returns the backing store.
func (h *Handler) Store() Store {
	return h.store
}

// GetAsset looks up the asset for req. Failures are *LookupError values.
func (h *Handler) GetAsset(ctx context.Context, req *http.Request, opts Options) (*Response, error) {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return nil, &LookupError{Status: http.StatusMethodNotAllowed, Method: req.Method, Err: ErrMethodNotAllowed}
	}

	mapper := opts.MapRequestToAsset
	if mapper == nil {
		mapper = MapRequestToAsset
	}
	key := KeyForPath(mapper(req).URL.Path)

	var cached *cachedEntry
	if !opts.BypassCache {
		cached = h.cache.get(key)
	}
	if cached == nil {
		entry, err := h.store.Lookup(ctx, key)
		if err != nil {
			return nil, lookupError(key, err)
		}
		cached = &cachedEntry{entry: entry, etag: etagFor(entry.Body)}
		if !opts.BypassCache {
			h.cache.put(key, cached)
		}
	}

	entry := cached.entry
	header := make(http.Header)
	contentType := entry.ContentType
	if contentType == "" {
		contentType = contentTypeFor(key)
	}
	header.Set("Content-Type", contentType)
	header.Set("ETag", cached.etag)
	if !entry.ModTime.IsZero() {
		header.Set("Last-Modified", entry.ModTime.UTC().Format(http.TimeFormat))
	}

	resp := &Response{Status: http.StatusOK, Header: header, Key: key}
	if etagMatches(req.Header.Get("If-None-Match"), cached.etag) {
		resp.Status = http.StatusNotModified
		return resp, nil
	}

	header.Set("Content-Length", strconv.Itoa(len(entry.Body)))
	if req.Method != http.MethodHead {
		resp.Body = bytes.NewReader(entry.Body)
	}
	return resp, nil
}

func lookupError(key string, err error) error {
	switch {
	case errors.Is(err, ErrKeyNotFound):
		return &LookupError{Status: http.StatusNotFound, Key: key, Err: err}
	case errors.Is(err, ErrInvalidKey):
		return &LookupError{Status: http.StatusBadRequest, Key: key, Err: err}
	default:
		return &LookupError{Status: http.StatusInternalServerError, Key: key, Err: err}
	}
}

// MapRequestToAsset is the default request mapping: a path ending in "/"
// gets "index.html" appended and an extensionless path is treated as a
// directory holding an index.html.
func MapRequestToAsset(req *http.Request) *http.Request {
	p := req.URL.Path
	switch {
	case p == "" || strings.HasSuffix(p, "/"):
		p += "index.html"
	case path.Ext(p) == "":
		p += "/index.html"
	default:
		return req
	}
	return withPath(req, p)
}

// StripPrefixMapper removes prefix from the request path before the
// default mapping applies, for sites mounted below a path.
func StripPrefixMapper(prefix string) func(*http.Request) *http.Request {
	return func(req *http.Request) *http.Request {
		mapped := MapRequestToAsset(req)
		if !strings.HasPrefix(mapped.URL.Path, prefix) {
			return mapped
		}
		return withPath(mapped, "/"+strings.TrimPrefix(mapped.URL.Path, prefix))
	}
}

// ServeSingleDocument maps every request to the document at p on the
// request's own origin.
func ServeSingleDocument(p string) func(*http.Request) *http.Request {
	return func(req *http.Request) *http.Request {
		return withPath(req, p)
	}
}

func withPath(req *http.Request, p string) *http.Request {
	clone := req.Clone(req.Context())
	clone.URL.Path = p
	clone.URL.RawPath = ""
	return clone
}

// KeyForPath turns a request path into a store key.
func KeyForPath(p string) string {
	cleaned := path.Clean("/" + p)
	return strings.TrimPrefix(cleaned, "/")
}

func etagFor(body []byte) string {
	return `"` + strconv.FormatUint(xxhash.Sum64(body), 16) + `"`
}

func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" {
			return true
		}
		if strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}
