package kvasset

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportDir(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{
		"index.html":           "<html></html>",
		"js/app.js":            "app",
		"img/icons/a.svg":      "<svg/>",
		"manifest.webmanifest": "{}",
	}
	for rel, body := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}

	ctx := context.Background()
	store := NewMemoryStore()
	n, err := ImportDir(ctx, store, root)
	require.NoError(t, err)
	assert.Equal(t, len(files), n)

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"img/icons/a.svg", "index.html", "js/app.js", "manifest.webmanifest"}, keys)

	e, err := store.Lookup(ctx, "img/icons/a.svg")
	require.NoError(t, err)
	assert.Equal(t, "image/svg+xml", e.ContentType)
	assert.Equal(t, "<svg/>", string(e.Body))
}

func TestImportDirMissingRoot(t *testing.T) {
	_, err := ImportDir(context.Background(), NewMemoryStore(), filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
