package kvasset

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// ImportDir walks root and stores every regular file under its slash
// separated relative path. It returns the number of stored files.
func ImportDir(ctx context.Context, store Store, root string) (int, error) {
	count := 0
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		body, err := os.ReadFile(p)
		if err != nil {
			return errors.Wrapf(err, "kvasset: read %s", p)
		}

		key := filepath.ToSlash(rel)
		if err := store.Put(ctx, &Entry{
			Key:         key,
			Body:        body,
			ContentType: contentTypeFor(key),
			ModTime:     info.ModTime().UTC(),
		}); err != nil {
			return err
		}
		count++
		return nil
	})
	return count, errors.Wrapf(err, "kvasset: import %s", root)
}
