package main

import (
	"context"
	"fmt"

	"github.com/coffyg/octosite/config"
	"github.com/coffyg/octosite/kvasset"
)

func openStore(ctx context.Context, cfg config.StoreConfig) (kvasset.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		return kvasset.OpenSQLite(ctx, cfg.DSN)
	case "memory", "":
		return kvasset.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}
