package geonames

import (
	"context"
	"fmt"
	"log/slog"
)

// Source says where the dump lives and where the directory is stored.
type Source struct {
	Path string // local dump, .zip or .txt
	URL  string // fetched when Path is missing; empty disables download
	DSN  string // SQLite DSN
}

// Build opens the directory at src.DSN and fills it from the dump, fetching
// the dump first if needed. The caller owns the returned Store.
func Build(ctx context.Context, src Source, logger *slog.Logger) (*Store, error) {
	if src.URL != "" {
		if err := EnsureFile(ctx, src.URL, src.Path, logger); err != nil {
			return nil, err
		}
	}

	records, err := LoadFile(src.Path)
	if err != nil {
		return nil, fmt.Errorf("load geonames dump: %w", err)
	}

	store, err := Open(ctx, src.DSN, logger)
	if err != nil {
		return nil, err
	}
	if err := store.Import(ctx, records); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}
