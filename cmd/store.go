package cmd

import (
	"fmt"

	"github.com/arafat3300/propmatch/internal/catalog"
	"github.com/arafat3300/propmatch/internal/storage"

	"go.uber.org/zap"
)

// openStore opens the sqlite store and, when the property table is still
// empty and a catalog file is configured, seeds it in the same call so the
// first run works against a populated catalog.
func openStore(config *Config, logger *zap.Logger) (*storage.Store, error) {
	path := config.storePath()

	store, err := storage.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening store %q: %w", path, err)
	}

	if err := store.EnsureSchema(); err != nil {
		_ = store.Close()
		return nil, err
	}

	count, err := store.CountProperties()
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	if count == 0 && config != nil && config.CatalogFile != "" {
		seeded, err := seedFromFile(store, config.CatalogFile)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		logger.Info("seeded empty store from catalog file",
			zap.String("path", config.CatalogFile),
			zap.Int("count", seeded),
		)
	}

	return store, nil
}

func seedFromFile(store *storage.Store, path string) (int, error) {
	properties, err := catalog.FromFile(path)
	if err != nil {
		return 0, fmt.Errorf("loading catalog file %q: %w", path, err)
	}

	if err := store.SeedProperties(properties.Items); err != nil {
		return 0, fmt.Errorf("seeding properties: %w", err)
	}

	return properties.Len(), nil
}
