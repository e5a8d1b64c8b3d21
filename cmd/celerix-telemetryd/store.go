package main

import (
	"context"
	"fmt"

	"github.com/celerix-dev/celerix-telemetry/internal/cloudstore"
	"github.com/celerix-dev/celerix-telemetry/internal/config"
	"github.com/celerix-dev/celerix-telemetry/internal/engine"
	"github.com/celerix-dev/celerix-telemetry/pkg/sdk"
	"go.uber.org/zap"
)

type storeBackend struct {
	store sdk.DocumentStore
	// docs is set for the embedded backend, which is also served over TCP.
	docs  *engine.DocStore
	close func()
}

// openStore selects the document store backend named in the configuration.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*storeBackend, error) {
	switch cfg.Store.Backend {
	case config.BackendRemote:
		client, err := sdk.Connect(cfg.Store.RemoteAddr)
		if err != nil {
			return nil, fmt.Errorf("connect to store %s: %w", cfg.Store.RemoteAddr, err)
		}
		if err := client.Ping(ctx); err != nil {
			client.Close()
			return nil, fmt.Errorf("ping store %s: %w", cfg.Store.RemoteAddr, err)
		}
		logger.Info("Using remote store", zap.String("addr", cfg.Store.RemoteAddr))
		return &storeBackend{store: client, close: func() { client.Close() }}, nil

	case config.BackendFirestore:
		fs, err := cloudstore.New(ctx, cfg.Store.ProjectID)
		if err != nil {
			return nil, err
		}
		logger.Info("Using Firestore", zap.String("project", cfg.Store.ProjectID))
		return &storeBackend{store: fs, close: func() { fs.Close() }}, nil

	default:
		persister, err := engine.NewPersistence(cfg.Store.DataDir, logger)
		if err != nil {
			return nil, fmt.Errorf("init persistence: %w", err)
		}
		initialData, err := persister.LoadAll()
		if err != nil {
			logger.Warn("Could not load existing data", zap.Error(err))
		}
		docs := engine.NewDocStore(initialData, persister)
		logger.Info("Embedded store started",
			zap.String("data_dir", cfg.Store.DataDir),
			zap.Int("partitions", len(initialData)),
		)
		return &storeBackend{store: docs, docs: docs, close: docs.Wait}, nil
	}
}
