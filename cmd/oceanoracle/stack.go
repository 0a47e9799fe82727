package main

import (
	"fmt"

	"github.com/rewired-gh/oceanoracle/internal/argo"
	"github.com/rewired-gh/oceanoracle/internal/config"
	"github.com/rewired-gh/oceanoracle/internal/datacache"
	"github.com/rewired-gh/oceanoracle/internal/lifecycle"
	"github.com/rewired-gh/oceanoracle/internal/logger"
	"github.com/rewired-gh/oceanoracle/internal/modelstore"
	"github.com/rewired-gh/oceanoracle/internal/regions"
	"github.com/rewired-gh/oceanoracle/internal/telegram"
	"github.com/rewired-gh/oceanoracle/internal/trainer"
)

// stack is the wired service core
type stack struct {
	registry *regions.Registry
	cache    *datacache.Cache
	store    *modelstore.Store
	manager  *lifecycle.Manager
}

// buildStack wires the registry, stores, fetcher, trainer and lifecycle
// manager. Notifications are attached only when notify is set.
func buildStack(cfg *config.Config, notify bool) (*stack, error) {
	registry, err := regions.FromConfig(cfg.Regions)
	if err != nil {
		return nil, fmt.Errorf("failed to build region registry: %w", err)
	}

	cache, err := datacache.New(cfg.Cache.Dir, cfg.Cache.TTL, cfg.Cache.Compress, cfg.Cache.FilePermissions, cfg.Cache.DirPermissions)
	if err != nil {
		return nil, fmt.Errorf("failed to open data cache: %w", err)
	}

	tr := trainer.New(trainer.Options{
		TestFraction: cfg.Models.TestFraction,
		RandomSeed:   cfg.Models.RandomSeed,
		MinRecords:   cfg.Models.MinRecords,
	})

	store, err := modelstore.New(modelstore.Options{
		Dir:             cfg.Models.Dir,
		MaxHistory:      cfg.Models.MaxHistory,
		SchemaVersion:   tr.SchemaVersion(),
		FilePermissions: cfg.Cache.FilePermissions,
		DirPermissions:  cfg.Cache.DirPermissions,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open model store: %w", err)
	}

	fetcher := argo.NewClient(argo.Options{
		BaseURL:           cfg.Argo.ERDDAPURL,
		DatasetID:         cfg.Argo.DatasetID,
		Timeout:           cfg.Argo.Timeout,
		MaxRetries:        cfg.Argo.MaxRetries,
		RetryDelayBase:    cfg.Argo.RetryDelayBase,
		Years:             cfg.Argo.Years,
		Months:            cfg.Argo.Months,
		MaxDepth:          cfg.Argo.MaxDepth,
		SyntheticFallback: cfg.Argo.SyntheticFallback,
	})

	// Left as a nil interface when disabled
	var notifier lifecycle.Notifier
	if notify && cfg.Telegram.Enabled {
		client, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Telegram client: %w", err)
		}
		notifier = client
		logger.Info("Telegram notifications enabled")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	manager, err := lifecycle.New(lifecycle.Options{
		Registry:         registry,
		Cache:            cache,
		Store:            store,
		Fetcher:          fetcher,
		Trainer:          tr,
		Notifier:         notifier,
		OperationTimeout: cfg.Lifecycle.OperationTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create lifecycle manager: %w", err)
	}

	return &stack{registry: registry, cache: cache, store: store, manager: manager}, nil
}
