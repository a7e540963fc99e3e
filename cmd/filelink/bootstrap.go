package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/wolkabout/filelink-go/internal/config"
	"github.com/wolkabout/filelink-go/internal/filestore"
	"github.com/wolkabout/filelink-go/internal/lockfile"
	"github.com/wolkabout/filelink-go/internal/logging"
	"github.com/wolkabout/filelink-go/internal/repository"
)

// deps are the collaborators every subcommand needs; loadDeps builds
// them from a config file the same way for each one: load config, open
// state, defer close.
type deps struct {
	cfg   *config.Config
	log   *logging.Logger
	repo  *repository.Repository
	store *filestore.Store
	lock  *lockfile.LockFile
}

// loadDeps opens a deps for a subcommand and acquires the data-root
// lock, which Close releases: the one-shot subcommands (list/delete/
// purge/install/report-boot) hold it around their single operation,
// serve holds it for its whole run.
func loadDeps(configPath string) (*deps, error) {
	if configPath == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	log := logging.New(cfg.Logging.Level, cfg.Logging.Format == "json")

	if err := os.MkdirAll(cfg.General.DataRoot, 0o755); err != nil {
		return nil, fmt.Errorf("creating data root: %w", err)
	}

	lockPath := filepath.Join(cfg.General.DataRoot, "filelink.lock")
	lock, err := lockfile.Acquire(lockPath)
	if err != nil {
		return nil, fmt.Errorf("acquiring data root lock: %w", err)
	}

	repo, err := repository.Open(filepath.Join(cfg.General.DataRoot, "repository.db"))
	if err != nil {
		lock.Release()
		return nil, fmt.Errorf("opening repository: %w", err)
	}
	store, err := filestore.New(cfg.General.StoreRoot)
	if err != nil {
		repo.Close()
		lock.Release()
		return nil, fmt.Errorf("opening file store: %w", err)
	}

	return &deps{cfg: cfg, log: log, repo: repo, store: store, lock: lock}, nil
}

func (d *deps) Close() {
	d.repo.Close()
	if err := d.lock.Release(); err != nil {
		d.log.Errorf("releasing data root lock: %v", err)
	}
}

// stdoutOutbound prints every published message instead of delivering
// it anywhere, for the one-shot administrative subcommands that only
// care about the final repository/store state, not the transport.
type stdoutOutbound struct{}

func (stdoutOutbound) Publish(deviceKey string, msg any) error {
	fmt.Printf("%s: %#v\n", deviceKey, msg)
	return nil
}
