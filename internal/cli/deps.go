// deps.go wires config, API client, cache, and logging for commands.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/agime-dev/agimectl/internal/api"
	"github.com/agime-dev/agimectl/internal/config"
	applog "github.com/agime-dev/agimectl/internal/log"
	"github.com/agime-dev/agimectl/internal/store"
)

// deps bundles everything a command needs. Build once per invocation and
// close before exit.
type deps struct {
	cfg    *config.Config
	client *api.Client
	cache  *store.Store
	logger *applog.Logger
}

func buildDeps() (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.Server.URL == "" {
		return nil, fmt.Errorf("no server configured; set server.url in the config or AGIME_URL")
	}

	dir, err := config.Dir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	cache, err := store.Open(filepath.Join(dir, "cache.db"))
	if err != nil {
		return nil, fmt.Errorf("opening local cache: %w", err)
	}

	logDir := cfg.LogDir
	if logDir == "" {
		logDir = filepath.Join(dir, "logs")
	}
	run := time.Now().Format("20060102-150405") + "-" + uuid.New().String()[:8]
	logger, err := applog.NewLogger(logDir, run)
	if err != nil {
		// Logging is best-effort; commands still work without it.
		logger = nil
	}

	return &deps{
		cfg:    cfg,
		client: api.New(cfg.Server.URL, cfg.Server.Token, cfg.RequestTimeout()),
		cache:  cache,
		logger: logger,
	}, nil
}

func (d *deps) close() {
	if d.cache != nil {
		_ = d.cache.Close()
	}
}
