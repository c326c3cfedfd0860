package cli

import (
	"fmt"
	"log/slog"

	"github.com/hupe1980/livemirror/internal/config"
	"github.com/hupe1980/livemirror/internal/fingerprint"
	"github.com/hupe1980/livemirror/internal/logging"
	"github.com/hupe1980/livemirror/internal/mirror"
)

// newSynchronizer builds the mirror synchronizer every tree command
// shares. Setup problems are configuration errors and exit with code 2.
func newSynchronizer(cfg *config.Config, logger *slog.Logger) (*mirror.Synchronizer, error) {
	mirrorLogger := logging.Component(logger, "mirror")

	hasher, err := fingerprint.New(cfg.Hash, fingerprint.WithLogger(mirrorLogger))
	if err != nil {
		return nil, &ExitError{Code: 2, Err: err}
	}

	syncer, err := mirror.New(mirror.Options{
		Src:     cfg.Src,
		Dest:    cfg.Dest,
		Ignore:  cfg.Ignore,
		Workers: cfg.Workers,
		Hasher:  hasher,
		Logger:  mirrorLogger,
	})
	if err != nil {
		return nil, &ExitError{Code: 2, Err: fmt.Errorf("configuring mirror: %w", err)}
	}

	return syncer, nil
}
