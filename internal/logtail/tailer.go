package logtail

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lanops/cachewatch/internal/config"
)

// Tailer streams lines from a log file as they are written.
type Tailer interface {
	// Tail follows the file and sends each complete line to out until ctx
	// is done. It returns ctx.Err() on cancellation; any other error means
	// the engine gave up and the caller decides whether to restart it.
	Tail(ctx context.Context, out chan<- string) error
}

// New selects a tail engine from the configuration.
func New(cfg *config.Config, logger zerolog.Logger) (Tailer, error) {
	switch cfg.Tail.Mode {
	case config.TailModePoll, "":
		return NewPollTailer(cfg.Log.Path, cfg.Tail, logger), nil
	case config.TailModeFollow:
		return NewFollowTailer(cfg.Log.Path, cfg.Tail, logger), nil
	default:
		return nil, fmt.Errorf("unsupported tail.mode %q", cfg.Tail.Mode)
	}
}
