package logtail

import (
	"context"
	"io"

	"github.com/hpcloud/tail"
	"github.com/rs/zerolog"

	"github.com/lanops/cachewatch/internal/config"
)

// FollowTailer follows a file through hpcloud/tail, which uses filesystem
// notifications instead of a poll loop. Rotation and a missing file are
// handled by the library's reopen logic.
type FollowTailer struct {
	path      string
	fromStart bool
	logger    zerolog.Logger
}

// NewFollowTailer creates a follow-mode tailer for path.
func NewFollowTailer(path string, tc config.TailConfig, logger zerolog.Logger) *FollowTailer {
	return &FollowTailer{
		path:      path,
		fromStart: tc.StartAt == config.StartAtStart,
		logger:    logger,
	}
}

// Tail follows the file and sends each line to out until ctx is done.
func (t *FollowTailer) Tail(ctx context.Context, out chan<- string) error {
	whence := io.SeekEnd
	if t.fromStart {
		whence = io.SeekStart
	}

	cfg := tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: false,
		Location:  &tail.SeekInfo{Offset: 0, Whence: whence},
		Logger:    tail.DiscardingLogger,
	}

	tf, err := tail.TailFile(t.path, cfg)
	if err != nil {
		return err
	}
	defer tf.Cleanup()

	t.logger.Info().Str("path", t.path).Msg("tailing log file")

	for {
		select {
		case <-ctx.Done():
			_ = tf.Stop()
			return ctx.Err()
		case line, ok := <-tf.Lines:
			if !ok {
				return nil
			}
			if line.Err != nil {
				t.logger.Error().Err(line.Err).Msg("tail error")
				continue
			}
			select {
			case out <- line.Text:
			case <-ctx.Done():
				_ = tf.Stop()
				return ctx.Err()
			}
		}
	}
}
