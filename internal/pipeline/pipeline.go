package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/lanops/cachewatch/internal/classify"
	"github.com/lanops/cachewatch/internal/config"
	"github.com/lanops/cachewatch/internal/logtail"
	"github.com/lanops/cachewatch/internal/metrics"
	"github.com/lanops/cachewatch/internal/parser"
	"github.com/lanops/cachewatch/internal/stats"
)

// restartBackoff delays tailer restarts after an engine gives up.
const restartBackoff = 5 * time.Second

// logLineMax truncates dropped lines in debug output.
const logLineMax = 100

// Start wires the tailer to the parser, classifier, and aggregator. Lines
// flow through a single processor goroutine, so every line's effect is
// applied in file order. Returns an error only for startup problems; once
// running, the pipeline survives rotation, truncation, and bad lines.
func Start(ctx context.Context, cfg *config.Config, cfgStore *config.Store, logger zerolog.Logger, agg *stats.Aggregator) error {
	p, err := parser.New(cfg.Log.Format)
	if err != nil {
		return err
	}

	t, err := logtail.New(cfg, logger)
	if err != nil {
		return err
	}

	cls := classify.New(cfgStore)
	lines := make(chan string, 256)

	go func() {
		defer close(lines)
		for {
			err := t.Tail(ctx, lines)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				logger.Error().Err(err).Msg("tailer stopped, restarting")
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(restartBackoff):
			}
		}
	}()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case line, ok := <-lines:
				if !ok {
					return
				}
				ev, err := p.Parse(line)
				if err != nil {
					if errors.Is(err, parser.ErrEmptyLine) {
						continue
					}
					metrics.ParseErrors.Inc()
					logger.Debug().Err(err).Str("line", truncate(line, logLineMax)).Msg("dropped unparseable line")
					continue
				}
				agg.Record(ev, cls.Classify(ev))
			}
		}
	}()

	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
