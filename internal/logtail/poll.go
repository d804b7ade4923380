package logtail

import (
	"bytes"
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/lanops/cachewatch/internal/config"
)

// Poll cadences. interval paces reads on an open file; await paces
// existence checks while the file is missing; backoff delays retries after
// I/O errors.
const (
	defaultPollInterval  = time.Second
	defaultAwaitInterval = 10 * time.Second
	defaultErrorBackoff  = 5 * time.Second
)

const readChunk = 64 * 1024

// PollTailer follows a file with a stat/read loop and an explicit cursor:
// byte offset plus file identity. Rotation swaps the identity out from
// under the path; truncation shrinks the file below the cursor. Both reset
// the cursor to the start of the file so no line is counted twice and no
// post-rotation line is missed.
type PollTailer struct {
	path      string
	interval  time.Duration
	await     time.Duration
	backoff   time.Duration
	fromStart bool
	logger    zerolog.Logger

	file    *os.File
	ident   os.FileInfo
	offset  int64
	pending []byte
	chunk   []byte
}

// NewPollTailer creates a poll-mode tailer for path.
func NewPollTailer(path string, tc config.TailConfig, logger zerolog.Logger) *PollTailer {
	interval := tc.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &PollTailer{
		path:      path,
		interval:  interval,
		await:     defaultAwaitInterval,
		backoff:   defaultErrorBackoff,
		fromStart: tc.StartAt == config.StartAtStart,
		logger:    logger,
		chunk:     make([]byte, readChunk),
	}
}

// Tail follows the file and sends each complete line to out until ctx is
// done. A missing file is awaited, not fatal.
func (t *PollTailer) Tail(ctx context.Context, out chan<- string) error {
	defer t.closeFile()

	first := true
	awaiting := false
	for {
		if t.file == nil {
			if err := t.open(first); err != nil {
				wait := t.backoff
				if os.IsNotExist(err) {
					if !awaiting {
						t.logger.Warn().Str("path", t.path).Msg("log file not found, waiting for it to appear")
						awaiting = true
					}
					wait = t.await
				} else {
					t.logger.Error().Err(err).Str("path", t.path).Msg("open log file")
				}
				if err := sleep(ctx, wait); err != nil {
					return err
				}
				continue
			}
			first = false
			awaiting = false
			t.logger.Info().Str("path", t.path).Int64("offset", t.offset).Msg("tailing log file")
		}

		if err := t.drain(ctx, out); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			t.logger.Error().Err(err).Str("path", t.path).Msg("read log file")
			t.closeFile()
			if err := sleep(ctx, t.backoff); err != nil {
				return err
			}
			continue
		}

		rotated, err := t.checkRotation()
		if err != nil {
			// Path vanished or stat failed; the open path handles waiting.
			t.closeFile()
			continue
		}
		if rotated {
			// Reopen immediately to pick up the replacement file.
			continue
		}

		if err := sleep(ctx, t.interval); err != nil {
			return err
		}
	}
}

// open opens the path and initializes the cursor. The very first open of a
// start-at-end tailer seeks past existing content; reopens after rotation
// always read from the beginning.
func (t *PollTailer) open(first bool) error {
	f, err := os.Open(t.path)
	if err != nil {
		return err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	t.file = f
	t.ident = fi
	t.offset = 0
	t.pending = nil
	if first && !t.fromStart {
		off, err := f.Seek(0, io.SeekEnd)
		if err != nil {
			t.closeFile()
			return err
		}
		t.offset = off
	}
	return nil
}

// drain reads whatever the file holds past the cursor and emits complete
// lines. A trailing fragment without a newline stays buffered until the
// writer finishes it.
func (t *PollTailer) drain(ctx context.Context, out chan<- string) error {
	for {
		n, err := t.file.Read(t.chunk)
		if n > 0 {
			t.offset += int64(n)
			t.pending = append(t.pending, t.chunk[:n]...)
			if err := t.emitLines(ctx, out); err != nil {
				return err
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (t *PollTailer) emitLines(ctx context.Context, out chan<- string) error {
	for {
		i := bytes.IndexByte(t.pending, '\n')
		if i < 0 {
			if len(t.pending) == 0 {
				t.pending = nil
			}
			return nil
		}
		line := string(bytes.TrimSuffix(t.pending[:i], []byte("\r")))
		t.pending = t.pending[i+1:]
		select {
		case out <- line:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// checkRotation compares the path's current identity and size against the
// cursor. It reports true when the file was replaced and the tailer should
// reopen immediately.
func (t *PollTailer) checkRotation() (bool, error) {
	fi, err := os.Stat(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			t.logger.Warn().Str("path", t.path).Msg("log file removed, waiting for it to reappear")
		} else {
			t.logger.Error().Err(err).Str("path", t.path).Msg("stat log file")
		}
		return false, err
	}

	if !os.SameFile(t.ident, fi) {
		// The path points at a new file. Whatever the old one still held
		// was drained above; an unfinished fragment is gone for good.
		t.logger.Info().Str("path", t.path).Msg("log rotation detected, reopening from start")
		t.closeFile()
		return true, nil
	}

	if fi.Size() < t.offset {
		// Truncated in place (copytruncate rotation). Restart from the top
		// of the same file.
		t.logger.Info().Int64("size", fi.Size()).Int64("offset", t.offset).Msg("log file truncated, resetting cursor")
		if _, err := t.file.Seek(0, io.SeekStart); err != nil {
			t.closeFile()
			return false, err
		}
		t.offset = 0
		t.pending = nil
	}

	return false, nil
}

func (t *PollTailer) closeFile() {
	if t.file != nil {
		t.file.Close()
		t.file = nil
	}
	t.ident = nil
	t.offset = 0
	t.pending = nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
