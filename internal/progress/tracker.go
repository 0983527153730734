package progress

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Level int

const (
	LevelInfo Level = iota
	LevelWarning
	LevelError
)

// Tracker is the per-process view of one scan's progress. Writes go to the
// Store first and fall back to an in-process buffer when the Store fails, so
// a coordination outage degrades visibility rather than failing the scan.
type Tracker struct {
	store  Store
	scanID uuid.UUID
	logger *slog.Logger
	now    func() time.Time

	mu             sync.Mutex
	fallbackLogs   []string
	fallbackCounts map[string]int64
	degraded       bool
}

func NewTracker(store Store, scanID uuid.UUID, logger *slog.Logger) *Tracker {
	return &Tracker{
		store:          store,
		scanID:         scanID,
		logger:         logger.With("scan_id", scanID),
		now:            time.Now,
		fallbackCounts: make(map[string]int64),
	}
}

func (t *Tracker) ScanID() uuid.UUID { return t.scanID }

func (t *Tracker) Infof(ctx context.Context, format string, args ...any) {
	t.Log(ctx, LevelInfo, fmt.Sprintf(format, args...))
}

func (t *Tracker) Warnf(ctx context.Context, format string, args ...any) {
	t.Log(ctx, LevelWarning, fmt.Sprintf(format, args...))
}

func (t *Tracker) Errorf(ctx context.Context, format string, args ...any) {
	t.Log(ctx, LevelError, fmt.Sprintf(format, args...))
}

// Log records a scan-visible line as "[HH:MM:SS] message" and mirrors it to
// the process logger.
func (t *Tracker) Log(ctx context.Context, level Level, msg string) {
	line := formatLine(t.now(), level, msg)

	switch level {
	case LevelError:
		t.logger.Error(msg)
	case LevelWarning:
		t.logger.Warn(msg)
	default:
		t.logger.Info(msg)
	}

	if err := t.store.AppendLog(ctx, t.scanID, line); err != nil {
		t.fallBack(err)
		t.mu.Lock()
		t.fallbackLogs = append(t.fallbackLogs, line)
		t.mu.Unlock()
	}
}

func formatLine(ts time.Time, level Level, msg string) string {
	switch level {
	case LevelError:
		msg = "ERROR: " + msg
	case LevelWarning:
		msg = "WARNING: " + msg
	}
	return fmt.Sprintf("[%s] %s", ts.Format("15:04:05"), msg)
}

// Incr adds n to the kind's counter.
func (t *Tracker) Incr(ctx context.Context, kind string, n int64) {
	if n == 0 {
		return
	}
	if err := t.store.IncrCount(ctx, t.scanID, kind, n); err != nil {
		t.fallBack(err)
		t.mu.Lock()
		t.fallbackCounts[kind] += n
		t.mu.Unlock()
	}
}

func (t *Tracker) fallBack(err error) {
	t.mu.Lock()
	first := !t.degraded
	t.degraded = true
	t.mu.Unlock()
	if first {
		t.logger.Warn("progress store unavailable, buffering in memory", "error", err)
	}
}

// Snapshot is the progress visible from this process.
type Snapshot struct {
	// Lines is the Store's log list followed by any lines buffered here.
	Lines []string
	// Counts is the Store's view of the counters. Buffered holds increments
	// that never reached the Store; they are deltas, not totals.
	Counts   map[string]int64
	Buffered map[string]int64
	// BufferedLines is how many trailing entries of Lines came from the
	// local buffer.
	BufferedLines int
	// StoreLogs is false when the Store could not be read and Lines only
	// holds this process's buffered lines.
	StoreLogs bool
}

// Snapshot reads the Store's view and attaches anything buffered locally.
func (t *Tracker) Snapshot(ctx context.Context) Snapshot {
	snap := Snapshot{Counts: make(map[string]int64), Buffered: make(map[string]int64)}

	if lines, err := t.store.Logs(ctx, t.scanID); err == nil {
		snap.Lines = lines
		snap.StoreLogs = true
	} else {
		t.fallBack(err)
	}
	if counts, err := t.store.Counts(ctx, t.scanID); err == nil {
		for k, v := range counts {
			snap.Counts[k] = v
		}
	} else {
		t.fallBack(err)
	}

	t.mu.Lock()
	snap.Lines = append(snap.Lines, t.fallbackLogs...)
	snap.BufferedLines = len(t.fallbackLogs)
	for k, v := range t.fallbackCounts {
		snap.Buffered[k] = v
	}
	t.mu.Unlock()

	return snap
}

// Committed drops the buffered lines and deltas carried by snap once they
// have been written elsewhere, so the next snapshot does not carry them again.
// Anything buffered after snap was taken is kept.
func (t *Tracker) Committed(snap Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := min(snap.BufferedLines, len(t.fallbackLogs))
	t.fallbackLogs = t.fallbackLogs[n:]
	for k, v := range snap.Buffered {
		t.fallbackCounts[k] -= v
		if t.fallbackCounts[k] == 0 {
			delete(t.fallbackCounts, k)
		}
	}
}

// CancelRequested reads the Store's cancel flag.
func (t *Tracker) CancelRequested(ctx context.Context) (bool, error) {
	return t.store.CancelRequested(ctx, t.scanID)
}
