// Package progress tracks a running scan across worker processes: log lines,
// per-kind counters, batch completion and the cancel flag.
package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const DefaultTTL = 24 * time.Hour

// BatchResult is the outcome of one CompleteBatch call. Claimed is true for
// exactly one caller per scan: the one whose batch brought Done to Total.
// Duplicate is set when the batch index had already been recorded, as happens
// when a queue redelivers a batch; a duplicate never changes Done or claims.
type BatchResult struct {
	Done      int64
	Total     int64
	Claimed   bool
	Duplicate bool
}

// Store is the coordination store. Every key is namespaced by scan and
// expires after the store's TTL.
type Store interface {
	AppendLog(ctx context.Context, scanID uuid.UUID, line string) error
	Logs(ctx context.Context, scanID uuid.UUID) ([]string, error)

	IncrCount(ctx context.Context, scanID uuid.UUID, kind string, delta int64) error
	Counts(ctx context.Context, scanID uuid.UUID) (map[string]int64, error)

	InitBatches(ctx context.Context, scanID uuid.UUID, total int) error
	// CompleteBatch records batch index as done. Recording the same index
	// twice is a no-op.
	CompleteBatch(ctx context.Context, scanID uuid.UUID, index int) (BatchResult, error)
	BatchDone(ctx context.Context, scanID uuid.UUID, index int) (bool, error)

	RequestCancel(ctx context.Context, scanID uuid.UUID) error
	CancelRequested(ctx context.Context, scanID uuid.UUID) (bool, error)

	// Clear removes every key of the scan.
	Clear(ctx context.Context, scanID uuid.UUID) error
}

type keys struct {
	logs, stats, cancel, total, done, finalize string
}

func keysFor(scanID uuid.UUID) keys {
	prefix := fmt.Sprintf("inventory:gcp:scan:%s", scanID)
	return keys{
		logs:     prefix + ":logs",
		stats:    prefix + ":stats",
		cancel:   prefix + ":cancel",
		total:    prefix + ":batches:total",
		done:     prefix + ":batches:done",
		finalize: prefix + ":finalize",
	}
}

func (k keys) all() []string {
	return []string{k.logs, k.stats, k.cancel, k.total, k.done, k.finalize}
}
