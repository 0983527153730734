package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/hugh/gcp-inventory/internal/database/models"
	"github.com/hugh/gcp-inventory/internal/discovery"
	"github.com/hugh/gcp-inventory/pkg/queue"
)

// Task type names
const (
	TypeDiscoveryStart    = "discovery:start"
	TypeDiscoveryBatch    = "discovery:batch"
	TypeDiscoverySchedule = "discovery:schedule"
)

// Enqueuer is the part of *asynq.Client the pipeline uses.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// StartPayload asks a worker to run StartScan for one organization.
type StartPayload struct {
	OrganizationID uuid.UUID          `json:"organization_id"`
	Trigger        models.ScanTrigger `json:"trigger"`
}

func NewStartTask(payload StartPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeDiscoveryStart, data, asynq.Queue(queue.QueueCritical), asynq.MaxRetry(3)), nil
}

// BatchPayload carries one chunk of projects for a running scan.
type BatchPayload struct {
	ScanID         uuid.UUID `json:"scan_id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	ProjectIDs     []string  `json:"project_ids"`
	BatchIndex     int       `json:"batch_index"`
}

func NewBatchTask(payload BatchPayload, timeout time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	opts := []asynq.Option{asynq.Queue(queue.QueueDefault), asynq.MaxRetry(2)}
	if timeout > 0 {
		opts = append(opts, asynq.Timeout(timeout))
	}
	return asynq.NewTask(TypeDiscoveryBatch, data, opts...), nil
}

// SchedulePayload is empty; the sweep checks every auto-discover organization.
type SchedulePayload struct{}

func NewScheduleTask() *asynq.Task {
	return asynq.NewTask(TypeDiscoverySchedule, nil, asynq.Queue(queue.QueueLow), asynq.MaxRetry(0))
}

// EnqueueStart queues a scan start. Duplicate starts for the same organization
// inside uniqueFor are rejected with asynq.ErrDuplicateTask.
func EnqueueStart(ctx context.Context, enq Enqueuer, orgID uuid.UUID, trigger models.ScanTrigger, uniqueFor time.Duration) (*asynq.TaskInfo, error) {
	task, err := NewStartTask(StartPayload{OrganizationID: orgID, Trigger: trigger})
	if err != nil {
		return nil, fmt.Errorf("building start task: %w", err)
	}
	var opts []asynq.Option
	if uniqueFor > 0 {
		opts = append(opts, asynq.Unique(uniqueFor))
	}
	info, err := enq.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return nil, fmt.Errorf("enqueueing start task: %w", err)
	}
	return info, nil
}

// Dispatcher queues discovery batches as asynq tasks.
type Dispatcher struct {
	enq     Enqueuer
	timeout time.Duration
}

var _ discovery.Dispatcher = (*Dispatcher)(nil)

// NewDispatcher returns a Dispatcher whose batch tasks time out after
// batchTimeout. Zero leaves asynq's default.
func NewDispatcher(enq Enqueuer, batchTimeout time.Duration) *Dispatcher {
	return &Dispatcher{enq: enq, timeout: batchTimeout}
}

func (d *Dispatcher) DispatchBatch(ctx context.Context, b discovery.Batch) (string, error) {
	task, err := NewBatchTask(BatchPayload{
		ScanID:         b.ScanID,
		OrganizationID: b.OrgID,
		ProjectIDs:     b.ProjectIDs,
		BatchIndex:     b.Index,
	}, d.timeout)
	if err != nil {
		return "", fmt.Errorf("building batch task: %w", err)
	}
	info, err := d.enq.EnqueueContext(ctx, task)
	if err != nil {
		return "", err
	}
	return info.ID, nil
}
