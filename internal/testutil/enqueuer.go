package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/hibiken/asynq"
)

// FakeEnqueuer records tasks instead of writing them to Redis.
type FakeEnqueuer struct {
	// Err, when set, is returned by every EnqueueContext call.
	Err error

	mu    sync.Mutex
	tasks []*asynq.Task
	opts  [][]asynq.Option
}

func (f *FakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	f.tasks = append(f.tasks, task)
	f.opts = append(f.opts, opts)
	return &asynq.TaskInfo{
		ID:      fmt.Sprintf("task-%d", len(f.tasks)),
		Type:    task.Type(),
		Payload: task.Payload(),
		Queue:   "default",
	}, nil
}

// Tasks returns the recorded tasks of the given type, or all when typ is "".
func (f *FakeEnqueuer) Tasks(typ string) []*asynq.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*asynq.Task
	for _, t := range f.tasks {
		if typ == "" || t.Type() == typ {
			out = append(out, t)
		}
	}
	return out
}

// Options returns the per-call options passed with the i-th task.
func (f *FakeEnqueuer) Options(i int) []asynq.Option {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opts[i]
}

func (f *FakeEnqueuer) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = nil
	f.opts = nil
}
