package api

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/homeport/dbmigrate/internal/task"
)

// dummyWorker is the "dummy" task kind: its argument is a positive integer
// n, and it emits one log line per second for n seconds. It exercises the
// task registry's full lifecycle (create/poll/complete/delete) without
// touching any cloud or cluster adapter, for liveness testing of the
// server itself.
func dummyWorker(ctx context.Context, t *task.Task, arg string) (any, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("dummy task argument must be a positive integer, got %q", arg)
	}

	for i := 1; i <= n; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
		t.Info("tick %d/%d", i, n)
	}

	return true, nil
}
