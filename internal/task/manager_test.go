package task

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestManager_CreateRunsWorkerAndCompletes(t *testing.T) {
	m := NewManager()
	started := make(chan struct{})
	m.Register("preflight", func(ctx context.Context, tk *Task, service string) (any, error) {
		close(started)
		tk.Info("checking %s", service)
		return map[string]any{"pass": true}, nil
	})

	id, err := m.Create("preflight", "svc")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id != "preflight/svc" {
		t.Fatalf("expected id preflight/svc, got %s", id)
	}

	<-started
	waitForComplete(t, m, "preflight", "svc")

	snap, err := m.Get("preflight", "svc")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if snap.State != StateComplete {
		t.Fatalf("expected complete, got %s", snap.State)
	}
	if snap.OK == nil || !*snap.OK {
		t.Fatalf("expected ok=true")
	}
	if len(snap.Messages) == 0 {
		t.Fatalf("expected accumulated log messages")
	}
}

func TestManager_CreateRejectsDuplicate(t *testing.T) {
	m := NewManager()
	gate := make(chan struct{})
	m.Register("sync", func(ctx context.Context, tk *Task, service string) (any, error) {
		<-gate
		return nil, nil
	})

	if _, err := m.Create("sync", "svc"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err := m.Create("sync", "svc")
	var dup *ErrAlreadyExists
	if !errors.As(err, &dup) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	close(gate)
}

func TestManager_FailedWorkerRecordsNotOK(t *testing.T) {
	m := NewManager()
	m.Register("cutover", func(ctx context.Context, tk *Task, service string) (any, error) {
		return nil, errors.New("boom")
	})

	if _, err := m.Create("cutover", "svc"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	waitForComplete(t, m, "cutover", "svc")

	snap, err := m.Get("cutover", "svc")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if snap.OK == nil || *snap.OK {
		t.Fatalf("expected ok=false after worker error")
	}
}

func TestManager_DeleteKillsRunningTask(t *testing.T) {
	m := NewManager()
	cancelled := make(chan struct{})
	m.Register("cleanup", func(ctx context.Context, tk *Task, service string) (any, error) {
		<-ctx.Done()
		close(cancelled)
		return nil, ctx.Err()
	})

	if _, err := m.Create("cleanup", "svc"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	killed, err := m.Delete("cleanup", "svc")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !killed {
		t.Fatalf("expected killed=true for a running task")
	}

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatalf("expected worker context to be cancelled")
	}

	if _, err := m.Get("cleanup", "svc"); err == nil {
		t.Fatalf("expected task to be gone after delete")
	}
}

func TestManager_ListFiltersCompletedAndKind(t *testing.T) {
	m := NewManager()
	m.Register("preflight", func(ctx context.Context, tk *Task, service string) (any, error) {
		return nil, nil
	})
	gate := make(chan struct{})
	m.Register("sync", func(ctx context.Context, tk *Task, service string) (any, error) {
		<-gate
		return nil, nil
	})

	if _, err := m.Create("preflight", "a"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	waitForComplete(t, m, "preflight", "a")

	if _, err := m.Create("sync", "b"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	all := m.List("", true)
	if len(all) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(all))
	}

	running := m.List("", false)
	if len(running) != 1 || running[0].ID != "sync/b" {
		t.Fatalf("expected only sync/b when excluding completed, got %+v", running)
	}

	preflightOnly := m.List("preflight", true)
	if len(preflightOnly) != 1 {
		t.Fatalf("expected 1 preflight task, got %d", len(preflightOnly))
	}
	close(gate)
}

func waitForComplete(t *testing.T, m *Manager, kind, service string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := m.Get(kind, service)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if snap.State == StateComplete {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %s/%s did not complete in time", kind, service)
}
