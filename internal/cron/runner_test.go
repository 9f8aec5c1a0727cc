package cronrunner

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunner_RunsJobsWithBaseContext(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "base")
	r := New(nil, ctx)

	var runs atomic.Int32
	var sawBase atomic.Bool
	if _, err := r.Add("tick", "@every 1s", func(ctx context.Context) {
		if ctx.Value(key{}) == "base" {
			sawBase.Store(true)
		}
		runs.Add(1)
	}); err != nil {
		t.Fatalf("add err=%v", err)
	}
	r.Start()
	defer r.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for runs.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("job never ran")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !sawBase.Load() {
		t.Fatalf("job did not receive the base context")
	}
}

func TestRunner_RejectsBadSpec(t *testing.T) {
	r := New(nil, nil)
	if _, err := r.Add("bad", "not a spec", func(context.Context) {}); err == nil {
		t.Fatalf("expected error")
	}
}
