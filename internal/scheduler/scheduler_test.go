package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	logx "taskping/pkg/logx"
)

func TestAddCronRejectsBadSpec(t *testing.T) {
	t.Parallel()

	s := New(Config{}, nil, logx.Nop())
	if err := s.AddCron("bad", "not a spec", func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected parse error")
	}
	if err := s.AddInterval("bad", 0, func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected interval error")
	}
	if err := s.AddCron("ok", "*/5 * * * *", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("valid spec rejected: %v", err)
	}
	if err := s.AddInterval("ok2", time.Minute, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("valid interval rejected: %v", err)
	}
}

func TestRunNowExecutesJob(t *testing.T) {
	t.Parallel()

	s := New(Config{Workers: 1}, nil, logx.Nop())
	ran := make(chan struct{})
	if err := s.AddInterval("tick", time.Hour, func(context.Context) error {
		close(ran)
		return nil
	}); err != nil {
		t.Fatalf("AddInterval: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	if err := s.RunNow("tick"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("job never ran")
	}

	if err := s.RunNow("nope"); err == nil {
		t.Fatal("expected error for unknown job")
	}
}

func TestOverlapSkipped(t *testing.T) {
	t.Parallel()

	s := New(Config{Workers: 2}, nil, logx.Nop())
	entered := make(chan struct{})
	block := make(chan struct{})
	if err := s.AddInterval("slow", time.Hour, func(context.Context) error {
		entered <- struct{}{}
		<-block
		return nil
	}); err != nil {
		t.Fatalf("AddInterval: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	if err := s.RunNow("slow"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	<-entered

	// Second firing while the first is still running must be skipped,
	// not queued behind it.
	if err := s.RunNow("slow"); err != nil {
		t.Fatalf("second RunNow: %v", err)
	}
	select {
	case <-entered:
		t.Fatal("overlapping run was executed")
	case <-time.After(200 * time.Millisecond):
	}
	close(block)
}

func TestHistoryRecordsRunsAndTrims(t *testing.T) {
	t.Parallel()

	s := New(Config{Workers: 1, HistorySize: 2}, nil, logx.Nop())
	done := make(chan struct{}, 4)
	if err := s.AddInterval("flaky", time.Hour, func(context.Context) error {
		done <- struct{}{}
		return errors.New("boom")
	}); err != nil {
		t.Fatalf("AddInterval: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	for i := 0; i < 3; i++ {
		if err := s.RunNow("flaky"); err != nil {
			t.Fatalf("RunNow: %v", err)
		}
		<-done
	}

	deadline := time.After(2 * time.Second)
	for {
		h := s.History()
		if len(h) == 2 {
			for _, item := range h {
				if item.Name != "flaky" || item.Error == "" {
					t.Errorf("unexpected history item %+v", item)
				}
			}
			return
		}
		select {
		case <-deadline:
			t.Fatalf("history = %d items, want 2", len(h))
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestLocalLockExcludes(t *testing.T) {
	t.Parallel()

	l := NewLocalLock()
	ctx := context.Background()

	rel, ok, err := l.Acquire(ctx, "scan")
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := l.Acquire(ctx, "scan"); ok {
		t.Fatal("second acquire succeeded while held")
	}
	if _, ok, _ := l.Acquire(ctx, "other"); !ok {
		t.Fatal("unrelated name blocked")
	}
	rel()
	if _, ok, _ := l.Acquire(ctx, "scan"); !ok {
		t.Fatal("acquire after release failed")
	}
}
