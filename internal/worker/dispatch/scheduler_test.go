package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/courtalert/internal/alert"
)

// mockRunner はDispatchRunnerのモック実装。
type mockRunner struct {
	mu      sync.Mutex
	calls   int
	runFn   func(ctx context.Context, now time.Time) (alert.Result, error)
	lastCtx context.Context
}

func (m *mockRunner) RunOnce(ctx context.Context, now time.Time) (alert.Result, error) {
	m.mu.Lock()
	m.calls++
	m.lastCtx = ctx
	m.mu.Unlock()
	if m.runFn != nil {
		return m.runFn(ctx, now)
	}
	return alert.Result{}, nil
}

func (m *mockRunner) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// 起動直後に1回実行されることを検証
func TestScheduler_RunsImmediatelyOnStart(t *testing.T) {
	runner := &mockRunner{}
	s := NewScheduler(runner, testLogger(), time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx, time.Hour)
		close(done)
	}()

	// 初回実行を待つ
	deadline := time.After(2 * time.Second)
	for runner.callCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("initial run did not happen")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	<-done

	if got := runner.callCount(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

// ティッカー間隔で繰り返し実行されることを検証
func TestScheduler_RunsOnInterval(t *testing.T) {
	runner := &mockRunner{}
	s := NewScheduler(runner, testLogger(), time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx, 20*time.Millisecond)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for runner.callCount() < 3 {
		select {
		case <-deadline:
			t.Fatalf("calls = %d, want >= 3", runner.callCount())
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	<-done
}

// 1回分の失敗でスケジューラが停止しないことを検証
func TestScheduler_ContinuesAfterRunError(t *testing.T) {
	runner := &mockRunner{
		runFn: func(ctx context.Context, now time.Time) (alert.Result, error) {
			return alert.Result{}, errors.New("db down")
		},
	}
	s := NewScheduler(runner, testLogger(), time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx, 20*time.Millisecond)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for runner.callCount() < 2 {
		select {
		case <-deadline:
			t.Fatalf("calls = %d, want >= 2", runner.callCount())
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	<-done
}

// 各実行に実行タイムアウトの期限が設定されることを検証
func TestScheduler_AppliesRunTimeout(t *testing.T) {
	runner := &mockRunner{}
	s := NewScheduler(runner, testLogger(), 10*time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx, time.Hour)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for runner.callCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("initial run did not happen")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	<-done

	runner.mu.Lock()
	runCtx := runner.lastCtx
	runner.mu.Unlock()

	if _, ok := runCtx.Deadline(); !ok {
		t.Error("expected run context to carry a deadline")
	}
}
