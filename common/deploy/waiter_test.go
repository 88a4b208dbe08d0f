package deploy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeQuerier replays a scripted sequence of statuses and records the
// time of every call. The last status repeats if the sequence runs out.
type fakeQuerier struct {
	mu       sync.Mutex
	sequence []Status
	err      error
	errAt    int // 1-based call index at which err is returned; 0 means never
	calls    int
	callTime []time.Time
}

func (f *fakeQuerier) DeployStatus(ctx context.Context, appID string) (Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	f.callTime = append(f.callTime, time.Now())

	if f.errAt != 0 && f.calls == f.errAt {
		return "", f.err
	}

	idx := f.calls - 1
	if idx >= len(f.sequence) {
		idx = len(f.sequence) - 1
	}
	return f.sequence[idx], nil
}

func (f *fakeQuerier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestWaitTerminalStatuses(t *testing.T) {
	tests := []struct {
		name        string
		sequence    []Status
		maxAttempts int
		wantCalls   int
		want        Outcome
	}{
		{"immediate success", []Status{StatusSuccess}, 30, 1, Outcome{Success: true, Status: StatusSuccess}},
		{"immediate fail", []Status{StatusFail}, 30, 1, Outcome{Success: false, Status: StatusFail}},
		{"immediate cancel", []Status{StatusCancel}, 30, 1, Outcome{Success: false, Status: StatusCancel}},
		{"eventual success", []Status{StatusProcessing, StatusProcessing, StatusSuccess}, 5, 3, Outcome{Success: true, Status: StatusSuccess}},
		{"eventual fail", []Status{StatusProcessing, StatusFail}, 5, 2, Outcome{Success: false, Status: StatusFail}},
		{"exhausted budget", []Status{StatusProcessing}, 3, 3, Outcome{Success: false, Status: StatusTimeout}},
		{"unrecognized status keeps polling", []Status{Status("WARMING_UP"), StatusSuccess}, 5, 2, Outcome{Success: true, Status: StatusSuccess}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &fakeQuerier{sequence: tt.sequence}
			cfg := WaitConfig{MaxAttempts: tt.maxAttempts, Interval: time.Millisecond}

			got, err := Wait(context.Background(), q, "1", cfg)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Outcome = %+v, want %+v", got, tt.want)
			}
			if q.callCount() != tt.wantCalls {
				t.Errorf("Queries issued = %d, want %d", q.callCount(), tt.wantCalls)
			}
		})
	}
}

func TestWaitZeroAttempts(t *testing.T) {
	for _, maxAttempts := range []int{0, -1} {
		q := &fakeQuerier{sequence: []Status{StatusSuccess}}
		cfg := WaitConfig{MaxAttempts: maxAttempts, Interval: time.Millisecond}

		got, err := Wait(context.Background(), q, "1", cfg)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		want := Outcome{Success: false, Status: StatusTimeout}
		if got != want {
			t.Errorf("maxAttempts=%d: Outcome = %+v, want %+v", maxAttempts, got, want)
		}
		if q.callCount() != 0 {
			t.Errorf("maxAttempts=%d: expected no queries, got %d", maxAttempts, q.callCount())
		}
	}
}

func TestWaitQuerierErrorPropagates(t *testing.T) {
	queryErr := errors.New("kintone: 520 unauthorized")
	q := &fakeQuerier{
		sequence: []Status{StatusProcessing},
		err:      queryErr,
		errAt:    2,
	}
	cfg := WaitConfig{MaxAttempts: 10, Interval: time.Millisecond}

	_, err := Wait(context.Background(), q, "1", cfg)
	if !errors.Is(err, queryErr) {
		t.Fatalf("Expected querier error to propagate, got %v", err)
	}
	if q.callCount() != 2 {
		t.Errorf("Queries issued = %d, want 2 (no retry after error)", q.callCount())
	}
}

func TestWaitContextCancellation(t *testing.T) {
	q := &fakeQuerier{sequence: []Status{StatusProcessing}}
	cfg := WaitConfig{MaxAttempts: 100, Interval: time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := Wait(ctx, q, "1", cfg)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Cancellation took %v, expected prompt return", elapsed)
	}
}

func TestWaitIntervalFidelity(t *testing.T) {
	const interval = 10 * time.Millisecond
	q := &fakeQuerier{sequence: []Status{StatusProcessing, StatusProcessing, StatusSuccess}}
	cfg := WaitConfig{MaxAttempts: 3, Interval: interval}

	got, err := Wait(context.Background(), q, "1", cfg)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	want := Outcome{Success: true, Status: StatusSuccess}
	if got != want {
		t.Fatalf("Outcome = %+v, want %+v", got, want)
	}
	if q.callCount() != 3 {
		t.Fatalf("Queries issued = %d, want 3", q.callCount())
	}

	for i := 1; i < len(q.callTime); i++ {
		gap := q.callTime[i].Sub(q.callTime[i-1])
		if gap < interval {
			t.Errorf("Gap between query %d and %d was %v, want at least %v", i, i+1, gap, interval)
		}
	}
}

func TestWaitConcurrentInvocations(t *testing.T) {
	qa := &fakeQuerier{sequence: []Status{StatusProcessing, StatusSuccess}}
	qb := &fakeQuerier{sequence: []Status{StatusProcessing, StatusProcessing, StatusFail}}
	cfg := WaitConfig{MaxAttempts: 10, Interval: time.Millisecond}

	var wg sync.WaitGroup
	var outA, outB Outcome
	var errA, errB error

	wg.Add(2)
	go func() {
		defer wg.Done()
		outA, errA = Wait(context.Background(), qa, "7", cfg)
	}()
	go func() {
		defer wg.Done()
		outB, errB = Wait(context.Background(), qb, "8", cfg)
	}()
	wg.Wait()

	if errA != nil || errB != nil {
		t.Fatalf("Unexpected errors: %v, %v", errA, errB)
	}
	if want := (Outcome{Success: true, Status: StatusSuccess}); outA != want {
		t.Errorf("First waiter outcome = %+v, want %+v", outA, want)
	}
	if want := (Outcome{Success: false, Status: StatusFail}); outB != want {
		t.Errorf("Second waiter outcome = %+v, want %+v", outB, want)
	}
	if qa.callCount() != 2 {
		t.Errorf("First waiter issued %d queries, want 2", qa.callCount())
	}
	if qb.callCount() != 3 {
		t.Errorf("Second waiter issued %d queries, want 3", qb.callCount())
	}
}

func TestStatusIsTerminal(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusSuccess, true},
		{StatusFail, true},
		{StatusCancel, true},
		{StatusProcessing, false},
		{StatusTimeout, false},
		{Status("WARMING_UP"), false},
	}

	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.want {
			t.Errorf("IsTerminal(%q) = %v, want %v", tt.status, got, tt.want)
		}
	}
}
