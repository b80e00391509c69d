package cloudpoll

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// --- Test helpers ---

var testStarted = time.Date(2016, 1, 30, 23, 50, 0, 0, time.UTC)

func runningAction(id int64, progress int) *Action {
	return &Action{
		ID:        id,
		Command:   "create_server",
		Status:    StatusRunning,
		Progress:  progress,
		Resources: []Resource{{ID: 42, Type: "server"}},
		Started:   testStarted,
	}
}

func successAction(id int64) *Action {
	finished := testStarted.Add(30 * time.Second)
	return &Action{
		ID:        id,
		Command:   "create_server",
		Status:    StatusSuccess,
		Progress:  100,
		Resources: []Resource{{ID: 42, Type: "server"}},
		Started:   testStarted,
		Finished:  &finished,
	}
}

func failedAction(id int64, code, message string) *Action {
	finished := testStarted.Add(30 * time.Second)
	return &Action{
		ID:        id,
		Command:   "create_server",
		Status:    StatusError,
		Progress:  100,
		Resources: []Resource{{ID: 42, Type: "server"}},
		Error:     &ActionError{Code: code, Message: message},
		Started:   testStarted,
		Finished:  &finished,
	}
}

// fetchStep is one scripted reply from a fetch function.
type fetchStep struct {
	action *Action
	err    error
}

// scriptedFetch replays a fixed sequence of results, repeating the last
// one once the script runs out, and counts calls.
type scriptedFetch struct {
	steps []fetchStep
	calls int
}

func (s *scriptedFetch) fetch(ctx context.Context, id int64) (*Action, error) {
	i := s.calls
	s.calls++
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	return s.steps[i].action, s.steps[i].err
}

// runningSteps returns n scripted running snapshots with rising progress.
func runningSteps(id int64, n int) []fetchStep {
	steps := make([]fetchStep, 0, n)
	for i := 0; i < n; i++ {
		steps = append(steps, fetchStep{action: runningAction(id, i * 10)})
	}
	return steps
}

// fastWaiter builds a Waiter over the script with a millisecond backoff so
// tests don't sleep for real.
func fastWaiter(script *scriptedFetch, maxRetries int) *Waiter {
	return &Waiter{
		Fetch:      script.fetch,
		MaxRetries: maxRetries,
		Backoff:    ConstantBackoff(time.Millisecond),
	}
}

// --- Wait tests ---

func TestWaiter_Wait_SuccessOnFirstFetch(t *testing.T) {
	script := &scriptedFetch{steps: []fetchStep{{action: successAction(1)}}}
	w := fastWaiter(script, 0)

	action, err := w.Wait(context.Background(), 1)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if diff := cmp.Diff(successAction(1), action); diff != "" {
		t.Errorf("action mismatch (-want +got):\n%s", diff)
	}
	if script.calls != 1 {
		t.Errorf("fetch calls = %d, want 1", script.calls)
	}
}

func TestWaiter_Wait_FailureIsImmediateAndNotRetried(t *testing.T) {
	script := &scriptedFetch{steps: []fetchStep{{action: failedAction(2, "server_error", "could not create server")}}}
	w := fastWaiter(script, 50)

	_, err := w.Wait(context.Background(), 2)
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var failed *ActionFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("expected *ActionFailedError, got %T: %v", err, err)
	}
	if diff := cmp.Diff(failedAction(2, "server_error", "could not create server"), failed.Action); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
	if script.calls != 1 {
		t.Errorf("fetch calls = %d, want 1 (failed actions are terminal)", script.calls)
	}
}

func TestWaiter_Wait_FetchBudget(t *testing.T) {
	tests := []struct {
		name        string
		steps       []fetchStep
		maxRetries  int
		wantCalls   int
		wantTimeout bool
	}{
		{
			name:       "SucceedsWithinBudget",
			steps:      append(runningSteps(3, 3), fetchStep{action: successAction(3)}),
			maxRetries: 10,
			wantCalls:  4,
		},
		{
			name:       "SucceedsAtBudgetBoundary",
			steps:      append(runningSteps(3, 3), fetchStep{action: successAction(3)}),
			maxRetries: 3,
			wantCalls:  4,
		},
		{
			name:        "TimesOutOneFetchShort",
			steps:       append(runningSteps(3, 3), fetchStep{action: successAction(3)}),
			maxRetries:  2,
			wantCalls:   3,
			wantTimeout: true,
		},
		{
			name:        "ZeroBudgetMeansSingleFetch",
			steps:       runningSteps(3, 1),
			maxRetries:  0,
			wantCalls:   1,
			wantTimeout: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			script := &scriptedFetch{steps: tt.steps}
			w := fastWaiter(script, tt.maxRetries)

			action, err := w.Wait(context.Background(), 3)

			if tt.wantTimeout {
				var timeout *ActionTimeoutError
				if !errors.As(err, &timeout) {
					t.Fatalf("expected *ActionTimeoutError, got %T: %v", err, err)
				}
				if timeout.Action == nil || timeout.Action.Status != StatusRunning {
					t.Errorf("timeout snapshot = %+v, want last running snapshot", timeout.Action)
				}
				if timeout.Polls != tt.wantCalls {
					t.Errorf("timeout polls = %d, want %d", timeout.Polls, tt.wantCalls)
				}
			} else {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				if action.Status != StatusSuccess {
					t.Errorf("action status = %q, want %q", action.Status, StatusSuccess)
				}
			}
			if script.calls != tt.wantCalls {
				t.Errorf("fetch calls = %d, want %d", script.calls, tt.wantCalls)
			}
		})
	}
}

func TestWaiter_Wait_FetchErrorPropagatesImmediately(t *testing.T) {
	fetchErr := &Error{Code: ErrorCodeRateLimitExceeded, Message: "rate limit exceeded"}
	script := &scriptedFetch{steps: []fetchStep{{err: fetchErr}}}
	w := fastWaiter(script, 50)

	_, err := w.Wait(context.Background(), 4)
	if !errors.Is(err, fetchErr) {
		t.Fatalf("expected the fetch error, got %v", err)
	}
	if script.calls != 1 {
		t.Errorf("fetch calls = %d, want 1 (the waiter never retries fetches)", script.calls)
	}
}

func TestWaiter_Wait_FetchErrorAfterProgress(t *testing.T) {
	fetchErr := errors.New("connection reset")
	script := &scriptedFetch{steps: []fetchStep{
		{action: runningAction(5, 10)},
		{err: fetchErr},
	}}
	w := fastWaiter(script, 50)

	_, err := w.Wait(context.Background(), 5)
	if !errors.Is(err, fetchErr) {
		t.Fatalf("expected the fetch error, got %v", err)
	}
	if script.calls != 2 {
		t.Errorf("fetch calls = %d, want 2", script.calls)
	}
}

func TestWaiter_Wait_CancelledDuringSleep(t *testing.T) {
	script := &scriptedFetch{steps: runningSteps(6, 1)}
	w := &Waiter{
		Fetch:      script.fetch,
		MaxRetries: 50,
		Backoff:    ConstantBackoff(10 * time.Second),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := w.Wait(ctx, 6)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Wait blocked for %v, want prompt cancellation", elapsed)
	}
	if script.calls != 1 {
		t.Errorf("fetch calls = %d, want 1", script.calls)
	}
}

func TestWaiter_Wait_ProgressSeesEverySnapshot(t *testing.T) {
	script := &scriptedFetch{steps: append(runningSteps(7, 2), fetchStep{action: successAction(7)})}

	var observed []Status
	var progresses []int
	w := fastWaiter(script, 10)
	w.Progress = append(w.Progress,
		func(a *Action) { observed = append(observed, a.Status) },
		func(a *Action) { progresses = append(progresses, a.Progress) },
	)

	if _, err := w.Wait(context.Background(), 7); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	wantStatuses := []Status{StatusRunning, StatusRunning, StatusSuccess}
	if diff := cmp.Diff(wantStatuses, observed); diff != "" {
		t.Errorf("observed statuses mismatch (-want +got):\n%s", diff)
	}
	wantProgresses := []int{0, 10, 100}
	if diff := cmp.Diff(wantProgresses, progresses); diff != "" {
		t.Errorf("observed progresses mismatch (-want +got):\n%s", diff)
	}
}

func TestWaiter_Wait_NoFetchFunc(t *testing.T) {
	w := &Waiter{}
	if _, err := w.Wait(context.Background(), 1); err == nil {
		t.Fatal("expected error for missing fetch function, got nil")
	}
}

func TestWaiter_Wait_NilSnapshotIsAnError(t *testing.T) {
	script := &scriptedFetch{steps: []fetchStep{{}}}
	w := fastWaiter(script, 5)

	_, err := w.Wait(context.Background(), 3)
	if err == nil {
		t.Fatal("expected error for a nil snapshot, got nil")
	}
	if !strings.Contains(err.Error(), "no snapshot") {
		t.Errorf("error = %v, want a no-snapshot failure", err)
	}
	if script.calls != 1 {
		t.Errorf("fetch calls = %d, want 1", script.calls)
	}
}

// --- WaitAll tests ---

func TestWaiter_WaitAll_HappyPath(t *testing.T) {
	var mu sync.Mutex
	scripts := map[int64]*scriptedFetch{
		1: {steps: append(runningSteps(1, 2), fetchStep{action: successAction(1)})},
		2: {steps: []fetchStep{{action: successAction(2)}}},
	}
	w := &Waiter{
		Fetch: func(ctx context.Context, id int64) (*Action, error) {
			mu.Lock()
			defer mu.Unlock()
			return scripts[id].fetch(ctx, id)
		},
		MaxRetries: 10,
		Backoff:    ConstantBackoff(time.Millisecond),
	}

	results, err := w.WaitAll(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results length = %d, want 2", len(results))
	}
	if results[0] == nil || results[0].ID != 1 {
		t.Errorf("results[0] = %+v, want action 1", results[0])
	}
	if results[1] == nil || results[1].ID != 2 {
		t.Errorf("results[1] = %+v, want action 2", results[1])
	}
}

func TestWaiter_WaitAll_FirstFailureWins(t *testing.T) {
	var mu sync.Mutex
	scripts := map[int64]*scriptedFetch{
		1: {steps: []fetchStep{{action: failedAction(1, "server_error", "disk full")}}},
		2: {steps: runningSteps(2, 1)},
	}
	w := &Waiter{
		Fetch: func(ctx context.Context, id int64) (*Action, error) {
			mu.Lock()
			defer mu.Unlock()
			return scripts[id].fetch(ctx, id)
		},
		MaxRetries: 1000,
		Backoff:    ConstantBackoff(time.Millisecond),
	}

	_, err := w.WaitAll(context.Background(), 1, 2)
	var failed *ActionFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("expected *ActionFailedError, got %T: %v", err, err)
	}
	if failed.Action.ID != 1 {
		t.Errorf("failed action ID = %d, want 1", failed.Action.ID)
	}
}

func TestActionTimeoutError_ErrorString(t *testing.T) {
	err := &ActionTimeoutError{Action: runningAction(9, 50), Polls: 3}
	if got, want := err.Error(), "timed out waiting for action 9 to complete (3 polls)"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestActionFailedError_ErrorString(t *testing.T) {
	err := &ActionFailedError{Action: failedAction(9, "server_error", "disk full")}
	if got, want := err.Error(), "action 9 failed: disk full"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
