package cloudpoll

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"
)

// FetchFunc returns the current snapshot of the action with the given id.
// [Client.GetAction] is the canonical implementation; tests and callers
// with their own transport can supply any function with this shape.
type FetchFunc func(ctx context.Context, id int64) (*Action, error)

// ProgressFunc observes action snapshots as they are fetched.
type ProgressFunc func(*Action)

// Waiter polls an action until it reaches a terminal state.
//
// The zero value is not usable; Fetch is required. All other fields have
// working defaults, but note that MaxRetries' zero value means a single
// fetch with no re-polling. [Client.ActionWaiter] returns a Waiter with
// the client's configured budget instead.
type Waiter struct {
	// Fetch retrieves action snapshots. Required.
	Fetch FetchFunc

	// MaxRetries bounds how many times a running action is re-fetched
	// after the initial fetch: the waiter performs at most MaxRetries+1
	// fetches. Zero means exactly one fetch.
	MaxRetries int

	// Backoff yields the wait between successive fetches. Nil means
	// [DefaultBackoff].
	Backoff BackoffFunc

	// Progress funcs are invoked, in order, with every fetched snapshot,
	// terminal ones included. WaitAll calls them from its per-action
	// goroutines, so they must be safe for concurrent use.
	Progress []ProgressFunc

	// Log receives poll diagnostics at debug level. Nil means no logging.
	Log hclog.Logger
}

// ActionFailedError is returned when an action reaches the error state.
// Failed actions are terminal: the waiter never re-fetches them.
type ActionFailedError struct {
	// Action is the snapshot that reported the failure.
	Action *Action
}

func (e *ActionFailedError) Error() string {
	if e.Action.Error != nil {
		return fmt.Sprintf("action %d failed: %s", e.Action.ID, e.Action.Error.Message)
	}
	return fmt.Sprintf("action %d failed", e.Action.ID)
}

// ActionTimeoutError is returned when an action is still running after the
// fetch budget is spent. The action itself may well complete later
// server-side; only this wait gave up.
type ActionTimeoutError struct {
	// Action is the last snapshot observed before giving up.
	Action *Action

	// Polls is the number of fetches performed.
	Polls int
}

func (e *ActionTimeoutError) Error() string {
	return fmt.Sprintf("timed out waiting for action %d to complete (%d polls)", e.Action.ID, e.Polls)
}

// Wait polls the action until it succeeds, fails, or the fetch budget is
// spent. It returns the terminal snapshot on success, an
// [*ActionFailedError] when the action reports an error, and an
// [*ActionTimeoutError] when the budget runs out. Fetch errors propagate
// immediately; retrying transport failures is the transport's job, not
// the waiter's.
//
// The worst-case wall clock is the sum of Backoff(0..MaxRetries-1) plus
// fetch time; with the defaults (120 retries, 1s doubling to 5s) that is
// roughly ten minutes. ctx cancels the wait at any suspension point.
func (w *Waiter) Wait(ctx context.Context, id int64) (*Action, error) {
	if w.Fetch == nil {
		return nil, errors.New("cloudpoll: waiter has no fetch function")
	}

	backoff := w.Backoff
	if backoff == nil {
		backoff = DefaultBackoff()
	}
	log := w.Log
	if log == nil {
		log = hclog.NewNullLogger()
	}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		action, err := w.Fetch(ctx, id)
		if err != nil {
			return nil, err
		}
		if action == nil {
			return nil, fmt.Errorf("cloudpoll: fetch returned no snapshot for action %d", id)
		}
		for _, fn := range w.Progress {
			fn(action)
		}

		switch action.Status {
		case StatusSuccess:
			log.Debug("action succeeded", "action_id", id, "polls", attempt+1)
			return action, nil
		case StatusError:
			log.Debug("action failed", "action_id", id, "polls", attempt+1)
			return nil, &ActionFailedError{Action: action}
		}

		if attempt >= w.MaxRetries {
			return nil, &ActionTimeoutError{Action: action, Polls: attempt + 1}
		}

		delay := backoff(attempt)
		log.Debug("action still running", "action_id", id, "progress", action.Progress, "delay", delay)
		if !sleep(ctx, delay) {
			return nil, ctx.Err()
		}
	}
}

// WaitAll polls several actions concurrently, each with its own
// independent fetch budget. The first failure cancels the remaining
// waits and is returned; results holds the terminal snapshot for every
// action that completed, positionally matching ids, with nil entries for
// waits that failed or were cancelled.
func (w *Waiter) WaitAll(ctx context.Context, ids ...int64) ([]*Action, error) {
	results := make([]*Action, len(ids))

	g, ctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		i, id := i, id // per-iteration copies; this module builds with Go < 1.22 semantics
		g.Go(func() error {
			action, err := w.Wait(ctx, id)
			if err != nil {
				return err
			}
			results[i] = action
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
