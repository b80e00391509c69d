package cloudpoll

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"

	"nathanbeddoewebdev/cloudpoll/internal/instrumentation"
)

const (
	defaultTimeout = 30 * time.Second

	// defaultMaxRetries is the request-level retry budget: up to three
	// retries after the initial attempt.
	defaultMaxRetries = 3

	// defaultPollMaxRetries is the action poll budget. With the default
	// backoff this gives waits of roughly ten minutes.
	defaultPollMaxRetries = 120
)

// ActionJournal persists action snapshots as a wait observes them, so an
// interrupted wait can be resumed by a later process. The actionstore
// package provides a SQLite-backed implementation.
type ActionJournal interface {
	Track(a *Action) error
}

// Client talks to a provider API over HTTP. It retries transient request
// failures and builds [Waiter] values for polling actions to completion.
// A Client is safe for concurrent use.
type Client struct {
	endpoint   string
	token      string
	userAgent  string
	httpClient *http.Client
	log        hclog.Logger

	applicationName    string
	applicationVersion string

	maxRetries  int
	backoff     BackoffFunc
	retryPolicy RetryPolicy

	pollBackoff    BackoffFunc
	pollMaxRetries int

	journal ActionJournal

	instrumentationRegistry prometheus.Registerer
}

// NewClient creates a client for the API at endpoint (scheme and host,
// plus any base path, without a trailing slash).
func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint:       strings.TrimSuffix(endpoint, "/"),
		httpClient:     &http.Client{Timeout: defaultTimeout},
		log:            hclog.NewNullLogger(),
		maxRetries:     defaultMaxRetries,
		backoff:        defaultRetryBackoff(),
		retryPolicy:    DefaultRetryPolicy,
		pollBackoff:    DefaultBackoff(),
		pollMaxRetries: defaultPollMaxRetries,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.userAgent = buildUserAgent(c.applicationName, c.applicationVersion)

	if c.instrumentationRegistry != nil {
		// Wrap a copy so a caller-shared http.Client keeps its own transport.
		httpClient := *c.httpClient
		transport := httpClient.Transport
		if transport == nil {
			transport = http.DefaultTransport
		}
		httpClient.Transport = instrumentation.RoundTripper(c.instrumentationRegistry, transport)
		c.httpClient = &httpClient
	}

	return c
}

func buildUserAgent(name, version string) string {
	switch {
	case name != "" && version != "":
		return name + "/" + version + " cloudpoll/" + Version
	case name != "":
		return name + " cloudpoll/" + Version
	default:
		return "cloudpoll/" + Version
	}
}

// Do sends an API request and decodes the response body into out, which
// may be nil for requests without an interesting response. Non-2xx
// responses return a [*Error] with the envelope's code, message and
// details preserved. Errors the client's retry policy marks transient are
// retried with backoff, honoring Retry-After on rate-limit responses.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("cloudpoll: encode request: %w", err)
		}
		payload = data
	}

	backoff := c.backoff
	if backoff == nil {
		backoff = defaultRetryBackoff()
	}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := c.do(ctx, method, path, payload, out)
		if err == nil {
			return nil
		}
		if attempt >= c.maxRetries || c.retryPolicy == nil || !c.retryPolicy(err) {
			return err
		}

		delay := retryDelay(backoff, attempt, err)
		c.log.Debug("retrying request",
			"method", method, "path", path, "attempt", attempt+1, "delay", delay, "error", err)
		if !sleep(ctx, delay) {
			return ctx.Err()
		}
	}
}

// do performs a single request attempt.
func (c *Client) do(ctx context.Context, method, path string, payload []byte, out any) error {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, bodyReader)
	if err != nil {
		return fmt.Errorf("cloudpoll: build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("cloudpoll: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("cloudpoll: read response: %w", err)
	}
	c.log.Debug("api request",
		"method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := ErrorFromResponse(resp.StatusCode, respBody)
		if resp.StatusCode == http.StatusTooManyRequests {
			apiErr.RetryAfter = parseRetryAfter(resp.Header)
		}
		return apiErr
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("cloudpoll: decode response: %w", err)
	}
	return nil
}

// actionEnvelope wraps a single action in API responses.
type actionEnvelope struct {
	Action *Action `json:"action"`
}

// GetAction fetches the current snapshot of an action. It satisfies
// [FetchFunc] and is the fetch function used by waiters built with
// [Client.ActionWaiter].
func (c *Client) GetAction(ctx context.Context, id int64) (*Action, error) {
	var out actionEnvelope
	if err := c.Do(ctx, http.MethodGet, fmt.Sprintf("/actions/%d", id), nil, &out); err != nil {
		return nil, fmt.Errorf("get action %d: %w", id, err)
	}
	if out.Action == nil {
		return nil, fmt.Errorf("cloudpoll: get action %d: empty response", id)
	}
	return out.Action, nil
}

// ActionWaiter returns a [Waiter] wired to this client: GetAction as the
// fetch function, plus the client's poll budget, poll backoff, logger and
// journal. Callers may adjust fields or append Progress funcs before use.
func (c *Client) ActionWaiter() *Waiter {
	w := &Waiter{
		Fetch:      c.GetAction,
		MaxRetries: c.pollMaxRetries,
		Backoff:    c.pollBackoff,
		Log:        c.log,
	}
	if c.journal != nil {
		journal, log := c.journal, c.log
		w.Progress = append(w.Progress, func(a *Action) {
			if err := journal.Track(a); err != nil {
				log.Warn("failed to journal action snapshot", "action_id", a.ID, "error", err)
			}
		})
	}
	return w
}

// WaitForAction blocks until the action reaches a terminal state. See
// [Waiter.Wait] for the error contract.
func (c *Client) WaitForAction(ctx context.Context, id int64) (*Action, error) {
	return c.ActionWaiter().Wait(ctx, id)
}

// WaitForActions blocks until all the given actions reach a terminal
// state, polling them concurrently. See [Waiter.WaitAll].
func (c *Client) WaitForActions(ctx context.Context, ids ...int64) ([]*Action, error) {
	return c.ActionWaiter().WaitAll(ctx, ids...)
}
