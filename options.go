package cloudpoll

import (
	"net/http"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithToken sets the bearer token sent with every request. Obtaining and
// storing the token is the caller's concern.
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// WithApplication identifies the calling application in the User-Agent
// header, ahead of the library's own product token. version may be empty.
func WithApplication(name, version string) ClientOption {
	return func(c *Client) {
		c.applicationName = name
		c.applicationVersion = version
	}
}

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets the diagnostic sink. The client and the waiters it
// builds log request and poll diagnostics at debug level; journal write
// failures are logged at warn and do not interrupt a wait.
func WithLogger(log hclog.Logger) ClientOption {
	return func(c *Client) {
		c.log = log
	}
}

// WithMaxRetries bounds how many times a failed request is retried after
// the initial attempt. Zero disables request retries.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		if n < 0 {
			n = 0
		}
		c.maxRetries = n
	}
}

// WithBackoff sets the wait schedule between request retry attempts.
func WithBackoff(backoff BackoffFunc) ClientOption {
	return func(c *Client) {
		c.backoff = backoff
	}
}

// WithRetryPolicy replaces [DefaultRetryPolicy] for request retries.
// A nil policy disables retries entirely.
func WithRetryPolicy(policy RetryPolicy) ClientOption {
	return func(c *Client) {
		c.retryPolicy = policy
	}
}

// WithPollBackoff sets the wait schedule between action polls for waiters
// built by this client.
func WithPollBackoff(backoff BackoffFunc) ClientOption {
	return func(c *Client) {
		c.pollBackoff = backoff
	}
}

// WithPollMaxRetries sets the re-fetch budget for waiters built by this
// client. Zero means waits perform a single fetch.
func WithPollMaxRetries(n int) ClientOption {
	return func(c *Client) {
		if n < 0 {
			n = 0
		}
		c.pollMaxRetries = n
	}
}

// WithInstrumentation registers request metrics (in-flight gauge, request
// counter, duration histogram) on the given registry and wraps the
// client's transport to feed them. Register each client on its own
// registry, or on the default one at most once.
func WithInstrumentation(registry prometheus.Registerer) ClientOption {
	return func(c *Client) {
		c.instrumentationRegistry = registry
	}
}

// WithActionJournal records every snapshot observed by waiters built by
// this client, so interrupted waits can be resumed later.
func WithActionJournal(journal ActionJournal) ClientOption {
	return func(c *Client) {
		c.journal = journal
	}
}
