// Package cloudpoll is a client for cloud provider APIs that expose
// asynchronous operations as actions: a request to start a server or
// attach a volume returns immediately with an action id, and the caller
// polls the action until it succeeds, fails, or the caller gives up.
//
// The package provides the three pieces that make such polling reliable:
// a backoff policy ([ExponentialBackoff]), an error classifier that turns
// provider error envelopes into typed [*Error] values, and a [Waiter] that
// drives an action to a terminal state with a bounded fetch budget.
// [Client] ties them together over HTTP for APIs that follow the
// /actions/{id} convention.
package cloudpoll

// Version is the library version, reported in the User-Agent header.
const Version = "0.1.0"
