// Package rabbitmq provides the broker-facing plumbing for the order
// pipeline: connection establishment with exponential backoff,
// exchange/queue/binding topology declaration, and the single-channel
// publish path. Higher-level event semantics live in the messaging
// package.
package rabbitmq
