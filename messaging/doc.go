// Package messaging implements the event-level publish and consume
// paths of the order pipeline. EventPublisher serializes order events
// onto the topic exchange; Subscriber runs the per-queue
// consume-acknowledge loop with manual acknowledgment and a
// one-message-in-flight QoS limit.
package messaging
