// Package events carries scan progress from the orchestrator to subscribers.
//
// A Broker keeps one topic per scan token. Publishing never blocks: every
// subscriber owns an unbounded queue drained by its own goroutine into the
// channel returned by Events. A subscriber that joins late first receives the
// most recent event. The terminal event of a topic is the last one delivered;
// after it every subscriber channel closes and the topic is dropped once the
// retention period passes.
//
// Sinks receive a copy of every event for forwarding outside the process.
package events
