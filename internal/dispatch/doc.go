// Package dispatch runs relay jobs from the durable queue.
//
// The dispatcher polls the queue, hands each job's event id to the relay
// trigger under a per-job timeout, and records the outcome:
//   - nil error → succeeded
//   - error with attempts left → requeued with next_retry_at set by
//     exponential backoff (base * 2^(attempt-1), capped at 1h)
//   - error on the last attempt → dead, logged at error and published as
//     relay.dead on the event hub
//
// Jobs run serially. A backlog is drained back-to-back; an empty queue is
// polled at the configured interval.
package dispatch
