// Package herald is an in-process message bus that routes commands, queries,
// and events through an ordered, pluggable behavior chain. Commands and
// queries are dispatched to exactly one registered handler; events fan out to
// every matching subscriber concurrently, with per-subscriber error
// isolation. Every dispatch passes flow-control admission (a concurrency
// bound with priority ordering plus an optional rate limit), is tracked by a
// correlation record, and is retried per policy before the message is
// captured in a bounded dead-letter queue and the original error is
// re-raised to the caller.
//
// # Behaviors
//
// Cross-cutting concerns are contributed as behaviors with declarative
// placement: First, Last, Before/After a named contribution, Replace, or a
// plain numeric Order. The resolver produces one deterministic chain from
// any registration order; unresolvable placements degrade to priority order
// with a warning rather than failing the bus. The default chain carries
// structured logging and panic recovery; caching (in-memory or Redis),
// validation, OpenTelemetry tracing, Prometheus metrics, rate limiting, and
// retry behaviors ship ready to register. A behavior short-circuits by
// returning without calling its continuation.
//
// # Bridging
//
// The bus is in-process by design. The Bridge and the transport package
// connect it to Watermill publisher/subscriber pairs when events must cross
// the process boundary, and the dead-letter queue can mirror its entries to
// a transport topic. The channel backend (in-memory Go channels) ships in
// transport/channel; further backends register themselves with the transport
// registry.
//
// A minimal setup fills a Config (or reads one from HERALD_* environment
// variables), creates a Bus, registers handlers, and dispatches; see
// README.md for a quick start.
package herald
