/*
Package types defines the core data structures shared across this
module's event-sourced key-value store.

This package contains the wire shape that crosses the log (Event), the
materialized per-key state the projector maintains (MetaData, Record), the
durable checkpoint for a base (Settings), and the telemetry row emitted by
the stats pipeline (StatsEvent). Every other package in this module depends
on types; types depends on nothing but the standard library.

# Core Types

  - Event: a single PUT or DELETE record read from or written to the log
  - MetaData: per-key bookkeeping (dateCreated, dateModified, changes)
  - Record: the externally visible {meta, data} pairing for a live key
  - Settings: the durable projection checkpoint for one base
  - StatsEvent: one row of per-operation telemetry

All types are JSON-serializable: Event is the wire payload published to and
read from the log, MetaData and Settings are persisted by the local store as
JSON, and Record is the {meta, data} shape returned to callers.

# Thread Safety

Values of these types are treated as immutable once handed to a caller;
the projector builds a new MetaData on every PUT rather than mutating one
in place, so callers never observe a half-updated record.
*/
package types
