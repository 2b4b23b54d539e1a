/*
Package docstore provides the embedded, queryable local document store a
base's projector writes into and its public API reads from.

Docstore is a thin, purpose-built layer over BoltDB (bbolt): one file per
base, three buckets (documents, meta, settings), JSON-encoded values, and a
predicate query engine that scans the documents bucket. It plays the same
role pkg/storage's BoltStore played for cluster state in the orchestrator
this module started from: one process-local ACID key-value file backing a
higher-level domain model, built the same way — db.Update/db.View
transactions, one bucket per logical collection, JSON marshal/unmarshal at
the boundary.

# Buckets

	documents  id -> JSON payload, the last-projected PUT data for id
	meta       id -> JSON-encoded types.MetaData
	settings   id -> JSON-encoded types.Settings (one row: the checkpoint)

# Query

Query/Count load every document in the bucket and evaluate the predicate
package's matcher against each one. There is no secondary indexing —
per the specification, indexed predicate query is an assumed capability of
the external document store, not something the projection engine itself
must optimize.
*/
package docstore
