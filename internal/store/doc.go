// Package store implements the durable content store for episodes.
//
// Episodes are persisted as self-describing JSON records partitioned by
// capture date (episodes/YYYY-MM-DD/session-<id8>.json, id8 being the first 8 characters
// of the id) with an optional
// human-readable markdown mirror next to each record. The store owns the
// authoritative episode bytes; every other component works on value
// copies.
//
// Mutations are crash-consistent at single-episode granularity (temp
// file + rename). Writers for the same id are serialized through a
// per-id lock; writers for distinct ids proceed independently. Reads
// return snapshots and take no lock.
package store
