// Package cache implements the best-effort on-disk asset cache. Entries live
// under a single flat directory, one file per asset id, populated only by the
// bulk Warm pass and wiped at startup. Reads degrade to a miss on any I/O
// error; only upstream connectivity failures surface to callers, since the
// cache is an optimization and the Immich server remains the source of truth.
package cache
