// Package durationcache remembers audio durations in SQLite so repeated
// statistics runs and real-time-factor logging do not re-probe unchanged files.
//
// Entries are keyed by path and invalidated by size or modification time. The
// database is disposable: deleting it only costs a re-probe.
package durationcache
