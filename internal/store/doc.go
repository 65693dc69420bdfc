// Package store holds the state of the one job currently being observed:
// its identity, latest status snapshot, result snapshot, and the single
// recoverable message shown after a failure. It is the only shared mutable
// state of the monitor; readers re-derive their view from Snapshot after
// every change notification.
package store
