// Package poller drives the repeating status fetch for the observed job.
//
// Each armed job gets a Handle backed by one goroutine. The goroutine fetches
// status immediately, then waits a fixed interval after each completed cycle,
// so fetches for a job never overlap. Every state change goes through a
// transition table; a trigger with no entry for the current state is
// ignored, which is what keeps a stopped handle stopped. Responses that
// arrive after the handle stopped are discarded before they reach the store.
package poller
