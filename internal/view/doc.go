// Package view derives what the user sees from the job state store and
// routes user actions to the service, the store and the poll controller.
//
// The machine keeps no presentation state of its own: every View is computed
// from one store snapshot, so it cannot drift from the store.
package view
