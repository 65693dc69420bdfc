// Package evaluation defines the data model and remote service contract shared
// by the job monitor, the HTTP client, and the reference evaluation service.
package evaluation
