// Package agents implements the analysis workers of the reference evaluation
// service and the rules that combine their scores into one verdict.
package agents
