// Package metrics records build observations behind a Recorder interface.
//
// NoopRecorder is the default so callers never check for nil. The Prometheus
// implementation collects into a registry that the CLI writes to a text file
// in exposition format after each run (see WriteTextfile).
package metrics
