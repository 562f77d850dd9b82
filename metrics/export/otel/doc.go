// Package otel provides OpenTelemetry metric exporter bindings for authkit
// counters. Collection is pull-based: a registered callback snapshots the
// atomic counters on each cycle, keeping request paths instrumentation-free.
package otel
