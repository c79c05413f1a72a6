// Package otel provides an OpenTelemetry observer plugin for the cell library.
// It emits span events (clone, drop, unwrap wait, poison) with low overhead.
package otel
