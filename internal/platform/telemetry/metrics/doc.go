// Package metrics defines the OpenTelemetry instruments recorded by the
// encounter service. Without a registered MeterProvider every instrument is a
// no-op.
package metrics
