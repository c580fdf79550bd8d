// Package telemetry provides OpenTelemetry initialization and helpers
// for distributed tracing across the warden service.
//
// The package configures OTLP HTTP export for traces, logs and
// metrics, with support for managed collectors and local backends.
package telemetry
