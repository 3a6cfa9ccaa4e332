// Package observability provides structured logging, Prometheus metrics and
// OpenTelemetry tracing for the access-control core.
//
// # Structured Logging
//
// Create logger:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("tenant_id", tenantID).Info("page matrix updated")
//
// Context-aware logging picks up request and user IDs set through
// pkg/contextkeys:
//
//	observability.FromContext(ctx).Warn("assigned role no longer exists")
//
// # Prometheus Metrics
//
// Metrics are registered on a caller-supplied registry. A nil *Metrics is
// accepted everywhere and records nothing:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordDecision("require_capability", err)
//
// # Tracing
//
// InitTracing installs an OTLP/gRPC exporter when enabled. Packages create
// spans through otel.Tracer regardless, so disabled tracing costs a no-op
// span per call.
package observability
