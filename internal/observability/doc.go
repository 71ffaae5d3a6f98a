// Package observability provides structured logging and Prometheus metrics
// for the para server.
//
// Loggers are zap-based and carry the chi request id when one is present on
// the context. Metrics are registered on a dedicated registry and exposed
// through Handler.
package observability
