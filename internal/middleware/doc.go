// Package middleware wraps the HTTP API with access logging in W3C extended
// format, Prometheus request metrics and gzip compression of JSON bodies.
package middleware
