// Package httputil provides shared HTTP response/request utilities for handlers.
//
// Success bodies are written as-is; errors use the {"status":"error",
// "message":...} envelope.
package httputil
