// Package server exposes health, metrics and inspection endpoints over gin:
//
//	GET /health           database ping and age of the last poll cycle
//	GET /metrics          Prometheus metrics
//	GET /debug/watermarks every stored cursor
//	GET /debug/cycle      the last poll cycle result
package server
