// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - items ingested per entity kind and source errors per source
//   - poll cycle duration
//   - cross-source price mismatches per symbol
//   - watermark commits per source
//   - rows pruned per table by batch commits
package metrics
