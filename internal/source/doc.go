// Package source defines the Data Source Contract consumed by the poller.
//
// Every news, price or social provider implements one capability interface.
// Concrete sources are registered by configuration; the poller only sees the
// interfaces and the Descriptor each source reports.
//
// Error taxonomy:
//   - StructuralError: malformed response shape, fails the source's fetch, never retried
//   - RateLimitError: vendor throttling, carries an optional retry-after hint
//   - ItemParseError: one bad item, skipped and logged, never propagated
package source
