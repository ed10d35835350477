// Package watermark plans and advances per-source ingestion cursors.
//
// A cursor (watermark) records how much of a provider stream has been
// consumed. Before each fetch the Engine turns stored cursors into a
// model.CursorPlan; after storage succeeds it advances the cursors from what
// was actually persisted. Cursors only ever move forward.
//
// Static per-source behaviour (timestamp vs id cursor, global vs per-symbol
// scope, overlap and first-run windows) lives in a RuleTable resolved once at
// startup.
package watermark
