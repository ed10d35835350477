// Package poller implements the poll orchestrator.
//
// Each cycle runs PLAN, FETCH, ROUTE/RECONCILE, STORE and COMMIT in order:
//   - a cursor plan is built for every source from its stored watermarks
//   - all sources are fetched concurrently; a failing source is recorded and
//     never cancels the others
//   - news is routed into macro and company buckets, prices from several
//     sources are reconciled against a primary source per symbol
//   - each source's results are stored, then its watermarks are committed
//     from exactly what was stored
//
// Cycles are strictly sequential. The run loop sleeps for what is left of the
// poll interval and wakes immediately when stopped.
package poller
