// Package pipeline advances accepted media submissions through the staged
// worker pools: entry -> upload -> processing check -> analysis -> dispatch.
// Stage order is fixed per transaction; across transactions progress is
// unordered and independent. Backoff delays run on timers so waiting never
// occupies a worker slot.
package pipeline
