// Package daemon hosts the long-running amelied process: single-instance
// locking, startup crash recovery, the pipeline manager lifecycle, and the
// periodic outbox, retention, and dedup sweeps.
package daemon
