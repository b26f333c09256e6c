// Command amelie is the operator CLI: ledger status, problem listings,
// per-conversation settings, and configuration utilities. It reads the same
// SQLite databases the daemon writes.
package main
