// Package dispatch delivers generated results to conversations, falls back
// to the durable ledger outbox when the bridge is down, and replays
// interrupted transactions at startup.
package dispatch
