// Package transport delivers generated descriptions back to conversations
// through the chat bridge HTTP API.
package transport
