// Package inference wraps the media analysis backend: file upload, remote
// processing status polls, content generation and cleanup. Every failure
// leaving this package carries a services.Kind classification decided at the
// HTTP boundary.
package inference
