// Package convconfig stores per-conversation processing preferences:
// description verbosity and which media kinds are analyzed. Stage workers
// read settings fresh at execution time so mid-flight toggles take effect
// on queued work.
package convconfig
