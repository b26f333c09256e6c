// Package logging builds the process-wide slog logger and provides attr
// helpers plus standardized field names used across components.
package logging
