// Package logging builds the slog loggers used across murmur.
//
// It provides JSON and console handlers selected by configuration, attribute
// helpers with standardized field names, and context-derived fields so every
// record carries the run identifier, input identifier, and pipeline step it
// belongs to. The console handler colorizes level labels when attached to a
// terminal.
package logging
