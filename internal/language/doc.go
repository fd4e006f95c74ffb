// Package language normalizes language identifiers between the forms the
// system touches: Whisper's ISO 639-1 hints, backend response codes, and the
// human-readable names used in notes and status output.
package language
