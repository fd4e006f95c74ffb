// Package notifications pushes pipeline events to operators via ntfy. With
// no topic configured the service degrades to a noop, so callers never need
// to check whether notifications are enabled.
package notifications
