// Command murmur is the operator CLI: run the daemon in the foreground,
// trigger one-shot processing passes, and inspect run state, backends, and
// configuration.
package main
