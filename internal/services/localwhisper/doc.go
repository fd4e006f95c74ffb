// Package localwhisper runs Whisper on the local CPU through uvx. It is the
// last-resort backend: always available when uvx is installed, an order of
// magnitude slower than the GPU paths.
package localwhisper
