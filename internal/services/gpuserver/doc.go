// Package gpuserver is the HTTP client for a self-hosted GPU transcription
// server. It is the preferred backend: fastest when the machine is up, and
// cheaply probed with a health endpoint when it is not.
package gpuserver
