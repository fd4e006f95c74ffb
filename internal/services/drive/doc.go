// Package drive is a minimal Google Drive v3 client for the watched-folder
// workflow: list audio files in the inbox folder, download one to staging,
// and rename-and-move it to the processed folder when the pipeline finishes.
// Authentication is a bearer token supplied by configuration; token refresh
// is outside this package.
package drive
