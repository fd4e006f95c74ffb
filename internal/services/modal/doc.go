// Package modal is the client for a serverless Modal transcription endpoint,
// the second-priority backend behind the GPU server. Requests carry a bearer
// token; cold starts make it slower but it needs no hardware of ours.
package modal
