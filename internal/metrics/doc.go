// Package metrics exposes the Prometheus instruments for the render loop,
// audio sessions, chunk delivery, the transcription link and the HTTP API.
package metrics
