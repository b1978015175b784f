// Package server provides the HTTP control surface: user intents (start
// microphone, play a file, reset, resize, pointer), the status and
// transcript the UI layer displays, the latest rendered frame and the
// Prometheus metrics endpoint.
package server
