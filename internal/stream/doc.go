// Package stream holds the session context: the single active audio
// session, the render loop it drives, the transcription stream bound to
// it and the status and transcript the UI layer displays.
package stream
