// Package transcription streams live microphone audio to a remote
// transcription service over a websocket and surfaces the text it returns.
//
// A Link connects once and never reconnects. Chunks are sent only while
// it is open; anything produced in another state is dropped. Each inbound
// text message replaces the displayed transcript.
package transcription
