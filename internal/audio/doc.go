// Package audio provides the signal sources behind the visualizer.
//
// An Adapter owns at most one Session at a time, backed either by the
// microphone (PortAudio) or by a decoded file played through the speaker.
// Both feed a spectrum.Analyzer. Live sessions also fan raw PCM out to
// subscribers, which slice it into encoded chunks with a Chunker.
package audio
