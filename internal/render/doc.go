// Package render paints the visualizer frames.
//
// A Loop pulls a spectrum snapshot each tick, fades the previous frame,
// advances the particle field around a pointer-shifted centre, and draws
// the radial bars and the pulsing core. Each frame is guarded so a failure
// is logged and counted without stopping the loop.
package render
