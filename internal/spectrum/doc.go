// Package spectrum extracts byte-scaled frequency magnitudes from a live
// time-domain signal, one snapshot per render frame.
package spectrum
