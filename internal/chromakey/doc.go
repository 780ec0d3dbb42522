// Package chromakey removes green- and blue-screen backgrounds from RGBA frames.
//
// Composite runs two passes over a Buffer: pass 1 classifies each pixel as
// background using the Profile's rule (tiered thresholds, distance to a target
// color, or a key-intensity gradient); pass 2 clears background pixels and
// fades the halo left around the subject. Loop drives Composite once per tick
// for a moving Source and hands results to a Painter.
package chromakey
