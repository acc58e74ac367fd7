// Package demo provides a pretend spectrometer Thing.
//
// Its actions cover the behaviours clients need to handle: progress and
// data updates with cooperative stop (average_data), a body that only
// forced termination can end (integrate_forever) and an HTTP-style abort
// handed back to the waiting caller (find_peak).
package demo
