package raster

import (
	"errors"
	"sync/atomic"
)

// ProgressFunc receives monotonically increasing (done, total) pairs, at most
// once per row or tile. The decoder has already stored the row before the
// callback fires, so a panicking callback cannot corrupt decoder state.
type ProgressFunc func(done, total int)

// Abort is a caller-owned flag decoders poll between rows or tiles. A
// stopped decode returns ErrAborted with the output partially filled.
type Abort struct {
	flag atomic.Bool
}

// Stop requests the decode to end at the next row boundary.
func (a *Abort) Stop() { a.flag.Store(true) }

// Stopped reports whether Stop has been called. Safe on a nil receiver.
func (a *Abort) Stopped() bool {
	return a != nil && a.flag.Load()
}

// ErrAborted is returned when a decode observes a tripped Abort flag.
var ErrAborted = errors.New("raster: decode aborted")

// DecodeOptions carries the caller-side knobs common to every codec.
// Format-specific options live in the format packages.
type DecodeOptions struct {
	Bounds   *Bounds
	Progress ProgressFunc
	Abort    *Abort
}

// Step invokes the progress callback if one is set. Safe on a nil receiver.
func (o *DecodeOptions) Step(done, total int) {
	if o != nil && o.Progress != nil {
		o.Progress(done, total)
	}
}

// Stopped reports the abort flag. Safe on a nil receiver.
func (o *DecodeOptions) Stopped() bool {
	return o != nil && o.Abort.Stopped()
}

// Window resolves the effective decode bounds. Safe on a nil receiver.
func (o *DecodeOptions) Window(w, h int) (Bounds, error) {
	if o == nil {
		return FullBounds(w, h), nil
	}
	return EffectiveBounds(o.Bounds, w, h)
}
