// Package pool provides a fixed-capacity pool of reusable audio frames.
//
// Unlike [sync.Pool] the set of frames is allocated once up front and never
// grows, so a running session does not allocate on the audio path. Frames are
// checked out with [Pool.Get] and must be handed back with [Pool.Put] by the
// stage that owns them.
package pool

import (
	"errors"
	"fmt"

	"github.com/MrWong99/earpiece/pkg/audio"
)

// ErrExhausted is returned by [Pool.Get] when every frame is checked out.
var ErrExhausted = errors.New("pool: all frames in use")

// Pool hands out frames of a fixed sample count. It is safe for concurrent use.
type Pool struct {
	frameSize int
	free      chan *audio.Frame
}

// New allocates capacity frames of frameSize samples each.
func New(frameSize, capacity int) (*Pool, error) {
	if frameSize <= 0 {
		return nil, fmt.Errorf("pool: frame size must be positive, got %d", frameSize)
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("pool: capacity must be positive, got %d", capacity)
	}
	p := &Pool{
		frameSize: frameSize,
		free:      make(chan *audio.Frame, capacity),
	}
	for range capacity {
		p.free <- &audio.Frame{Samples: make([]int16, frameSize)}
	}
	return p, nil
}

// FrameSize returns the number of samples in every frame of the pool.
func (p *Pool) FrameSize() int { return p.frameSize }

// Cap returns the total number of frames owned by the pool.
func (p *Pool) Cap() int { return cap(p.free) }

// Available returns the number of frames currently checked in.
func (p *Pool) Available() int { return len(p.free) }

// Get checks out a frame. The frame's N is reset to zero. Get never blocks;
// it returns [ErrExhausted] when no frame is free.
func (p *Pool) Get() (*audio.Frame, error) {
	select {
	case f := <-p.free:
		f.N = 0
		return f, nil
	default:
		return nil, ErrExhausted
	}
}

// Put returns f to the pool. Frames of a different size or frames that would
// overflow the pool are dropped.
func (p *Pool) Put(f *audio.Frame) {
	if f == nil || len(f.Samples) != p.frameSize {
		return
	}
	select {
	case p.free <- f:
	default:
	}
}
