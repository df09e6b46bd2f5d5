package portaudio

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/earpiece/pkg/audio"
	pa "github.com/gordonklaus/portaudio"
)

// Compile-time interface assertions.
var (
	_ audio.CaptureStream = (*captureStream)(nil)
	_ audio.RenderStream  = (*renderStream)(nil)
)

// paStream is the shared close discipline for capture and render streams.
//
// ioMu is held across each blocking Read/Write. Close first aborts the
// stream without the lock, which makes PortAudio return from the blocked
// call, then takes ioMu before closing the handle so a call never races
// the handle teardown.
type paStream struct {
	stream *pa.Stream
	buf    []int16

	ioMu      sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
}

func (s *paStream) close(kind string) error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if abortErr := s.stream.Abort(); abortErr != nil {
			slog.Debug("portaudio abort", "stream", kind, "err", abortErr)
		}
		s.ioMu.Lock()
		defer s.ioMu.Unlock()
		err = s.stream.Close()
	})
	return err
}

type captureStream struct {
	paStream
	session int
}

func (c *captureStream) Read(buf []int16) (int, error) {
	c.ioMu.Lock()
	defer c.ioMu.Unlock()

	if c.closed.Load() {
		return 0, io.EOF
	}
	n := 0
	for n < len(buf) {
		if err := c.stream.Read(); err != nil {
			if c.closed.Load() {
				return n, io.EOF
			}
			return n, classifyIO(err)
		}
		n += copy(buf[n:], c.buf)
	}
	return n, nil
}

func (c *captureStream) SessionID() int { return c.session }

func (c *captureStream) Close() error { return c.close("capture") }

type renderStream struct {
	paStream
}

func (r *renderStream) Write(buf []int16) (int, error) {
	r.ioMu.Lock()
	defer r.ioMu.Unlock()

	if r.closed.Load() {
		return 0, io.ErrClosedPipe
	}
	n := 0
	for n < len(buf) {
		m := copy(r.buf, buf[n:])
		// Zero the tail of a partial final chunk so stale samples never play.
		for i := m; i < len(r.buf); i++ {
			r.buf[i] = 0
		}
		if err := r.stream.Write(); err != nil {
			if r.closed.Load() {
				return n, io.ErrClosedPipe
			}
			return n, classifyIO(err)
		}
		n += m
	}
	return n, nil
}

func (r *renderStream) Close() error { return r.close("render") }
