// Package source models the audio producers channels play: RawSource (a
// byte window over an in-memory or file-backed PCM buffer), SampleSource
// (always-seekable in-memory PCM, optionally pre-converted to the mixer
// format), and decoder-backed variants living in sibling packages
// (vorbissource, aacsource) that all satisfy the same Source interface.
package source

import (
	"sync"
	"time"

	"github.com/kickmix/audiomixer/internal/format"
	"github.com/kickmix/audiomixer/internal/mixererr"
)

// Source is the uniform interface every audio producer implements. Each
// Source guards its own mutable state (position, decoder handle) with its
// own lock, the innermost level of the engine's lock hierarchy: the
// mixer-global lock is acquired first, then the per-channel lock, then the
// per-source lock a channel touches while reading.
type Source interface {
	// Format returns the source's fixed format; it never changes over the
	// source's lifetime.
	Format() format.AudioFormat

	// Length returns the source length in frames, or -1 if unknown.
	Length() int

	// Priority is used by the mixer's eviction policies: larger is more
	// important, so low-priority sources are evicted first.
	Priority() int

	// Volume returns the source's own volume, 0..256.
	Volume() int

	// Rate returns the source's own playback rate multiplier.
	Rate() float64

	// CanRewind reports whether Rewind is supported. A source that cannot
	// rewind may not be looped (ErrInvalidArgument at bind time).
	CanRewind() bool

	// CanSeek reports whether SetPosition is supported. A source that
	// cannot seek may be bound to at most one Channel at a time.
	CanSeek() bool

	// Position returns the current read position in frames.
	Position() int

	// SetPosition seeks to the given frame offset. Implementations clamp
	// out-of-range requests per their own documented contract; SampleSource
	// instead returns ErrOutOfRange.
	SetPosition(frames int) error

	// Rewind resets the read position to the start of the source.
	Rewind() error

	// ReadBytes reads length bytes of raw, source-format PCM into buf.
	// length must be a multiple of the source's frame size. Returns bytes
	// read; 0 at end of stream.
	ReadBytes(buf []byte, length int) (int, error)

	// ReadFrames produces up to frames frames into out (mixer-format,
	// interleaved at the source's channel count). When volume < 0, out
	// receives plain widened 32-bit samples (for later filter processing);
	// when volume >= 0, ReadFrames performs the conversion+mix in one
	// pass. Returns frames actually produced; 0 at end of stream.
	ReadFrames(out []int32, frames int, volume int) (int, error)

	// ReadAll returns the entire source as raw bytes. Only defined when
	// Length() >= 0.
	ReadAll() ([]byte, error)
}

// Tell reports src's current read position as a duration, derived from
// Position() and the source's own frequency. Channel.Tell exposes it for
// callers that want playback progress expressed in wall-clock terms rather
// than frames; channel age and timeout use the engine clock, not this.
func Tell(src Source) time.Duration {
	freq := src.Format().Frequency
	if freq <= 0 {
		return 0
	}
	return time.Duration(src.Position()) * time.Second / time.Duration(freq)
}

// Duration reports src's total length as a duration, and whether that
// length is known at all (Length() >= 0).
func Duration(src Source) (time.Duration, bool) {
	length := src.Length()
	freq := src.Format().Frequency
	if length < 0 || freq <= 0 {
		return 0, false
	}
	return time.Duration(length) * time.Second / time.Duration(freq), true
}

// RawSource is a fixed-format byte stream, optionally windowed to
// [start, start+length) frames within a larger backing buffer.
type RawSource struct {
	mu       sync.Mutex
	fmt      format.AudioFormat
	data     []byte
	startOff int // byte offset of frame 0 within data
	lenBytes int // window length in bytes, -1 if the window runs to the end of data
	pos      int // current position in frames, relative to the window

	priority int
	volume   int
	rate     float64

	scratch []byte // ReadFrames staging buffer, grown monotonically
}

// NewRawSource wraps data as a RawSource in the given format. start and
// length are frame offsets into data; pass length < 0 for "to the end".
func NewRawSource(fmt format.AudioFormat, data []byte, start, length int) *RawSource {
	frameSize := fmt.FrameSize()
	lenBytes := -1
	if length >= 0 {
		lenBytes = length * frameSize
	}
	return &RawSource{
		fmt:      fmt,
		data:     data,
		startOff: start * frameSize,
		lenBytes: lenBytes,
		volume:   format.MaxVolume,
		rate:     1.0,
	}
}

func (r *RawSource) Format() format.AudioFormat { return r.fmt }

func (r *RawSource) Length() int {
	if r.lenBytes < 0 {
		total := len(r.data) - r.startOff
		if total < 0 {
			return 0
		}
		return total / r.fmt.FrameSize()
	}
	return r.lenBytes / r.fmt.FrameSize()
}

func (r *RawSource) Priority() int    { return r.priority }
func (r *RawSource) SetPriority(p int) { r.priority = p }
func (r *RawSource) Volume() int      { return r.volume }
func (r *RawSource) SetVolume(v int)  { r.volume = v }
func (r *RawSource) Rate() float64    { return r.rate }
func (r *RawSource) SetRate(v float64) { r.rate = v }

func (r *RawSource) CanRewind() bool { return true }
func (r *RawSource) CanSeek() bool   { return true }

func (r *RawSource) Position() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pos
}

func (r *RawSource) SetPosition(frames int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	length := r.Length()
	if frames < 0 {
		frames = 0
	}
	if frames > length {
		frames = length
	}
	r.pos = frames
	return nil
}

func (r *RawSource) Rewind() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pos = 0
	return nil
}

func (r *RawSource) window() []byte {
	end := len(r.data)
	if r.lenBytes >= 0 && r.startOff+r.lenBytes < end {
		end = r.startOff + r.lenBytes
	}
	if r.startOff > end {
		return nil
	}
	return r.data[r.startOff:end]
}

func (r *RawSource) ReadBytes(buf []byte, length int) (int, error) {
	frameSize := r.fmt.FrameSize()
	if length%frameSize != 0 {
		return 0, mixererr.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readBytesLocked(buf, length)
}

// readBytesLocked is ReadBytes's body, factored out so ReadFrames can read
// into its own scratch buffer under the same critical section instead of
// acquiring r.mu twice (this type's lock is not reentrant).
func (r *RawSource) readBytesLocked(buf []byte, length int) (int, error) {
	frameSize := r.fmt.FrameSize()
	win := r.window()
	avail := len(win) - r.pos*frameSize
	if avail <= 0 {
		return 0, nil
	}
	n := length
	if n > avail {
		n = avail - (avail % frameSize)
	}
	copy(buf[:n], win[r.pos*frameSize:r.pos*frameSize+n])
	r.pos += n / frameSize
	return n, nil
}

func (r *RawSource) ReadFrames(out []int32, frames int, volume int) (int, error) {
	frameSize := r.fmt.FrameSize()
	need := frames * frameSize

	r.mu.Lock()
	defer r.mu.Unlock()
	if cap(r.scratch) < need {
		r.scratch = make([]byte, need)
	}
	buf := r.scratch[:need]
	n, err := r.readBytesLocked(buf, need)
	if err != nil {
		return 0, err
	}

	framesRead := n / frameSize
	samples := framesRead * r.fmt.Channels
	if volume < 0 {
		format.ConvertCopy(out, buf, samples, r.fmt.Format)
	} else {
		format.ConvertMix(out, buf, samples, r.fmt.Format, volume)
	}
	return framesRead, nil
}

// ReadAll copies out the whole window; a RawSource's length is always
// known, so this never fails.
func (r *RawSource) ReadAll() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	win := r.window()
	out := make([]byte, len(win))
	copy(out, win)
	return out, nil
}
