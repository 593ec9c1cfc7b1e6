package source

import (
	"sync"

	"github.com/kickmix/audiomixer/internal/format"
	"github.com/kickmix/audiomixer/internal/mixererr"
)

// SampleSource is in-memory PCM that is always rewindable and seekable. It
// may optionally be pre-converted to the mixer format at construction time
// (PreConverted == true), letting ReadFrames skip the conversion pass
// entirely — the common case for short, frequently replayed sound effects.
type SampleSource struct {
	mu   sync.Mutex
	fmt  format.AudioFormat
	data []byte  // valid when !preConverted
	mix  []int32 // valid when preConverted (interleaved at fmt.Channels)
	pos  int     // frames

	preConverted bool
	priority     int
	volume       int
	rate         float64

	scratch []byte // ReadFrames staging buffer for the non-preconverted path
}

// NewSampleSource wraps raw PCM bytes of the given format as a SampleSource.
func NewSampleSource(fmt format.AudioFormat, data []byte) *SampleSource {
	return &SampleSource{fmt: fmt, data: data, volume: format.MaxVolume, rate: 1.0}
}

// NewPreConvertedSampleSource stores data already converted to mixFormat
// (Format must be format.Mixer), avoiding per-play conversion work.
func NewPreConvertedSampleSource(mixFormat format.AudioFormat, samples []int32) *SampleSource {
	return &SampleSource{fmt: mixFormat, mix: samples, preConverted: true, volume: format.MaxVolume, rate: 1.0}
}

func (s *SampleSource) Format() format.AudioFormat { return s.fmt }

func (s *SampleSource) Length() int {
	if s.preConverted {
		if s.fmt.Channels == 0 {
			return 0
		}
		return len(s.mix) / s.fmt.Channels
	}
	return len(s.data) / s.fmt.FrameSize()
}

func (s *SampleSource) Priority() int       { return s.priority }
func (s *SampleSource) SetPriority(p int)   { s.priority = p }
func (s *SampleSource) Volume() int         { return s.volume }
func (s *SampleSource) SetVolume(v int)     { s.volume = v }
func (s *SampleSource) Rate() float64       { return s.rate }
func (s *SampleSource) SetRate(v float64)   { s.rate = v }
func (s *SampleSource) CanRewind() bool     { return true }
func (s *SampleSource) CanSeek() bool       { return true }

func (s *SampleSource) Position() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

// SetPosition fails with ErrOutOfRange for any position outside the
// source's length, unlike RawSource, which clamps.
func (s *SampleSource) SetPosition(frames int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if frames < 0 || frames > s.Length() {
		return mixererr.ErrOutOfRange
	}
	s.pos = frames
	return nil
}

func (s *SampleSource) Rewind() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = 0
	return nil
}

func (s *SampleSource) ReadBytes(buf []byte, length int) (int, error) {
	if s.preConverted {
		return 0, mixererr.ErrUnsupportedOperation
	}
	frameSize := s.fmt.FrameSize()
	if length%frameSize != 0 {
		return 0, mixererr.ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readBytesLocked(buf, length)
}

// readBytesLocked is ReadBytes's body, factored out so ReadFrames can reuse
// its own scratch buffer within one critical section (s.mu is not
// reentrant).
func (s *SampleSource) readBytesLocked(buf []byte, length int) (int, error) {
	frameSize := s.fmt.FrameSize()
	avail := len(s.data) - s.pos*frameSize
	if avail <= 0 {
		return 0, nil
	}
	n := length
	if n > avail {
		n = avail - (avail % frameSize)
	}
	copy(buf[:n], s.data[s.pos*frameSize:s.pos*frameSize+n])
	s.pos += n / frameSize
	return n, nil
}

func (s *SampleSource) ReadFrames(out []int32, frames int, volume int) (int, error) {
	s.mu.Lock()
	if s.preConverted {
		defer s.mu.Unlock()
		channels := s.fmt.Channels
		avail := len(s.mix)/channels - s.pos
		if avail <= 0 {
			return 0, nil
		}
		n := frames
		if n > avail {
			n = avail
		}
		samples := n * channels
		start := s.pos * channels
		if volume < 0 {
			format.Copy(out, s.mix[start:start+samples], samples)
		} else {
			format.Mix(out, s.mix[start:start+samples], samples, volume)
		}
		s.pos += n
		return n, nil
	}
	defer s.mu.Unlock()

	frameSize := s.fmt.FrameSize()
	need := frames * frameSize
	if cap(s.scratch) < need {
		s.scratch = make([]byte, need)
	}
	buf := s.scratch[:need]
	n, err := s.readBytesLocked(buf, need)
	if err != nil {
		return 0, err
	}
	framesRead := n / frameSize
	samples := framesRead * s.fmt.Channels
	if volume < 0 {
		format.ConvertCopy(out, buf, samples, s.fmt.Format)
	} else {
		format.ConvertMix(out, buf, samples, s.fmt.Format, volume)
	}
	return framesRead, nil
}

func (s *SampleSource) ReadAll() ([]byte, error) {
	if s.preConverted {
		return nil, mixererr.ErrUnsupportedOperation
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(s.data))
	copy(out, s.data)
	return out, nil
}
