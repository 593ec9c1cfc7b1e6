// Package aacsource adapts github.com/llehouerou/go-aac, a pure Go AAC/ADTS
// decoder, to the engine's Source interface. It is the engine's second
// decoder-backed source alongside vorbissource; both are opaque frame
// producers behind the same contract.
package aacsource

import (
	"io"

	"github.com/llehouerou/go-aac"

	"github.com/kickmix/audiomixer/internal/format"
	"github.com/kickmix/audiomixer/internal/mixererr"
)

// Source decodes a complete in-memory ADTS/AAC byte stream frame by frame.
// It reports the decoder's native sample rate and channel count, and
// leaves format conversion to the mixer's own conversion cache. The sample
// encoding is always reported as S16LE, whatever the decoder's own output
// type.
type Source struct {
	dec  *aac.Decoder
	data []byte
	off  int // byte offset of the next undecoded frame

	fmt      format.AudioFormat
	posFrame int // decoded PCM frames produced so far, used for Position()

	priority int
	volume   int
	rate     float64

	frameScratch []int32 // nextFrame's widened-sample staging buffer
	byteScratch  []int32 // ReadBytes's staging buffer for the ReadFrames detour
	pending      []int32 // tail of a decoded frame the previous read didn't consume
}

// New decodes enough of data's leading frames to learn the stream's sample
// rate and channel count, then returns a Source ready to stream the rest.
func New(data []byte) (*Source, error) {
	dec := aac.NewDecoder()
	s := &Source{dec: dec, data: data, volume: format.MaxVolume, rate: 1.0}

	for s.off < len(data) {
		_, info, err := dec.Decode(data[s.off:])
		if err != nil {
			dec.Close()
			return nil, err
		}
		if info == nil || info.BytesConsumed == 0 {
			break
		}
		s.off += int(info.BytesConsumed)
		if dec.SampleRate() > 0 && dec.Channels() > 0 {
			s.fmt = format.AudioFormat{
				Frequency: int(dec.SampleRate()),
				Format:    format.S16LE,
				Channels:  int(dec.Channels()),
			}
			return s, nil
		}
	}
	dec.Close()
	return nil, mixererr.ErrInvalidArgument
}

func (s *Source) Format() format.AudioFormat { return s.fmt }

// Length is unknown: ADTS streams carry no total-sample count header.
func (s *Source) Length() int { return -1 }

func (s *Source) Priority() int     { return s.priority }
func (s *Source) SetPriority(p int) { s.priority = p }
func (s *Source) Volume() int       { return s.volume }
func (s *Source) SetVolume(v int)   { s.volume = v }
func (s *Source) Rate() float64     { return s.rate }
func (s *Source) SetRate(v float64) { s.rate = v }

// CanRewind is true: the whole stream is held in memory, so restarting
// decode from byte 0 is always possible.
func (s *Source) CanRewind() bool { return true }

// CanSeek is false: ADTS frames have no random-access index, so arbitrary
// frame-accurate seeking is not supported, and at most one channel may
// hold this source at a time.
func (s *Source) CanSeek() bool { return false }

func (s *Source) Position() int { return s.posFrame }

func (s *Source) SetPosition(int) error {
	return mixererr.ErrInvalidArgument
}

func (s *Source) Rewind() error {
	s.dec.Close()
	s.dec = aac.NewDecoder()
	s.off = 0
	s.posFrame = 0
	s.pending = s.pending[:0]
	return nil
}

func (s *Source) nextFrame() ([]int32, int, error) {
	if s.off >= len(s.data) {
		return nil, 0, nil
	}
	samples, info, err := s.dec.Decode(s.data[s.off:])
	if err != nil {
		return nil, 0, err
	}
	if info == nil || info.BytesConsumed == 0 {
		s.off = len(s.data)
		return nil, 0, nil
	}
	s.off += int(info.BytesConsumed)

	switch v := samples.(type) {
	case []int16:
		out := s.frameScratchBuffer(len(v))
		for i, x := range v {
			out[i] = int32(x)
		}
		frames := 0
		if s.fmt.Channels > 0 {
			frames = len(out) / s.fmt.Channels
		}
		return out, frames, nil
	case []float32:
		out := s.frameScratchBuffer(len(v))
		for i, x := range v {
			out[i] = int32(x * 32767.0)
		}
		frames := 0
		if s.fmt.Channels > 0 {
			frames = len(out) / s.fmt.Channels
		}
		return out, frames, nil
	default:
		// First frames routinely decode to zero output samples because of
		// the codec's overlap-add delay; treat anything else unrecognized
		// the same way rather than failing the channel outright.
		return nil, 0, nil
	}
}

// frameScratchBuffer returns a reusable int32 buffer of at least n elements,
// growing the backing array if needed. CanSeek is false for this source, so
// at most one channel ever binds it at a time and this buffer needs no
// locking.
func (s *Source) frameScratchBuffer(n int) []int32 {
	if cap(s.frameScratch) < n {
		s.frameScratch = make([]int32, n)
	}
	return s.frameScratch[:n]
}

func (s *Source) ReadFrames(out []int32, frames int, volume int) (int, error) {
	ch := s.fmt.Channels
	if ch <= 0 {
		return 0, mixererr.ErrInvalidArgument
	}
	got := 0
	for got < frames {
		if len(s.pending) > 0 {
			// Drain the tail of a decoded frame left over from the
			// previous read before asking the decoder for more.
			n := len(s.pending) / ch
			if got+n > frames {
				n = frames - got
			}
			emit(out[got*ch:(got+n)*ch], s.pending[:n*ch], volume)
			s.pending = append(s.pending[:0], s.pending[n*ch:]...)
			got += n
			s.posFrame += n
			continue
		}
		samples, n, err := s.nextFrame()
		if err != nil {
			return got, err
		}
		if n == 0 {
			break
		}
		if got+n > frames {
			keep := got + n - frames
			n = frames - got
			s.pending = append(s.pending[:0], samples[n*ch:(n+keep)*ch]...)
		}
		emit(out[got*ch:(got+n)*ch], samples[:n*ch], volume)
		got += n
		s.posFrame += n
	}
	return got, nil
}

func emit(dst, src []int32, volume int) {
	if volume < 0 {
		format.Copy(dst, src, len(src))
	} else {
		format.Mix(dst, src, len(src), volume)
	}
}

func (s *Source) ReadBytes(buf []byte, length int) (int, error) {
	frameSize := s.fmt.FrameSize()
	if frameSize == 0 || length%frameSize != 0 {
		return 0, mixererr.ErrInvalidArgument
	}
	wantFrames := length / frameSize
	need := wantFrames * s.fmt.Channels
	if cap(s.byteScratch) < need {
		s.byteScratch = make([]int32, need)
	}
	tmp := s.byteScratch[:need]
	got, err := s.ReadFrames(tmp, wantFrames, -1)
	if err != nil {
		return 0, err
	}
	format.ConvertAcc(buf, tmp, got*s.fmt.Channels, s.fmt.Format)
	return got * frameSize, nil
}

func (s *Source) ReadAll() ([]byte, error) {
	return nil, mixererr.ErrUnsupportedOperation
}

func (s *Source) Close() error {
	s.dec.Close()
	return nil
}

var _ io.Closer = (*Source)(nil)
