// Package vorbissource adapts an Ogg/Vorbis stream, decoded with
// github.com/gopxl/beep and github.com/jfreymuth/oggvorbis (via
// beep/vorbis), to the engine's Source interface: a decoded source any
// channel can bind, with seek/rewind support wherever the underlying
// beep.StreamSeeker allows it.
package vorbissource

import (
	"io"
	"sync"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/vorbis"

	"github.com/kickmix/audiomixer/internal/format"
	"github.com/kickmix/audiomixer/internal/mixererr"
)

// Source streams decoded Ogg/Vorbis PCM. It reports its Format as the
// engine's Mixer tag at the decoder's native channel count (always stereo
// for beep) and the target sample rate it was resampled to at load time —
// a Channel binds it like any other Source and the mixer's own conversion
// cache handles any further rate/format adaptation needed for the current
// mixer format.
type Source struct {
	mu sync.Mutex

	streamer beep.StreamSeekCloser
	decoded  beep.Streamer // resampled view, or streamer itself if rates match
	fmt      format.AudioFormat
	pos      int

	priority int
	volume   int
	rate     float64

	scratch     [][2]float64
	convScratch []int32 // ReadBytes/ReadFrames staging buffer, grown monotonically
}

// New decodes r as Ogg/Vorbis and resamples it (if necessary) to
// targetRate. r is closed when the returned Source is closed via its
// underlying beep.StreamSeekCloser — callers that need the file handle
// closed should wrap r accordingly before calling New.
func New(r io.ReadCloser, targetRate int) (*Source, error) {
	streamer, beepFmt, err := vorbis.Decode(r)
	if err != nil {
		return nil, err
	}
	var decoded beep.Streamer = streamer
	if targetRate > 0 && int(beepFmt.SampleRate) != targetRate {
		decoded = beep.Resample(4, beepFmt.SampleRate, beep.SampleRate(targetRate), streamer)
	} else if targetRate <= 0 {
		targetRate = int(beepFmt.SampleRate)
	}
	return &Source{
		streamer: streamer,
		decoded:  decoded,
		fmt:      format.AudioFormat{Frequency: targetRate, Format: format.Mixer, Channels: 2},
		volume:   format.MaxVolume,
		rate:     1.0,
	}, nil
}

func (s *Source) Format() format.AudioFormat { return s.fmt }

// Length is unknown: beep's streaming decoder does not report total frame
// count cheaply for Vorbis without a full scan, and a Channel only needs
// "unknown" to disable ReadAll.
func (s *Source) Length() int { return -1 }

func (s *Source) Priority() int        { return s.priority }
func (s *Source) SetPriority(p int)    { s.priority = p }
func (s *Source) Volume() int          { return s.volume }
func (s *Source) SetVolume(v int)      { s.volume = v }
func (s *Source) Rate() float64        { return s.rate }
func (s *Source) SetRate(v float64)    { s.rate = v }
func (s *Source) CanRewind() bool { return true }

func (s *Source) CanSeek() bool {
	_, ok := any(s.streamer).(beep.StreamSeeker)
	return ok
}

func (s *Source) Position() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

func (s *Source) SetPosition(frames int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	seeker, ok := any(s.streamer).(beep.StreamSeeker)
	if !ok {
		return mixererr.ErrInvalidArgument
	}
	if frames < 0 {
		frames = 0
	}
	if err := seeker.Seek(frames); err != nil {
		return err
	}
	s.pos = frames
	return nil
}

func (s *Source) Rewind() error {
	return s.SetPosition(0)
}

func (s *Source) ReadBytes(buf []byte, length int) (int, error) {
	n := length / s.fmt.SampleSize()
	frames := n / s.fmt.Channels
	samples := s.convScratchBuffer(n)
	got, err := s.decodeInto(samples, frames)
	if err != nil {
		return 0, err
	}
	format.ConvertAcc(buf, samples, got*s.fmt.Channels, format.Mixer)
	return got * s.fmt.FrameSize(), nil
}

func (s *Source) ReadFrames(out []int32, frames int, volume int) (int, error) {
	samples := frames * s.fmt.Channels
	tmp := s.convScratchBuffer(samples)
	got, err := s.decodeInto(tmp, frames)
	if err != nil {
		return 0, err
	}
	n := got * s.fmt.Channels
	if volume < 0 {
		format.Copy(out, tmp, n)
	} else {
		format.Mix(out, tmp, n, volume)
	}
	return got, nil
}

// convScratchBuffer returns a cache-owned int32 buffer of at least n
// samples, growing the backing array if needed rather than allocating fresh
// on every ReadBytes/ReadFrames call.
func (s *Source) convScratchBuffer(n int) []int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cap(s.convScratch) < n {
		s.convScratch = make([]int32, n)
	}
	return s.convScratch[:n]
}

func (s *Source) decodeInto(dest []int32, frames int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cap(s.scratch) < frames {
		s.scratch = make([][2]float64, frames)
	}
	buf := s.scratch[:frames]
	n, ok := s.decoded.Stream(buf)
	for i := 0; i < n; i++ {
		dest[i*2] = floatToInt32(buf[i][0])
		dest[i*2+1] = floatToInt32(buf[i][1])
	}
	s.pos += n
	if !ok && n == 0 {
		return 0, nil
	}
	return n, nil
}

// floatToInt32 maps beep's -1.0..1.0 float samples onto the same ±32767
// magnitude convention the engine's 16-bit sources use, so a Vorbis
// channel and a WAV channel mixed together balance the way their original
// material intended.
func floatToInt32(v float64) int32 {
	scaled := v * 32767.0
	if scaled > 32767 {
		scaled = 32767
	} else if scaled < -32768 {
		scaled = -32768
	}
	return int32(scaled)
}

func (s *Source) ReadAll() ([]byte, error) {
	return nil, mixererr.ErrUnsupportedOperation
}

// Close releases the underlying decoder.
func (s *Source) Close() error {
	return s.streamer.Close()
}
