package format

import (
	"fmt"
	"math"

	"github.com/kickmix/audiomixer/internal/mixererr"
)

// ErrUnsupportedMixerConversion is returned by SetupCvt when asked to
// convert between two distinct Mixer-tagged formats, which is nonsensical
// (the Mixer format is a single canonical 32-bit representation). It wraps
// mixererr.ErrUnsupportedOperation.
var ErrUnsupportedMixerConversion = fmt.Errorf("format: conversion between distinct mixer formats: %w", mixererr.ErrUnsupportedOperation)

// RateSnapGrid is the Hz granularity rate-adjusted source frequencies are
// snapped to, per the engine's rate-conversion stabilization rule: small,
// continuous changes to playback rate collapse onto the same resampling
// descriptor instead of rebuilding it every callback.
const RateSnapGrid = 50

// Cvt is a resampling/reformatting descriptor built once at channel bind
// time (and rebuilt only when the effective playback rate crosses onto a
// new 50 Hz grid point). Mul/Div describe the frame-length ratio:
// outputFrames = inputFrames * Mul / Div.
type Cvt struct {
	Src AudioFormat
	Dst AudioFormat // always dst.Format == Mixer

	rate             float64
	effectiveSrcFreq int
	Mul, Div         int
}

// SetupCvt builds a Cvt converting src (any encoding) to dst (must be the
// mixer format) at the given playback rate. rate <= 0 is treated as 1.0.
func SetupCvt(src, dst AudioFormat, rate float64) (*Cvt, error) {
	if src.IsMixerFormat() && dst.IsMixerFormat() && !src.Equal(dst) {
		return nil, ErrUnsupportedMixerConversion
	}
	if rate <= 0 {
		rate = 1.0
	}
	c := &Cvt{Src: src, Dst: dst, rate: rate}
	c.rebuild()
	return c, nil
}

// Rate reports the playback rate this descriptor was built for.
func (c *Cvt) Rate() float64 { return c.rate }

// SetRate rebuilds the descriptor for a new playback rate, unless the new
// rate snaps to the same effective source frequency, in which case it is a
// no-op (this is what makes "consecutive sub-unit rate changes collapse to
// the same key" true in practice).
func (c *Cvt) SetRate(rate float64) {
	if rate <= 0 {
		rate = 1.0
	}
	if rate == c.rate || snapFrequency(c.Src.Frequency, rate) == c.effectiveSrcFreq {
		return
	}
	c.rate = rate
	c.rebuild()
}

func (c *Cvt) rebuild() {
	freq := snapFrequency(c.Src.Frequency, c.rate)
	c.effectiveSrcFreq = freq
	if freq <= 0 {
		c.Mul, c.Div = 0, 1
		return
	}
	if c.Src.Equal(c.Dst) && c.rate == 1.0 {
		c.Mul, c.Div = 1, 1
		return
	}
	mul, div := c.Dst.Frequency, freq
	g := gcd(mul, div)
	if g > 0 {
		mul /= g
		div /= g
	}
	c.Mul, c.Div = mul, div
}

// snapFrequency adjusts srcFreq by rate and snaps the result to the
// nearest RateSnapGrid multiple (e.g. rate=1.001 at 44100 Hz snaps to
// 44150 Hz: 44100*1.001/50 = 882.882, which rounds to 883*50).
func snapFrequency(srcFreq int, rate float64) int {
	if rate == 1.0 {
		return srcFreq
	}
	adjusted := float64(srcFreq) * rate
	snapped := int(math.Round(adjusted/RateSnapGrid)) * RateSnapGrid
	return snapped
}

func gcd(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	for b != 0 {
		a, b = b, a%b
	}
	if a < 0 {
		return -a
	}
	return a
}

// SourceFramesFor returns how many whole source frames are needed to
// produce at least wantFrames destination frames: wantFrames * Div / Mul,
// rounded up to a whole source frame.
func (c *Cvt) SourceFramesFor(wantFrames int) int {
	if c.Mul == 0 {
		return 0
	}
	n := (wantFrames*c.Div + c.Mul - 1) / c.Mul
	if n < 0 {
		n = 0
	}
	return n
}

// OutputFrames returns how many destination frames srcFrames of source
// audio produce under this descriptor.
func (c *Cvt) OutputFrames(srcFrames int) int {
	if c.Div == 0 {
		return 0
	}
	return srcFrames * c.Mul / c.Div
}

// Process converts raw source-format bytes (srcFrames worth) into the
// mixer's 32-bit representation, writing dstFrames*Dst.Channels samples
// into dest (which must be at least that long) and returning dstFrames.
// scratch and chScratch are caller-owned working storage (see
// internal/convcache) reused across calls to avoid allocating on the
// steady-state mix path; Process grows them when they are too small and
// never shrinks them.
func (c *Cvt) Process(dest []int32, raw []byte, srcFrames int, scratch, chScratch *[]int32) int {
	if c.effectiveSrcFreq <= 0 || srcFrames <= 0 {
		return 0
	}

	srcCh := c.Src.Channels
	dstCh := c.Dst.Channels
	need := srcFrames * srcCh
	if cap(*scratch) < need {
		*scratch = make([]int32, need)
	}
	decoded := (*scratch)[:need]
	for i := 0; i < need; i++ {
		decoded[i] = readSample(raw, i, c.Src.Format)
	}

	adjusted := channelAdjust(decoded, srcFrames, srcCh, dstCh, chScratch)

	if c.effectiveSrcFreq == c.Dst.Frequency {
		n := copy(dest, adjusted)
		return n / dstCh
	}
	return resampleLinear(dest, adjusted, srcFrames, dstCh, c.effectiveSrcFreq, c.Dst.Frequency)
}

// channelAdjust maps interleaved samples from srcCh channels to dstCh
// channels. A mono source is duplicated into every destination channel and
// a mono destination receives the average of all source channels. For any
// other pair, the minimum of the two channel counts is copied straight
// across and any extra destination channels are filled with the first
// source channel (a conservative, documented fallback). out is caller-owned
// scratch, grown but never shrunk, so this never allocates on the
// steady-state mix path even when src and dst channel counts differ (the
// common mono-source-into-stereo-mixer case).
func channelAdjust(src []int32, frames, srcCh, dstCh int, scratch *[]int32) []int32 {
	if srcCh == dstCh {
		return src
	}
	need := frames * dstCh
	if cap(*scratch) < need {
		*scratch = make([]int32, need)
	}
	out := (*scratch)[:need]
	switch {
	case srcCh == 1:
		for f := 0; f < frames; f++ {
			v := src[f]
			for c := 0; c < dstCh; c++ {
				out[f*dstCh+c] = v
			}
		}
	case dstCh == 1:
		for f := 0; f < frames; f++ {
			var sum int64
			for c := 0; c < srcCh; c++ {
				sum += int64(src[f*srcCh+c])
			}
			out[f] = int32(sum / int64(srcCh))
		}
	default:
		m := srcCh
		if dstCh < m {
			m = dstCh
		}
		for f := 0; f < frames; f++ {
			for c := 0; c < m; c++ {
				out[f*dstCh+c] = src[f*srcCh+c]
			}
			for c := m; c < dstCh; c++ {
				out[f*dstCh+c] = src[f*srcCh]
			}
		}
	}
	return out
}

// resampleLinear performs time-invariant linear-interpolation resampling
// from srcFreq to dstFreq. Linear interpolation keeps the converter cheap
// and deterministic without an external DSP dependency; callers that need
// higher fidelity resample before handing audio to the engine.
func resampleLinear(dest []int32, src []int32, srcFrames, channels, srcFreq, dstFreq int) int {
	if srcFrames == 0 || srcFreq <= 0 {
		return 0
	}
	outFrames := srcFrames * dstFreq / srcFreq
	if outFrames*channels > len(dest) {
		outFrames = len(dest) / channels
	}
	step := float64(srcFreq) / float64(dstFreq)
	pos := 0.0
	for f := 0; f < outFrames; f++ {
		idx := int(pos)
		frac := pos - float64(idx)
		for c := 0; c < channels; c++ {
			a := src[idx*channels+c]
			var b int32
			if idx+1 < srcFrames {
				b = src[(idx+1)*channels+c]
			} else {
				b = a
			}
			dest[f*channels+c] = int32(float64(a) + (float64(b)-float64(a))*frac)
		}
		pos += step
	}
	return outFrames
}

func (c *Cvt) String() string {
	return fmt.Sprintf("Cvt{%v(rate=%.4f,snap=%dHz) -> %v, %d/%d}", c.Src, c.rate, c.effectiveSrcFreq, c.Dst, c.Mul, c.Div)
}
