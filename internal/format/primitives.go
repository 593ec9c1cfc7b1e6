package format

import "math"

// MaxVolume is unity gain for the 0..256 volume scale used throughout the
// engine (256 == ×1.0, matching SDL_mixer's MIX_MAX_VOLUME convention).
const MaxVolume = 256

// Mix accumulates n samples of src, scaled by volume (0..256), into dest
// using saturating addition. dest and src must each have at least n
// elements. Mix and ConvertMix are the accumulating primitives; callers
// that want "replace" semantics use Copy or ConvertCopy instead.
func Mix(dest, src []int32, n int, volume int) {
	if volume <= 0 {
		return
	}
	if volume >= MaxVolume {
		for i := 0; i < n; i++ {
			dest[i] = saturatingAdd(dest[i], src[i])
		}
		return
	}
	for i := 0; i < n; i++ {
		scaled := (int64(src[i]) * int64(volume)) >> 8
		dest[i] = saturatingAdd(dest[i], int32(scaled))
	}
}

// Copy overwrites dest[:n] with src[:n] (no accumulation).
func Copy(dest, src []int32, n int) {
	copy(dest[:n], src[:n])
}

// ScaleInPlace attenuates buf[:n] by volume (0..256) in place. Used to apply
// the mixer's master volume to the finished accumulator; a pure scale-down
// never needs saturation since volume <= MaxVolume.
func ScaleInPlace(buf []int32, n int, volume int) {
	if volume >= MaxVolume {
		return
	}
	if volume <= 0 {
		for i := 0; i < n; i++ {
			buf[i] = 0
		}
		return
	}
	for i := 0; i < n; i++ {
		buf[i] = int32((int64(buf[i]) * int64(volume)) >> 8)
	}
}

func saturatingAdd(a, b int32) int32 {
	sum := int64(a) + int64(b)
	if sum > math.MaxInt32 {
		return math.MaxInt32
	}
	if sum < math.MinInt32 {
		return math.MinInt32
	}
	return int32(sum)
}

// ConvertMix reads n samples of srcFormat from src, widens them to 32-bit
// signed (sign-extending, applying the unsigned zero-point offset, and
// byte-swapping non-host-order samples), scales by volume and
// saturating-adds the result into dest. src must hold at least
// n*srcFormat.BitDepth()/8 bytes.
func ConvertMix(dest []int32, src []byte, n int, srcFormat SampleFormat, volume int) {
	if volume <= 0 {
		return
	}
	for i := 0; i < n; i++ {
		sample := readSample(src, i, srcFormat)
		if volume >= MaxVolume {
			dest[i] = saturatingAdd(dest[i], sample)
			continue
		}
		scaled := (int64(sample) * int64(volume)) >> 8
		dest[i] = saturatingAdd(dest[i], int32(scaled))
	}
}

// ConvertCopy reads n samples of srcFormat from src, widens them to 32-bit
// signed and overwrites dest (no accumulation, no volume scaling). Used
// when a caller wants the plain widened samples for later filter
// processing rather than an immediate scaled mix.
func ConvertCopy(dest []int32, src []byte, n int, srcFormat SampleFormat) {
	for i := 0; i < n; i++ {
		dest[i] = readSample(src, i, srcFormat)
	}
}

// ConvertAcc is the inverse of ConvertMix: it reads n 32-bit accumulator
// samples from src and writes them into dest as destFormat samples, with
// saturation to the target bit depth and the signed/unsigned offset
// re-applied. dest must hold at least n*destFormat.BitDepth()/8 bytes.
func ConvertAcc(dest []byte, src []int32, n int, destFormat SampleFormat) {
	for i := 0; i < n; i++ {
		writeSample(dest, i, destFormat, src[i])
	}
}

func readSample(src []byte, i int, f SampleFormat) int32 {
	switch f {
	case U8:
		return int32(src[i]) - 128
	case S8:
		return int32(int8(src[i]))
	case U16LE:
		v := uint16(src[i*2]) | uint16(src[i*2+1])<<8
		return int32(v) - 32768
	case U16BE:
		v := uint16(src[i*2+1]) | uint16(src[i*2])<<8
		return int32(v) - 32768
	case S16LE:
		v := uint16(src[i*2]) | uint16(src[i*2+1])<<8
		return int32(int16(v))
	case S16BE:
		v := uint16(src[i*2+1]) | uint16(src[i*2])<<8
		return int32(int16(v))
	case Mixer:
		off := i * 4
		v := uint32(src32le(src, off))
		return int32(v)
	default:
		return 0
	}
}

func src32le(b []byte, off int) uint32 {
	return uint32(b[off]) | uint32(b[off+1])<<8 | uint32(b[off+2])<<16 | uint32(b[off+3])<<24
}

func writeSample(dest []byte, i int, f SampleFormat, v int32) {
	switch f {
	case U8:
		s := clamp32(v, -128, 127)
		dest[i] = byte(s + 128)
	case S8:
		s := clamp32(v, -128, 127)
		dest[i] = byte(int8(s))
	case U16LE:
		s := clamp32(v, -32768, 32767)
		u := uint16(s + 32768)
		dest[i*2] = byte(u)
		dest[i*2+1] = byte(u >> 8)
	case U16BE:
		s := clamp32(v, -32768, 32767)
		u := uint16(s + 32768)
		dest[i*2] = byte(u >> 8)
		dest[i*2+1] = byte(u)
	case S16LE:
		s := clamp32(v, -32768, 32767)
		u := uint16(int16(s))
		dest[i*2] = byte(u)
		dest[i*2+1] = byte(u >> 8)
	case S16BE:
		s := clamp32(v, -32768, 32767)
		u := uint16(int16(s))
		dest[i*2] = byte(u >> 8)
		dest[i*2+1] = byte(u)
	case Mixer:
		off := i * 4
		u := uint32(v)
		dest[off] = byte(u)
		dest[off+1] = byte(u >> 8)
		dest[off+2] = byte(u >> 16)
		dest[off+3] = byte(u >> 24)
	}
}

func clamp32(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
