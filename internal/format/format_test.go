package format_test

import (
	"math"
	"testing"

	"github.com/kickmix/audiomixer/internal/format"
)

func TestMixSaturates(t *testing.T) {
	dest := []int32{math.MaxInt32 - 10}
	src := []int32{100}
	format.Mix(dest, src, 1, format.MaxVolume)
	if dest[0] != math.MaxInt32 {
		t.Fatalf("expected saturation to MaxInt32, got %d", dest[0])
	}
}

func TestMixUnityIsNoVolumeChange(t *testing.T) {
	dest := []int32{10}
	src := []int32{5}
	format.Mix(dest, src, 1, format.MaxVolume)
	if dest[0] != 15 {
		t.Fatalf("expected 15, got %d", dest[0])
	}
}

func TestMixHalfVolume(t *testing.T) {
	dest := []int32{0}
	src := []int32{256}
	format.Mix(dest, src, 1, 128)
	if dest[0] != 128 {
		t.Fatalf("expected 128 at half volume, got %d", dest[0])
	}
}

func TestConvertMixAccRoundTrip(t *testing.T) {
	formats := []format.SampleFormat{format.U8, format.S8, format.U16LE, format.U16BE, format.S16LE, format.S16BE}
	for _, f := range formats {
		size := f.BitDepth() / 8
		raw := make([]byte, size)
		var want int32
		switch f {
		case format.U8:
			raw[0] = 200
			want = 200 - 128
		case format.S8:
			s8 := int8(-50)
			raw[0] = byte(s8)
			want = -50
		case format.U16LE, format.U16BE, format.S16LE, format.S16BE:
			want = 12345
		}
		if f == format.U16LE || f == format.S16LE {
			u := uint16(want)
			if f == format.U16LE {
				u = uint16(want + 32768)
			}
			raw[0] = byte(u)
			raw[1] = byte(u >> 8)
		}
		if f == format.U16BE || f == format.S16BE {
			u := uint16(want)
			if f == format.U16BE {
				u = uint16(want + 32768)
			}
			raw[0] = byte(u >> 8)
			raw[1] = byte(u)
		}

		dest := make([]int32, 1)
		format.ConvertMix(dest, raw, 1, f, format.MaxVolume)
		if dest[0] != want {
			t.Fatalf("%v: convert_mix got %d want %d", f, dest[0], want)
		}

		back := make([]byte, size)
		format.ConvertAcc(back, dest, 1, f)
		for i := range raw {
			if raw[i] != back[i] {
				t.Fatalf("%v: round trip mismatch at byte %d: %v vs %v", f, i, raw, back)
			}
		}
	}
}

func TestSetupCvtRejectsMixerToMixerMismatch(t *testing.T) {
	a := format.AudioFormat{Frequency: 44100, Format: format.Mixer, Channels: 2}
	b := format.AudioFormat{Frequency: 22050, Format: format.Mixer, Channels: 2}
	if _, err := format.SetupCvt(a, b, 1.0); err == nil {
		t.Fatal("expected error converting between distinct mixer formats")
	}
}

func TestSetupCvtIdentityIsUnityRatio(t *testing.T) {
	f := format.AudioFormat{Frequency: 44100, Format: format.Mixer, Channels: 2}
	c, err := format.SetupCvt(f, f, 1.0)
	if err != nil {
		t.Fatal(err)
	}
	if c.Mul != 1 || c.Div != 1 {
		t.Fatalf("expected 1/1 ratio for identity conversion, got %d/%d", c.Mul, c.Div)
	}
}

// A 44100 Hz mono source played at rate 1.001 must snap to 44150 Hz and
// consume 4415 source frames to produce 4410 mixer frames.
func TestRateSnap(t *testing.T) {
	src := format.AudioFormat{Frequency: 44100, Format: format.S16LE, Channels: 1}
	dst := format.AudioFormat{Frequency: 44100, Format: format.Mixer, Channels: 1}
	c, err := format.SetupCvt(src, dst, 1.001)
	if err != nil {
		t.Fatal(err)
	}
	want := 4415
	got := c.SourceFramesFor(4410)
	if got != want {
		t.Fatalf("expected %d source frames consumed, got %d", want, got)
	}
}

func TestZeroSnapFrequencyProducesNoSamples(t *testing.T) {
	src := format.AudioFormat{Frequency: 10, Format: format.S16LE, Channels: 1}
	dst := format.AudioFormat{Frequency: 44100, Format: format.Mixer, Channels: 1}
	// rate small enough that the snapped frequency rounds to 0
	c, err := format.SetupCvt(src, dst, 0.01)
	if err != nil {
		t.Fatal(err)
	}
	dest := make([]int32, 16)
	var scratch, chScratch []int32
	n := c.Process(dest, make([]byte, 32), 8, &scratch, &chScratch)
	if n != 0 {
		t.Fatalf("expected zero frames produced at snapped-to-zero frequency, got %d", n)
	}
}
