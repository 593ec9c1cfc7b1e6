package channel_test

import (
	"testing"
	"time"

	"github.com/kickmix/audiomixer/internal/channel"
	"github.com/kickmix/audiomixer/internal/format"
	"github.com/kickmix/audiomixer/internal/mixererr"
	"github.com/kickmix/audiomixer/internal/source"
)

var stereo16 = format.AudioFormat{Frequency: 44100, Format: format.S16LE, Channels: 2}
var mixerStereo = format.AudioFormat{Frequency: 44100, Format: format.Mixer, Channels: 2}

func newClock(start int64) (func() int64, *int64) {
	t := start
	return func() int64 { return t }, &t
}

func silentSource(frames int) *source.RawSource {
	data := make([]byte, frames*stereo16.FrameSize())
	return source.NewRawSource(stereo16, data, 0, frames)
}

func TestChannelIdleProducesNoSamples(t *testing.T) {
	now, _ := newClock(0)
	ch := channel.New(0, mixerStereo, now)
	acc := make([]int32, 20)
	ch.Mix(acc, 10, nil)
	for i, v := range acc {
		if v != 0 {
			t.Fatalf("expected silence from idle channel, got %d at %d", v, i)
		}
	}
}

func TestChannelBindRejectsLoopOnNonRewindable(t *testing.T) {
	now, _ := newClock(0)
	ch := channel.New(0, mixerStereo, now)
	src := &nonRewindableSource{RawSource: silentSource(100)}
	err := ch.Bind(src, channel.BindOptions{Loops: 2, Volume: format.MaxVolume, Rate: 1})
	if err != mixererr.ErrInvalidArgument {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

type nonRewindableSource struct {
	*source.RawSource
}

func (n *nonRewindableSource) CanRewind() bool { return false }

func TestChannelStopFiresFinishedOnce(t *testing.T) {
	now, _ := newClock(0)
	ch := channel.New(0, mixerStereo, now)
	fired := 0
	ch.AddOnFinished(func(idx int) { fired++ })

	src := silentSource(1000)
	if err := ch.Bind(src, channel.BindOptions{Loops: 0, Volume: format.MaxVolume, Rate: 1}); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	ch.Stop()
	ch.Stop() // idempotent: must not fire twice

	if fired != 1 {
		t.Fatalf("expected finished to fire exactly once, fired %d times", fired)
	}
	if ch.State() != channel.Idle {
		t.Fatalf("expected Idle after stop, got %v", ch.State())
	}
}

func TestChannelTimeoutStopsChannel(t *testing.T) {
	now, clock := newClock(0)
	ch := channel.New(0, mixerStereo, now)
	fired := 0
	ch.AddOnFinished(func(idx int) { fired++ })

	src := silentSource(100000)
	if err := ch.Bind(src, channel.BindOptions{Loops: channel.Infinite, TimeoutMs: 500, Volume: format.MaxVolume, Rate: 1}); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	*clock = 600
	acc := make([]int32, 20)
	ch.Mix(acc, 10, nil)

	if ch.State() != channel.Idle {
		t.Fatalf("expected timeout to stop the channel, got %v", ch.State())
	}
	if fired != 1 {
		t.Fatalf("expected finished to fire once on timeout, fired %d times", fired)
	}
}

func TestChannelEndOfStreamWithoutLoopStops(t *testing.T) {
	now, _ := newClock(0)
	ch := channel.New(0, mixerStereo, now)

	src := silentSource(5) // shorter than one mix pass
	if err := ch.Bind(src, channel.BindOptions{Loops: 0, Volume: format.MaxVolume, Rate: 1}); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	acc := make([]int32, 40)
	ch.Mix(acc, 20, nil)
	ch.Mix(acc, 20, nil)

	if ch.State() != channel.Idle {
		t.Fatalf("expected channel to stop at end of stream with loops=0, got %v", ch.State())
	}
}

func TestChannelPauseResume(t *testing.T) {
	now, _ := newClock(0)
	ch := channel.New(0, mixerStereo, now)
	src := silentSource(1000)
	if err := ch.Bind(src, channel.BindOptions{Volume: format.MaxVolume, Rate: 1}); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	ch.Pause()
	if ch.State() != channel.Paused {
		t.Fatalf("expected Paused, got %v", ch.State())
	}

	acc := make([]int32, 20)
	before := ch.Position()
	ch.Mix(acc, 10, nil)
	if ch.Position() != before {
		t.Fatalf("expected paused channel to not advance position")
	}

	ch.Resume()
	if ch.State() != channel.Playing {
		t.Fatalf("expected Playing after resume, got %v", ch.State())
	}
}

func TestChannelPreConvertedSourceMixesDirectlyAtVolume(t *testing.T) {
	now, _ := newClock(0)
	ch := channel.New(0, mixerStereo, now)

	samples := []int32{1000, -1000, 2000, -2000, 3000, -3000}
	src := source.NewPreConvertedSampleSource(mixerStereo, samples)
	if err := ch.Bind(src, channel.BindOptions{Loops: channel.Infinite, Volume: 128, Rate: 1}); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	acc := make([]int32, 6)
	ch.Mix(acc, 3, nil)

	for i, want := range samples {
		expect := (want * 128) >> 8
		if acc[i] != expect {
			t.Errorf("sample %d: expected %d, got %d", i, expect, acc[i])
		}
	}
}

func TestChannelTellAndDurationReflectSourcePosition(t *testing.T) {
	now, _ := newClock(0)
	ch := channel.New(0, mixerStereo, now)

	if d, ok := ch.Duration(); ok || d != 0 {
		t.Fatalf("expected (0,false) duration while idle, got (%v,%v)", d, ok)
	}

	src := silentSource(44100) // exactly one second at 44100 Hz
	if err := ch.Bind(src, channel.BindOptions{Loops: channel.Infinite, Volume: format.MaxVolume, Rate: 1}); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	d, ok := ch.Duration()
	if !ok || d != time.Second {
		t.Fatalf("expected 1s duration, got %v (ok=%v)", d, ok)
	}

	acc := make([]int32, 88200)
	ch.Mix(acc, 22050, nil) // half a second of frames
	if got := ch.Tell(); got != 500*time.Millisecond {
		t.Fatalf("expected Tell to report 500ms after half a second mixed, got %v", got)
	}
}

func TestChannelLoopRefillsWholeBlock(t *testing.T) {
	now, _ := newClock(0)
	ch := channel.New(0, mixerStereo, now)

	samples := []int32{100, -100, 200, -200} // 2 stereo frames
	src := source.NewPreConvertedSampleSource(mixerStereo, samples)
	if err := ch.Bind(src, channel.BindOptions{Loops: channel.Infinite, Volume: format.MaxVolume, Rate: 1}); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	acc := make([]int32, 16)
	ch.Mix(acc, 8, nil) // four full repeats of the 2-frame source

	for i, v := range acc {
		want := samples[i%len(samples)]
		if v != want {
			t.Fatalf("sample %d: expected looped value %d, got %d", i, want, v)
		}
	}
	if ch.State() != channel.Playing {
		t.Fatalf("expected an infinitely looping channel to keep playing, got %v", ch.State())
	}
}

func TestChannelFiniteLoopStopsAfterRepeats(t *testing.T) {
	now, _ := newClock(0)
	ch := channel.New(0, mixerStereo, now)

	samples := []int32{100, -100} // 1 stereo frame
	src := source.NewPreConvertedSampleSource(mixerStereo, samples)
	if err := ch.Bind(src, channel.BindOptions{Loops: 1, Volume: format.MaxVolume, Rate: 1}); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	acc := make([]int32, 20)
	ch.Mix(acc, 10, nil) // 1 frame + 1 repeat, then loops run out

	if acc[0] != 100 || acc[2] != 100 {
		t.Fatalf("expected the frame and its one repeat mixed in, got %v", acc[:4])
	}
	if acc[4] != 0 {
		t.Fatalf("expected silence after the final repeat, got %d", acc[4])
	}
	if ch.State() != channel.Idle {
		t.Fatalf("expected channel to stop once its repeats ran out, got %v", ch.State())
	}
}

func TestChannelFadeInRampsVolume(t *testing.T) {
	now, clock := newClock(0)
	ch := channel.New(0, mixerStereo, now)

	samples := make([]int32, 4096)
	for i := range samples {
		samples[i] = 1000
	}
	src := source.NewPreConvertedSampleSource(mixerStereo, samples)
	if err := ch.Bind(src, channel.BindOptions{
		Loops: channel.Infinite, Fade: channel.FadeIn, FadeMs: 500,
		Volume: format.MaxVolume, Rate: 1,
	}); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	// Halfway through the fade the scale factor is half the target volume.
	*clock = 250
	acc := make([]int32, 8)
	ch.Mix(acc, 4, nil)
	if acc[0] != (1000*128)>>8 {
		t.Fatalf("expected half-volume samples mid-fade, got %d", acc[0])
	}

	// Past the fade the channel plays at full volume.
	*clock = 600
	for i := range acc {
		acc[i] = 0
	}
	ch.Mix(acc, 4, nil)
	if acc[0] != 1000 {
		t.Fatalf("expected full-volume samples after fade-in completes, got %d", acc[0])
	}
}

func TestChannelFiltersSeeUnityVolume(t *testing.T) {
	now, _ := newClock(0)
	ch := channel.New(0, mixerStereo, now)

	samples := []int32{1000, -1000, 1000, -1000}
	src := source.NewPreConvertedSampleSource(mixerStereo, samples)
	if err := ch.Bind(src, channel.BindOptions{Loops: channel.Infinite, Volume: 64, Rate: 1}); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	var seen int32
	ch.SetFilters([]format.Filter{func(buf []int32, frames int, f format.AudioFormat) {
		seen = buf[0]
	}})

	acc := make([]int32, 4)
	ch.Mix(acc, 2, nil)

	if seen != 1000 {
		t.Fatalf("expected the filter to see the unity-volume sample 1000, got %d", seen)
	}
	if acc[0] != (1000*64)>>8 {
		t.Fatalf("expected the accumulator to receive the volume-scaled sample, got %d", acc[0])
	}
}

func TestChannelFadeOutReachesSilenceAndStops(t *testing.T) {
	now, clock := newClock(0)
	ch := channel.New(0, mixerStereo, now)
	src := silentSource(1_000_000)
	if err := ch.Bind(src, channel.BindOptions{Loops: channel.Infinite, Volume: format.MaxVolume, Rate: 1}); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	ch.FadeOut(500)
	*clock = 600
	acc := make([]int32, 20)
	ch.Mix(acc, 10, nil)

	if ch.State() != channel.Idle {
		t.Fatalf("expected fade-out completion to stop the channel, got %v", ch.State())
	}
}
