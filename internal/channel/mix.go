package channel

import (
	"github.com/kickmix/audiomixer/internal/format"
	"github.com/kickmix/audiomixer/internal/metrics"
)

// Mix reads up to frames frames from the bound source, applies the fade
// envelope and effective volume, runs filters if present, and accumulates
// the result into into. It is a no-op if the channel is Idle or Paused.
// globalPreFilters are supplied by the mixer and run after the channel's
// own filters, against the same post-conversion, unity-volume view of the
// channel's contribution.
func (c *Channel) Mix(into []int32, frames int, globalPreFilters []format.Filter) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Playing {
		return
	}

	effVolume := c.effectiveVolumeLocked()
	effRate := c.effectiveRateLocked()

	now := c.now()

	if c.timeoutMs != Infinite && now-c.startTimeMs > c.timeoutMs {
		c.stopLocked()
		return
	}

	if c.fade != FadeNone {
		elapsed := now - c.fadeStartMs
		if elapsed >= c.fadeDurationMs {
			if c.fade == FadeOut {
				c.stopLocked()
				return
			}
			c.fade = FadeNone
		} else {
			var target int
			if c.fade == FadeOut {
				target = 0
			} else {
				target = c.volume
			}
			if c.fadeDurationMs > 0 {
				effVolume = c.fadeStartVolume + (target-c.fadeStartVolume)*int(elapsed)/int(c.fadeDurationMs)
			} else {
				effVolume = target
			}
		}
	}

	src := c.source
	if src == nil {
		return
	}

	// Reassert position before reading: another channel sharing the same
	// source instance may have repositioned it since our last pass.
	if src.CanSeek() {
		_ = src.SetPosition(c.position)
	}

	cvt := c.cache.Cvt()
	dstCh := c.mixerFormat.Channels
	filters := c.filters
	haveFilters := len(filters) != 0 || len(globalPreFilters) != 0

	direct := cvt != nil && cvt.Src.Equal(c.mixerFormat) && effRate == 1.0

	// Keep reading until the block is filled; a short read means end of
	// stream, which either rewinds (looping) or stops the channel.
	done := 0
	rewound := false
	for done < frames {
		want := frames - done
		var got int
		var readErr error

		if direct {
			if haveFilters {
				buf := c.cache.FilterBuffer(want * dstCh)
				var n int
				n, readErr = src.ReadFrames(buf, want, -1)
				if n > 0 {
					runFilters(buf, n, c.mixerFormat, filters, globalPreFilters)
					format.Mix(into[done*dstCh:], buf[:n*dstCh], n*dstCh, effVolume)
				}
				got = n
			} else {
				var n int
				n, readErr = src.ReadFrames(into[done*dstCh:], want, effVolume)
				got = n
			}
		} else {
			srcFrames := want
			if cvt != nil {
				srcFrames = cvt.SourceFramesFor(want)
			}
			if srcFrames == 0 {
				// Rate snapped the source frequency down to zero: the
				// channel contributes nothing this callback but stays bound.
				break
			}
			raw := c.cache.RawBuffer(srcFrames * src.Format().FrameSize())
			var gotBytes int
			gotBytes, readErr = src.ReadBytes(raw, len(raw))
			gotSrcFrames := 0
			if fs := src.Format().FrameSize(); fs > 0 {
				gotSrcFrames = gotBytes / fs
			}

			converted, n := c.cache.Process(raw, gotSrcFrames, dstCh, want)
			if n > 0 {
				if haveFilters {
					runFilters(converted, n, c.mixerFormat, filters, globalPreFilters)
				}
				format.Mix(into[done*dstCh:], converted[:n*dstCh], n*dstCh, effVolume)
			}
			if gotSrcFrames >= srcFrames {
				got = n
			} else {
				// Partial read: count what came out, then fall through to
				// the end-of-stream handling below.
				done += n
				if n > 0 {
					rewound = false
				}
				got = 0
			}
		}

		if readErr != nil {
			// A failed read stops this channel; the callback carries on
			// with silence for it.
			c.stopLocked()
			return
		}

		if got == 0 {
			metrics.RecordUnderrun()
			if c.loops == 0 || rewound {
				// rewound guards against a source that stays empty after
				// Rewind: stop rather than spin inside the callback.
				c.stopLocked()
				return
			}
			_ = src.Rewind()
			c.position = 0
			rewound = true
			if c.loops != Infinite {
				c.loops--
			}
			continue
		}
		rewound = false
		done += got
	}

	c.position = src.Position()
}

// runFilters invokes the channel's own filters followed by the global
// pre-filter chain, all against the same post-conversion, unity-volume
// view of buf.
func runFilters(buf []int32, frames int, fmtInfo format.AudioFormat, own []format.Filter, global []format.Filter) {
	for _, f := range own {
		f(buf, frames, fmtInfo)
	}
	for _, f := range global {
		f(buf, frames, fmtInfo)
	}
}
