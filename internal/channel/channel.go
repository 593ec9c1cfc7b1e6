// Package channel implements a single playback slot: the per-callback "mix
// N frames of my contribution" operation, its fade-in/fade-out envelopes,
// timeout, looping, and the Idle/Playing/Paused state machine. Slots are
// created once at mixer configuration and rebound to new sources as
// playback requests come and go.
package channel

import (
	"sync"
	"time"

	"github.com/kickmix/audiomixer/internal/convcache"
	"github.com/kickmix/audiomixer/internal/format"
	"github.com/kickmix/audiomixer/internal/mixererr"
	"github.com/kickmix/audiomixer/internal/source"
)

// State is one of Idle, Playing, Paused.
type State int

const (
	Idle State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// FadeKind identifies which envelope, if any, is currently in progress.
type FadeKind int

const (
	FadeNone FadeKind = iota
	FadeIn
	FadeOut
)

// Infinite marks an unbounded loop count or timeout.
const Infinite = -1

// Channel is a single playback slot, identified by a stable index in
// [0, N). It is safe for concurrent use: application goroutines and the
// mixer's callback goroutine serialize through mu, matching the
// per-channel lock in the engine's three-level lock hierarchy (mixer-global
// -> per-channel -> per-source).
type Channel struct {
	mu    sync.Mutex
	index int
	now   func() int64 // milliseconds; overridable for deterministic tests

	mixerFormat format.AudioFormat
	cache       *convcache.Cache

	state  State
	source source.Source

	volume int     // channel volume, 0..256
	rate   float64 // channel rate multiplier

	loops     int // remaining repeats, Infinite = -1
	timeoutMs int64

	fade            FadeKind
	fadeStartMs     int64
	fadeDurationMs  int64
	fadeStartVolume int

	position    int // frame offset within the source
	startTimeMs int64

	filters []format.Filter

	onFinished []func(index int)
}

// New creates an idle channel at the given index. now defaults to
// time.Now().UnixMilli when nil.
func New(index int, mixerFormat format.AudioFormat, now func() int64) *Channel {
	if now == nil {
		now = func() int64 { return time.Now().UnixMilli() }
	}
	return &Channel{
		index:       index,
		now:         now,
		mixerFormat: mixerFormat,
		cache:       &convcache.Cache{},
		volume:      format.MaxVolume,
		rate:        1.0,
	}
}

// Index returns the channel's stable slot index.
func (c *Channel) Index() int { return c.index }

// State returns the channel's current lifecycle state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Priority returns the bound source's priority, or the lowest possible
// priority when idle (so idle channels never win a Priority-policy
// eviction contest against anything actually playing).
func (c *Channel) Priority() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Idle || c.source == nil {
		return -1 << 31
	}
	return c.source.Priority()
}

// Age returns milliseconds since the current binding started playing, or 0
// if idle.
func (c *Channel) Age() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Idle {
		return 0
	}
	return c.now() - c.startTimeMs
}

// Tell returns the bound source's current playback position expressed as a
// duration, or 0 if idle. Duration reports the source's total length the
// same way, with ok false when the source's length is unknown.
func (c *Channel) Tell() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Idle || c.source == nil {
		return 0
	}
	return source.Tell(c.source)
}

// Duration returns the bound source's total length as a duration, and
// whether that length is known. Returns (0, false) if idle.
func (c *Channel) Duration() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Idle || c.source == nil {
		return 0, false
	}
	return source.Duration(c.source)
}

// AddOnFinished registers a callback invoked synchronously, under the
// channel's lock, the moment this channel transitions to Idle.
func (c *Channel) AddOnFinished(fn func(index int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFinished = append(c.onFinished, fn)
}

// BindOptions configures a new playback binding.
type BindOptions struct {
	Loops     int   // Infinite = -1
	TimeoutMs int64 // Infinite (or 0, the zero value) = no timeout
	Fade      FadeKind // FadeIn to start with a fade-in envelope, FadeNone otherwise
	FadeMs    int64
	Volume    int // channel volume, 0..256
	Rate      float64
}

// Bind replaces any current binding on this channel: the prior playback (if
// any) is stopped and its finished callbacks fire before the new source
// takes over. A source that cannot rewind may not be bound with a nonzero
// loop count.
func (c *Channel) Bind(src source.Source, opts BindOptions) error {
	if !src.CanRewind() && opts.Loops != 0 {
		return mixererr.ErrInvalidArgument
	}
	if opts.Volume < 0 || opts.Volume > format.MaxVolume {
		return mixererr.ErrOutOfRange
	}
	if opts.Rate < 0 {
		return mixererr.ErrOutOfRange
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Idle {
		c.stopLocked()
	}

	c.source = src
	c.state = Playing
	c.loops = opts.Loops
	c.timeoutMs = opts.TimeoutMs
	if c.timeoutMs <= 0 {
		c.timeoutMs = Infinite
	}
	c.rate = opts.Rate
	if c.rate == 0 {
		c.rate = 1.0
	}
	c.position = 0
	c.startTimeMs = c.now()
	c.cache.Reset()

	switch opts.Fade {
	case FadeIn:
		c.fade = FadeIn
		c.fadeStartMs = c.startTimeMs
		c.fadeDurationMs = opts.FadeMs
		c.fadeStartVolume = 0
		c.volume = opts.Volume
	default:
		c.fade = FadeNone
		c.volume = opts.Volume
	}

	if err := c.cache.Rebuild(src.Format(), c.mixerFormat, c.effectiveRateLocked()); err != nil {
		c.state = Idle
		c.source = nil
		return err
	}
	return nil
}

// SetFilters replaces the channel's per-channel filter chain. Callers
// should treat the slice as immutable afterward; Mix takes a fresh
// reference at callback entry.
func (c *Channel) SetFilters(filters []format.Filter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filters = filters
}

// Volume returns the channel's own volume, 0..256.
func (c *Channel) Volume() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.volume
}

// SetVolume sets the channel's own volume, 0..256.
func (c *Channel) SetVolume(v int) error {
	if v < 0 || v > format.MaxVolume {
		return mixererr.ErrOutOfRange
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.volume = v
	return nil
}

// Rate returns the channel's own rate multiplier.
func (c *Channel) Rate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rate
}

// SetRate sets the channel's own rate multiplier and rebuilds the cached
// conversion descriptor if the effective source frequency snaps to a new
// 50 Hz grid point.
func (c *Channel) SetRate(rate float64) error {
	if rate < 0 {
		return mixererr.ErrOutOfRange
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rate = rate
	if c.source != nil {
		c.cache.SetRate(c.effectiveRateLocked())
	}
	return nil
}

func (c *Channel) effectiveRateLocked() float64 {
	if c.source == nil {
		return c.rate
	}
	r := c.source.Rate() * c.rate
	if r <= 0 {
		return 1.0
	}
	return r
}

// Position returns the current source-relative read position in frames.
func (c *Channel) Position() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}

// SetPosition advises the next mix pass to seek the bound source to the
// given frame offset. It is advisory: the actual seek happens at the start
// of the next Mix call, guarding against another channel concurrently
// repositioning a shared source.
func (c *Channel) SetPosition(frames int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.position = frames
}

// Pause transitions Playing -> Paused. A no-op from any other state.
func (c *Channel) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Playing {
		c.state = Paused
	}
}

// Resume transitions Paused -> Playing. A no-op from any other state.
func (c *Channel) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Paused {
		c.state = Playing
	}
}

// Stop ends the current binding immediately and fires the finished
// callbacks exactly once. A no-op if already Idle.
func (c *Channel) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

// stopLocked transitions to Idle and fires finished handlers. Must be
// called with c.mu held.
func (c *Channel) stopLocked() {
	if c.state == Idle {
		return
	}
	c.state = Idle
	c.source = nil
	c.fade = FadeNone
	handlers := c.onFinished
	idx := c.index
	for _, fn := range handlers {
		fn(idx)
	}
}

// FadeOut begins a linear fade from the current effective volume to 0 over
// ms milliseconds; the channel stops automatically when the fade completes.
func (c *Channel) FadeOut(ms int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Idle {
		return
	}
	c.fade = FadeOut
	c.fadeStartMs = c.now()
	c.fadeDurationMs = ms
	c.fadeStartVolume = c.effectiveVolumeLocked()
}

func (c *Channel) effectiveVolumeLocked() int {
	if c.source == nil {
		return c.volume
	}
	sv := c.source.Volume()
	if sv == format.MaxVolume {
		return c.volume
	}
	return (c.volume * sv) >> 8
}
