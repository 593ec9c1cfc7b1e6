// Package mixer is the public front door of the engine: Engine is the
// process-wide coordinator — initialization, the channel array,
// reservations, groups, admission policy, global filter chains, and the
// device callback entry point.
package mixer

import (
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/kickmix/audiomixer/config"
	"github.com/kickmix/audiomixer/internal/channel"
	"github.com/kickmix/audiomixer/internal/format"
	"github.com/kickmix/audiomixer/internal/mixererr"
	"github.com/kickmix/audiomixer/internal/source"
)

// Boundary constants shared with callers.
const (
	FreeChannel = -1
	Infinite    = channel.Infinite
	MaxVolume   = format.MaxVolume
)

type groupSlot struct {
	used     bool
	channels map[int]bool
}

// Engine is the process-wide mixer coordinator. The zero value is not
// usable; construct with New.
type Engine struct {
	mu sync.Mutex

	initialized bool
	format      format.AudioFormat
	bufferMs    int

	channels []*channel.Channel
	reserved int

	groups []groupSlot

	preFilters  []format.Filter
	postFilters []format.Filter

	playPolicy config.PlayPolicy
	mixPolicy  config.MixPolicy

	masterVolume int

	onChannelFinished []func(index int)

	postMixHook func(buf []int32, frames int, fmtInfo format.AudioFormat)

	admissionLimiters sync.Map // map[source.Source]*rate.Limiter
	admissionRate     rate.Limit
	admissionBurst    int

	now func() int64

	lastCallbackDuration time.Duration
}

// New constructs an uninitialized Engine. Call Initialize before use.
func New() *Engine {
	return &Engine{
		admissionRate:  rate.Limit(20),
		admissionBurst: 4,
		now:            func() int64 { return time.Now().UnixMilli() },
	}
}

// Initialize opens the mixer at the requested format, records the actually
// negotiated format as the mixer format, and allocates the channel array.
// The host audio device itself is an external collaborator; here
// "negotiation" is a pass-through that always grants the request exactly,
// since there is no concrete device to disagree with. Returns whether the
// actual format matched the request exactly (always true in this
// implementation, kept for interface fidelity with a real device binding).
func (e *Engine) Initialize(cfg config.MixerConfig) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		return false, mixererr.ErrInvalidState
	}

	e.format = format.AudioFormat{
		Frequency: cfg.Frequency,
		Format:    format.Mixer,
		Channels:  cfg.Channels,
	}
	e.bufferMs = cfg.BufferMs
	e.reserved = 0
	e.masterVolume = cfg.MasterVolume
	e.playPolicy = cfg.PlayPolicy
	e.mixPolicy = cfg.MixPolicy
	e.channels = nil
	e.initialized = true

	log.Printf("mixer: initialized at %v, buffer=%dms", e.format, e.bufferMs)

	if cfg.NumChannels > 0 {
		if err := e.allocateChannelsLocked(cfg.NumChannels); err != nil {
			e.initialized = false
			return false, err
		}
		if cfg.ReservedChannels > 0 {
			if err := e.setReservedChannelsLocked(cfg.ReservedChannels); err != nil {
				e.initialized = false
				return false, err
			}
		}
	}

	return true, nil
}

// Deinitialize stops every channel (firing finished callbacks) and resets
// the engine to its uninitialized state.
func (e *Engine) Deinitialize() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return
	}
	for _, ch := range e.channels {
		ch.Stop()
	}
	e.channels = nil
	e.groups = nil
	e.preFilters = nil
	e.postFilters = nil
	e.onChannelFinished = nil
	e.initialized = false
	log.Println("mixer: deinitialized")
}

func (e *Engine) requireInitializedLocked() error {
	if !e.initialized {
		return mixererr.ErrNotInitialized
	}
	return nil
}

// AllocateChannels grows or shrinks the channel array to n. Channels being
// removed on shrink are stopped first (firing finished); reserved is
// clamped to <= n.
func (e *Engine) AllocateChannels(n int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireInitializedLocked(); err != nil {
		return err
	}
	return e.allocateChannelsLocked(n)
}

func (e *Engine) allocateChannelsLocked(n int) error {
	if n < 0 {
		return mixererr.ErrOutOfRange
	}
	if n < len(e.channels) {
		for _, ch := range e.channels[n:] {
			ch.Stop()
		}
		e.channels = e.channels[:n]
	} else {
		for i := len(e.channels); i < n; i++ {
			ch := channel.New(i, e.format, e.now)
			for _, fn := range e.onChannelFinished {
				ch.AddOnFinished(fn)
			}
			e.channels = append(e.channels, ch)
		}
	}
	if e.reserved > n {
		e.reserved = n
	}
	return nil
}

// ReservedChannels returns the current reservation count.
func (e *Engine) ReservedChannels() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reserved
}

// SetReservedChannels sets the reservation count, clamped to
// [0, len(channels)].
func (e *Engine) SetReservedChannels(n int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireInitializedLocked(); err != nil {
		return err
	}
	return e.setReservedChannelsLocked(n)
}

func (e *Engine) setReservedChannelsLocked(n int) error {
	if n < 0 {
		return mixererr.ErrOutOfRange
	}
	if n > len(e.channels) {
		n = len(e.channels)
	}
	e.reserved = n
	return nil
}

// MasterVolume returns the master volume, 0..256.
func (e *Engine) MasterVolume() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.masterVolume
}

// SetMasterVolume sets the master volume, 0..256.
func (e *Engine) SetMasterVolume(v int) error {
	if v < 0 || v > MaxVolume {
		return mixererr.ErrOutOfRange
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.masterVolume = v
	return nil
}

// PlayPolicy returns the current admission/eviction policy.
func (e *Engine) PlayPolicy() config.PlayPolicy {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playPolicy
}

// SetPlayPolicy sets the admission/eviction policy.
func (e *Engine) SetPlayPolicy(p config.PlayPolicy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playPolicy = p
}

// MixPolicy returns the current post-mix attenuation policy.
func (e *Engine) MixPolicy() config.MixPolicy {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mixPolicy
}

// SetMixPolicy sets the post-mix attenuation policy.
func (e *Engine) SetMixPolicy(p config.MixPolicy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mixPolicy = p
}

// RegisterPreFilter appends a global pre-filter, run as part of each
// channel's own filter fan-out ahead of the mix into the accumulator.
func (e *Engine) RegisterPreFilter(f format.Filter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.preFilters = append(e.preFilters, f)
}

// RegisterPostFilter appends a global post-filter, run over the
// accumulator after every channel has mixed in.
func (e *Engine) RegisterPostFilter(f format.Filter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.postFilters = append(e.postFilters, f)
}

// OnChannelFinished registers a callback invoked after a channel's own
// finished handlers whenever any channel transitions to Idle.
func (e *Engine) OnChannelFinished(fn func(index int)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onChannelFinished = append(e.onChannelFinished, fn)
	for _, ch := range e.channels {
		ch.AddOnFinished(fn)
	}
}

// SetPostMixHook installs a single global function invoked after the
// post-filter pass, read-only: used by the metrics package to sample peak
// amplitude without joining the mutating filter path.
func (e *Engine) SetPostMixHook(fn func(buf []int32, frames int, fmtInfo format.AudioFormat)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.postMixHook = fn
}

// Format returns the negotiated mixer format.
func (e *Engine) Format() format.AudioFormat {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.format
}

// NumChannels returns the size of the channel array.
func (e *Engine) NumChannels() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.channels)
}

// admissionAllowed throttles repeated rapid-fire admission of the same
// source, so a caller spamming Play with one sound cannot force bind-time
// allocations faster than the callback thread can absorb them. One token
// bucket per source identity.
func (e *Engine) admissionAllowed(src source.Source) bool {
	actual, _ := e.admissionLimiters.LoadOrStore(src, rate.NewLimiter(e.admissionRate, e.admissionBurst))
	return actual.(*rate.Limiter).Allow()
}

func (e *Engine) String() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return fmt.Sprintf("Engine{format=%v, channels=%d, reserved=%d}", e.format, len(e.channels), e.reserved)
}
