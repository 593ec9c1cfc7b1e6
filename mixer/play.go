package mixer

import (
	"log"
	"sort"

	"github.com/kickmix/audiomixer/config"
	"github.com/kickmix/audiomixer/internal/channel"
	"github.com/kickmix/audiomixer/internal/metrics"
	"github.com/kickmix/audiomixer/internal/mixererr"
	"github.com/kickmix/audiomixer/internal/source"
)

// PlayOptions configures a single admission request, shared by Play and
// FadeIn.
type PlayOptions struct {
	Loops     int   // Infinite for infinite
	TimeoutMs int64 // Infinite (or 0, the zero value) for no timeout
	Volume    int   // channel volume, 0..256; MaxVolume if zero-valued by callers that don't care
	Rate      float64
	Target    int // channel index >= 0, FreeChannel, or a negative group id
}

// Play admits src onto a channel — an explicit index, the first idle
// non-reserved channel for FreeChannel, or the first idle member of a
// group — and returns the channel index. When no idle candidate exists,
// the configured play policy picks a victim to evict; under PlayFail the
// result is -1 with ErrCapacityExceeded.
func (e *Engine) Play(src source.Source, opts PlayOptions) (int, error) {
	return e.admit(src, opts, channel.FadeNone, 0)
}

// FadeIn is Play, but the channel begins playback faded in from silence
// over fadeMs milliseconds.
func (e *Engine) FadeIn(src source.Source, opts PlayOptions, fadeMs int64) (int, error) {
	return e.admit(src, opts, channel.FadeIn, fadeMs)
}

func (e *Engine) admit(src source.Source, opts PlayOptions, fade channel.FadeKind, fadeMs int64) (int, error) {
	if !e.admissionAllowed(src) {
		return -1, mixererr.ErrCapacityExceeded
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireInitializedLocked(); err != nil {
		return -1, err
	}

	volume := opts.Volume
	if volume == 0 {
		volume = MaxVolume
	}
	rate := opts.Rate
	if rate == 0 {
		rate = 1.0
	}
	bindOpts := channel.BindOptions{
		Loops:     opts.Loops,
		TimeoutMs: opts.TimeoutMs,
		Fade:      fade,
		FadeMs:    fadeMs,
		Volume:    volume,
		Rate:      rate,
	}

	idx, err := e.resolveTargetLocked(src, opts.Target)
	if err != nil {
		return -1, err
	}
	if idx < 0 {
		return -1, mixererr.ErrCapacityExceeded
	}

	ch := e.channels[idx]
	if err := ch.Bind(src, bindOpts); err != nil {
		return -1, err
	}
	metrics.RecordChannelStart()
	return idx, nil
}

// resolveTargetLocked maps a play target (explicit index, FreeChannel, or
// group id) to a concrete channel index, falling back to the eviction
// policy when no candidate is idle. Caller holds e.mu.
func (e *Engine) resolveTargetLocked(src source.Source, target int) (int, error) {
	if target >= 0 {
		if !e.validChannelLocked(target) {
			return -1, mixererr.ErrOutOfRange
		}
		return target, nil
	}

	var candidates []int
	if target == FreeChannel {
		if e.reserved == len(e.channels) {
			return -1, nil
		}
		for i := e.reserved; i < len(e.channels); i++ {
			candidates = append(candidates, i)
		}
	} else {
		slot, err := e.groupSlotIndex(target)
		if err != nil {
			return -1, err
		}
		for idx := range e.groups[slot].channels {
			if idx >= e.reserved {
				candidates = append(candidates, idx)
			}
		}
		// Map iteration order is random; scan and tie-break in index order.
		sort.Ints(candidates)
	}

	for _, idx := range candidates {
		if e.channels[idx].State() == channel.Idle {
			return idx, nil
		}
	}

	return e.evictLocked(candidates)
}

// evictLocked applies the configured play policy over candidates (all of
// which are known to be non-Idle). Caller holds e.mu.
func (e *Engine) evictLocked(candidates []int) (int, error) {
	if len(candidates) == 0 {
		return -1, nil
	}

	switch e.playPolicy {
	case config.PlayFail:
		return -1, nil

	case config.PlayOldest:
		best := -1
		var bestAge int64 = -1
		for _, idx := range candidates {
			age := e.channels[idx].Age()
			if age > bestAge {
				bestAge = age
				best = idx
			}
		}
		metrics.RecordEviction(e.playPolicy.String())
		log.Printf("mixer: evicted channel %d (policy=%s)", best, e.playPolicy)
		return best, nil

	case config.PlayPriority:
		best := -1
		bestPrio := int(^uint(0) >> 1)
		for _, idx := range candidates {
			p := e.channels[idx].Priority()
			if p < bestPrio {
				bestPrio = p
				best = idx
			}
		}
		metrics.RecordEviction(e.playPolicy.String())
		log.Printf("mixer: evicted channel %d (policy=%s)", best, e.playPolicy)
		return best, nil

	case config.PlayOldestPriority:
		bestPrio := int(^uint(0) >> 1)
		for _, idx := range candidates {
			if p := e.channels[idx].Priority(); p < bestPrio {
				bestPrio = p
			}
		}
		best := -1
		var bestAge int64 = -1
		for _, idx := range candidates {
			if e.channels[idx].Priority() != bestPrio {
				continue
			}
			age := e.channels[idx].Age()
			if age > bestAge {
				bestAge = age
				best = idx
			}
		}
		metrics.RecordEviction(e.playPolicy.String())
		log.Printf("mixer: evicted channel %d (policy=%s)", best, e.playPolicy)
		return best, nil

	default:
		return -1, nil
	}
}

// --- Per-channel and bulk operations ---

// Pause pauses a single channel.
func (e *Engine) Pause(idx int) error {
	ch, err := e.channelAt(idx)
	if err != nil {
		return err
	}
	ch.Pause()
	return nil
}

// Resume resumes a single channel.
func (e *Engine) Resume(idx int) error {
	ch, err := e.channelAt(idx)
	if err != nil {
		return err
	}
	ch.Resume()
	return nil
}

// Stop stops a single channel.
func (e *Engine) Stop(idx int) error {
	ch, err := e.channelAt(idx)
	if err != nil {
		return err
	}
	ch.Stop()
	return nil
}

// FadeOutChannel begins a fade-out on a single channel.
func (e *Engine) FadeOutChannel(idx int, ms int64) error {
	ch, err := e.channelAt(idx)
	if err != nil {
		return err
	}
	ch.FadeOut(ms)
	return nil
}

func (e *Engine) channelAt(idx int) (*channel.Channel, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireInitializedLocked(); err != nil {
		return nil, err
	}
	if !e.validChannelLocked(idx) {
		return nil, mixererr.ErrOutOfRange
	}
	return e.channels[idx], nil
}

// PauseScope pauses every channel in scope (AllChannels or a group id).
func (e *Engine) PauseScope(scope int) error { return e.forEachInScope(scope, (*channel.Channel).Pause) }

// ResumeScope resumes every channel in scope.
func (e *Engine) ResumeScope(scope int) error { return e.forEachInScope(scope, (*channel.Channel).Resume) }

// StopScope stops every channel in scope.
func (e *Engine) StopScope(scope int) error { return e.forEachInScope(scope, (*channel.Channel).Stop) }

// FadeOutScope begins a fade-out on every channel in scope.
func (e *Engine) FadeOutScope(scope int, ms int64) error {
	return e.forEachInScope(scope, func(ch *channel.Channel) { ch.FadeOut(ms) })
}

func (e *Engine) forEachInScope(scope int, fn func(*channel.Channel)) error {
	e.mu.Lock()
	if err := e.requireInitializedLocked(); err != nil {
		e.mu.Unlock()
		return err
	}
	indices := e.scopeIndicesLocked(scope)
	channels := make([]*channel.Channel, len(indices))
	for i, idx := range indices {
		channels[i] = e.channels[idx]
	}
	e.mu.Unlock()

	for _, ch := range channels {
		fn(ch)
	}
	return nil
}

// OldestChannel returns the index of the channel with the greatest age
// within scope. When includeReserved is false, channels below the
// reservation count are skipped. Returns -1 if the scope has no playing
// channel.
func (e *Engine) OldestChannel(scope int, includeReserved bool) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	indices := e.scopeIndicesLocked(scope)
	best := -1
	var bestAge int64 = -1
	for _, idx := range indices {
		if !includeReserved && idx < e.reserved {
			continue
		}
		if e.channels[idx].State() == channel.Idle {
			continue
		}
		age := e.channels[idx].Age()
		if age > bestAge {
			bestAge = age
			best = idx
		}
	}
	return best
}
