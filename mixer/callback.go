package mixer

import (
	"time"

	"github.com/kickmix/audiomixer/config"
	"github.com/kickmix/audiomixer/internal/channel"
	"github.com/kickmix/audiomixer/internal/format"
	"github.com/kickmix/audiomixer/internal/metrics"
)

// Callback is the device callback entry point, invoked by the
// host on its high-priority audio thread with a pre-zeroed or
// caller-reused accumulator sized frames*mixer.Channels. Errors from
// within the callback never propagate out: a per-channel read failure
// stops that channel (handled inside Channel.Mix) and mixing continues
// with silence for it; a mixer-global failure here is logged and the
// callback returns silence for the whole block.
func (e *Engine) Callback(accumulator []int32, frames int) {
	start := time.Now()

	e.mu.Lock()
	if !e.initialized {
		e.mu.Unlock()
		for i := range accumulator {
			accumulator[i] = 0
		}
		return
	}

	preFilters := e.preFilters
	postFilters := e.postFilters
	channels := e.channels
	mixPolicy := e.mixPolicy
	numChannels := len(channels)
	postMixHook := e.postMixHook
	mixerFmt := e.format
	masterVolume := e.masterVolume
	e.mu.Unlock()

	for i := range accumulator {
		accumulator[i] = 0
	}

	active := 0
	for _, ch := range channels {
		ch.Mix(accumulator, frames, preFilters)
		if ch.State() != channel.Idle {
			active++
		}
	}

	for _, f := range postFilters {
		f(accumulator, frames, mixerFmt)
	}

	if mixPolicy == config.MixDivide && numChannels > 0 {
		for i := range accumulator {
			accumulator[i] /= int32(numChannels)
		}
	}

	format.ScaleInPlace(accumulator, len(accumulator), masterVolume)

	if postMixHook != nil {
		postMixHook(accumulator, frames, mixerFmt)
	}

	metrics.SetActiveChannels(active)
	elapsed := time.Since(start)
	metrics.RecordCallback(elapsed.Seconds())

	e.mu.Lock()
	e.lastCallbackDuration = elapsed
	e.mu.Unlock()
}

// Stats is a point-in-time snapshot of engine activity. The metrics
// package is fed by Callback directly, not from Stats.
type Stats struct {
	ActiveChannels       int
	ReservedChannels     int
	GroupCount           int
	LastCallbackDuration time.Duration
}

// Stats returns a snapshot of current engine activity.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	active := 0
	for _, ch := range e.channels {
		if ch.State() != channel.Idle {
			active++
		}
	}
	groupCount := 0
	for _, g := range e.groups {
		if g.used {
			groupCount++
		}
	}

	return Stats{
		ActiveChannels:       active,
		ReservedChannels:     e.reserved,
		GroupCount:           groupCount,
		LastCallbackDuration: e.lastCallbackDuration,
	}
}
