// Package config is the single source of truth for mixer configuration: a
// Default constructor plus a FromEnv overlay reading os.Getenv/strconv,
// with an optional .env file loaded via github.com/joho/godotenv for local
// development and tests.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// PlayPolicy selects the eviction strategy used when Play/FadeIn finds no
// Idle candidate channel.
type PlayPolicy int

const (
	PlayFail PlayPolicy = iota
	PlayOldest
	PlayPriority
	PlayOldestPriority
)

func (p PlayPolicy) String() string {
	switch p {
	case PlayFail:
		return "fail"
	case PlayOldest:
		return "oldest"
	case PlayPriority:
		return "priority"
	case PlayOldestPriority:
		return "oldest_priority"
	default:
		return "unknown"
	}
}

// MixPolicy selects what happens to the accumulator after all channels and
// global post-filters have run: MixDivide attenuates by the channel count
// to prevent clipping, MixDontDivide relies on saturation instead.
type MixPolicy int

const (
	MixDontDivide MixPolicy = iota
	MixDivide
)

// MixerConfig holds everything Initialize/AllocateChannels needs.
type MixerConfig struct {
	Frequency        int
	Channels         int // mixer channel count, 1 or 2
	BufferMs         int
	NumChannels      int // size of the channel array
	ReservedChannels int
	MasterVolume     int // 0..256
	PlayPolicy       PlayPolicy
	MixPolicy        MixPolicy
}

// DefaultMixerConfig returns the engine's default configuration: 44100 Hz
// stereo, a 16-channel pool with none reserved, unity master volume, and
// the OldestPriority play policy (evict the lowest-priority channel,
// oldest among ties).
func DefaultMixerConfig() MixerConfig {
	return MixerConfig{
		Frequency:        44100,
		Channels:         2,
		BufferMs:         20,
		NumChannels:      16,
		ReservedChannels: 0,
		MasterVolume:     256,
		PlayPolicy:       PlayOldestPriority,
		MixPolicy:        MixDontDivide,
	}
}

// MixerConfigFromEnv returns DefaultMixerConfig() overlaid with
// MIXER_FREQUENCY, MIXER_CHANNELS, MIXER_BUFFER_MS, MIXER_NUM_CHANNELS,
// MIXER_RESERVED_CHANNELS, MIXER_MASTER_VOLUME, MIXER_PLAY_POLICY
// ("fail"|"oldest"|"priority"|"oldest_priority") and MIXER_MIX_POLICY
// ("divide"|"dont_divide"). A .env file in the working directory, if
// present, is loaded first; its absence is not an error.
func MixerConfigFromEnv() MixerConfig {
	_ = godotenv.Load()

	cfg := DefaultMixerConfig()

	if v := getEnvInt("MIXER_FREQUENCY", 0); v > 0 {
		cfg.Frequency = v
	}
	if v := getEnvInt("MIXER_CHANNELS", 0); v > 0 {
		cfg.Channels = v
	}
	if v := getEnvInt("MIXER_BUFFER_MS", 0); v > 0 {
		cfg.BufferMs = v
	}
	if v := getEnvInt("MIXER_NUM_CHANNELS", 0); v > 0 {
		cfg.NumChannels = v
	}
	if v := getEnvInt("MIXER_RESERVED_CHANNELS", -1); v >= 0 {
		cfg.ReservedChannels = v
	}
	if v := getEnvInt("MIXER_MASTER_VOLUME", -1); v >= 0 {
		cfg.MasterVolume = v
	}
	switch os.Getenv("MIXER_PLAY_POLICY") {
	case "fail":
		cfg.PlayPolicy = PlayFail
	case "oldest":
		cfg.PlayPolicy = PlayOldest
	case "priority":
		cfg.PlayPolicy = PlayPriority
	case "oldest_priority":
		cfg.PlayPolicy = PlayOldestPriority
	}
	switch os.Getenv("MIXER_MIX_POLICY") {
	case "divide":
		cfg.MixPolicy = MixDivide
	case "dont_divide":
		cfg.MixPolicy = MixDontDivide
	}

	return cfg
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
