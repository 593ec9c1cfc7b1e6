package config_test

import (
	"os"
	"testing"

	"github.com/kickmix/audiomixer/config"
)

func TestDefaultMixerConfig(t *testing.T) {
	cfg := config.DefaultMixerConfig()
	if cfg.Frequency != 44100 || cfg.Channels != 2 {
		t.Fatalf("expected 44100 Hz stereo default, got %+v", cfg)
	}
	if cfg.PlayPolicy != config.PlayOldestPriority {
		t.Fatalf("expected default play policy OldestPriority, got %v", cfg.PlayPolicy)
	}
	if cfg.MixPolicy != config.MixDontDivide {
		t.Fatalf("expected default mix policy DontDivide, got %v", cfg.MixPolicy)
	}
}

func TestMixerConfigFromEnvOverlaysDefaults(t *testing.T) {
	t.Setenv("MIXER_FREQUENCY", "48000")
	t.Setenv("MIXER_NUM_CHANNELS", "32")
	t.Setenv("MIXER_PLAY_POLICY", "oldest")
	t.Setenv("MIXER_MIX_POLICY", "divide")
	os.Unsetenv("MIXER_RESERVED_CHANNELS")
	os.Unsetenv("MIXER_MASTER_VOLUME")

	cfg := config.MixerConfigFromEnv()
	if cfg.Frequency != 48000 {
		t.Fatalf("expected overlaid frequency 48000, got %d", cfg.Frequency)
	}
	if cfg.NumChannels != 32 {
		t.Fatalf("expected overlaid channel count 32, got %d", cfg.NumChannels)
	}
	if cfg.PlayPolicy != config.PlayOldest {
		t.Fatalf("expected overlaid play policy Oldest, got %v", cfg.PlayPolicy)
	}
	if cfg.MixPolicy != config.MixDivide {
		t.Fatalf("expected overlaid mix policy Divide, got %v", cfg.MixPolicy)
	}
	// Untouched fields fall back to the defaults.
	if cfg.ReservedChannels != 0 || cfg.MasterVolume != 256 {
		t.Fatalf("expected untouched fields to keep defaults, got %+v", cfg)
	}
}

func TestPlayPolicyString(t *testing.T) {
	cases := map[config.PlayPolicy]string{
		config.PlayFail:           "fail",
		config.PlayOldest:         "oldest",
		config.PlayPriority:       "priority",
		config.PlayOldestPriority: "oldest_priority",
	}
	for policy, want := range cases {
		if got := policy.String(); got != want {
			t.Errorf("policy %d: expected %q, got %q", policy, want, got)
		}
	}
}
