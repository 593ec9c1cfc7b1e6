// Package metrics instruments the mixer with Prometheus gauges and
// counters: bounded-cardinality labels only, and a debug server that binds
// to localhost unless MIXER_ALLOW_DEBUG_EXTERNAL=true is set.
package metrics

import (
	"log"
	"net/http"
	"net/http/pprof"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kickmix/audiomixer/internal/format"
)

var (
	activeChannels = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mixer_active_channels",
		Help: "Current number of non-idle channels",
	})

	channelStarts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mixer_channel_starts_total",
		Help: "Total number of successful channel admissions",
	})

	channelEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mixer_channel_evictions_total",
		Help: "Total number of channels evicted to admit a new source, by play policy",
	}, []string{"policy"}) // bounded: fail, oldest, priority, oldest_priority

	channelUnderruns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mixer_channel_underruns_total",
		Help: "Total number of times a channel's source ran out of frames before its mix block was filled",
	})

	callbackDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mixer_callback_duration_seconds",
		Help:    "Time spent in the device callback",
		Buckets: []float64{0.0005, 0.001, 0.002, 0.005, 0.01, 0.02},
	})

	peakAmplitude = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mixer_peak_amplitude",
		Help: "Peak absolute sample value observed in the most recent post-mix accumulator",
	})
)

// SetActiveChannels updates the active-channel gauge.
func SetActiveChannels(n int) { activeChannels.Set(float64(n)) }

// RecordChannelStart increments the channel-start counter.
func RecordChannelStart() { channelStarts.Inc() }

// RecordEviction increments the eviction counter for the given play policy
// name (one of "fail", "oldest", "priority", "oldest_priority").
func RecordEviction(policy string) { channelEvictions.WithLabelValues(policy).Inc() }

// RecordUnderrun increments the underrun counter.
func RecordUnderrun() { channelUnderruns.Inc() }

// RecordCallback records how long a device callback took.
func RecordCallback(seconds float64) { callbackDuration.Observe(seconds) }

// SetPeakAmplitude updates the peak-amplitude gauge, fed by the mixer's
// post-mix hook so sampling it never mutates the accumulator it reads.
func SetPeakAmplitude(v int32) {
	p := v
	if p < 0 {
		p = -p
	}
	peakAmplitude.Set(float64(p))
}

// PeakAmplitudeHook has the same signature as the mixer's post-mix hook
// (and format.Filter) so it can be registered directly:
// engine.SetPostMixHook(metrics.PeakAmplitudeHook). It samples the
// post-filter accumulator read-only and feeds the peak-amplitude gauge.
func PeakAmplitudeHook(buf []int32, frames int, fmtInfo format.AudioFormat) {
	n := frames * fmtInfo.Channels
	if n > len(buf) {
		n = len(buf)
	}
	var peak int32
	for i := 0; i < n; i++ {
		v := buf[i]
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	SetPeakAmplitude(peak)
}

// DebugServerConfig configures the metrics/pprof debug endpoint.
type DebugServerConfig struct {
	Enabled    bool
	ListenAddr string // must stay 127.0.0.1 unless explicitly overridden
}

// DefaultDebugServerConfig returns the safe, localhost-only default.
func DefaultDebugServerConfig() DebugServerConfig {
	return DebugServerConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1:9108",
	}
}

// StartDebugServer starts the metrics/pprof server. It refuses to bind
// anywhere but localhost unless MIXER_ALLOW_DEBUG_EXTERNAL=true is set in
// the environment.
func StartDebugServer(cfg DebugServerConfig) error {
	if !cfg.Enabled {
		log.Println("metrics: debug server disabled")
		return nil
	}

	if cfg.ListenAddr != "127.0.0.1:9108" && cfg.ListenAddr != "localhost:9108" {
		if os.Getenv("MIXER_ALLOW_DEBUG_EXTERNAL") != "true" {
			log.Println("metrics: debug server forced to localhost for security")
			cfg.ListenAddr = "127.0.0.1:9108"
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	go func() {
		log.Printf("metrics: debug server starting on %s", cfg.ListenAddr)
		if err := http.ListenAndServe(cfg.ListenAddr, mux); err != nil {
			log.Printf("metrics: debug server error: %v", err)
		}
	}()

	return nil
}
