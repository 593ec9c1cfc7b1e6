// Package mixererr defines the sentinel error kinds raised by the mixer,
// usable with errors.Is after wrapping with fmt.Errorf("...: %w", ...).
package mixererr

import "errors"

var (
	// ErrNotInitialized is returned by Play, FadeIn, AllocateChannels,
	// SetReservedChannels and the per-channel and scope operations when
	// invoked before Initialize or after Deinitialize. The volume, policy,
	// filter, hook and group operations do not check initialization.
	ErrNotInitialized = errors.New("mixer: not initialized")

	// ErrInvalidState is returned by Initialize when already initialized,
	// or by any operation that would require mutating state that is
	// mid-transition on another goroutine in a way that cannot be
	// serialized safely.
	ErrInvalidState = errors.New("mixer: invalid state")

	// ErrOutOfRange is returned for volumes outside [0,256], negative
	// rates, channel indices outside the documented sentinels, or source
	// positions outside a source's valid range.
	ErrOutOfRange = errors.New("mixer: value out of range")

	// ErrInvalidArgument is returned for a loop request on a non-rewindable
	// source, an unknown or removed group id, a read length that is not a
	// whole number of frames, or a seek on a source that cannot seek.
	// Binding a non-seekable source that another channel already holds is
	// not detected, and no source format is rejected as unconvertible.
	ErrInvalidArgument = errors.New("mixer: invalid argument")

	// ErrUnsupportedOperation is returned by ReadAll on a source of unknown
	// length, or when converting between two distinct mixer formats.
	ErrUnsupportedOperation = errors.New("mixer: unsupported operation")

	// ErrCapacityExceeded is the non-exceptional condition surfaced with -1
	// from Play/FadeIn when no candidate channel can be used: every
	// candidate is reserved, every candidate is busy under the Fail play
	// policy, or the same source is being admitted faster than the
	// admission throttle allows.
	ErrCapacityExceeded = errors.New("mixer: capacity exceeded")

	// ErrDeviceError wraps a fatal failure surfaced by the host device on
	// Initialize or during callback delivery.
	ErrDeviceError = errors.New("mixer: device error")
)
