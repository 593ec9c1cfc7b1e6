// Package convcache holds the per-channel conversion descriptor and scratch
// buffers: each Channel caches its source-format -> mixer-format Cvt at
// bind time and grows (never shrinks mid-playback) the scratch buffers used
// to stage raw reads and filtered samples, so the steady-state mix pass
// never allocates.
package convcache

import "github.com/kickmix/audiomixer/internal/format"

// Cache owns one Channel's conversion descriptor and its reusable scratch
// buffers. It is not safe for concurrent use; callers serialize access
// through the owning Channel's lock.
type Cache struct {
	cvt *format.Cvt

	raw       []byte  // staging buffer for bytes read from the source
	resample  []int32 // scratch used internally by Cvt.Process
	chAdjust  []int32 // scratch used by Cvt.Process for channel-count adjustment
	converted []int32 // mixer-format samples produced this pass
	filterBuf []int32 // unity-volume scratch used when filters are present
}

// Rebuild (re)builds the conversion descriptor for srcFormat -> dstFormat at
// the given playback rate. Called at bind time; later rate changes go
// through SetRate.
func (c *Cache) Rebuild(srcFormat, dstFormat format.AudioFormat, rate float64) error {
	cvt, err := format.SetupCvt(srcFormat, dstFormat, rate)
	if err != nil {
		return err
	}
	c.cvt = cvt
	return nil
}

// SetRate updates the descriptor's playback rate in place; this is cheap
// when the rate snaps to the same source frequency as before.
func (c *Cache) SetRate(rate float64) {
	if c.cvt != nil {
		c.cvt.SetRate(rate)
	}
}

// Cvt returns the current conversion descriptor, or nil if Rebuild has not
// been called yet.
func (c *Cache) Cvt() *format.Cvt { return c.cvt }

// RawBuffer returns a byte buffer of at least n bytes, growing the backing
// array if needed. The returned slice is only valid until the next call.
func (c *Cache) RawBuffer(n int) []byte {
	if cap(c.raw) < n {
		c.raw = make([]byte, n)
	}
	return c.raw[:n]
}

// ConvertedBuffer returns an int32 buffer of at least n samples, growing if
// needed. Used for the mixer-format samples a conversion pass produces.
func (c *Cache) ConvertedBuffer(n int) []int32 {
	if cap(c.converted) < n {
		c.converted = make([]int32, n)
	}
	return c.converted[:n]
}

// FilterBuffer returns the unity-volume scratch buffer used when per-channel
// or global filters must see the post-conversion samples before they are
// mixed at the channel's effective volume.
func (c *Cache) FilterBuffer(n int) []int32 {
	if cap(c.filterBuf) < n {
		c.filterBuf = make([]int32, n)
	}
	return c.filterBuf[:n]
}

// Process runs the cached Cvt over raw source bytes, writing dstFrames of
// mixer-format samples into a cache-owned buffer and returning it along
// with the frame count actually produced.
func (c *Cache) Process(raw []byte, srcFrames, dstChannels, wantDstFrames int) ([]int32, int) {
	if c.cvt == nil {
		return nil, 0
	}
	dest := c.ConvertedBuffer(wantDstFrames * dstChannels)
	n := c.cvt.Process(dest, raw, srcFrames, &c.resample, &c.chAdjust)
	return dest, n
}

// Reset drops the conversion descriptor (used when a new source is bound to
// the channel) but keeps the scratch buffers' capacity, since the real-time
// discipline only requires buffers to grow monotonically, not that they
// shrink between bindings.
func (c *Cache) Reset() {
	c.cvt = nil
}
