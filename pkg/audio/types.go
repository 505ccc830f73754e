// Package audio holds the PCM and WAV plumbing shared by the speech providers:
// a Clip type for uploaded or synthesised audio, a RIFF/WAVE codec, and
// conversion helpers that bring arbitrary 16-bit PCM into the format a
// recogniser expects.
package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// BitsPerSample is fixed at 16; every clip in this package is 16-bit signed
// little-endian PCM.
const BitsPerSample = 16

// Clip is a contiguous block of PCM audio.
type Clip struct {
	// PCM holds 16-bit signed little-endian samples, interleaved when
	// Channels > 1.
	PCM []byte

	// SampleRate in Hz (e.g., 16000 for STT, 22050 for Coqui output).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int
}

// Duration returns the playback length of the clip. Zero for clips with an
// invalid format.
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}
	bytesPerSec := c.SampleRate * c.Channels * (BitsPerSample / 8)
	return time.Duration(len(c.PCM)) * time.Second / time.Duration(bytesPerSec)
}

// RMS returns the root-mean-square energy of the clip in PCM sample units
// (0–32 767). Returns 0 for clips shorter than one sample.
func (c Clip) RMS() float64 {
	n := len(c.PCM) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(int16(binary.LittleEndian.Uint16(c.PCM[i*2 : i*2+2])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
