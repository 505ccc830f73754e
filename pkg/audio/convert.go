package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
)

// Format is the sample rate and channel count a consumer expects.
type Format struct {
	SampleRate int
	Channels   int
}

func (f Format) String() string {
	switch f.Channels {
	case 1:
		return fmt.Sprintf("%dHz mono", f.SampleRate)
	case 2:
		return fmt.Sprintf("%dHz stereo", f.SampleRate)
	}
	return fmt.Sprintf("%dHz %dch", f.SampleRate, f.Channels)
}

// Format reports the clip's own format.
func (c Clip) Format() Format { return Format{SampleRate: c.SampleRate, Channels: c.Channels} }

// Normalize brings c into the target format. A clip that already matches is
// returned as-is without copying. A trailing odd byte is dropped. Layouts
// with more than two channels are not converted and come back unchanged.
// A zero target SampleRate keeps the clip's rate.
func Normalize(c Clip, target Format) Clip {
	c.PCM = c.PCM[:len(c.PCM)&^1]
	if c.Format() == target {
		return c
	}
	if c.Channels > 2 || target.Channels > 2 {
		slog.Warn("audio: unsupported channel layout, clip left unchanged",
			"from", c.Format().String(), "to", target.String())
		return c
	}

	// Resample in mono, then widen again if needed.
	out := c
	if out.Channels == 2 {
		out.PCM, out.Channels = StereoToMono(out.PCM), 1
	}
	if target.SampleRate > 0 && out.SampleRate != target.SampleRate {
		out.PCM, out.SampleRate = ResampleMono16(out.PCM, out.SampleRate, target.SampleRate), target.SampleRate
	}
	if target.Channels == 2 {
		out.PCM, out.Channels = MonoToStereo(out.PCM), 2
	}
	return out
}

func sampleAt(pcm []byte, i int) int16 {
	return int16(binary.LittleEndian.Uint16(pcm[2*i:]))
}

func putSample(pcm []byte, i int, v int16) {
	binary.LittleEndian.PutUint16(pcm[2*i:], uint16(v))
}

// MonoToStereo copies every mono sample into both channels.
func MonoToStereo(pcm []byte) []byte {
	n := len(pcm) / 2
	out := make([]byte, n*4)
	for i := range n {
		s := sampleAt(pcm, i)
		putSample(out, 2*i, s)
		putSample(out, 2*i+1, s)
	}
	return out
}

// StereoToMono averages the two channels of each frame. A trailing partial
// frame is dropped.
func StereoToMono(pcm []byte) []byte {
	n := len(pcm) / 4
	out := make([]byte, n*2)
	for i := range n {
		l, r := int32(sampleAt(pcm, 2*i)), int32(sampleAt(pcm, 2*i+1))
		// The mean of two int16 values always fits in an int16.
		putSample(out, i, int16((l+r)/2))
	}
	return out
}

// ResampleMono16 converts 16-bit mono PCM from srcRate to dstRate by linear
// interpolation. Non-positive or equal rates return the input unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcN := len(pcm) / 2
	dstN := int(int64(srcN) * int64(dstRate) / int64(srcRate))
	if dstN == 0 {
		return nil
	}

	out := make([]byte, dstN*2)
	step := float64(srcRate) / float64(dstRate)
	for i := range dstN {
		pos := float64(i) * step
		j := int(pos)
		frac := pos - float64(j)
		a := float64(sampleAt(pcm, j))
		b := a
		if j+1 < srcN {
			b = float64(sampleAt(pcm, j+1))
		}
		putSample(out, i, int16(a+(b-a)*frac))
	}
	return out
}
