package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrNotWAV is returned by DecodeWAV when the input is not a RIFF/WAVE container
// carrying 16-bit PCM.
var ErrNotWAV = errors.New("audio: not a 16-bit PCM WAV file")

// MIMEWAV is the media type of EncodeWAV output.
const MIMEWAV = "audio/wav"

// EncodeWAV wraps the clip's PCM in a canonical 44-byte RIFF/WAV header.
func EncodeWAV(c Clip) []byte {
	byteRate := c.SampleRate * c.Channels * BitsPerSample / 8
	blockAlign := c.Channels * BitsPerSample / 8
	dataSize := len(c.PCM)

	buf := make([]byte, 44+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize)) // file size − 8
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)                  // sub-chunk size (PCM)
	binary.LittleEndian.PutUint16(buf[20:22], 1)                   // audio format: PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(c.Channels))  // num channels
	binary.LittleEndian.PutUint32(buf[24:28], uint32(c.SampleRate)) // sample rate
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))    // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))  // block align
	binary.LittleEndian.PutUint16(buf[34:36], BitsPerSample)       // bits per sample

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], c.PCM)

	return buf
}

// DecodeWAV walks the RIFF chunks in wav and returns the PCM payload with its
// format. Chunk sizes are honoured rather than assuming a fixed 44-byte header,
// so files with LIST or fact chunks decode correctly. A data chunk whose
// declared size overruns the buffer (common for streamed WAVs) is truncated to
// what is present.
func DecodeWAV(wav []byte) (Clip, error) {
	if len(wav) < 12 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return Clip{}, ErrNotWAV
	}

	var (
		clip     Clip
		foundFmt bool
	)

	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))
		body := offset + 8

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 || body+16 > len(wav) {
				return Clip{}, fmt.Errorf("%w: short fmt chunk", ErrNotWAV)
			}
			format := binary.LittleEndian.Uint16(wav[body : body+2])
			bits := binary.LittleEndian.Uint16(wav[body+14 : body+16])
			if format != 1 || bits != BitsPerSample {
				return Clip{}, fmt.Errorf("%w: format %d with %d bits", ErrNotWAV, format, bits)
			}
			clip.Channels = int(binary.LittleEndian.Uint16(wav[body+2 : body+4]))
			clip.SampleRate = int(binary.LittleEndian.Uint32(wav[body+4 : body+8]))
			foundFmt = true
		case "data":
			if !foundFmt {
				return Clip{}, fmt.Errorf("%w: data chunk before fmt chunk", ErrNotWAV)
			}
			end := min(body+chunkSize, len(wav))
			clip.PCM = wav[body:end]
			return clip, nil
		}

		// Chunks are word-aligned: pad by 1 if odd size.
		offset = body + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return Clip{}, fmt.Errorf("%w: missing data chunk", ErrNotWAV)
}
