// Package audio provides WAV container handling and sample-rate conversion
// for the voice pipeline.
//
// The pipeline operates on mono float32 samples in [-1, 1]. Uploads arrive as
// RIFF/WAV files; [Decode] parses the container, downmixes to mono, and
// converts to float32. [Encode] performs the reverse for providers that accept
// WAV uploads (speaker encoder, whisper server). Only standard library
// packages are used.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	// headerSize is the fixed size of the RIFF + fmt + data chunk headers
	// produced by Encode.
	headerSize = 44

	// formatPCM and formatFloat are the WAV audio format tags supported by
	// Decode.
	formatPCM   = 1
	formatFloat = 3
)

// ErrNotWAV is returned by Decode when the input does not start with a valid
// RIFF/WAVE header.
var ErrNotWAV = errors.New("audio: not a RIFF/WAVE file")

// Clip is a decoded audio clip: mono float32 samples plus the source sample
// rate.
type Clip struct {
	// Samples holds mono samples in [-1, 1].
	Samples []float32

	// SampleRate is the sample rate in Hz.
	SampleRate int
}

// Duration returns the clip length in seconds.
func (c Clip) Duration() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// Decode parses a RIFF/WAV file and returns its content as a mono float32
// clip. Multi-channel audio is downmixed by averaging; 16-bit PCM and 32-bit
// IEEE float payloads are supported.
//
// Returns [ErrNotWAV] when the RIFF/WAVE magic is missing, and a descriptive
// error for truncated or unsupported files.
func Decode(data []byte) (Clip, error) {
	if len(data) < headerSize || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Clip{}, ErrNotWAV
	}

	var (
		format     uint16
		channels   int
		sampleRate int
		bits       int
		haveFmt    bool
	)

	// Walk the chunk list. The fmt chunk must precede data.
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if size < 0 || body+size > len(data) {
			// Tolerate a data chunk whose declared size overruns the file
			// (common with streamed writers); clamp to what is present.
			if id == "data" {
				size = len(data) - body
			} else {
				return Clip{}, fmt.Errorf("audio: truncated %q chunk", id)
			}
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return Clip{}, fmt.Errorf("audio: fmt chunk too small (%d bytes)", size)
			}
			format = binary.LittleEndian.Uint16(data[body : body+2])
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			haveFmt = true

		case "data":
			if !haveFmt {
				return Clip{}, errors.New("audio: data chunk before fmt chunk")
			}
			samples, err := decodeSamples(data[body:body+size], format, channels, bits)
			if err != nil {
				return Clip{}, err
			}
			return Clip{Samples: samples, SampleRate: sampleRate}, nil
		}

		// Chunks are word-aligned.
		off = body + size
		if size%2 == 1 {
			off++
		}
	}

	return Clip{}, errors.New("audio: no data chunk found")
}

// decodeSamples converts a raw payload to mono float32.
func decodeSamples(raw []byte, format uint16, channels, bits int) ([]float32, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("audio: invalid channel count %d", channels)
	}

	var perChannel func(i int) float32
	var bytesPer int

	switch {
	case format == formatPCM && bits == 16:
		bytesPer = 2
		perChannel = func(i int) float32 {
			s := int16(binary.LittleEndian.Uint16(raw[i*2 : i*2+2]))
			return float32(s) / 32768.0
		}
	case format == formatFloat && bits == 32:
		bytesPer = 4
		perChannel = func(i int) float32 {
			return math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4 : i*4+4]))
		}
	default:
		return nil, fmt.Errorf("audio: unsupported format (tag=%d, bits=%d)", format, bits)
	}

	total := len(raw) / bytesPer
	frames := total / channels
	out := make([]float32, frames)
	for f := 0; f < frames; f++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += perChannel(f*channels + ch)
		}
		out[f] = sum / float32(channels)
	}
	return out, nil
}

// Encode wraps mono float32 samples in a standard RIFF/WAV container as
// 16-bit signed little-endian PCM. Samples outside [-1, 1] are clamped.
// The returned byte slice is suitable for direct inclusion in a multipart
// form upload.
func Encode(samples []float32, sampleRate int) []byte {
	dataSize := len(samples) * 2
	buf := make([]byte, headerSize+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize)) // file size − 8
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk (mono, 16-bit PCM)
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], formatPCM)
	binary.LittleEndian.PutUint16(buf[22:24], 1)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2)) // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], 2)                    // block align
	binary.LittleEndian.PutUint16(buf[34:36], 16)                   // bits per sample

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))

	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(s * 32767)
		binary.LittleEndian.PutUint16(buf[headerSize+i*2:headerSize+i*2+2], uint16(v))
	}
	return buf
}
