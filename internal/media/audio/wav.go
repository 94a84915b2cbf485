package audio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// EncodeWAV writes samples as 16-bit PCM. samples holds one slice per
// channel and every channel must be the same length. Values outside
// [-1, 1] are clamped.
func EncodeWAV(w io.Writer, samples [][]float64, sampleRate int) error {
	channels := len(samples)
	if channels == 0 {
		return errors.New("encode wav: no channels")
	}
	if sampleRate <= 0 {
		return fmt.Errorf("encode wav: invalid sample rate %d", sampleRate)
	}
	frames := len(samples[0])
	for i, channel := range samples[1:] {
		if len(channel) != frames {
			return fmt.Errorf("encode wav: channel %d has %d frames, channel 0 has %d", i+1, len(channel), frames)
		}
	}

	dataSize := frames * channels * 2
	header := make([]byte, 44)
	copy(header[0:], "RIFF")
	binary.LittleEndian.PutUint32(header[4:], uint32(36+dataSize))
	copy(header[8:], "WAVE")
	copy(header[12:], "fmt ")
	binary.LittleEndian.PutUint32(header[16:], 16)
	binary.LittleEndian.PutUint16(header[20:], 1)
	binary.LittleEndian.PutUint16(header[22:], uint16(channels))
	binary.LittleEndian.PutUint32(header[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:], uint32(sampleRate*channels*2))
	binary.LittleEndian.PutUint16(header[32:], uint16(channels*2))
	binary.LittleEndian.PutUint16(header[34:], 16)
	copy(header[36:], "data")
	binary.LittleEndian.PutUint32(header[40:], uint32(dataSize))

	out := bufio.NewWriter(w)
	if _, err := out.Write(header); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	frame := make([]byte, channels*2)
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			binary.LittleEndian.PutUint16(frame[ch*2:], uint16(pcm16(samples[ch][i])))
		}
		if _, err := out.Write(frame); err != nil {
			return fmt.Errorf("encode wav: %w", err)
		}
	}
	if err := out.Flush(); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	return nil
}

// DecodeWAV parses a 16-bit PCM WAV stream into per-channel samples and
// the sample rate. Other encodings are rejected.
func DecodeWAV(r io.Reader) ([][]float64, int, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, 0, fmt.Errorf("decode wav: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, 0, errors.New("decode wav: not a RIFF/WAVE stream")
	}

	var (
		channels   int
		sampleRate int
		haveFormat bool
	)
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, 0, errors.New("decode wav: no data chunk")
			}
			return nil, 0, fmt.Errorf("decode wav: %w", err)
		}
		id := string(chunk[0:4])
		size := binary.LittleEndian.Uint32(chunk[4:8])

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, errors.New("decode wav: fmt chunk too short")
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, 0, fmt.Errorf("decode wav: %w", err)
			}
			format := binary.LittleEndian.Uint16(body[0:2])
			channels = int(binary.LittleEndian.Uint16(body[2:4]))
			sampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			bits := binary.LittleEndian.Uint16(body[14:16])
			if format != 1 || bits != 16 {
				return nil, 0, fmt.Errorf("decode wav: unsupported encoding (format %d, %d bits)", format, bits)
			}
			if channels <= 0 || sampleRate <= 0 {
				return nil, 0, fmt.Errorf("decode wav: invalid fmt chunk (%d channels, %d Hz)", channels, sampleRate)
			}
			haveFormat = true
		case "data":
			if !haveFormat {
				return nil, 0, errors.New("decode wav: data chunk before fmt chunk")
			}
			payload := make([]byte, size)
			if _, err := io.ReadFull(r, payload); err != nil {
				return nil, 0, fmt.Errorf("decode wav: %w", err)
			}
			return deinterleave(payload, channels), sampleRate, nil
		default:
			skip := int64(size)
			if size%2 == 1 {
				// Chunks are word aligned.
				skip++
			}
			if _, err := io.CopyN(io.Discard, r, skip); err != nil {
				return nil, 0, fmt.Errorf("decode wav: %w", err)
			}
		}
	}
}

func pcm16(v float64) int16 {
	if v > 1 {
		v = 1
	}
	if v < -1 {
		v = -1
	}
	return int16(math.Round(v * 32767))
}

func deinterleave(payload []byte, channels int) [][]float64 {
	frameSize := channels * 2
	frames := len(payload) / frameSize
	out := make([][]float64, channels)
	for ch := range out {
		out[ch] = make([]float64, frames)
	}
	for i := 0; i < frames; i++ {
		base := i * frameSize
		for ch := 0; ch < channels; ch++ {
			sample := int16(binary.LittleEndian.Uint16(payload[base+ch*2:]))
			out[ch][i] = float64(sample) / 32768
		}
	}
	return out
}
