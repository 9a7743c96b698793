// Package audio provides lightweight audio inspection for uploaded
// recordings. It reads container headers only and never decodes sample
// data.
package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// wavHeader is the canonical 44-byte RIFF/WAVE header.
type wavHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

// Info describes a probed audio file.
type Info struct {
	DurationSeconds float64
	SampleRate      int
	Channels        int
}

// ProbeWAV reads the RIFF header from data and computes the recording
// duration. Only the header is parsed, so data may be a prefix of the
// full file as long as it includes the data chunk declaration.
func ProbeWAV(data []byte) (Info, error) {
	if len(data) < 44 {
		return Info{}, fmt.Errorf("audio: data too short for WAV header: %d bytes", len(data))
	}

	buf := bytes.NewReader(data)
	var header wavHeader
	if err := binary.Read(buf, binary.LittleEndian, &header); err != nil {
		return Info{}, fmt.Errorf("audio: failed to read WAV header: %w", err)
	}

	if string(header.ChunkID[:]) != "RIFF" {
		return Info{}, fmt.Errorf("audio: missing RIFF header")
	}
	if string(header.Format[:]) != "WAVE" {
		return Info{}, fmt.Errorf("audio: missing WAVE format")
	}
	if string(header.Subchunk1ID[:]) != "fmt " {
		return Info{}, fmt.Errorf("audio: missing fmt chunk")
	}
	if header.ByteRate == 0 {
		return Info{}, fmt.Errorf("audio: invalid byte rate")
	}

	// The data chunk follows the fmt chunk, possibly after extension
	// bytes and optional chunks (LIST, fact). Scan chunk headers until
	// we find it.
	offset := 20 + int(header.Subchunk1Size)
	var dataSize uint32
	for {
		if offset+8 > len(data) {
			return Info{}, fmt.Errorf("audio: data chunk not found")
		}
		chunkID := string(data[offset : offset+4])
		chunkSize := binary.LittleEndian.Uint32(data[offset+4 : offset+8])
		if chunkID == "data" {
			dataSize = chunkSize
			break
		}
		offset += 8 + int(chunkSize)
		// Chunks are word aligned.
		if chunkSize%2 == 1 {
			offset++
		}
	}

	return Info{
		DurationSeconds: float64(dataSize) / float64(header.ByteRate),
		SampleRate:      int(header.SampleRate),
		Channels:        int(header.NumChannels),
	}, nil
}
