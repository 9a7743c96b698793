package audio

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// buildWAV constructs a minimal PCM WAV file with the given parameters.
func buildWAV(t *testing.T, sampleRate int, channels int, seconds float64) []byte {
	t.Helper()

	bitsPerSample := 16
	byteRate := sampleRate * channels * bitsPerSample / 8
	dataSize := uint32(float64(byteRate) * seconds)

	buf := &bytes.Buffer{}
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(channels*bitsPerSample/8))
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, dataSize)
	buf.Write(make([]byte, dataSize))

	return buf.Bytes()
}

func TestProbeWAV(t *testing.T) {
	tests := []struct {
		name       string
		sampleRate int
		channels   int
		seconds    float64
	}{
		{"mono 8kHz 2s", 8000, 1, 2.0},
		{"stereo 44.1kHz half second", 44100, 2, 0.5},
		{"mono 16kHz 90s", 16000, 1, 90.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := buildWAV(t, tt.sampleRate, tt.channels, tt.seconds)

			info, err := ProbeWAV(data)
			if err != nil {
				t.Fatalf("ProbeWAV() error = %v", err)
			}

			if diff := info.DurationSeconds - tt.seconds; diff > 0.01 || diff < -0.01 {
				t.Errorf("DurationSeconds = %v, want %v", info.DurationSeconds, tt.seconds)
			}
			if info.SampleRate != tt.sampleRate {
				t.Errorf("SampleRate = %d, want %d", info.SampleRate, tt.sampleRate)
			}
			if info.Channels != tt.channels {
				t.Errorf("Channels = %d, want %d", info.Channels, tt.channels)
			}
		})
	}
}

func TestProbeWAVRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"too short", []byte("RIFF")},
		{"not riff", bytes.Repeat([]byte{0x42}, 64)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ProbeWAV(tt.data); err == nil {
				t.Error("ProbeWAV() expected error, got nil")
			}
		})
	}
}

func TestProbeWAVSkipsOptionalChunks(t *testing.T) {
	// Some encoders insert a LIST chunk between fmt and data.
	base := buildWAV(t, 8000, 1, 1.0)

	buf := &bytes.Buffer{}
	buf.Write(base[:36]) // header through fmt chunk
	buf.WriteString("LIST")
	binary.Write(buf, binary.LittleEndian, uint32(4))
	buf.WriteString("INFO")
	buf.Write(base[36:]) // data chunk onwards

	info, err := ProbeWAV(buf.Bytes())
	if err != nil {
		t.Fatalf("ProbeWAV() error = %v", err)
	}
	if diff := info.DurationSeconds - 1.0; diff > 0.01 || diff < -0.01 {
		t.Errorf("DurationSeconds = %v, want 1.0", info.DurationSeconds)
	}
}
