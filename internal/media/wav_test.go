package media

import (
	"encoding/binary"
	"testing"
)

func TestWrapPCM16WAVHeader(t *testing.T) {
	pcm := []byte{1, 2, 3, 4}
	out := WrapPCM16WAV(pcm, 16000, 1)

	if len(out) != 44+len(pcm) {
		t.Fatalf("expected header+data length %d, got %d", 44+len(pcm), len(out))
	}
	if string(out[0:4]) != "RIFF" || string(out[8:12]) != "WAVE" {
		t.Fatalf("expected RIFF/WAVE markers, got %q/%q", out[0:4], out[8:12])
	}
	if string(out[12:16]) != "fmt " || string(out[36:40]) != "data" {
		t.Fatalf("expected fmt /data chunk ids, got %q/%q", out[12:16], out[36:40])
	}
	channels := binary.LittleEndian.Uint16(out[22:24])
	if channels != 1 {
		t.Errorf("expected 1 channel, got %d", channels)
	}
	sampleRate := binary.LittleEndian.Uint32(out[24:28])
	if sampleRate != 16000 {
		t.Errorf("expected sample rate 16000, got %d", sampleRate)
	}
	dataSize := binary.LittleEndian.Uint32(out[40:44])
	if int(dataSize) != len(pcm) {
		t.Errorf("expected data size %d, got %d", len(pcm), dataSize)
	}
}
