package audio

import (
	"bytes"
	"testing"
)

func TestWAVRoundTrip(t *testing.T) {
	pcm := FloatToPCM16([]float32{0, 0.5, -0.5, 1, -1, 0.25})

	wav, err := EncodeWAV(pcm, CaptureRate)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	if len(wav) != 44+len(pcm) {
		t.Errorf("wav length = %d, want %d", len(wav), 44+len(pcm))
	}
	if !bytes.Equal(wav[:4], []byte("RIFF")) || !bytes.Equal(wav[8:12], []byte("WAVE")) {
		t.Error("missing RIFF/WAVE markers")
	}

	got, rate, err := DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if rate != CaptureRate {
		t.Errorf("rate = %d, want %d", rate, CaptureRate)
	}
	if !bytes.Equal(got, pcm) {
		t.Error("decoded pcm differs from input")
	}
}

func TestEncodeWAVRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		pcm  []byte
		rate int
	}{
		{name: "empty", pcm: nil, rate: CaptureRate},
		{name: "odd length", pcm: []byte{1, 2, 3}, rate: CaptureRate},
		{name: "zero rate", pcm: []byte{1, 2}, rate: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := EncodeWAV(tc.pcm, tc.rate); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestDecodeWAVRejectsBadInput(t *testing.T) {
	if _, _, err := DecodeWAV([]byte("too short")); err == nil {
		t.Error("expected error for truncated data")
	}
	if _, _, err := DecodeWAV(make([]byte, 64)); err == nil {
		t.Error("expected error for missing RIFF marker")
	}
}
