package audio

import (
	"encoding/base64"
	"fmt"
	"math"
)

// Resample converts mono float samples from srcRate to dstRate by block
// averaging. For ratio r = srcRate/dstRate the output length is round(n/r) and
// output sample i is the mean of the input samples in [round(i*r), round((i+1)*r)).
// When the rates match the input is returned unchanged.
//
// Averaging doubles as a crude low-pass filter, which is adequate for voice. A
// polyphase resampler could be substituted as long as the length relationship
// is preserved.
func Resample(in []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate {
		return in
	}
	ratio := float64(srcRate) / float64(dstRate)
	outLen := int(math.Round(float64(len(in)) / ratio))
	if outLen <= 0 {
		return nil
	}

	out := make([]float32, outLen)
	for i := range out {
		start := int(math.Round(float64(i) * ratio))
		end := int(math.Round(float64(i+1) * ratio))
		if end > len(in) {
			end = len(in)
		}
		if start >= end {
			// Upsampling ratio < 1 can yield an empty window; reuse the
			// nearest source sample.
			if start >= len(in) {
				start = len(in) - 1
			}
			out[i] = in[start]
			continue
		}
		var sum float64
		for _, s := range in[start:end] {
			sum += float64(s)
		}
		out[i] = float32(sum / float64(end-start))
	}
	return out
}

// FloatToPCM16 quantizes float samples to little-endian int16 PCM. Samples
// are clamped to [-1, 1]; negative values scale by 32768 and non-negative by
// 32767 to cover the asymmetric int16 range.
func FloatToPCM16(in []float32) []byte {
	out := make([]byte, len(in)*2)
	for i, s := range in {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		var v int16
		if s < 0 {
			v = int16(s * 32768)
		} else {
			v = int16(s * 32767)
		}
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// PCM16ToFloat reverses [FloatToPCM16], dividing negative samples by 32768
// and non-negative by 32767. Returns an error if the byte count is not
// sample-aligned.
func PCM16ToFloat(pcm []byte) ([]float32, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("audio: pcm length %d is not sample aligned", len(pcm))
	}
	out := make([]float32, len(pcm)/2)
	for i := range out {
		v := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		if v < 0 {
			out[i] = float32(v) / 32768
		} else {
			out[i] = float32(v) / 32767
		}
	}
	return out, nil
}

// EncodeFrame resamples chunk to dstRate, quantizes it, and wraps the PCM
// bytes in a base64 [EncodedFrame]. No framing header is added — the wire
// message carries a single complete audio block.
func EncodeFrame(chunk AudioChunk, dstRate int) EncodedFrame {
	pcm := FloatToPCM16(Resample(chunk.Samples, chunk.SampleRate, dstRate))
	return EncodedFrame{
		Data:       base64.StdEncoding.EncodeToString(pcm),
		SampleRate: dstRate,
	}
}

// DecodeFrame reverses [EncodeFrame]: base64 → PCM16 → float samples.
func DecodeFrame(frame EncodedFrame) ([]float32, error) {
	pcm, err := base64.StdEncoding.DecodeString(frame.Data)
	if err != nil {
		return nil, fmt.Errorf("audio: decode frame: %w", err)
	}
	samples, err := PCM16ToFloat(pcm)
	if err != nil {
		return nil, fmt.Errorf("audio: decode frame: %w", err)
	}
	return samples, nil
}
