package audio

// Audio format constants for the engine. All inbound audio is signed 16-bit
// little-endian PCM, 16 kHz mono; the segmentation model consumes 512-sample
// frames (32 ms).
const (
	SampleRate   = 16000
	FrameSamples = 512
	FrameBytes   = FrameSamples * 2
)

// DecodePCM16LE converts raw little-endian 16-bit PCM bytes into samples.
// Trailing odd bytes are dropped.
func DecodePCM16LE(data []byte) []int16 {
	n := len(data) / 2
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples
}

// EncodePCM16LE converts samples back into little-endian 16-bit PCM bytes.
func EncodePCM16LE(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		data[i*2] = byte(s)
		data[i*2+1] = byte(s >> 8)
	}
	return data
}

// SamplesToFloat32 normalizes 16-bit samples into [-1, 1] floats, the input
// format the segmentation model expects.
func SamplesToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}
