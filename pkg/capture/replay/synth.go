package replay

import (
	"math"
	"math/rand"
	"time"
)

// Synthetic clip builders for tests and offline runs. All produce mono int16
// samples at the given rate.

// Silence returns d of zero samples.
func Silence(sampleRate int, d time.Duration) []int16 {
	return make([]int16, numSamples(sampleRate, d))
}

// Tone returns d of a sine wave at freq Hz with the given peak amplitude
// (0–32767). A sustained tone reads as speech to energy-based detectors.
func Tone(sampleRate int, d time.Duration, freq float64, amplitude int16) []int16 {
	n := numSamples(sampleRate, d)
	out := make([]int16, n)
	step := 2 * math.Pi * freq / float64(sampleRate)
	for i := range out {
		out[i] = int16(float64(amplitude) * math.Sin(step*float64(i)))
	}
	return out
}

// Noise returns d of uniform noise with the given peak amplitude, seeded for
// reproducibility. Low-amplitude noise approximates background hum below the
// speech threshold.
func Noise(sampleRate int, d time.Duration, amplitude int16, seed int64) []int16 {
	n := numSamples(sampleRate, d)
	rng := rand.New(rand.NewSource(seed))
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(rng.Intn(int(amplitude)*2+1) - int(amplitude))
	}
	return out
}

// Concat joins clips into one.
func Concat(clips ...[]int16) []int16 {
	var total int
	for _, c := range clips {
		total += len(c)
	}
	out := make([]int16, 0, total)
	for _, c := range clips {
		out = append(out, c...)
	}
	return out
}

func numSamples(sampleRate int, d time.Duration) int {
	return int(int64(sampleRate) * int64(d) / int64(time.Second))
}
