// Package j2497 synthesizes SAE J2497 powerline-carrier baseband waveforms:
// the chirp body symbol, preamble and payload modulation of J1708 bit
// streams, the constant-carrier jam, and complete message transmissions.
package j2497

import (
	"fmt"
	"math"

	"j2497keyhole/internal/j1708"
)

// Timing and synthesis constants
const (
	// BodyBitTimeUS is the J2497 body bit time in microseconds.
	BodyBitTimeUS = 100
	// PreambleBitTimeUS is the preamble slot time in microseconds; the
	// preamble runs slower than the body.
	PreambleBitTimeUS = 114

	// MinSampleRate is the synthesis floor in Hz, Nyquist for the 400 kHz
	// upper chirp frequency.
	MinSampleRate = 800e3

	// DefaultJamFreq is the constant-carrier jam frequency in Hz. Any
	// carrier in 300-400 kHz corrupts J2497 frames; this value was
	// calibrated as the best corrupter at 3/4 power of the target signal.
	DefaultJamFreq = 376.379e3
)

// Modulator converts J1708 bit streams into J2497 baseband samples at a
// fixed sample rate. It caches the chirp symbol; a Modulator is immutable
// after construction and safe for concurrent use.
type Modulator struct {
	sampleRate float64
	chirp      []float64
}

// NewModulator creates a modulator for the given sample rate using the
// primary chirp symbol.
func NewModulator(sampleRate float64) (*Modulator, error) {
	return NewModulatorWithChirp(sampleRate, ChirpPrimary)
}

// NewModulatorWithChirp creates a modulator with an explicit chirp variant.
func NewModulatorWithChirp(sampleRate float64, variant ChirpVariant) (*Modulator, error) {
	if sampleRate < MinSampleRate {
		return nil, fmt.Errorf("sample rate %.0f Hz below minimum %.0f Hz", sampleRate, float64(MinSampleRate))
	}
	return &Modulator{
		sampleRate: sampleRate,
		chirp:      synthesizeChirp(sampleRate, variant),
	}, nil
}

// SampleRate returns the modulator's sample rate in Hz.
func (m *Modulator) SampleRate() float64 {
	return m.sampleRate
}

// Samples converts a duration in microseconds to a sample count, rounding
// half away from zero.
func (m *Modulator) Samples(us float64) int {
	return durationSamples(us, m.sampleRate)
}

func durationSamples(us float64, sampleRate float64) int {
	return int(math.Round(us * sampleRate / 1e6))
}

// Chirp returns a copy of the 100 us chirp symbol.
func (m *Modulator) Chirp() []float64 {
	out := make([]float64, len(m.chirp))
	copy(out, m.chirp)
	return out
}

// PreambleWave modulates preamble bits by chirp presence: a 0 bit is a chirp
// padded to the 114 us slot, a 1 bit is a silent slot.
func (m *Modulator) PreambleWave(bits *j1708.BitVector) []float64 {
	slot := m.Samples(PreambleBitTimeUS)
	out := make([]float64, bits.Len()*slot)
	for i := 0; i < bits.Len(); i++ {
		if !bits.Bit(i) {
			copy(out[i*slot:], m.chirp)
		}
	}
	return out
}

// PayloadWave modulates body bits by chirp phase: a 1 bit is the chirp, a 0
// bit is the chirp inverted.
func (m *Modulator) PayloadWave(bits *j1708.BitVector) []float64 {
	out := make([]float64, 0, bits.Len()*len(m.chirp))
	for i := 0; i < bits.Len(); i++ {
		if bits.Bit(i) {
			out = append(out, m.chirp...)
		} else {
			for _, s := range m.chirp {
				out = append(out, -s)
			}
		}
	}
	return out
}

// Jam synthesizes n samples of a constant carrier at the given frequency,
// phase -90 degrees, amplitude 1.0. A freq of 0 selects DefaultJamFreq.
func (m *Modulator) Jam(n int, freq float64) []float64 {
	if freq == 0 {
		freq = DefaultJamFreq
	}
	out := make([]float64, n)
	w := 2 * math.Pi * freq / m.sampleRate
	for i := range out {
		out[i] = math.Sin(w * float64(i))
	}
	return out
}

// Silence returns n zero samples.
func (m *Modulator) Silence(n int) []float64 {
	return make([]float64, n)
}
