package j2497

import "math"

// ChirpVariant selects which chirp symbol the modulator synthesizes.
type ChirpVariant int

// Chirp symbol variants
const (
	// ChirpPrimary is the standard J2497 body symbol.
	ChirpPrimary ChirpVariant = iota
	// ChirpAlt is an alternate symbol with slightly different sweep
	// endpoints, kept selectable for bench experiments.
	ChirpAlt
)

// chirpSegment describes one linear frequency sweep of the symbol.
type chirpSegment struct {
	f0, f1   float64 // sweep endpoints, Hz
	duration float64 // seconds
	phiDeg   float64 // initial phase, degrees
}

var primaryChirpSegments = []chirpSegment{
	{f0: 203e3, f1: 400e3, duration: 63e-6, phiDeg: -90},
	{f0: 400e3, f1: 100e3, duration: 4e-6, phiDeg: -90},
	{f0: 100e3, f1: 200e3, duration: 33e-6, phiDeg: -90},
}

var altChirpSegments = []chirpSegment{
	{f0: 203e3, f1: 394e3, duration: 63e-6, phiDeg: -90},
	{f0: 400e3, f1: 100e3, duration: 4e-6, phiDeg: -90},
	{f0: 1e3, f1: 216e3, duration: 33e-6, phiDeg: -30},
}

// appendLinearChirp appends a linear frequency sweep to out. The
// instantaneous frequency runs from seg.f0 at the start of the segment to
// seg.f1 at seg.duration; the sample at local time t is
// cos(2π(f0 t + (f1−f0) t²/(2 T)) + φ).
func appendLinearChirp(out []float64, seg chirpSegment, sampleRate float64) []float64 {
	n := int(seg.duration * sampleRate)
	phi := seg.phiDeg * math.Pi / 180
	k := (seg.f1 - seg.f0) / (2 * seg.duration)
	for i := 0; i < n; i++ {
		t := float64(i) / sampleRate
		out = append(out, math.Cos(2*math.Pi*(seg.f0*t+k*t*t)+phi))
	}
	return out
}

// synthesizeChirp builds one complete 100 us chirp symbol at the given
// sample rate, zero-padded to exactly the body bit time. Segment lengths
// truncate so the pad is never negative.
func synthesizeChirp(sampleRate float64, variant ChirpVariant) []float64 {
	segments := primaryChirpSegments
	if variant == ChirpAlt {
		segments = altChirpSegments
	}

	target := durationSamples(BodyBitTimeUS, sampleRate)
	wave := make([]float64, 0, target)
	for _, seg := range segments {
		wave = appendLinearChirp(wave, seg, sampleRate)
	}
	for len(wave) < target {
		wave = append(wave, 0)
	}
	return wave
}
