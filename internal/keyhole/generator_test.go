package keyhole

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

// collectFrames drains the generator
func collectFrames(g *Generator) [][]float64 {
	var frames [][]float64
	for {
		frame, ok := g.Next()
		if !ok {
			return frames
		}
		frames = append(frames, frame)
	}
}

// TestNewGenerator_Defaults checks that the zero-ish config selects LAMP ON,
// the built-in suppliers and the default period.
func TestNewGenerator_Defaults(t *testing.T) {
	g, err := NewGenerator(Config{SampleRate: 1e6}, testLogger())
	require.NoError(t, err)

	assert.Equal(t, 32000, g.PeriodSamples())
	// 1 allowed message x (WABCO 2 delays + Bendix 3 delays) x 2 phases,
	// plus the closing all-jam frame
	assert.Equal(t, 11, g.TotalFrames())
}

// TestNewGenerator_ConfigErrors tests fail-fast validation
func TestNewGenerator_ConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{
			name: "Sample rate below floor",
			cfg:  Config{SampleRate: 44100},
		},
		{
			name: "Period below minimum",
			cfg:  Config{SampleRate: 1e6, PeriodUS: 25000},
		},
		{
			name: "Period aligning with LAMP cycle",
			cfg:  Config{SampleRate: 1e6, PeriodUS: 50000},
		},
		{
			name: "Empty allowed message",
			cfg:  Config{SampleRate: 1e6, AllowedMessages: [][]byte{{}}},
		},
		{
			name: "Oversized allowed message",
			cfg:  Config{SampleRate: 1e6, AllowedMessages: [][]byte{make([]byte, 22)}},
		},
		{
			name: "Supplier with bad phase",
			cfg: Config{
				SampleRate: 1e6,
				Suppliers: []Supplier{{
					Label:          "bad",
					ExpectedDelays: []float64{45},
					ExtraStopBits:  []int{0},
					ExpectedPhases: []int{2},
				}},
			},
		},
		{
			name: "Door plus keyhole exceeding period",
			cfg: Config{
				SampleRate:      1e6,
				AllowedMessages: [][]byte{make([]byte, 21)},
				Suppliers: []Supplier{{
					Label:          "slow",
					ExpectedDelays: []float64{45},
					ExtraStopBits:  []int{20},
					ExpectedPhases: []int{1},
				}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGenerator(tt.cfg, testLogger())
			assert.Error(t, err)
		})
	}
}

// TestGenerator_FrameLengths checks that every frame is exactly one period
func TestGenerator_FrameLengths(t *testing.T) {
	g, err := NewGenerator(Config{SampleRate: 1e6}, testLogger())
	require.NoError(t, err)

	frames := collectFrames(g)
	require.Equal(t, g.TotalFrames(), len(frames))
	for i, frame := range frames {
		assert.Equal(t, g.PeriodSamples(), len(frame), "frame %d", i)
	}
}

// TestGenerator_FL2KRate reproduces the full default run at the lowest FL2K
// sample rate: 11 frames of exactly 248888 samples.
func TestGenerator_FL2KRate(t *testing.T) {
	g, err := NewGenerator(Config{SampleRate: 7777777}, testLogger())
	require.NoError(t, err)

	assert.Equal(t, 248888, g.PeriodSamples())

	frames := collectFrames(g)
	require.Equal(t, 11, len(frames))
	for i, frame := range frames {
		assert.Equal(t, 248888, len(frame), "frame %d", i)
	}
}

// TestGenerator_EnumerationOrder checks the contract ordering: allowed
// messages outer, then suppliers, then delays, then phases, all in declared
// order.
func TestGenerator_EnumerationOrder(t *testing.T) {
	g, err := NewGenerator(Config{SampleRate: 1e6}, testLogger())
	require.NoError(t, err)

	wabco := "wabco tcs ii 2s1m basic msh 400 500 101 0"
	bendix := "bendix tabs6 5014016 ES1301 K003236"

	expected := []struct {
		label string
		delay float64
		phase int
	}{
		{wabco, 45.0, -1}, {wabco, 45.0, 1},
		{wabco, 41.7, -1}, {wabco, 41.7, 1},
		{bendix, 47.2, -1}, {bendix, 47.2, 1},
		{bendix, 41.7, -1}, {bendix, 41.7, 1},
		{bendix, 40.6, -1}, {bendix, 40.6, 1},
	}

	require.Equal(t, len(expected), len(g.keyholes))
	for i, want := range expected {
		assert.Equal(t, want.label, g.keyholes[i].label, "keyhole %d", i)
		assert.Equal(t, want.delay, g.keyholes[i].delay, "keyhole %d", i)
		assert.Equal(t, want.phase, g.keyholes[i].phase, "keyhole %d", i)
	}
}

// TestGenerator_KeyholeTiming checks the early jam arithmetic: a 45.0
// UART-bit-time delay puts the keyhole 4131.78 us after the door, 4132
// samples at 1 MHz.
func TestGenerator_KeyholeTiming(t *testing.T) {
	g, err := NewGenerator(Config{SampleRate: 1e6}, testLogger())
	require.NoError(t, err)

	// keyholes[0] is WABCO delay 45.0
	assert.Equal(t, 4132, g.keyholes[0].startSamples)

	// keyholes[4] is Bendix delay 47.2:
	// 47.2*104.17 + 48.3 - 104.17 - 500 = 4360.954 us
	assert.Equal(t, 4361, g.keyholes[4].startSamples)
}

// TestGenerator_FrameStructure checks one keyhole frame region by region:
// door chirps, early jam, phase-scaled keyhole, blanked CRC window, late jam.
func TestGenerator_FrameStructure(t *testing.T) {
	g, err := NewGenerator(Config{SampleRate: 1e6}, testLogger())
	require.NoError(t, err)

	frame, ok := g.Next()
	require.True(t, ok)

	// Door: 16 byte message frames to 182 bits of 100 samples each.
	doorLen := 182 * 100
	energy := func(region []float64) float64 {
		var e float64
		for _, s := range region {
			e += s * s
		}
		return e
	}
	assert.Greater(t, energy(frame[:doorLen]), 1.0, "door region should carry chirps")

	// Early jam: 4132 samples for the WABCO 45.0 delay.
	jam := frame[doorLen : doorLen+4132]
	assert.Greater(t, energy(jam), 1.0, "early jam region should carry the carrier")

	// Keyhole: truncated LAMP ON with WABCO stop bits is 29 bits.
	keyholeLen := 29 * 100
	keyholeStart := doorLen + 4132
	assert.Greater(t, energy(frame[keyholeStart:keyholeStart+keyholeLen]), 1.0)

	// Blanked CRC and end sync window: 1700 us of silence.
	blankStart := keyholeStart + keyholeLen
	assert.Zero(t, energy(frame[blankStart:blankStart+1700]))

	// Trailing jam fills the rest of the period.
	assert.Greater(t, energy(frame[blankStart+1700:]), 1.0)
}

// TestGenerator_PhasePair checks that consecutive phase keyholes are exact
// negations of each other in the keyhole region.
func TestGenerator_PhasePair(t *testing.T) {
	g, err := NewGenerator(Config{SampleRate: 1e6}, testLogger())
	require.NoError(t, err)

	minus, ok := g.Next()
	require.True(t, ok)
	plus, ok := g.Next()
	require.True(t, ok)

	keyholeStart := 182*100 + 4132
	keyholeEnd := keyholeStart + 29*100
	for i := keyholeStart; i < keyholeEnd; i++ {
		assert.Equal(t, -minus[i], plus[i])
	}
}

// TestGenerator_ClosingJamFrame checks the final door plus full-period jam
// frame.
func TestGenerator_ClosingJamFrame(t *testing.T) {
	g, err := NewGenerator(Config{SampleRate: 1e6}, testLogger())
	require.NoError(t, err)

	frames := collectFrames(g)
	closing := frames[len(frames)-1]

	doorLen := 182 * 100
	var doorEnergy, jamEnergy float64
	for _, s := range closing[:doorLen] {
		doorEnergy += s * s
	}
	for _, s := range closing[doorLen:] {
		jamEnergy += s * s
	}
	assert.Greater(t, doorEnergy, 1.0)
	assert.Greater(t, jamEnergy, 1.0)
}

// TestGenerator_CalibrationMode checks that calibration zeroes everything
// except the doors.
func TestGenerator_CalibrationMode(t *testing.T) {
	g, err := NewGenerator(Config{SampleRate: 1e6, CalibrationMode: true}, testLogger())
	require.NoError(t, err)

	frames := collectFrames(g)
	require.Equal(t, 11, len(frames))

	doorLen := 182 * 100
	for i, frame := range frames {
		var doorEnergy float64
		for _, s := range frame[:doorLen] {
			doorEnergy += s * s
		}
		assert.Greater(t, doorEnergy, 1.0, "frame %d door should still transmit", i)

		for j, s := range frame[doorLen:] {
			if s != 0 {
				t.Fatalf("frame %d sample %d after door is %v, want silence", i, doorLen+j, s)
			}
		}
	}
}

// TestGenerator_Reset checks determinism: two passes produce identical
// frames.
func TestGenerator_Reset(t *testing.T) {
	g, err := NewGenerator(Config{SampleRate: 1e6}, testLogger())
	require.NoError(t, err)

	first := collectFrames(g)
	g.Reset()
	second := collectFrames(g)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i], second[i], "frame %d", i)
	}
}

// TestGenerator_AmplitudeBounds checks every emitted sample stays in
// [-1.0, 1.0].
func TestGenerator_AmplitudeBounds(t *testing.T) {
	g, err := NewGenerator(Config{SampleRate: 1e6}, testLogger())
	require.NoError(t, err)

	for i, frame := range collectFrames(g) {
		for j, s := range frame {
			if s < -1.0 || s > 1.0 {
				t.Fatalf("frame %d sample %d out of range: %v", i, j, s)
			}
		}
	}
}
