// Package keyhole composes the J2497 keyhole mitigation waveform: a periodic
// sequence of door, keyhole and jam signals that lets an operator-selected
// set of J1708 messages through while corrupting everything else on the
// powerline segment.
package keyhole

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"j2497keyhole/internal/j1708"
	"j2497keyhole/internal/j2497"
)

// Timing constants. The expected delays in the supplier catalog are UART
// delays measured at the J1708 side of the PLC modem, so composing a keyhole
// converts between UART bit times, the modem's fixed crossover latency and
// J2497 body bit times.
const (
	// UARTBitTimeUS is one J1708 UART bit time (9600 bps).
	UARTBitTimeUS = 104.17

	// SyncSymbolTimeUS is the duration of the 5-bit body start sync symbol.
	SyncSymbolTimeUS = j1708.StartSyncBits * j2497.BodyBitTimeUS

	// FromJ2497OverToUARTOverUS is the Intellon SSC P485 measured latency
	// from J2497 end-of-frame to UART end-of-frame.
	FromJ2497OverToUARTOverUS = 48.3

	// TimeAfterPayloadUS is the duration of everything after the payload in
	// a complete message: start bit, CRC byte, stop bit and end sync symbol.
	TimeAfterPayloadUS = (1 + 8 + 1 + j1708.EndSyncBits) * j2497.BodyBitTimeUS

	// MinPeriodUS bounds the door+keyhole period from below. Bendix TABS6
	// transmitters verify their sends and retry on corruption, but carry a
	// priority inversion bug: if a lower-priority message cannot get
	// through, higher-priority messages (LAMP ON included) queue behind it.
	// Repeating the door+keyhole faster than this triggers that bug and no
	// LAMP messages flow at all. The trailing all-jam period exists for the
	// same reason.
	MinPeriodUS = 32000

	// DefaultPeriodUS is the default signal period.
	DefaultPeriodUS = MinPeriodUS
)

// Config is the generator configuration. Zero-value fields select defaults
// where a default exists; SampleRate must always be set.
type Config struct {
	// SampleRate of the synthesized waveform in Hz, at least 800 kHz.
	SampleRate float64

	// AllowedMessages are the J1708 payloads the keyholes let through.
	// Defaults to LAMP ON only.
	AllowedMessages [][]byte

	// Suppliers is the calibration catalog. Defaults to the built-in WABCO
	// and Bendix records.
	Suppliers []Supplier

	// PeriodUS is the door+keyhole repetition period in microseconds, at
	// least MinPeriodUS. Defaults to DefaultPeriodUS.
	PeriodUS int

	// CalibrationMode suppresses keyhole and jam amplitudes so bare door
	// plus retransmission timing can be observed on a live bus to measure
	// new supplier parameters. Doors still carry their payload.
	CalibrationMode bool

	// JamFreq is the constant-carrier jam frequency in Hz. Defaults to
	// j2497.DefaultJamFreq.
	JamFreq float64
}

// keyholePlan identifies one keyhole: an allowed message aligned to one
// (supplier, delay, phase) combination. Bit streams are precomputed; sample
// synthesis happens per frame.
type keyholePlan struct {
	label        string
	delay        float64
	phase        int
	bits         *j1708.BitVector
	startSamples int
}

// Generator lazily produces the finite sequence of fixed-period frames.
// Construction does all validation; Next is then total. The generator is
// deterministic and restartable via Reset.
type Generator struct {
	cfg    Config
	logger *logrus.Logger
	mod    *j2497.Modulator

	doors    []*j1708.BitVector
	keyholes []keyholePlan

	periodSamples int
	keyholeAmp    float64
	jamAmp        float64

	pos     int
	doorIdx int
}

// NewGenerator validates the configuration and prepares the frame sequence.
func NewGenerator(cfg Config, logger *logrus.Logger) (*Generator, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if len(cfg.AllowedMessages) == 0 {
		cfg.AllowedMessages = DefaultAllowedMessages()
	}
	if len(cfg.Suppliers) == 0 {
		cfg.Suppliers = DefaultSuppliers()
	}
	if cfg.PeriodUS == 0 {
		cfg.PeriodUS = DefaultPeriodUS
	}
	if cfg.JamFreq == 0 {
		cfg.JamFreq = j2497.DefaultJamFreq
	}

	mod, err := j2497.NewModulator(cfg.SampleRate)
	if err != nil {
		return nil, err
	}

	for i, msg := range cfg.AllowedMessages {
		if len(msg) == 0 || len(msg) > j1708.MaxMessageLen {
			return nil, fmt.Errorf("allowed message %d has length %d, must be 1..%d bytes", i, len(msg), j1708.MaxMessageLen)
		}
	}
	for _, s := range cfg.Suppliers {
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}

	if cfg.PeriodUS < MinPeriodUS {
		return nil, fmt.Errorf("period %d us below minimum %d us", cfg.PeriodUS, MinPeriodUS)
	}

	g := &Generator{
		cfg:           cfg,
		logger:        logger,
		mod:           mod,
		periodSamples: int(float64(cfg.PeriodUS) * cfg.SampleRate / 1e6),
		keyholeAmp:    1,
		jamAmp:        1,
	}
	if cfg.CalibrationMode {
		// To calibrate supplier parameters the keyholes must be suppressed
		// to measure expected delays, and the jams must be suppressed so
		// J1708 traffic is receivable.
		g.keyholeAmp = 0
		g.jamAmp = 0
	}

	if err := g.checkLampAlignment(); err != nil {
		return nil, err
	}

	g.doors, err = doorBits()
	if err != nil {
		return nil, err
	}
	if err := g.buildKeyholes(); err != nil {
		return nil, err
	}

	// Round-robining doors against keyholes only covers every door if there
	// are at least as many keyholes. With one built-in door this can only
	// fire on a programming mistake.
	if len(g.keyholes) < len(g.doors) {
		return nil, fmt.Errorf("%d keyholes cannot cover %d doors", len(g.keyholes), len(g.doors))
	}

	logger.WithFields(logrus.Fields{
		"sample_rate":      cfg.SampleRate,
		"period_us":        cfg.PeriodUS,
		"period_samples":   g.periodSamples,
		"allowed_messages": len(cfg.AllowedMessages),
		"suppliers":        len(cfg.Suppliers),
		"frames":           g.TotalFrames(),
		"calibration_mode": cfg.CalibrationMode,
	}).Info("Keyhole generator configured")

	return g, nil
}

// checkLampAlignment rejects periods whose multiples align with the 0.5 s
// LAMP cycle of transmitters that don't queue messages (e.g. Haldex), taking
// anything within one sync symbol width as aligned. A beating period would
// repeatedly jam the very message the keyholes are meant to let through.
func (g *Generator) checkLampAlignment() error {
	remainder := math.Mod(0.5*g.cfg.SampleRate, float64(g.periodSamples))
	alignLimit := float64(SyncSymbolTimeUS) * g.cfg.SampleRate / 1e6

	if remainder <= alignLimit || float64(g.periodSamples)-remainder <= alignLimit {
		return fmt.Errorf("period %d us aligns with the 0.5 s LAMP cycle at %.0f Hz; pick a different period", g.cfg.PeriodUS, g.cfg.SampleRate)
	}
	return nil
}

// buildKeyholes enumerates every (allowed message, supplier, delay, phase)
// combination in declared order and length-checks each resulting frame
// against the period. The enumeration order interacts with the timing of
// real transmitters on the bus and must not change.
func (g *Generator) buildKeyholes() error {
	doorLen := 0
	for _, d := range g.doors {
		if n := d.Len() * g.mod.Samples(j2497.BodyBitTimeUS); n > doorLen {
			doorLen = n
		}
	}
	blankLen := g.mod.Samples(TimeAfterPayloadUS)

	for _, msg := range g.cfg.AllowedMessages {
		for _, supplier := range g.cfg.Suppliers {
			bits, err := j1708.PayloadBits(msg, j1708.PayloadOptions{
				ExtraStopBits:      supplier.ExtraStopBits,
				TruncateAtChecksum: true,
			})
			if err != nil {
				return fmt.Errorf("failed to frame keyhole for %q: %w", supplier.Label, err)
			}

			for _, delay := range supplier.ExpectedDelays {
				// The delay is measured UART-side at the end of the door;
				// back out the modem crossover, one UART bit and the start
				// sync so the keyhole chirps land exactly on the
				// retransmitted payload.
				startUS := delay*UARTBitTimeUS + FromJ2497OverToUARTOverUS - UARTBitTimeUS - SyncSymbolTimeUS
				startSamples := g.mod.Samples(startUS)
				if startSamples < 0 {
					return fmt.Errorf("supplier %q delay %.1f bit times is too small to fit a keyhole", supplier.Label, delay)
				}

				keyholeLen := startSamples + bits.Len()*g.mod.Samples(j2497.BodyBitTimeUS) + blankLen
				if doorLen+keyholeLen >= g.periodSamples {
					return fmt.Errorf("door plus keyhole for %q delay %.1f needs %d samples, period is %d", supplier.Label, delay, doorLen+keyholeLen, g.periodSamples)
				}

				for _, phase := range supplier.ExpectedPhases {
					g.keyholes = append(g.keyholes, keyholePlan{
						label:        supplier.Label,
						delay:        delay,
						phase:        phase,
						bits:         bits,
						startSamples: startSamples,
					})
				}
			}
		}
	}
	return nil
}

// PeriodSamples returns the exact frame length in samples.
func (g *Generator) PeriodSamples() int {
	return g.periodSamples
}

// TotalFrames returns the number of frames Next will produce: one per
// keyhole combination plus the closing all-jam frame.
func (g *Generator) TotalFrames() int {
	return len(g.keyholes) + 1
}

// Reset restarts the frame sequence from the beginning.
func (g *Generator) Reset() {
	g.pos = 0
	g.doorIdx = 0
}

// Next computes the next frame to completion and returns it, or (nil, false)
// once the sequence is exhausted. Every frame is exactly PeriodSamples long.
func (g *Generator) Next() ([]float64, bool) {
	switch {
	case g.pos < len(g.keyholes):
		frame := g.keyholeFrame(g.keyholes[g.pos])
		g.pos++
		return frame, true
	case g.pos == len(g.keyholes):
		// One closing frame of door followed by full-period jam, to shake
		// transmitters out of forever-retries caused by the keyholes
		// corrupting their sends.
		frame := g.jamFrame()
		g.pos++
		return frame, true
	default:
		return nil, false
	}
}

// keyholeFrame assembles door, early jam, phase-scaled keyhole body, blanked
// CRC window and trailing jam into one period.
func (g *Generator) keyholeFrame(k keyholePlan) []float64 {
	frame := make([]float64, 0, g.periodSamples)
	frame = append(frame, g.nextDoor()...)
	frame = appendScaled(frame, g.mod.Jam(k.startSamples, g.cfg.JamFreq), g.jamAmp)
	frame = appendScaled(frame, g.mod.PayloadWave(k.bits), g.keyholeAmp*float64(k.phase))
	frame = append(frame, g.mod.Silence(g.mod.Samples(TimeAfterPayloadUS))...)
	frame = appendScaled(frame, g.mod.Jam(g.periodSamples-len(frame), g.cfg.JamFreq), g.jamAmp)

	g.logger.WithFields(logrus.Fields{
		"frame":    g.pos,
		"supplier": k.label,
		"delay":    k.delay,
		"phase":    k.phase,
	}).Debug("Synthesized keyhole frame")

	return frame
}

// jamFrame assembles the closing door plus full-period jam frame.
func (g *Generator) jamFrame() []float64 {
	frame := make([]float64, 0, g.periodSamples)
	frame = append(frame, g.nextDoor()...)
	frame = appendScaled(frame, g.mod.Jam(g.periodSamples-len(frame), g.cfg.JamFreq), g.jamAmp)
	return frame
}

// nextDoor modulates the next door signal in round-robin order.
func (g *Generator) nextDoor() []float64 {
	door := g.mod.PayloadWave(g.doors[g.doorIdx])
	g.doorIdx = (g.doorIdx + 1) % len(g.doors)
	return door
}

// appendScaled appends amp*s for every sample of wave.
func appendScaled(dst []float64, wave []float64, amp float64) []float64 {
	for _, s := range wave {
		dst = append(dst, amp*s)
	}
	return dst
}
