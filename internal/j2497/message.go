package j2497

import (
	"errors"

	"j2497keyhole/internal/j1708"
)

// MessageOptions controls BuildMessage framing.
type MessageOptions struct {
	// MID overrides the preamble MID byte; defaults to the first payload
	// byte.
	MID *byte

	// Checksum overrides the computed J1708 checksum.
	Checksum *byte

	// ExtraStopBits is the per-byte extra stop bit vector; defaults to [0].
	ExtraStopBits []int

	// TruncateAtChecksum omits the checksum byte and end sync symbol.
	TruncateAtChecksum bool
}

// BuildMessage synthesizes a complete J2497 transmission for a J1708
// message: the preamble modulated by chirp presence followed by the body
// modulated by chirp phase.
func (m *Modulator) BuildMessage(payload []byte, opts MessageOptions) ([]float64, error) {
	if len(payload) == 0 && opts.MID == nil {
		return nil, errors.New("empty payload requires an explicit preamble MID")
	}

	var mid byte
	if opts.MID != nil {
		mid = *opts.MID
	} else {
		mid = payload[0]
	}

	extra := opts.ExtraStopBits
	if len(extra) == 0 {
		extra = []int{0}
	}

	bodyBits, err := j1708.PayloadBits(payload, j1708.PayloadOptions{
		Checksum:           opts.Checksum,
		ExtraStopBits:      extra,
		TruncateAtChecksum: opts.TruncateAtChecksum,
	})
	if err != nil {
		return nil, err
	}

	preamble := m.PreambleWave(j1708.PreambleBits(mid))
	body := m.PayloadWave(bodyBits)

	out := make([]float64, 0, len(preamble)+len(body))
	out = append(out, preamble...)
	out = append(out, body...)
	return out, nil
}
