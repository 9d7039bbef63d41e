package keyhole

import "j2497keyhole/internal/j1708"

// The door signal holds J2497 transmitters in wait, causing them to queue
// their messages; when the door ends they retransmit after a near
// deterministic, per-supplier delay. All built-in supplier calibrations were
// measured against exactly this payload and CRC.
//
// TODO: vary the MID through all trailer ABS MIDs [0x89 0x8a 0x8b 0xf6 0xf7]
// to also perform an address denial mitigation alongside the keyholes. That
// needs a correct CRC per MID and re-measured supplier calibrations.
var doorMessages = [][]byte{
	{
		0x89,
		0xFE, 0x07, 0x57,
		0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA,
		0xA7, 0x1C,
	},
}

// doorChecksum deliberately corrupts the door CRC; the correct value is 0xB4.
const doorChecksum byte = 0xCC

// doorBits builds the body bit streams for every door signal. Doors are
// modulated as body chirps only; they occupy the line rather than deliver a
// receivable frame, so no preamble section is wanted.
func doorBits() ([]*j1708.BitVector, error) {
	csum := doorChecksum
	bits := make([]*j1708.BitVector, 0, len(doorMessages))
	for _, msg := range doorMessages {
		b, err := j1708.PayloadBits(msg, j1708.PayloadOptions{
			Checksum:      &csum,
			ExtraStopBits: []int{0},
		})
		if err != nil {
			return nil, err
		}
		bits = append(bits, b)
	}
	return bits, nil
}
