package app

import (
	"encoding/hex"
	"fmt"
	"strings"

	"j2497keyhole/internal/dac"
	"j2497keyhole/internal/keyhole"
)

// Default configuration constants
const (
	DefaultSampleRate = dac.DefaultFL2KSampleRate // lowest FL2K rate
	DefaultPeriodUS   = keyhole.DefaultPeriodUS
	DefaultRepeat     = 4096   // full sequence repetitions per run
	DefaultOutput     = "fl2k" // fl2k subprocess sink
)

// Config holds application configuration.
type Config struct {
	SampleRate      float64
	AllowedMessages []string // hex encoded, e.g. "0a00" or "0a,00"
	SupplierFile    string
	PeriodUS        int
	CalibrationMode bool
	JamFreq         float64
	Repeat          int
	Output          string // "fl2k", "-" for stdout, or a file path
	Verbose         bool
	ShowVersion     bool
}

// MessageConfig configures the one-shot message subcommand.
type MessageConfig struct {
	SampleRate         float64
	MessageHex         string
	MIDHex             string
	ChecksumHex        string
	ExtraStopBits      []int
	TruncateAtChecksum bool
	Output             string
}

// ParseHexMessage decodes a J1708 message given as hex, tolerating comma and
// space separators between bytes.
func ParseHexMessage(s string) ([]byte, error) {
	cleaned := strings.NewReplacer(",", "", " ", "").Replace(s)
	msg, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("failed to parse hex message %q: %w", s, err)
	}
	return msg, nil
}

// ParseHexByte decodes a single byte given as hex.
func ParseHexByte(s string) (byte, error) {
	b, err := ParseHexMessage(s)
	if err != nil {
		return 0, err
	}
	if len(b) != 1 {
		return 0, fmt.Errorf("expected a single hex byte, got %d bytes", len(b))
	}
	return b[0], nil
}
