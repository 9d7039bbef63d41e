// Package dac delivers synthesized waveforms to a DAC: sample conversion to
// raw signed 8-bit PCM, chunked pipe writes with clean broken-pipe
// termination, and an fl2k_file subprocess driver.
package dac

import (
	"errors"
	"io"
	"math"
	"syscall"

	"github.com/sirupsen/logrus"
)

// Sample conversion and write constants
const (
	// FullScale is the int8 full-scale multiplier; +-1.0 maps to +-127.
	FullScale = 127

	// ChunkSize is the write chunk size in bytes.
	ChunkSize = 4096
)

// ErrSinkClosed reports that the downstream DAC stopped accepting samples
// (broken pipe or invalid argument). Callers terminate cleanly on it.
var ErrSinkClosed = errors.New("sample sink closed")

// PrepareSamples converts samples in [-1.0, 1.0] to raw signed 8-bit bytes.
func PrepareSamples(samples []float64) []byte {
	out := make([]byte, len(samples))
	for i, s := range samples {
		out[i] = byte(int8(math.Round(s * FullScale)))
	}
	return out
}

// Writer writes sample frames to a sink in fixed-size chunks and tracks
// write statistics.
type Writer struct {
	out    io.Writer
	logger *logrus.Logger

	samplesWritten uint64
	bytesWritten   uint64
}

// NewWriter creates a writer over the given sink.
func NewWriter(out io.Writer, logger *logrus.Logger) *Writer {
	if logger == nil {
		logger = logrus.New()
	}
	return &Writer{out: out, logger: logger}
}

// WriteSamples converts one frame to int8 and writes it. Returns
// ErrSinkClosed when the sink has gone away.
func (w *Writer) WriteSamples(samples []float64) error {
	if err := w.writeChunked(PrepareSamples(samples)); err != nil {
		return err
	}
	w.samplesWritten += uint64(len(samples))
	return nil
}

// WriteZeros writes n zero samples, used for DAC warmup and cooldown.
func (w *Writer) WriteZeros(n int) error {
	return w.writeChunked(make([]byte, n))
}

// Stats returns the number of waveform samples written by WriteSamples and
// the total bytes written so far. Zero samples from WriteZeros count towards
// bytes only.
func (w *Writer) Stats() (samples uint64, bytes uint64) {
	return w.samplesWritten, w.bytesWritten
}

// writeChunked writes data in ChunkSize pieces, mapping pipe teardown to
// ErrSinkClosed.
func (w *Writer) writeChunked(data []byte) error {
	for off := 0; off < len(data); off += ChunkSize {
		end := off + ChunkSize
		if end > len(data) {
			end = len(data)
		}
		n, err := w.out.Write(data[off:end])
		w.bytesWritten += uint64(n)
		if err != nil {
			if errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.EINVAL) {
				w.logger.WithError(err).Debug("Sample sink closed")
				return ErrSinkClosed
			}
			return err
		}
	}
	return nil
}
