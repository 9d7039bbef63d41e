package dac

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"

	"github.com/sirupsen/logrus"
)

// FL2K driver constants
const (
	// DefaultFL2KSampleRate is the lowest sample rate an FL2K dongle
	// supports.
	DefaultFL2KSampleRate = 7777777

	// warmupDivisor sizes the zero-sample warmup block relative to one
	// second of samples.
	warmupDivisor = 128
)

// FL2K drives an fl2k_file subprocess reading raw signed 8-bit samples from
// its standard input. Without a warmup block of zeros before the waveform
// and a cooldown block after, the dongle corrupts the first and last samples
// it transmits.
//
// The kernel USB buffers are usually too small for sustained playback; once
// per boot run:
//
//	sudo sh -c 'echo 1000 > /sys/module/usbcore/parameters/usbfs_memory_mb'
type FL2K struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	logger *logrus.Logger

	sampleRate float64
}

// NewFL2K launches fl2k_file at the given sample rate with a stdin pipe.
func NewFL2K(sampleRate float64, logger *logrus.Logger) (*FL2K, error) {
	if logger == nil {
		logger = logrus.New()
	}

	cmd := exec.Command("fl2k_file", "-s", strconv.Itoa(int(sampleRate)), "-r", "1", "-")
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open fl2k_file stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start fl2k_file: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"sample_rate": sampleRate,
		"pid":         cmd.Process.Pid,
	}).Info("fl2k_file started")

	return &FL2K{
		cmd:        cmd,
		stdin:      stdin,
		logger:     logger,
		sampleRate: sampleRate,
	}, nil
}

// Write forwards raw sample bytes to the subprocess.
func (f *FL2K) Write(p []byte) (int, error) {
	return f.stdin.Write(p)
}

// WarmupSamples returns the number of zero samples to send before the
// waveform.
func (f *FL2K) WarmupSamples() int {
	return int(f.sampleRate / warmupDivisor)
}

// CooldownSamples returns the number of zero samples to send after the
// waveform.
func (f *FL2K) CooldownSamples() int {
	return int(f.sampleRate)
}

// Close closes the pipe and tears down the subprocess.
func (f *FL2K) Close() error {
	if err := f.stdin.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		f.logger.WithError(err).Debug("Failed to close fl2k_file stdin")
	}

	if f.cmd.Process != nil {
		if err := f.cmd.Process.Kill(); err != nil {
			f.logger.WithError(err).Debug("Failed to kill fl2k_file")
		}
	}

	// Exit status reflects the kill; only surface the unexpected.
	if err := f.cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return fmt.Errorf("failed to reap fl2k_file: %w", err)
		}
	}

	f.logger.Info("fl2k_file stopped")
	return nil
}
