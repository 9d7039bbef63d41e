package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"j2497keyhole/internal/dac"
	"j2497keyhole/internal/j2497"
	"j2497keyhole/internal/keyhole"
)

// Application represents the main application
type Application struct {
	config Config
	logger *logrus.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// NewApplication creates a new application instance
func NewApplication(config Config) *Application {
	ctx, cancel := context.WithCancel(context.Background())

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if config.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	return &Application{
		config: config,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start builds the frame generator, opens the sample sink and plays the
// mitigation waveform until the repeat count is exhausted, the sink closes
// or a shutdown signal arrives.
func (app *Application) Start() error {
	app.logger.WithFields(logrus.Fields{
		"version":    Version,
		"build_time": BuildTime,
		"git_commit": GitCommit,
	}).Info("Starting J2497 keyhole waveform generator")

	if app.config.Repeat <= 0 {
		app.config.Repeat = DefaultRepeat
	}
	if app.config.Output == "" {
		app.config.Output = DefaultOutput
	}

	generator, err := app.buildGenerator()
	if err != nil {
		return fmt.Errorf("failed to configure generator: %w", err)
	}

	sink, closeSink, warmup, cooldown, err := app.openSink()
	if err != nil {
		return err
	}

	// Shut down cleanly between frame writes on SIGINT/SIGTERM.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig, ok := <-sigChan
		if ok {
			app.logger.WithField("signal", sig).Info("Received shutdown signal")
			app.cancel()
		}
	}()
	defer func() {
		signal.Stop(sigChan)
		close(sigChan)
	}()

	writer := dac.NewWriter(sink, app.logger)
	playErr := app.play(generator, writer, warmup, cooldown)

	if closeSink != nil {
		if err := closeSink(); err != nil {
			app.logger.WithError(err).Warn("Failed to close sample sink")
		}
	}

	samples, bytes := writer.Stats()
	app.logger.WithFields(logrus.Fields{
		"samples_written": samples,
		"bytes_written":   bytes,
	}).Info("Playback finished")

	return playErr
}

// buildGenerator translates the CLI configuration into a keyhole generator.
func (app *Application) buildGenerator() (*keyhole.Generator, error) {
	var messages [][]byte
	for _, h := range app.config.AllowedMessages {
		msg, err := ParseHexMessage(h)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	var suppliers []keyhole.Supplier
	if app.config.SupplierFile != "" {
		var err error
		suppliers, err = keyhole.LoadSuppliers(app.config.SupplierFile)
		if err != nil {
			return nil, err
		}
		app.logger.WithFields(logrus.Fields{
			"file":      app.config.SupplierFile,
			"suppliers": len(suppliers),
		}).Info("Loaded supplier calibrations")
	}

	return keyhole.NewGenerator(keyhole.Config{
		SampleRate:      app.config.SampleRate,
		AllowedMessages: messages,
		Suppliers:       suppliers,
		PeriodUS:        app.config.PeriodUS,
		CalibrationMode: app.config.CalibrationMode,
		JamFreq:         app.config.JamFreq,
	}, app.logger)
}

// openSink opens the configured sample sink and returns it together with a
// close function and the warmup/cooldown zero-sample counts it wants.
func (app *Application) openSink() (io.Writer, func() error, int, int, error) {
	switch app.config.Output {
	case DefaultOutput:
		fl2k, err := dac.NewFL2K(app.config.SampleRate, app.logger)
		if err != nil {
			return nil, nil, 0, 0, err
		}
		return fl2k, fl2k.Close, fl2k.WarmupSamples(), fl2k.CooldownSamples(), nil
	case "-":
		return os.Stdout, nil, 0, 0, nil
	default:
		f, err := os.Create(app.config.Output)
		if err != nil {
			return nil, nil, 0, 0, fmt.Errorf("failed to create output file: %w", err)
		}
		return f, f.Close, 0, 0, nil
	}
}

// play streams warmup, the repeated frame sequence and cooldown to the
// writer. A closed sink ends playback cleanly.
func (app *Application) play(generator *keyhole.Generator, writer *dac.Writer, warmup, cooldown int) error {
	if warmup > 0 {
		if err := writer.WriteZeros(warmup); err != nil {
			return app.sinkResult(err)
		}
	}

	for rep := 0; rep < app.config.Repeat; rep++ {
		generator.Reset()
		for {
			select {
			case <-app.ctx.Done():
				app.logger.Info("Playback canceled")
				return nil
			default:
			}

			frame, ok := generator.Next()
			if !ok {
				break
			}
			if err := writer.WriteSamples(frame); err != nil {
				return app.sinkResult(err)
			}
		}

		if rep%100 == 0 {
			app.logger.WithFields(logrus.Fields{
				"repetition": rep,
				"of":         app.config.Repeat,
			}).Debug("Sequence repetition")
		}
	}

	if cooldown > 0 {
		if err := writer.WriteZeros(cooldown); err != nil {
			return app.sinkResult(err)
		}
	}
	return nil
}

// sinkResult swallows sink teardown, which is the normal way a downstream
// DAC ends a run, and surfaces anything else.
func (app *Application) sinkResult(err error) error {
	if errors.Is(err, dac.ErrSinkClosed) {
		app.logger.Info("Sample sink closed, stopping playback")
		return nil
	}
	return err
}

// RunMessage synthesizes one complete J2497 transmission from the message
// subcommand configuration and writes it as raw int8 samples.
func (app *Application) RunMessage(cfg MessageConfig) error {
	payload, err := ParseHexMessage(cfg.MessageHex)
	if err != nil {
		return err
	}

	opts := j2497.MessageOptions{
		ExtraStopBits:      cfg.ExtraStopBits,
		TruncateAtChecksum: cfg.TruncateAtChecksum,
	}
	if cfg.MIDHex != "" {
		mid, err := ParseHexByte(cfg.MIDHex)
		if err != nil {
			return err
		}
		opts.MID = &mid
	}
	if cfg.ChecksumHex != "" {
		csum, err := ParseHexByte(cfg.ChecksumHex)
		if err != nil {
			return err
		}
		opts.Checksum = &csum
	}

	modulator, err := j2497.NewModulator(cfg.SampleRate)
	if err != nil {
		return err
	}
	wave, err := modulator.BuildMessage(payload, opts)
	if err != nil {
		return err
	}

	out := io.Writer(os.Stdout)
	var closeOut func() error
	if cfg.Output != "" && cfg.Output != "-" {
		f, err := os.Create(cfg.Output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		out = f
		closeOut = f.Close
	}

	writer := dac.NewWriter(out, app.logger)
	if err := writer.WriteSamples(wave); err != nil && !errors.Is(err, dac.ErrSinkClosed) {
		return err
	}
	if closeOut != nil {
		if err := closeOut(); err != nil {
			return fmt.Errorf("failed to close output file: %w", err)
		}
	}

	app.logger.WithFields(logrus.Fields{
		"payload_bytes": len(payload),
		"samples":       len(wave),
	}).Info("Message waveform written")

	return nil
}
