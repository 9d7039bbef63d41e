package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"j2497keyhole/internal/app"
)

func main() {
	var config app.Config
	var msgConfig app.MessageConfig

	rootCmd := &cobra.Command{
		Use:   "j2497keyhole",
		Short: "J2497 keyhole mitigation waveform generator",
		Long: `J2497 keyhole mitigation waveform generator.

Synthesizes a repeating baseband signal of door, keyhole and jam waveforms
that, when transmitted over the vehicle powerline, lets only the allowed
J1708 messages reach J2497 receivers on the segment while corrupting every
other transmission. Samples are streamed as raw signed 8-bit PCM to an
fl2k_file subprocess, stdout or a file.

Example usage:
  j2497keyhole --sample-rate 7777777 --allow 0a00 --period-us 32000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if config.ShowVersion {
				app.ShowVersion()
				return nil
			}

			application := app.NewApplication(config)
			return application.Start()
		},
	}

	rootCmd.Flags().Float64VarP(&config.SampleRate, "sample-rate", "s", app.DefaultSampleRate, "Sample rate (Hz), at least 800000")
	rootCmd.Flags().StringArrayVarP(&config.AllowedMessages, "allow", "a", []string{"0a00"}, "Allowed J1708 message as hex (repeatable)")
	rootCmd.Flags().StringVar(&config.SupplierFile, "suppliers", "", "YAML file of supplier calibrations (default: built-in catalog)")
	rootCmd.Flags().IntVarP(&config.PeriodUS, "period-us", "p", app.DefaultPeriodUS, "Door+keyhole period (microseconds)")
	rootCmd.Flags().BoolVarP(&config.CalibrationMode, "calibration", "c", false, "Zero keyhole and jam amplitudes to measure supplier delays")
	rootCmd.Flags().Float64Var(&config.JamFreq, "jam-freq", 0, "Jam carrier frequency (Hz, 0 for calibrated default)")
	rootCmd.Flags().IntVarP(&config.Repeat, "repeat", "r", app.DefaultRepeat, "Number of full sequence repetitions")
	rootCmd.Flags().StringVarP(&config.Output, "output", "o", app.DefaultOutput, "Sample sink: fl2k, - for stdout, or a file path")
	rootCmd.PersistentFlags().BoolVarP(&config.Verbose, "verbose", "v", false, "Verbose logging")
	rootCmd.Flags().BoolVar(&config.ShowVersion, "version", false, "Show version information")

	messageCmd := &cobra.Command{
		Use:   "message",
		Short: "Synthesize a single complete J2497 transmission",
		Long: `Synthesize one complete J2497 transmission (preamble plus payload) for a
J1708 message given as hex and write it as raw signed 8-bit samples. Useful
for bench replay and receiver testing.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			application := app.NewApplication(config)
			return application.RunMessage(msgConfig)
		},
	}

	messageCmd.Flags().Float64VarP(&msgConfig.SampleRate, "sample-rate", "s", app.DefaultSampleRate, "Sample rate (Hz), at least 800000")
	messageCmd.Flags().StringVarP(&msgConfig.MessageHex, "hex", "x", "", "J1708 message as hex, e.g. 0a00 (required)")
	messageCmd.Flags().StringVar(&msgConfig.MIDHex, "mid", "", "Preamble MID byte as hex (default: first message byte)")
	messageCmd.Flags().StringVar(&msgConfig.ChecksumHex, "checksum", "", "Checksum byte override as hex (default: computed)")
	messageCmd.Flags().IntSliceVar(&msgConfig.ExtraStopBits, "extra-stop-bits", []int{0}, "Extra stop bits per payload byte")
	messageCmd.Flags().BoolVar(&msgConfig.TruncateAtChecksum, "truncate", false, "Stop framing before the checksum byte")
	messageCmd.Flags().StringVarP(&msgConfig.Output, "output", "o", "-", "Output file, - for stdout")
	_ = messageCmd.MarkFlagRequired("hex")

	rootCmd.AddCommand(messageCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
