package cmd

import (
	"context"
	"fmt"
	"os"

	"wakeword/internal/config"
	"wakeword/internal/log"
	"wakeword/pkg/build"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

type options struct {
	configPath  string
	verbose     bool
	source      string
	wavPath     string
	interactive bool
	hop         int
	inputOut    string

	cfg *config.Config
}

// Execute parses the command line and runs the selected command. Without a
// subcommand the platform is served.
func Execute(ctx context.Context) error {
	rootCmd := newRootCommand(ctx)
	rootCmd.SetArgs(os.Args[1:])
	return rootCmd.Execute()
}

func newRootCommand(ctx context.Context) *cobra.Command {
	buildInfo := build.Get()
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(ctx, opts.cfg)
		},
	}
	rootCmd.SetContext(ctx)

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"Path to the YAML configuration (default: ./config.yaml if present)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false,
		"Show verbose output")

	// Serve overrides
	rootCmd.Flags().StringVarP(&opts.source, "source", "s", "",
		"Capture source: portaudio, wav or tone (overrides the config)")
	rootCmd.Flags().StringVarP(&opts.wavPath, "wav", "w", "",
		"Clip replayed by the wav source; implies --source wav")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the capture controller and command surfaces (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts.cfg)
		},
	}
	serveCmd.Flags().AddFlagSet(rootCmd.Flags())
	rootCmd.AddCommand(serveCmd)

	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "List available capture devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.interactive {
				return pickDevice(cmd.OutOrStdout())
			}
			return listDevices(cmd.OutOrStdout())
		},
	}
	devicesCmd.Flags().BoolVarP(&opts.interactive, "interactive", "i", false,
		"Choose the capture device and rate interactively and print the config")
	rootCmd.AddCommand(devicesCmd)

	extractCmd := &cobra.Command{
		Use:   "extract <file.wav>",
		Short: "Compute log-mel features over a WAV clip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cmd.OutOrStdout(), opts.cfg, args[0], opts.hop, opts.inputOut)
		},
	}
	extractCmd.Flags().IntVar(&opts.hop, "hop", 0,
		"Samples between frames (default: features.hop_len)")
	extractCmd.Flags().StringVarP(&opts.inputOut, "input-out", "o", "",
		"Write the quantized frames as a model input tensor (<label>.bin)")
	rootCmd.AddCommand(extractCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "filterbank <out.yaml>",
		Short: "Write the configured mel filter bank as a YAML asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeFilterBank(afero.NewOsFs(), cmd.OutOrStdout(), opts.cfg, args[0])
		},
	})

	return rootCmd
}

// load reads the configuration and applies the command line on top.
func (o *options) load(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return err
	}

	if o.verbose {
		cfg.LogLevel = "debug"
	}
	if o.wavPath != "" {
		cfg.Capture.Source = config.SourceWAV
		cfg.Capture.WAVPath = o.wavPath
	}
	if o.source != "" {
		cfg.Capture.Source = o.source
	}
	if cmd.Flags().Changed("source") || cmd.Flags().Changed("wav") {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
	}

	log.SetLevel(cfg.Level())
	o.cfg = cfg
	return nil
}
