package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ardnew/softtmc/config"
	"github.com/ardnew/softtmc/pkg"
	"github.com/ardnew/softtmc/pkg/prof"
)

var (
	// Global flags
	verbose     bool
	configPath  string
	cpuProfile  string
	heapProfile string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "tmcsim",
	Short: "Simulated USBTMC PL-bridge instrument",
	Long: `Run a simulated USBTMC instrument that bridges a programmable-logic
peripheral and its configuration flash, or drive one from the host.

Examples:
  tmcsim serve --transport serial --port /dev/ttyUSB0   # Serve over a serial line
  tmcsim script flash.tmc                               # Run a script against a simulator
  tmcsim query --sim '*IDN?'                            # Query a simulator
  tmcsim query --vid 0x1209 --pid 0x0001 '*IDN?'        # Query real hardware
  tmcsim list                                           # List attached instruments`,
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&cpuProfile, "cpu-profile", "",
		"write a CPU profile (profile builds only)")
	rootCmd.PersistentFlags().StringVar(&heapProfile, "heap-profile", "",
		"write a heap profile on exit (profile builds only)")
}

// setup loads the configuration and configures logging.
func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.ApplyLog(); err != nil {
		return err
	}
	if verbose {
		pkg.SetLogLevel(slog.LevelDebug)
	}
	pkg.LogDebug(pkg.ComponentCLI, "configured", "command", cmd.Name(), "config", configPath)

	if cpuProfile != "" {
		if !prof.Enabled {
			pkg.LogWarn(pkg.ComponentCLI, "profiling not compiled in, rebuild with -tags profile")
		}
		return prof.StartCPU(cpuProfile)
	}
	return nil
}

// teardown flushes profiles.
func teardown(cmd *cobra.Command, args []string) error {
	if err := prof.StopCPU(); err != nil {
		return err
	}
	if heapProfile != "" {
		return prof.Write("heap", heapProfile)
	}
	return nil
}
