package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ardnew/softtmc/bridge"
	"github.com/ardnew/softtmc/config"
	"github.com/ardnew/softtmc/diag"
	"github.com/ardnew/softtmc/instrument"
	"github.com/ardnew/softtmc/pkg"
	"github.com/ardnew/softtmc/usbtmc/fifo"
)

var (
	serveTransport string
	servePort      string
	serveBaud      int
	serveMode      string
	serveBus       string
	serveDiag      string
	serveImage     string
	serveSaveImage string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a simulated instrument",
	Long: `Serve a simulated instrument. On the stdio and serial transports each input
line is one command message and each reply is written back as one line, raw in
text mode or hex-encoded in hex mode. The fifo transport attaches the
instrument to a named-pipe bus as a USBTMC device. Flags override the
configuration file.

Examples:
  # Interactive session on the terminal
  tmcsim serve

  # Serial line with hex framing and a diagnostics server
  tmcsim serve --transport serial --port /dev/ttyACM0 --mode hex --diag :8080

  # USBTMC device on a named-pipe bus; query it with "tmcsim query --fifo"
  tmcsim serve --transport fifo --bus /tmp/tmc-bus

  # Start from a flash image and save it on exit
  tmcsim serve --image fpga.bin --save-image fpga.out`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveTransport, "transport", "t", config.TransportStdio,
		"transport (stdio, serial, fifo)")
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "serial port")
	serveCmd.Flags().IntVarP(&serveBaud, "baud", "b", 0, "serial baud rate")
	serveCmd.Flags().StringVarP(&serveMode, "mode", "m", "", "line mode (text, hex)")
	serveCmd.Flags().StringVar(&serveBus, "bus", "", "fifo bus directory")
	serveCmd.Flags().StringVar(&serveDiag, "diag", "", "diagnostics server address")
	serveCmd.Flags().StringVar(&serveImage, "image", "", "flash image to load")
	serveCmd.Flags().StringVar(&serveSaveImage, "save-image", "", "write the flash image here on exit")
}

// applyServeFlags copies explicitly set flags over the configuration.
func applyServeFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	if flags.Changed("transport") {
		cfg.Transport.Kind = serveTransport
	}
	if flags.Changed("port") {
		cfg.Transport.Port = servePort
	}
	if flags.Changed("baud") {
		cfg.Transport.Baud = serveBaud
	}
	if flags.Changed("mode") {
		cfg.Transport.Mode = serveMode
	}
	if flags.Changed("bus") {
		cfg.Transport.Bus = serveBus
	}
	if flags.Changed("diag") {
		cfg.Diag.Addr = serveDiag
	}
	if flags.Changed("image") {
		cfg.Flash.Image = serveImage
	}
	return cfg.Validate()
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := applyServeFlags(cmd); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := instrument.OptionsFromConfig(cfg)
	var inst *instrument.Instrument
	switch cfg.Transport.Kind {
	case config.TransportSerial:
		port, err := bridge.OpenSerial(cfg.Transport.Port, cfg.Transport.Baud)
		if err != nil {
			return err
		}
		defer port.Close()
		inst = instrument.NewLine(opts, port, cfg.BridgeMode())
	case config.TransportFIFO:
		dev, err := fifo.Listen(cfg.Transport.Bus)
		if err != nil {
			return err
		}
		defer dev.Close()
		fmt.Fprintln(cmd.ErrOrStderr(), dev.Dir())
		inst = instrument.NewUSB(opts, dev)
	default:
		rw := struct {
			io.Reader
			io.Writer
		}{cmd.InOrStdin(), cmd.OutOrStdout()}
		inst = instrument.NewLine(opts, rw, cfg.BridgeMode())
	}

	if cfg.Flash.Image != "" {
		if err := inst.LoadImage(cfg.Flash.Image); err != nil {
			return err
		}
	}

	if cfg.Diag.Addr != "" {
		srv := diag.New(inst.Engine, cfg.Diag.Addr, cfg.Diag.Interval)
		go func() {
			if err := srv.Run(ctx); err != nil {
				pkg.LogError(pkg.ComponentDiag, "server stopped", "error", err)
			}
		}()
	}

	err := inst.Run(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	if serveSaveImage != "" {
		if serr := inst.SaveImage(serveSaveImage); serr != nil && err == nil {
			err = serr
		}
	}
	if verbose {
		st := inst.Engine.Stats()
		fmt.Fprintf(cmd.ErrOrStderr(), "replies=%d ignored=%d empty=%d truncated=%d overruns=%d\n",
			st.Replies, st.IgnoredWrites, st.EmptyReads, st.TruncatedReplies, st.Overruns)
	}
	return err
}
