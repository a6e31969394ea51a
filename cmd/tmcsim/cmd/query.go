package cmd

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ardnew/softtmc/instrument"
	"github.com/ardnew/softtmc/pkg"
	"github.com/ardnew/softtmc/usbtmc"
	"github.com/ardnew/softtmc/usbtmc/fifo"
	"github.com/ardnew/softtmc/usbtmc/usbdev"
)

var (
	queryVID     string
	queryPID     string
	querySim     bool
	queryFIFO    string
	queryMax     int
	queryHex     bool
	queryWrite   bool
	queryCaps    bool
	queryClear   bool
	queryTimeout time.Duration
)

var queryCmd = &cobra.Command{
	Use:   "query [COMMAND]",
	Short: "Send one command and print the reply",
	Long: `Send one command to an instrument and print its reply. The command is taken
literally; use a shell's $'...' quoting for binary payloads.

Examples:
  # Simulated instrument
  tmcsim query --sim '*IDN?'

  # Instrument served on a named-pipe bus
  tmcsim query --fifo /tmp/tmc-bus '*IDN?'

  # Real instrument, reply as hex
  tmcsim query --vid 0x1209 --pid 0x0001 --hex ':PL:FLASH:RD#3#'$'\x9f'

  # Capabilities, then clear the instrument before the query
  tmcsim query --fifo /tmp/tmc-bus --caps --clear '*IDN?'

  # Write only
  tmcsim query --vid 0x1209 --pid 0x0001 --write ':PL:ACTIVE#1'`,
	Args: cobra.MaximumNArgs(1),
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)

	queryCmd.Flags().StringVar(&queryVID, "vid", "", "USB vendor ID (hex)")
	queryCmd.Flags().StringVar(&queryPID, "pid", "", "USB product ID (hex)")
	queryCmd.Flags().BoolVar(&querySim, "sim", false, "query an in-process simulated instrument")
	queryCmd.Flags().StringVar(&queryFIFO, "fifo", "", "query the first instrument on this fifo bus")
	queryCmd.Flags().IntVar(&queryMax, "max", 0, "maximum reply size (0 = client capacity)")
	queryCmd.Flags().BoolVar(&queryHex, "hex", false, "print the reply as hex")
	queryCmd.Flags().BoolVarP(&queryWrite, "write", "w", false, "write only, do not read a reply")
	queryCmd.Flags().BoolVar(&queryCaps, "caps", false, "print the USBTMC capabilities")
	queryCmd.Flags().BoolVar(&queryClear, "clear", false, "clear the instrument before sending")
	queryCmd.Flags().DurationVar(&queryTimeout, "timeout", 5*time.Second, "overall timeout")
}

// parseID parses a hex ID with or without a 0x prefix, as printed by list.
func parseID(name, s string) (uint16, error) {
	digits := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(digits, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("--%s %q: %w", name, s, pkg.ErrInvalidParameter)
	}
	return uint16(v), nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && !queryCaps && !queryClear {
		return fmt.Errorf("no command given: %w", pkg.ErrInvalidParameter)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), queryTimeout)
	defer cancel()

	var client *usbtmc.Client
	switch {
	case querySim:
		inst := instrument.NewLoopback(instrument.OptionsFromConfig(cfg))
		defer inst.Close()
		done := make(chan error, 1)
		go func() {
			done <- inst.Run(ctx)
		}()
		defer func() {
			cancel()
			<-done
		}()
		client = inst.Client()
	case queryFIFO != "":
		host, err := fifo.Dial(ctx, queryFIFO)
		if err != nil {
			return err
		}
		defer host.Close()
		client = usbtmc.NewClient(host, cfg.Engine.BufferSize)
	default:
		if queryVID == "" || queryPID == "" {
			return fmt.Errorf("--vid and --pid are required without --sim or --fifo: %w", pkg.ErrInvalidParameter)
		}
		vid, err := parseID("vid", queryVID)
		if err != nil {
			return err
		}
		pid, err := parseID("pid", queryPID)
		if err != nil {
			return err
		}
		dev, err := usbdev.Open(vid, pid)
		if err != nil {
			return err
		}
		defer dev.Close()
		client = usbtmc.NewClient(dev, cfg.Engine.BufferSize)
	}

	out := cmd.OutOrStdout()
	if queryCaps {
		caps, err := client.Capabilities(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "bcdUSBTMC=%x.%02x interface=0x%02x device=0x%02x\n",
			caps.BCDUSBTMC>>8, caps.BCDUSBTMC&0xFF, caps.Interface, caps.Device)
	}
	if queryClear {
		if err := client.Clear(ctx); err != nil {
			return err
		}
	}
	if len(args) == 0 {
		return nil
	}

	if queryWrite {
		return client.Write(ctx, []byte(args[0]))
	}
	reply, err := client.Query(ctx, []byte(args[0]), queryMax)
	if err != nil {
		return err
	}

	if queryHex {
		fmt.Fprintln(out, hex.EncodeToString(reply))
	} else {
		fmt.Fprintf(out, "%s\n", reply)
	}
	return nil
}
