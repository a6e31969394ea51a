package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ardnew/softtmc/instrument"
	"github.com/ardnew/softtmc/script"
)

var (
	scriptMax   int
	scriptImage string
)

var scriptCmd = &cobra.Command{
	Use:   "script FILE",
	Short: "Run a command script against a simulated instrument",
	Long: `Run a command script through the full USBTMC path against an in-process
simulated instrument. Every reply read by the script is printed.

Script statements:
  send "<bytes>"             write one message
  query "<bytes>" [max N]    write, then read a reply
  read [max N]               read a reply
  expect "<bytes>"           compare the last reply
  expect hex "<digits>"      compare the last reply as hex
  expect len N               check the last reply length
  sleep MS                   pause

Examples:
  tmcsim script flash.tmc
  tmcsim script --image fpga.bin verify.tmc`,
	Args: cobra.ExactArgs(1),
	RunE: runScript,
}

func init() {
	rootCmd.AddCommand(scriptCmd)

	scriptCmd.Flags().IntVar(&scriptMax, "max", 0, "default reply size (0 = buffer size)")
	scriptCmd.Flags().StringVar(&scriptImage, "image", "", "flash image to load")
}

func runScript(cmd *cobra.Command, args []string) error {
	p, err := script.NewParser()
	if err != nil {
		return err
	}
	s, err := p.ParseFile(args[0])
	if err != nil {
		return err
	}

	inst := instrument.NewLoopback(instrument.OptionsFromConfig(cfg))
	defer inst.Close()

	image := cfg.Flash.Image
	if cmd.Flags().Changed("image") {
		image = scriptImage
	}
	if image != "" {
		if err := inst.LoadImage(image); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- inst.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	r := script.NewRunner(inst.Client(), cmd.OutOrStdout())
	r.SetMaxLen(scriptMax)
	if err := r.Run(ctx, s); err != nil {
		return err
	}

	if verbose {
		st := inst.Engine.Stats()
		fmt.Fprintf(cmd.ErrOrStderr(), "%d statements, %d replies\n", len(s.Stmts), st.Replies)
	}
	return nil
}
