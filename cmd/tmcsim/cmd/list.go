package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ardnew/softtmc/bridge"
	"github.com/ardnew/softtmc/pkg"
	"github.com/ardnew/softtmc/pkg/usbid"
	"github.com/ardnew/softtmc/usbtmc/usbdev"
)

var (
	listSerial bool
	listIDs    []string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List attached USBTMC instruments",
	Long: `List USB devices that expose a USBTMC interface, or serial ports with
--serial. Vendor and product names come from the system usb.ids database when
one is installed.

Examples:
  tmcsim list
  tmcsim list --serial
  tmcsim list --usb-ids ./usb.ids`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().BoolVarP(&listSerial, "serial", "s", false, "list serial ports instead")
	listCmd.Flags().StringSliceVar(&listIDs, "usb-ids", nil, "usb.ids database paths")
}

func runList(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if listSerial {
		ports, err := bridge.Ports()
		if err != nil {
			return err
		}
		for _, p := range ports {
			fmt.Fprintln(out, p)
		}
		return nil
	}

	db := usbid.New(listIDs...)
	if err := db.Load(); err != nil {
		pkg.LogDebug(pkg.ComponentCLI, "no usb.ids database", "error", err)
	}

	infos, err := usbdev.List(db)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Fprintln(out, "no USBTMC instruments found")
		return nil
	}
	for _, info := range infos {
		fmt.Fprintln(out, info)
	}
	return nil
}
