// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.bug.st/serial/enumerator"
)

var portsUSBOnly bool

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports a node can be attached to",
	Long: `List the serial ports on this machine so the right one can be passed to
--port.

USB adapters are shown with their vendor and product IDs and serial number.

Examples:
  portcullis ports
  portcullis ports --usb`,
	RunE: runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
	portsCmd.Flags().BoolVar(&portsUSBOnly, "usb", false, "Only list USB serial adapters")
}

func runPorts(cmd *cobra.Command, args []string) error {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return fmt.Errorf("failed to list serial ports: %w", err)
	}
	if n := printPorts(cmd.OutOrStdout(), ports, portsUSBOnly); n == 0 {
		return fmt.Errorf("no serial ports found")
	}
	return nil
}

// printPorts writes one line per port and returns how many were listed
func printPorts(out io.Writer, ports []*enumerator.PortDetails, usbOnly bool) int {
	listed := 0
	for _, p := range ports {
		if usbOnly && !p.IsUSB {
			continue
		}
		listed++
		if !p.IsUSB {
			fmt.Fprintf(out, "%s\n", p.Name)
			continue
		}
		line := fmt.Sprintf("%s  USB %s:%s", p.Name, p.VID, p.PID)
		if p.Product != "" {
			line += "  " + p.Product
		}
		if p.SerialNumber != "" {
			line += fmt.Sprintf("  (serial %s)", p.SerialNumber)
		}
		fmt.Fprintln(out, line)
	}
	return listed
}
