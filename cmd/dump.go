// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/portcullis/pkg/credstore"
	"github.com/Thermoquad/portcullis/pkg/doorlink"
	"github.com/Thermoquad/portcullis/pkg/eeprom"
)

var dumpReveal bool

var dumpCmd = &cobra.Command{
	Use:   "dump [image]",
	Short: "Show the credential area of an EEPROM image",
	Long: `Print the credential area of an EEPROM image file: the primary password
at 0x01-0x05, the reserved byte at 0x06 and the confirmation slot at
0x07-0x0B.

The image defaults to store.path from the configuration. Stored digits are
masked unless --reveal is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDump,
}

func init() {
	rootCmd.AddCommand(dumpCmd)
	dumpCmd.Flags().BoolVar(&dumpReveal, "reveal", false, "Show stored digits")
}

func runDump(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	path := cfg.Store.Path
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		return fmt.Errorf("no EEPROM image given and store.path is empty")
	}

	db, err := eeprom.OpenSQLite(path)
	if err != nil {
		return err
	}
	defer db.Close()

	snap, err := credstore.New(db).Dump()
	if err != nil {
		return err
	}
	printSnapshot(cmd.OutOrStdout(), path, snap, dumpReveal)
	return nil
}

func printSnapshot(out io.Writer, path string, snap credstore.Snapshot, reveal bool) {
	fmt.Fprintf(out, "EEPROM image: %s\n\n", path)
	fmt.Fprintf(out, "  0x%02X  primary       %s\n", credstore.PrimaryBase, formatRegion(snap.Primary, reveal))
	fmt.Fprintf(out, "  0x%02X  reserved      %02X\n", credstore.ReservedGap, snap.Gap)
	fmt.Fprintf(out, "  0x%02X  confirmation  %s\n", credstore.ConfirmationBase, formatRegion(snap.Confirmation, reveal))
	fmt.Fprintln(out)
	if snap.Provisioned() {
		fmt.Fprintln(out, "Password: set")
	} else {
		fmt.Fprintln(out, "Password: not set (HMI will ask for one on start)")
	}
}

// formatRegion prints a region as hex bytes. Valid digits are masked
// unless reveal is set; anything else is shown since it is not a secret.
func formatRegion(region [doorlink.PasswordSize]byte, reveal bool) string {
	parts := make([]string, len(region))
	for i, b := range region {
		if doorlink.Digit(b).Valid() && !reveal {
			parts[i] = "**"
		} else {
			parts[i] = fmt.Sprintf("%02X", b)
		}
	}
	return strings.Join(parts, " ")
}
