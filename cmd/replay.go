// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/portcullis/pkg/doorlink"
)

var (
	replayReveal bool
	replayBytes  bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <capture-file>",
	Short: "Decode a recorded capture",
	Long: `Decode a CBOR capture written by --capture and print every exchange.

Captures from the control, hmi and sim commands hold both link directions,
so each command is shown with its payload and verdict. Password digits are
masked unless --reveal is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayReveal, "reveal", false, "Show password digits")
	replayCmd.Flags().BoolVar(&replayBytes, "bytes", false, "Also print every byte")
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open capture: %w", err)
	}
	defer f.Close()

	stats, err := replayCapture(f, cmd.OutOrStdout(), replayReveal, replayBytes)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), stats.Format())
	return nil
}

// replayCapture decodes the records in r and writes exchanges to out
func replayCapture(r io.Reader, out io.Writer, reveal, showBytes bool) (*doorlink.Statistics, error) {
	stats := doorlink.NewStatistics()
	decoder := doorlink.NewDecoder()
	var (
		started  time.Time
		first    time.Time
		last     time.Time
		records  int
		problems int
	)

	err := doorlink.ReadCapture(r, func(rec doorlink.Record) error {
		ts := rec.Time()
		if records == 0 {
			first = ts
		}
		last = ts
		records++

		stats.RecordByte()
		b, dir := rec.Value, rec.Dir()
		if showBytes {
			fmt.Fprintln(out, doorlink.FormatByte(ts, dir, b))
		}

		// Count the way each node sees the byte: Control reads a command
		// only when idle, the HMI reads a verdict only when one is due.
		idle := !decoder.Pending()
		if dir == doorlink.ControlToHMI {
			stats.RecordVerdict(b)
		} else if idle {
			stats.RecordCommand(b)
			started = ts
		}

		frame, err := decoder.Feed(dir, b)
		if err != nil {
			problems++
			fmt.Fprintf(out, "[%s] decode: %v\n", ts.Format("15:04:05.000"), err)
			return nil
		}
		if frame != nil {
			frame.Timestamp = started
			fmt.Fprint(out, doorlink.FormatFrame(frame, reveal))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if decoder.Pending() {
		fmt.Fprintln(out, "capture ends mid-exchange")
	}
	if records > 0 {
		fmt.Fprintf(out, "\n%d records over %s, %d decode problems\n", records, last.Sub(first).Round(time.Millisecond), problems)
	}
	stats.CalculateRates()
	return stats, nil
}
