// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/portcullis/pkg/doorlink"
)

var monitorDirection string

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Display link bytes as they arrive",
	Long: `Continuously display the bytes seen on one direction of the link.

Attach to the TX line of either node with a serial adapter and name which
node's line it is with --direction:
  hmi      commands and digits sent by the HMI
  control  verdicts sent by Control

Each byte is printed with a timestamp and its meaning. Use --capture to keep
a CBOR recording that 'replay' can decode later.

Supports both serial and WebSocket connections.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().StringVar(&monitorDirection, "direction", "hmi", "Which node's line is observed (hmi, control)")
	monitorCmd.Flags().StringVar(&capturePath, "capture", "", "Record observed bytes to a CBOR capture file")
}

func parseDirection(name string) (doorlink.Direction, error) {
	switch name {
	case "hmi":
		return doorlink.HMIToControl, nil
	case "control":
		return doorlink.ControlToHMI, nil
	default:
		return 0, fmt.Errorf("unknown direction %q (use hmi or control)", name)
	}
}

func runMonitor(cmd *cobra.Command, args []string) error {
	observed, err := parseDirection(monitorDirection)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg, false)
	if err != nil {
		return err
	}
	defer closeLog()

	conn, connInfo, err := OpenMonitorConnection(cfg.Link)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	fmt.Printf("Portcullis - Link Monitor\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Observing: %s\n", observed)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	stats := doorlink.NewStatistics()
	var tap doorlink.Tap = func(dir doorlink.Direction, b byte) {
		stats.RecordByte()
		recordObserved(stats, dir, b)
		fmt.Println(doorlink.FormatByte(time.Now(), dir, b))
	}
	if capturePath != "" {
		f, err := os.Create(capturePath)
		if err != nil {
			return fmt.Errorf("failed to create capture file: %w", err)
		}
		defer f.Close()
		capture := doorlink.NewCaptureWriter(f).Tap(func(err error) {
			logger.Warn("capture write failed", zap.Error(err))
		})
		printTap := tap
		tap = func(dir doorlink.Direction, b byte) {
			printTap(dir, b)
			capture(dir, b)
		}
	}

	err = monitorLink(conn, observed, tap)

	stats.CalculateRates()
	fmt.Fprint(os.Stderr, stats.Format())
	if ctx.Err() != nil || err == nil {
		return nil
	}
	return err
}

// monitorLink reads bytes travelling in the observed direction until the
// connection closes. Returns nil on a closed link.
func monitorLink(r io.Reader, observed doorlink.Direction, tap doorlink.Tap) error {
	// A link receives in the direction opposite to the one it sends
	outgoing := doorlink.ControlToHMI
	if observed == doorlink.ControlToHMI {
		outgoing = doorlink.HMIToControl
	}
	link := doorlink.NewLink(readOnly{r}, outgoing)
	link.SetTap(tap)
	for {
		if _, err := link.ReceiveByte(); err != nil {
			if errors.Is(err, doorlink.ErrLinkClosed) {
				return nil
			}
			return err
		}
	}
}

// recordObserved counts one byte the way the receiving node would see it
func recordObserved(stats *doorlink.Statistics, dir doorlink.Direction, b byte) {
	switch {
	case dir == doorlink.ControlToHMI:
		stats.RecordVerdict(b)
	case doorlink.IsCommand(b):
		stats.RecordCommand(b)
	}
}

// readOnly adapts a passive connection to the link, which never sends here
type readOnly struct {
	io.Reader
}

func (readOnly) Write(p []byte) (int, error) {
	return 0, errors.New("monitor connection is read-only")
}
