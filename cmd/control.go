// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/portcullis/internal/control"
	"github.com/Thermoquad/portcullis/pkg/delay"
	"github.com/Thermoquad/portcullis/pkg/doorlink"
)

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Run the Control node",
	Long: `Run the Control node: the side of the link that owns the credential store,
the lock motor and the alarm.

The node waits for a command byte from the HMI, runs the matching routine to
completion and returns to idle:
  '*'  store an entry and its re-entry, reply with the comparison verdict
  '#'  store a candidate, compare it against the stored password, reply
  '&'  unlock for 15s, hold for 3s, lock for 15s
  '$'  sound the alarm for 60s
Any other byte is ignored.

Credentials persist in the SQLite EEPROM image at store.path. Actuators are
simulated (logged) unless actuators.backend is gpio.

Supports both serial and WebSocket (--listen) connections.`,
	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
	controlCmd.Flags().StringVar(&capturePath, "capture", "", "Record link traffic to a CBOR capture file")
}

func runControl(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg, false)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	waiter := newDelayService(delay.ControlTimerConfig, logger.Named("delay"))

	store, closeStore, err := openStore(cfg, waiter, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	if snap, err := store.Dump(); err != nil {
		logger.Warn("credential store unreadable", zap.Error(err))
	} else if !snap.Provisioned() {
		logger.Info("no password stored yet, waiting for HMI setup")
	}

	motor, alarm, err := openActuators(cfg.Actuators, nil, logger)
	if err != nil {
		return err
	}

	conn, connInfo, err := OpenControlConnection(ctx, cfg.Link, logger)
	if err != nil {
		return err
	}
	defer conn.Close()
	logger.Info("link open", zap.String("connection", connInfo))

	stats := doorlink.NewStatistics()
	recorder, err := newTrafficRecorder(capturePath, stats, logger.Named("link"))
	if err != nil {
		return err
	}
	defer recorder.Close()

	link := doorlink.NewLink(conn, doorlink.ControlToHMI)
	link.SetTap(recorder.Tap)

	node := control.New(link, store, motor, alarm, waiter, cfg.Control(),
		control.WithLogger(logger.Named("control")),
		control.WithStatistics(stats),
	)

	// Receive blocks; closing the connection is the only way to unblock it
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	err = node.Run(ctx)

	stats.CalculateRates()
	fmt.Fprint(os.Stderr, stats.Format())

	switch {
	case ctx.Err() != nil:
		logger.Info("shutting down")
		return nil
	case control.IsLinkClosed(err):
		logger.Info("HMI disconnected")
		return nil
	default:
		return err
	}
}
