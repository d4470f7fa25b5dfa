// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/Thermoquad/portcullis/internal/hmi"
	"github.com/Thermoquad/portcullis/pkg/delay"
	"github.com/Thermoquad/portcullis/pkg/doorlink"
	"github.com/Thermoquad/portcullis/pkg/hal"
)

// shutdownGrace bounds how long a quitting UI waits for a node blocked in
// a tick wait, which cannot be interrupted
const shutdownGrace = 2 * time.Second

var hmiCmd = &cobra.Command{
	Use:   "hmi",
	Short: "Run the HMI node with a terminal keypad and display",
	Long: `Run the HMI node: the keypad and 16x2 display side of the lock.

On first start the node asks for a new 5-digit password twice and has the
Control node store it. It then shows the main menu:
  +  open the door (enter the password)
  -  change the password (old password, then the new one twice)

Digits are sent only after '=' (or Enter) confirms the fifth digit. Three
wrong passwords in a row trigger the alarm and a one minute lockout.

The terminal stands in for the hardware: the keyboard drives the keypad and
the display is drawn on screen. Logs go to --log-file only.

Supports both serial and WebSocket (--url) connections.`,
	RunE: runHMI,
}

func init() {
	rootCmd.AddCommand(hmiCmd)
	hmiCmd.Flags().StringVar(&capturePath, "capture", "", "Record link traffic to a CBOR capture file")
}

// stateCell holds the latest state reported by a node hook
type stateCell struct {
	v *atomic.Int32
}

func newStateCell(initial int) stateCell {
	return stateCell{v: atomic.NewInt32(int32(initial))}
}

func (c stateCell) set(s int) { c.v.Store(int32(s)) }
func (c stateCell) get() int  { return int(c.v.Load()) }

func runHMI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg, true)
	if err != nil {
		return err
	}
	defer closeLog()

	conn, connInfo, err := OpenHMIConnection(cfg.Link)
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

	link := doorlink.NewLink(conn, doorlink.HMIToControl)
	link.SetTap(recorder.Tap)

	lcd := hal.NewLCD()
	keypad := hal.NewQueueKeypad(16)
	waiter := newDelayService(delay.HMITimerConfig, logger.Named("delay"))

	state := newStateCell(int(hmi.StateBootstrapSetup))
	var program *tea.Program

	node := hmi.New(link, keypad, lcd, waiter, cfg.HMI(),
		hmi.WithLogger(logger.Named("hmi")),
		hmi.WithStatistics(stats),
		hmi.WithStateHook(func(s hmi.State) {
			state.set(int(s))
			program.Send(eventMsg{message: "hmi: " + s.String()})
		}),
	)

	status := func() []statusLine {
		return []statusLine{
			{label: "HMI", value: hmi.State(state.get()).String()},
		}
	}
	program = tea.NewProgram(initialModel("PORTCULLIS HMI", connInfo, keypad, stats, status))
	lcd.OnChange(func(lines []string) { program.Send(lcdMsg(lines)) })
	recorder.onFrame = func(f *doorlink.Frame) {
		program.Send(eventMsg{message: "link: " + frameSummary(f), isError: f.HasVerdict && !f.Matched()})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	nodeDone := make(chan error, 1)
	go func() {
		err := node.Run(ctx)
		program.Send(nodeDoneMsg{name: "HMI", err: err})
		nodeDone <- err
	}()

	_, uiErr := program.Run()

	// Unblock the node and give it a moment to wind down
	cancel()
	_ = keypad.Close()
	_ = conn.Close()

	var nodeErr error
	select {
	case nodeErr = <-nodeDone:
	case <-time.After(shutdownGrace):
		logger.Warn("HMI node still waiting, exiting anyway")
	}

	stats.CalculateRates()
	fmt.Fprint(os.Stderr, stats.Format())

	if uiErr != nil {
		return uiErr
	}
	if errors.Is(nodeErr, hmi.ErrSystemHalted) {
		return nodeErr
	}
	return nil
}

// frameSummary is a one-line description of an exchange for the event log.
// Digits are never shown.
func frameSummary(f *doorlink.Frame) string {
	s := doorlink.FormatCommand(f.Command)
	if f.HasVerdict {
		s += " -> " + doorlink.FormatVerdict(f.Verdict)
	}
	return s
}
