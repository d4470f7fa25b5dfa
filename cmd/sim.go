// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Thermoquad/portcullis/internal/config"
	"github.com/Thermoquad/portcullis/internal/control"
	"github.com/Thermoquad/portcullis/internal/hmi"
	"github.com/Thermoquad/portcullis/pkg/credstore"
	"github.com/Thermoquad/portcullis/pkg/delay"
	"github.com/Thermoquad/portcullis/pkg/doorlink"
	"github.com/Thermoquad/portcullis/pkg/hal"
	"github.com/Thermoquad/portcullis/pkg/hal/fake"
)

var (
	simFast      bool
	simScript    string
	simStorePath string
)

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Run both nodes in one process",
	Long: `Run the HMI and Control nodes together over an in-process link.

Actuators are simulated and the credential store is kept in memory unless
--store names an EEPROM image file.

With --script the keypad is fed from the given keys and the run is printed
instead of drawn: every screen the display shows, the actuator journal and
the link statistics. Digits are typed as-is; '+', '-', '=' are the menu and
confirm keys and 'c' is ON/clear.

  portcullis sim --fast --script "12345=12345=+12345="

--fast skips all waits (door cycle, alarm, key debounce).`,
	RunE: runSim,
}

func init() {
	rootCmd.AddCommand(simCmd)
	simCmd.Flags().BoolVar(&simFast, "fast", false, "Skip all waits")
	simCmd.Flags().StringVar(&simScript, "script", "", "Run headless, typing these keys")
	simCmd.Flags().StringVar(&simStorePath, "store", "", "EEPROM image file (default: in memory)")
	simCmd.Flags().StringVar(&capturePath, "capture", "", "Record link traffic to a CBOR capture file")
}

// simRig is a complete two-node lock wired over a pipe
type simRig struct {
	pipe    *doorlink.Pipe
	stats   *doorlink.Statistics
	journal *fake.Journal
	keypad  *hal.QueueKeypad
	lcd     *hal.LCD
	motor   *fake.Motor
	alarm   *fake.Alarm
	store   *credstore.Store

	control *control.Node
	hmi     *hmi.Node

	closeStore func() error
}

type simOptions struct {
	fast        bool
	storePath   string
	keyBuffer   int
	hmiWaiter   func(delay.Waiter) delay.Waiter
	hmiHook     func(hmi.State)
	controlHook func(control.State)
}

func newSimRig(cfg *config.Config, opts simOptions, recorder *trafficRecorder, logger *zap.Logger) (*simRig, error) {
	r := &simRig{
		pipe:    doorlink.NewPipe(doorlink.DefaultPipeBuffer),
		stats:   recorder.stats,
		journal: &fake.Journal{},
		keypad:  hal.NewQueueKeypad(opts.keyBuffer),
		lcd:     hal.NewLCD(),
	}
	r.motor = &fake.Motor{Journal: r.journal, Logger: logger.Named("motor")}
	r.alarm = &fake.Alarm{Journal: r.journal, Logger: logger.Named("alarm")}

	var controlWaiter, hmiWaiter delay.Waiter
	if opts.fast {
		controlWaiter = &fake.Waiter{Journal: r.journal}
		hmiWaiter = &fake.Waiter{}
	} else {
		controlWaiter = newDelayService(delay.ControlTimerConfig, logger.Named("delay.control"))
		hmiWaiter = newDelayService(delay.HMITimerConfig, logger.Named("delay.hmi"))
	}
	if opts.hmiWaiter != nil {
		hmiWaiter = opts.hmiWaiter(hmiWaiter)
	}

	storeCfg := *cfg
	storeCfg.Store.Path = opts.storePath
	store, closeStore, err := openStore(&storeCfg, controlWaiter, logger)
	if err != nil {
		return nil, err
	}
	r.store, r.closeStore = store, closeStore

	hmiLink := r.pipe.HMI()
	// The HMI end sees both directions, so one tap covers the link
	hmiLink.SetTap(recorder.Tap)

	r.control = control.New(r.pipe.Control(), store, r.motor, r.alarm, controlWaiter, cfg.Control(),
		control.WithLogger(logger.Named("control")),
		control.WithStatistics(r.stats),
		control.WithStateHook(opts.controlHook),
	)
	r.hmi = hmi.New(hmiLink, r.keypad, r.lcd, hmiWaiter, cfg.HMI(),
		hmi.WithLogger(logger.Named("hmi")),
		hmi.WithStatistics(r.stats),
		hmi.WithStateHook(opts.hmiHook),
	)
	return r, nil
}

// run starts both nodes on g. The HMI side ends the run: when it stops the
// pipe is closed, which stops Control once its current routine finishes.
func (r *simRig) run(ctx context.Context, g *errgroup.Group, onHMIDone func(error)) {
	g.Go(func() error {
		err := r.control.Run(ctx)
		if err == nil || control.IsLinkClosed(err) || errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		err := r.hmi.Run(ctx)
		if onHMIDone != nil {
			onHMIDone(err)
		}
		_ = r.pipe.Close()
		switch {
		case err == nil, errors.Is(err, hal.ErrKeypadClosed), errors.Is(err, context.Canceled):
			return nil
		case errors.Is(err, hmi.ErrSystemHalted):
			// A halted lock is an outcome of the run, not a failure
			return nil
		}
		return err
	})
}

func (r *simRig) Close() error {
	return closeAll(r.keypad.Close, r.pipe.Close, r.closeStore)
}

func runSim(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	headless := simScript != ""
	logger, closeLog, err := newLogger(cfg, !headless)
	if err != nil {
		return err
	}
	defer closeLog()

	stats := doorlink.NewStatistics()
	recorder, err := newTrafficRecorder(capturePath, stats, logger.Named("link"))
	if err != nil {
		return err
	}
	defer recorder.Close()

	if headless {
		return runSimScript(cmd.OutOrStdout(), cfg, recorder, logger)
	}
	return runSimTUI(cfg, recorder, logger)
}

// screenPrinter prints the display whenever the HMI holds it on screen
// (every pause or wait), skipping repeats
type screenPrinter struct {
	delay.Waiter
	lcd  *hal.LCD
	out  io.Writer
	mu   sync.Mutex
	last string
}

func (p *screenPrinter) show() {
	lines := p.lcd.Lines()
	screen := strings.Join(lines, "\n")
	p.mu.Lock()
	defer p.mu.Unlock()
	if screen == p.last {
		return
	}
	p.last = screen
	fmt.Fprintf(p.out, "+%s+\n", strings.Repeat("-", hal.LCDCols))
	for _, line := range lines {
		fmt.Fprintf(p.out, "|%s|\n", line)
	}
	fmt.Fprintf(p.out, "+%s+\n", strings.Repeat("-", hal.LCDCols))
}

func (p *screenPrinter) WaitSeconds(n int) {
	p.show()
	p.Waiter.WaitSeconds(n)
}

func (p *screenPrinter) Pause(d time.Duration) {
	p.show()
	p.Waiter.Pause(d)
}

func runSimScript(out io.Writer, cfg *config.Config, recorder *trafficRecorder, logger *zap.Logger) error {
	var printer *screenPrinter
	rig, err := newSimRig(cfg, simOptions{
		fast:      simFast,
		storePath: simStorePath,
		keyBuffer: len(simScript) + 1,
		hmiWaiter: func(w delay.Waiter) delay.Waiter {
			printer = &screenPrinter{Waiter: w, out: out}
			return printer
		},
	}, recorder, logger)
	if err != nil {
		return err
	}
	defer rig.Close()
	printer.lcd = rig.lcd

	for _, r := range simScript {
		if r == 'c' {
			rig.keypad.Press(hal.KeyClear)
			continue
		}
		rig.keypad.Press(hal.KeyFromRune(r))
	}
	_ = rig.keypad.Close()

	var hmiErr error
	g, ctx := errgroup.WithContext(context.Background())
	rig.run(ctx, g, func(err error) { hmiErr = err })
	if err := g.Wait(); err != nil {
		return err
	}
	printer.show()

	fmt.Fprintln(out)
	if errors.Is(hmiErr, hmi.ErrSystemHalted) {
		fmt.Fprintln(out, "HMI halted: password setup failed")
	}
	fmt.Fprintln(out, "Actuator journal:")
	for _, e := range rig.journal.Entries() {
		fmt.Fprintf(out, "  %s\n", e)
	}
	if snap, err := rig.store.Dump(); err == nil {
		fmt.Fprintf(out, "Password stored: %v\n", snap.Provisioned())
	}
	rig.stats.CalculateRates()
	fmt.Fprint(out, rig.stats.Format())
	return nil
}

func runSimTUI(cfg *config.Config, recorder *trafficRecorder, logger *zap.Logger) error {
	hmiState := newStateCell(int(hmi.StateBootstrapSetup))
	controlState := newStateCell(int(control.StateIdle))
	var program *tea.Program

	rig, err := newSimRig(cfg, simOptions{
		fast:      simFast,
		storePath: simStorePath,
		keyBuffer: 16,
		hmiHook: func(s hmi.State) {
			hmiState.set(int(s))
			program.Send(eventMsg{message: "hmi: " + s.String()})
		},
		controlHook: func(s control.State) {
			controlState.set(int(s))
			program.Send(eventMsg{message: "control: " + s.String(), isError: s == control.StateAlarmCycle})
		},
	}, recorder, logger)
	if err != nil {
		return err
	}
	defer rig.Close()

	status := func() []statusLine {
		dir, speed := rig.motor.State()
		alarm := "off"
		if rig.alarm.Active() {
			alarm = "SOUNDING"
		}
		return []statusLine{
			{label: "HMI", value: hmi.State(hmiState.get()).String()},
			{label: "Control", value: control.State(controlState.get()).String()},
			{label: "Motor", value: fmt.Sprintf("%s %d%%", dir, speed)},
			{label: "Alarm", value: alarm},
		}
	}

	connInfo := "In-process link"
	if simFast {
		connInfo += " | fast (no waits)"
	}
	program = tea.NewProgram(initialModel("PORTCULLIS SIMULATOR", connInfo, rig.keypad, rig.stats, status))
	rig.lcd.OnChange(func(lines []string) { program.Send(lcdMsg(lines)) })
	recorder.onFrame = func(f *doorlink.Frame) {
		program.Send(eventMsg{message: "link: " + frameSummary(f), isError: f.HasVerdict && !f.Matched()})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	rig.run(gctx, g, func(err error) { program.Send(nodeDoneMsg{name: "HMI", err: err}) })

	_, uiErr := program.Run()

	cancel()
	_ = rig.keypad.Close()
	_ = rig.pipe.Close()

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()
	var nodeErr error
	select {
	case nodeErr = <-done:
	case <-time.After(shutdownGrace):
		logger.Warn("nodes still waiting, exiting anyway")
	}

	rig.stats.CalculateRates()
	fmt.Fprint(os.Stderr, rig.stats.Format())

	if uiErr != nil {
		return uiErr
	}
	return nodeErr
}
