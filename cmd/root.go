// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Thermoquad/portcullis/internal/config"
)

var (
	configPath string

	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsListen      string
	wsUsername    string
	wsNoSSLVerify bool

	// Logging flags
	logLevel string
	logFile  string

	// Capture flag shared by the node commands
	capturePath string
)

var rootCmd = &cobra.Command{
	Use:   "portcullis",
	Short: "Two-node door lock controller",
	Long: `Portcullis - HMI and Control nodes of a keypad door lock.

The HMI node reads a 5-digit password from a keypad and narrates on a 16x2
display. The Control node owns the credential store, the lock motor and the
alarm. The two talk over a single-byte command link.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 9600]   (8E1 framing)
  WebSocket: hmi --url ws://host/path [--username user]
             control --listen :8080 [--username user]

For WebSocket authentication, the password is read from the PORTCULLIS_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")

	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 9600, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL to dial (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsListen, "listen", "", "Address to serve the WebSocket link on (control only)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Logging flags
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to a rotated file")
}

// loadConfig loads the configuration file and applies explicitly set flags
// over it
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Link.Port = portName
	}
	if flags.Changed("baud") {
		cfg.Link.Baud = baudRate
	}
	if flags.Changed("url") {
		cfg.Link.URL = wsURL
	}
	if flags.Changed("listen") {
		cfg.Link.Listen = wsListen
	}
	if flags.Changed("username") {
		cfg.Link.Username = wsUsername
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("log-file") {
		cfg.Log.File = logFile
	}

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
