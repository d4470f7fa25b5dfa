// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Portcullis - Keypad Door Lock Controller
//
// Runs the HMI and Control nodes of a two-node keypad door lock, plus tools
// for watching and recording the single-byte link between them.

package main

import (
	"os"

	"github.com/Thermoquad/portcullis/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
