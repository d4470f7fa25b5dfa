// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package doorlink

import (
	"fmt"
	"strings"
	"time"
)

// FormatCommand returns the human-readable name for a command byte
func FormatCommand(b byte) string {
	switch b {
	case CmdSetPassword:
		return "SET_PASSWORD"
	case CmdVerifyPassword:
		return "VERIFY_PASSWORD"
	case CmdOpenDoor:
		return "OPEN_DOOR"
	case CmdAlarm:
		return "ALARM"
	default:
		return "UNKNOWN"
	}
}

// FormatVerdict returns the human-readable name for a verdict byte
func FormatVerdict(b byte) string {
	switch b {
	case VerdictMatch:
		return "MATCH"
	case VerdictMismatch:
		return "MISMATCH"
	default:
		return fmt.Sprintf("INVALID(0x%02X)", b)
	}
}

// FormatByte formats a single observed byte
func FormatByte(ts time.Time, dir Direction, b byte) string {
	timestamp := ts.Format("15:04:05.000")
	var desc string
	switch {
	case dir == ControlToHMI:
		desc = "verdict " + FormatVerdict(b)
	case IsCommand(b):
		desc = fmt.Sprintf("%s ('%c')", FormatCommand(b), b)
	case Digit(b).Valid():
		desc = "digit"
	default:
		desc = "noise"
	}
	return fmt.Sprintf("[%s] %s 0x%02X %s", timestamp, dir, b, desc)
}

// FormatFrame formats a decoded exchange. Digits are masked unless reveal
// is set.
func FormatFrame(f *Frame, reveal bool) string {
	timestamp := f.Timestamp.Format("15:04:05.000")
	result := fmt.Sprintf("[%s] %s ('%c')\n", timestamp, FormatCommand(f.Command), f.Command)

	switch f.Command {
	case CmdSetPassword:
		result += fmt.Sprintf("  Entry:     %s\n", formatDigits(f.Entry, reveal))
		result += fmt.Sprintf("  Re-entry:  %s\n", formatDigits(f.Candidate, reveal))
	case CmdVerifyPassword:
		result += fmt.Sprintf("  Candidate: %s\n", formatDigits(f.Candidate, reveal))
	default:
		result += "  (no payload)\n"
	}

	if f.InvalidDigits {
		result += "  Warning: payload contains non-digit bytes\n"
	}
	if f.HasVerdict {
		result += fmt.Sprintf("  Verdict:   %s\n", FormatVerdict(f.Verdict))
	}
	return result
}

func formatDigits(p Password, reveal bool) string {
	if !reveal {
		return strings.Repeat("*", PasswordSize)
	}
	parts := make([]string, len(p))
	for i, d := range p {
		if d.Valid() {
			parts[i] = fmt.Sprintf("%d", d)
		} else {
			parts[i] = fmt.Sprintf("<0x%02X>", byte(d))
		}
	}
	return strings.Join(parts, "")
}
