package logging

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
)

// ANSI color codes.
const (
	reset = "\033[0m"
	bold  = "\033[1m"
	cyan  = "\033[36m"
	green = "\033[32m"
	dim   = "\033[2m"
)

// Logo lines — ASCII art banner printed by the demo launcher at startup.
var logoLines = [5]string{
	` __      __.__                 _________  ________   ____  __.`,
	`/  \    /  \__|______   ____  /   _____/ /  _____/  |    |/ _|`,
	`\   \/\/   /  \_  __ \_/ __ \ \_____  \ /   \  ___   |      <  `,
	` \        /|  ||  | \/\  ___/ /        \\    \_\  \  |    |  \ `,
	`  \__/\  / |__||__|   \___  >_______  / \______  /  |____|__ \`,
}

// PrintBanner prints the SDK's ASCII art logo followed by a version and
// device-id line. Colors are used only when stderr is a TTY.
func PrintBanner(version, deviceID string) {
	color := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())

	for _, line := range logoLines {
		if color {
			fmt.Fprintf(os.Stderr, "%s%s%s\n", bold+cyan, line, reset)
		} else {
			fmt.Fprintln(os.Stderr, line)
		}
	}

	if deviceID == "" {
		deviceID = "(unregistered)"
	}

	if color {
		fmt.Fprintf(os.Stderr, "\n  %sversion%s %s   %sdevice%s %s\n\n",
			dim, reset, version, dim, reset, deviceID)
	} else {
		fmt.Fprintf(os.Stderr, "\n  version %s   device %s\n\n", version, deviceID)
	}
}

// Colorize helpers for the demo CLI's connection-state prints.
var (
	Green = func(s string) string { return green + s + reset }
)
