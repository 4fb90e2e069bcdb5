package ui

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
)

// Banner printed at the start of an interactive run
const Banner = `
  ┌──────────────────────────────────────────────┐
  │  mastoscrape · Mastodon profile data export  │
  └──────────────────────────────────────────────┘
`

// Color functions for terminal output
var (
	Cyan    = colorize("\033[36m%s\033[0m")
	Yellow  = colorize("\033[33m%s\033[0m")
	Red     = colorize("\033[31m%s\033[0m")
	Green   = colorize("\033[32m%s\033[0m")
	Magenta = colorize("\033[35m%s\033[0m")
	Dim     = colorize("\033[2m%s\033[0m")
)

var (
	output io.Writer = os.Stdout
	quiet  atomic.Bool
)

// SetOutput redirects all terminal output; nil restores stdout
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	output = w
}

// Output returns the current terminal writer
func Output() io.Writer {
	return output
}

// SetQuietMode suppresses everything except errors
func SetQuietMode(q bool) {
	quiet.Store(q)
}

// IsQuietMode reports whether quiet mode is on
func IsQuietMode() bool {
	return quiet.Load()
}

// colorize returns a function that wraps text with ANSI color codes
func colorize(colorString string) func(string) string {
	return func(text string) string {
		return fmt.Sprintf(colorString, text)
	}
}

// PrintBanner prints the banner with color
func PrintBanner() {
	if IsQuietMode() {
		return
	}
	fmt.Fprint(output, Cyan(Banner))
}

// PrintError prints an error message in red; it is never suppressed
func PrintError(msg string, args ...interface{}) {
	if len(args) > 0 && fmt.Sprint(args[0]) != "" {
		fmt.Fprintln(output, Red(msg+": "+fmt.Sprint(args[0])))
	} else {
		fmt.Fprintln(output, Red(msg))
	}
}

// PrintSuccess prints a success message in green
func PrintSuccess(msg string) {
	if IsQuietMode() {
		return
	}
	fmt.Fprintln(output, Green(msg))
}

// PrintInfo prints a label/value pair
func PrintInfo(label string, value string) {
	if IsQuietMode() {
		return
	}
	fmt.Fprintf(output, "%s: %s\n", Cyan(label), Yellow(value))
}

// PrintWarning prints a warning message in yellow
func PrintWarning(msg string, args ...interface{}) {
	if IsQuietMode() {
		return
	}
	if len(args) > 0 {
		fmt.Fprintln(output, Yellow(msg+": "+fmt.Sprint(args[0])))
	} else {
		fmt.Fprintln(output, Yellow(msg))
	}
}

// PrintHighlight prints a highlighted message in magenta
func PrintHighlight(msg string) {
	if IsQuietMode() {
		return
	}
	fmt.Fprintln(output, Magenta(msg))
}
