package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"golang.org/x/term"
)

// Banner is printed above interactive command output
const Banner = `
  ┌────────────────────────────────────────────┐
  │  ladderharvest  ranked ladder and matches  │
  └────────────────────────────────────────────┘
`

var (
	out          io.Writer = os.Stdout
	colorEnabled atomic.Bool
)

func init() {
	colorEnabled.Store(os.Getenv("NO_COLOR") == "" && term.IsTerminal(int(os.Stdout.Fd())))
}

// SetColor turns ANSI colors on or off
func SetColor(enabled bool) {
	colorEnabled.Store(enabled)
}

// SetOutput redirects every Print helper to w
func SetOutput(w io.Writer) {
	out = w
}

// Color functions for terminal output
var (
	Cyan    = colorize("\033[36m%s\033[0m")
	Yellow  = colorize("\033[33m%s\033[0m")
	Red     = colorize("\033[31m%s\033[0m")
	Green   = colorize("\033[32m%s\033[0m")
	Magenta = colorize("\033[35m%s\033[0m")
	Dim     = colorize("\033[2m%s\033[0m")
)

// colorize returns a function that wraps text with ANSI color codes when colors are on
func colorize(colorString string) func(string) string {
	return func(text string) string {
		if !colorEnabled.Load() {
			return text
		}
		return fmt.Sprintf(colorString, text)
	}
}

// PrintBanner prints the banner
func PrintBanner() {
	fmt.Fprint(out, Cyan(Banner))
}

// PrintError prints an error message in red
func PrintError(msg string, args ...interface{}) {
	fmt.Fprintln(out, Red(withDetail(msg, args)))
}

// PrintSuccess prints a success message in green
func PrintSuccess(msg string) {
	fmt.Fprintln(out, Green(msg))
}

// PrintInfo prints a label and value
func PrintInfo(label string, value string) {
	fmt.Fprintf(out, "%s: %s\n", Cyan(label), Yellow(value))
}

// PrintWarning prints a warning message in yellow
func PrintWarning(msg string, args ...interface{}) {
	fmt.Fprintln(out, Yellow(withDetail(msg, args)))
}

// PrintHighlight prints a highlighted message in magenta
func PrintHighlight(msg string) {
	fmt.Fprintln(out, Magenta(msg))
}

// PrintTable prints rows under headers with columns padded to the widest cell.
// Padding is computed before coloring so escape codes do not skew alignment.
func PrintTable(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	line := func(cells []string, style func(string) string) {
		parts := make([]string, len(widths))
		for i := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			parts[i] = style(fmt.Sprintf("%-*s", widths[i], cell))
		}
		fmt.Fprintln(out, strings.TrimRight(strings.Join(parts, "  "), " "))
	}

	line(headers, Cyan)
	for _, row := range rows {
		line(row, func(s string) string { return s })
	}
}

func withDetail(msg string, args []interface{}) string {
	if len(args) > 0 && fmt.Sprint(args[0]) != "" {
		return msg + ": " + fmt.Sprint(args[0])
	}
	return msg
}
