package cmd

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// Status line printers. color disables itself for NO_COLOR and non-terminals.
var (
	successColor = color.New(color.FgGreen)
	warningColor = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed, color.Bold)
	infoColor    = color.New(color.FgCyan)
	dimColor     = color.New(color.FgHiBlack)
)

func printSuccess(w io.Writer, format string, args ...interface{}) {
	_, _ = successColor.Fprintf(w, "✔ "+format, args...)
}

func printWarning(w io.Writer, format string, args ...interface{}) {
	_, _ = warningColor.Fprintf(w, "! "+format, args...)
}

func printError(w io.Writer, format string, args ...interface{}) {
	_, _ = errorColor.Fprintf(w, "✘ "+format, args...)
}

func printInfo(w io.Writer, format string, args ...interface{}) {
	_, _ = infoColor.Fprintf(w, format, args...)
}

func printDetail(w io.Writer, format string, args ...interface{}) {
	_, _ = dimColor.Fprintf(w, "   "+format, args...)
}

func printf(w io.Writer, format string, args ...interface{}) {
	_, _ = fmt.Fprintf(w, format, args...)
}
