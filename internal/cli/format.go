package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/Ning0612/relocator/internal/state"
)

// fatih/color disables itself when stdout is not a terminal
var (
	successColor = color.New(color.FgGreen, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	labelColor   = color.New(color.Bold)
	dimColor     = color.New(color.FgHiBlack)
)

// FormatError formats an error for display
func FormatError(err error) string {
	return errorColor.Sprintf("Error: %v", err)
}

func printSuccess(w io.Writer, msg string) {
	successColor.Fprintf(w, "✓ %s\n", msg)
}

func printWarning(w io.Writer, msg string) {
	warningColor.Fprintf(w, "⚠ %s\n", msg)
}

func printLabelValue(w io.Writer, label, value string) {
	labelColor.Fprintf(w, "%s: ", label)
	fmt.Fprintln(w, value)
}

func statusColor(status string) *color.Color {
	switch status {
	case state.StatusSuccess:
		return successColor
	case state.StatusPartial:
		return warningColor
	default:
		return errorColor
	}
}

func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
