// Package output provides consistent CLI output formatting with colors and progress indicators.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Writer provides formatted output for CLI.
type Writer struct {
	out      io.Writer
	useColor bool
	jsonMode bool
}

// New creates a new output Writer for human-readable output. Color is
// enabled automatically when out is a terminal and NO_COLOR isn't set.
func New(out io.Writer) *Writer {
	return &Writer{
		out:      out,
		useColor: isTerminal(out) && !detectNoColor(),
	}
}

// NewJSON creates a Writer that emits one JSON object per line instead of
// icon-prefixed text, for callers piping CLI output into other tools.
func NewJSON(out io.Writer) *Writer {
	return &Writer{
		out:      out,
		jsonMode: true,
	}
}

// isTerminal reports whether w is a terminal file descriptor.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// detectNoColor checks the NO_COLOR environment variable convention.
func detectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

type jsonLine struct {
	Level   string `json:"level"`
	Icon    string `json:"icon,omitempty"`
	Message string `json:"message"`
}

func (w *Writer) writeJSON(level, icon, msg string) {
	data, err := json.Marshal(jsonLine{Level: level, Icon: icon, Message: msg})
	if err != nil {
		return
	}
	_, _ = fmt.Fprintln(w.out, string(data))
}

// colorize wraps msg in an ANSI color code when useColor is enabled.
func (w *Writer) colorize(code, msg string) string {
	if !w.useColor {
		return msg
	}
	return code + msg + "\033[0m"
}

// Status prints a status message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if w.jsonMode {
		w.writeJSON("info", icon, msg)
		return
	}
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	w.Status(icon, msg)
}

// Success prints a success message with checkmark.
func (w *Writer) Success(msg string) {
	if w.jsonMode {
		w.writeJSON("success", "✅", msg)
		return
	}
	w.Status("✅", w.colorize("\033[32m", msg))
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	if w.jsonMode {
		w.writeJSON("warning", "⚠️", msg)
		return
	}
	w.Status("⚠️ ", w.colorize("\033[33m", msg))
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	if w.jsonMode {
		w.writeJSON("error", "❌", msg)
		return
	}
	w.Status("❌", w.colorize("\033[31m", msg))
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Code prints a code block with indentation.
func (w *Writer) Code(content string) {
	if w.jsonMode {
		w.writeJSON("code", "", content)
		return
	}
	_, _ = fmt.Fprintln(w.out)
	// Indent each line
	lines := strings.Split(content, "\n")
	for _, line := range lines {
		_, _ = fmt.Fprintf(w.out, "  %s\n", line)
	}
	_, _ = fmt.Fprintln(w.out)
}

// Newline prints an empty line. No-op in JSON mode.
func (w *Writer) Newline() {
	if w.jsonMode {
		return
	}
	_, _ = fmt.Fprintln(w.out)
}

// Progress prints a progress bar with message. No-op in JSON mode, since a
// carriage-return progress bar has no sensible line-delimited JSON form.
func (w *Writer) Progress(current, total int, msg string) {
	if total <= 0 {
		return
	}
	if w.jsonMode {
		return
	}

	pct := float64(current) / float64(total) * 100
	bar := renderProgressBar(current, total, 30)

	// Use carriage return for in-place updates
	_, _ = fmt.Fprintf(w.out, "\r[%s] %.0f%% %s", bar, pct, msg)

	// Add newline when complete
	if current >= total {
		_, _ = fmt.Fprintln(w.out)
	}
}

// ProgressDone completes a progress line with newline.
func (w *Writer) ProgressDone() {
	if w.jsonMode {
		return
	}
	_, _ = fmt.Fprintln(w.out)
}

// renderProgressBar creates a text progress bar.
func renderProgressBar(current, total, width int) string {
	if total <= 0 {
		return strings.Repeat("░", width)
	}

	pct := float64(current) / float64(total)
	filled := int(pct * float64(width))

	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}

	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
