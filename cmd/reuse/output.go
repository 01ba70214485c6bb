package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kalambet/reuse/internal/inventory"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ "+msg))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// writeItemLine prints one compact inventory row.
func writeItemLine(w io.Writer, it inventory.Item) {
	fmt.Fprintf(w, "%s  %s  %s  %s\n",
		colorize(colorCyan, fmt.Sprintf("%-8s", shortID(it.ID))),
		colorize(colorBold, it.Name),
		colorize(colorDim, it.Category),
		it.Condition,
	)
}

// writeItemDetail prints every field of an item.
func writeItemDetail(w io.Writer, it inventory.Item) {
	fmt.Fprintf(w, "%s\n", colorize(colorBold, it.Name))
	fmt.Fprintf(w, "  ID:        %s\n", it.ID)
	fmt.Fprintf(w, "  Category:  %s\n", it.Category)
	fmt.Fprintf(w, "  Condition: %s\n", it.Condition)
	fmt.Fprintf(w, "  Summary:   %s\n", it.Summary)
	if len(it.Keywords) > 0 {
		fmt.Fprintf(w, "  Keywords:  %s\n", strings.Join(it.Keywords, ", "))
	}
	if it.ImageURL != "" {
		fmt.Fprintf(w, "  Image:     %s\n", it.ImageURL)
	}
	fmt.Fprintf(w, "  Created:   %s\n", it.CreatedAt.Format("2006-01-02 15:04"))
	if it.UpdatedAt != nil {
		fmt.Fprintf(w, "  Updated:   %s\n", it.UpdatedAt.Format("2006-01-02 15:04"))
	}
}

func writeMatch(w io.Writer, rank int, m inventory.Match) {
	marker := " "
	if m.IsTopMatch {
		marker = colorize(colorYellow, "★")
	}
	fmt.Fprintf(w, "%s %d. %s  %s\n", marker, rank, colorize(colorBold, m.Name), colorize(colorDim, m.Category))
	if m.MatchReason != "" {
		fmt.Fprintf(w, "     %s\n", m.MatchReason)
	}
}
