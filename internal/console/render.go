// Package console renders session output for a terminal.
package console

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/simrelease/simrelease/internal/core"
)

// Theme is the presentation preference. It only changes colors.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// ParseTheme accepts light or dark; anything else, including "", is light.
func ParseTheme(s string) (Theme, bool) {
	switch Theme(strings.ToLower(strings.TrimSpace(s))) {
	case ThemeDark:
		return ThemeDark, true
	case ThemeLight:
		return ThemeLight, true
	}
	return ThemeLight, false
}

// Toggle returns the other theme.
func (t Theme) Toggle() Theme {
	if t == ThemeDark {
		return ThemeLight
	}
	return ThemeDark
}

// Renderer writes entries, counts and notices to w.
type Renderer struct {
	w       io.Writer
	theme   Theme
	success *color.Color
	failure *color.Color
	muted   *color.Color
	accent  *color.Color
}

// NewRenderer creates a renderer. With colorize false every color is
// disabled regardless of the terminal.
func NewRenderer(w io.Writer, theme Theme, colorize bool) *Renderer {
	r := &Renderer{w: w, theme: theme}
	if theme == ThemeDark {
		r.success = color.New(color.FgHiGreen, color.Bold)
		r.failure = color.New(color.FgHiRed, color.Bold)
		r.muted = color.New(color.FgHiBlack)
		r.accent = color.New(color.FgHiCyan)
	} else {
		r.success = color.New(color.FgGreen)
		r.failure = color.New(color.FgRed)
		r.muted = color.New(color.FgWhite)
		r.accent = color.New(color.FgBlue)
	}
	if !colorize {
		for _, c := range []*color.Color{r.success, r.failure, r.muted, r.accent} {
			c.DisableColor()
		}
	}
	return r
}

// Theme returns the renderer's theme.
func (r *Renderer) Theme() Theme { return r.theme }

// Entries writes one line per entry in log order.
func (r *Renderer) Entries(entries []core.OutcomeEntry) {
	if len(entries) == 0 {
		r.muted.Fprintln(r.w, "No logs yet.")
		return
	}
	for _, e := range entries {
		c := r.failure
		if e.Status == core.StatusSuccess {
			c = r.success
		}
		c.Fprintf(r.w, "[%s] ", e.Status)
		fmt.Fprintf(r.w, "%s: %s\n", e.Label(), e.Message)
	}
}

// Counts writes the success and error tallies.
func (r *Renderer) Counts(success, errs int) {
	r.success.Fprintf(r.w, "✔ %d Success", success)
	fmt.Fprint(r.w, " / ")
	r.failure.Fprintf(r.w, "✖ %d Errors", errs)
	fmt.Fprintln(r.w)
}

// LineCount writes the number of non-empty input lines.
func (r *Renderer) LineCount(n int) {
	r.accent.Fprintf(r.w, "Lines: %d\n", n)
}

// Notice writes a one-line status message, green when ok.
func (r *Renderer) Notice(ok bool, format string, args ...any) {
	c := r.failure
	if ok {
		c = r.success
	}
	c.Fprintf(r.w, format+"\n", args...)
}

// Info writes an uncolored line.
func (r *Renderer) Info(format string, args ...any) {
	fmt.Fprintf(r.w, format+"\n", args...)
}
