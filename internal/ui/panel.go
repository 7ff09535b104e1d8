package ui

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/idilsaglam/livetodo/internal/model"
)

var ansiRegexp = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func visibleWidth(s string) int { return utf8.RuneCountInString(ansiRegexp.ReplaceAllString(s, "")) }

// ProgressBar renders a Unicode progress bar with percentage.
func ProgressBar(done, total, width int) string {
	if total <= 0 {
		total = 1
	}
	if width < 5 {
		width = 5
	}
	filled := int(float64(done) / float64(total) * float64(width))
	if filled > width {
		filled = width
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	pct := int(float64(done) / float64(total) * 100)
	return fmt.Sprintf("%s %3d%%", bar, pct)
}

// Panel draws a framed box using the current theme.
func Panel(w io.Writer, lines []string) {
	t := Current()
	maxw := 0
	for _, ln := range lines {
		if vw := visibleWidth(ln); vw > maxw {
			maxw = vw
		}
	}
	pad := func(s string) string {
		if vis := visibleWidth(s); vis < maxw {
			s += strings.Repeat(" ", maxw-vis)
		}
		return s
	}
	fmt.Fprintln(w, t.CornerTL+strings.Repeat(t.H, maxw+2)+t.CornerTR)
	for _, ln := range lines {
		fmt.Fprintln(w, t.V+" "+pad(ln)+" "+t.V)
	}
	fmt.Fprintln(w, t.CornerBL+strings.Repeat(t.H, maxw+2)+t.CornerBR)
}

// ListLines renders items newest first with ids, for the ls command.
func ListLines(w io.Writer, items []model.TodoItem) []string {
	t := Current()
	done, pending := model.Stats(items)
	lines := []string{
		fmt.Sprintf("%s   %s %d  %s %d",
			C(w, t.Title, "Todos"),
			C(w, t.Success, t.SymDone), done,
			C(w, t.Pending, t.SymPending), pending),
	}
	if len(items) == 0 {
		return append(lines, C(w, t.Muted, "(empty)"))
	}
	for _, it := range items {
		box, text := t.BoxUnchecked, it.Content
		if it.Completed {
			box = C(w, t.Success, t.BoxChecked)
			text = C(w, t.Done, text)
		}
		lines = append(lines, fmt.Sprintf("%s %s  %s", box, text, C(w, t.Muted, it.ID)))
	}
	return append(lines, ProgressBar(done, len(items), 20))
}
