package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"photo-indexer/internal/events"
)

const defaultBarWidth = 30

// progress renders scan events as a single redrawn line on a terminal and
// as one line per message otherwise.
type progress struct {
	out     io.Writer
	tty     bool
	width   int
	lastMsg string
	drawn   bool
}

func newProgress(out io.Writer) *progress {
	p := &progress{out: out, width: defaultBarWidth}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.tty = true
		if cols, _, err := term.GetSize(int(f.Fd())); err == nil && cols > 0 {
			p.width = min(max(cols-50, 10), 60)
		}
	}
	return p
}

func (p *progress) update(ev events.Event) {
	if !p.tty {
		if ev.Message != p.lastMsg && ev.Message != "" {
			fmt.Fprintf(p.out, "[%5.1f%%] %s\n", ev.Percent, ev.Message)
			p.lastMsg = ev.Message
		}
		return
	}
	fmt.Fprintf(p.out, "\r\033[K%s %s", renderBar(ev, p.width), truncate(ev.Message, 40))
	p.drawn = true
}

func (p *progress) done() {
	if p.tty && p.drawn {
		fmt.Fprintln(p.out)
		p.drawn = false
	}
}

// renderBar draws [#####.....]  42.0%; indeterminate events show a
// placeholder instead of a percentage.
func renderBar(ev events.Event, width int) string {
	if ev.Indeterminate {
		return "[" + strings.Repeat("?", width) + "]    ?  "
	}
	pct := min(max(ev.Percent, 0), 100)
	filled := int(pct / 100 * float64(width))
	return fmt.Sprintf("[%s%s] %5.1f%%", strings.Repeat("#", filled), strings.Repeat(".", width-filled), pct)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
