// ABOUTME: Terminal rendering of widget state for chatia-tui
// ABOUTME: Prints new log entries with glamour and a lipgloss status line

package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("255")).
			Background(lipgloss.Color("25")).
			Padding(0, 1)

	userStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	assistantStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("42"))

	unreadBadge = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("255")).
			Background(lipgloss.Color("160")).
			Padding(0, 1)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242"))
)

// terminalWidth returns the stdout width, or 80 when it is not a terminal.
func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return width
}

// printer writes each state change once. It is called from the stream
// goroutine and the input loop, so it locks.
type printer struct {
	mu       sync.Mutex
	out      io.Writer
	title    string
	md       *glamour.TermRenderer
	printed  int
	version  uint64
	pending  bool
	panel    bool
	unread   bool
	hasShown bool
}

func newPrinter(out io.Writer, title string, width int, opts ...glamour.TermRendererOption) (*printer, error) {
	if len(opts) == 0 {
		opts = []glamour.TermRendererOption{glamour.WithAutoStyle()}
	}
	opts = append(opts, glamour.WithWordWrap(max(width-4, 20)))

	md, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating markdown renderer: %w", err)
	}
	return &printer{out: out, title: title, md: md}, nil
}

func (p *printer) header() {
	fmt.Fprintln(p.out, titleStyle.Render(p.title))
	fmt.Fprintln(p.out, dimStyle.Render("/open /close /toggle drive the panel, /quit exits. Anything else is sent."))
	fmt.Fprintln(p.out)
}

// show prints what changed since the last state it saw. Older versions are
// dropped so a late stream event cannot reprint the log.
func (p *printer) show(st *widgetState) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.hasShown && st.Version < p.version {
		return
	}

	for ; p.printed < len(st.Messages); p.printed++ {
		p.printMessage(st.Messages[p.printed])
	}

	if st.Pending && (!p.hasShown || !p.pending) {
		fmt.Fprintln(p.out, dimStyle.Render("Escribiendo..."))
	}

	if !p.hasShown || st.PanelOpen != p.panel || st.Unread != p.unread {
		fmt.Fprintln(p.out, p.status(st))
	}

	p.hasShown = true
	p.version = st.Version
	p.pending = st.Pending
	p.panel = st.PanelOpen
	p.unread = st.Unread
}

func (p *printer) status(st *widgetState) string {
	var b strings.Builder
	if st.PanelOpen {
		b.WriteString(dimStyle.Render("[panel abierto]"))
	} else {
		b.WriteString(dimStyle.Render("[panel cerrado]"))
	}
	if st.Unread {
		b.WriteString(" ")
		b.WriteString(unreadBadge.Render("nuevo mensaje"))
	}
	return b.String()
}

func (p *printer) printMessage(m message) {
	switch m.Role {
	case "assistant":
		fmt.Fprintln(p.out, assistantStyle.Render("Asistente:"))
		rendered, err := p.md.Render(m.Text)
		if err != nil {
			rendered = m.Text + "\n"
		}
		fmt.Fprint(p.out, rendered)
	default:
		fmt.Fprintf(p.out, "%s %s\n", userStyle.Render("Tú:"), m.Text)
	}
}

// note prints a dim informational line.
func (p *printer) note(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, dimStyle.Render(fmt.Sprintf(format, args...)))
}
