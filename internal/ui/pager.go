package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"golang.org/x/term"
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Table is a titled listing with named columns.
type Table struct {
	Title   string
	Columns []string
	Rows    [][]string
}

// Write renders t as aligned plain-text columns.
func (t Table) Write(out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(t.Columns, "\t"))
	for _, row := range t.Rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	return w.Flush()
}

// Page shows t in a scrollable table view when out is a terminal and the
// rows do not fit on screen. Otherwise t is written as plain text.
func Page(out io.Writer, t Table, allowPager bool) error {
	fd := int(os.Stdout.Fd())
	if !allowPager || out != os.Stdout || !term.IsTerminal(fd) {
		return t.Write(out)
	}
	// Header row plus the border.
	if _, height, err := term.GetSize(fd); err == nil && len(t.Rows)+3 <= height {
		return t.Write(out)
	}

	view := tview.NewTable().
		SetFixed(1, 0).
		SetSelectable(true, false).
		SetSeparator(' ')
	for c, name := range t.Columns {
		view.SetCell(0, c, tview.NewTableCell(name).
			SetTextColor(tcell.ColorYellow).
			SetSelectable(false).
			SetExpansion(1))
	}
	for r, row := range t.Rows {
		for c, val := range row {
			view.SetCell(r+1, c, tview.NewTableCell(val).SetExpansion(1))
		}
	}
	view.SetBorder(true).SetTitle(fmt.Sprintf(" %s (%d) ", t.Title, len(t.Rows)))

	app := tview.NewApplication()
	view.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEscape {
			app.Stop()
		}
	})
	view.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyRune && event.Rune() == 'q' {
			app.Stop()
			return nil
		}
		return event
	})

	if err := app.SetRoot(view, true).SetFocus(view).Run(); err != nil {
		return fmt.Errorf("pager: %w", err)
	}
	return nil
}
