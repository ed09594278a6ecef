// Package render draws tickets, counters and comments for the terminal.
package render

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/SeniorPomidorro/suptech-desk/internal/desk"
)

const (
	columnWidthKey    = 10
	columnWidthStatus = 26
	defaultWidth      = 100
	timeLayout        = "2006-01-02 15:04"
)

// EmptyList is printed when the visible ticket set is empty.
const EmptyList = "No tickets found."

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Underline(true)
	keyStyle      = lipgloss.NewStyle().Bold(true).Width(columnWidthKey)
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	internalStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("214")).Padding(0, 1)

	categoryColors = map[desk.Category]lipgloss.Color{
		desk.CategoryOpen:     lipgloss.Color("39"),
		desk.CategoryWaiting:  lipgloss.Color("214"),
		desk.CategoryResolved: lipgloss.Color("42"),
	}
)

// Categorizer maps a ticket to its status category.
type Categorizer func(desk.Ticket) desk.Category

// Printer writes terminal output of a fixed width.
type Printer struct {
	w        io.Writer
	width    int
	category Categorizer
}

// NewPrinter returns a Printer. A non-positive width uses 100 columns.
func NewPrinter(w io.Writer, width int, category Categorizer) *Printer {
	if width <= 0 {
		width = defaultWidth
	}
	if category == nil {
		table := desk.NewStatusTable(nil)
		category = func(t desk.Ticket) desk.Category { return table.Categorize(t.Status) }
	}
	return &Printer{w: w, width: width, category: category}
}

// StatusBadge renders a status name colored by its category.
func (p *Printer) StatusBadge(t desk.Ticket) string {
	status := t.Status
	if status == "" {
		status = "-"
	}
	return lipgloss.NewStyle().
		Foreground(categoryColors[p.category(t)]).
		Width(columnWidthStatus).
		Render(truncate(status, columnWidthStatus-1))
}

// Tickets prints one row per ticket, or EmptyList.
func (p *Printer) Tickets(tickets []desk.Ticket) {
	if len(tickets) == 0 {
		fmt.Fprintln(p.w, mutedStyle.Render(EmptyList))
		return
	}

	summaryWidth := max(p.width-columnWidthKey-columnWidthStatus-2, 10)
	for _, t := range tickets {
		assignee := "Unassigned"
		if t.Assignee != nil && t.Assignee.DisplayName != "" {
			assignee = t.Assignee.DisplayName
		}
		row := keyStyle.Render(t.Key) + " " + p.StatusBadge(t) + " " + truncate(t.Summary, summaryWidth)
		fmt.Fprintln(p.w, row)
		fmt.Fprintln(p.w, mutedStyle.Render(strings.Repeat(" ", columnWidthKey+1)+assignee+" · "+formatTime(t.Updated)))
	}
}

// Statistics prints the four counters on one line.
func (p *Printer) Statistics(s desk.Statistics) {
	fmt.Fprintf(p.w, "Total %d  |  Open %d  |  Waiting %d  |  Resolved today %d\n",
		s.Total, s.Open, s.Waiting, s.ResolvedToday)
}

// Detail prints the ticket header, description and comment thread.
func (p *Printer) Detail(d *desk.Detail) {
	if d == nil {
		return
	}
	t := d.Ticket

	fmt.Fprintln(p.w, headerStyle.Render(t.Key+"  "+t.Summary))
	fmt.Fprintf(p.w, "Status:   %s\n", strings.TrimSpace(p.StatusBadge(t)))
	fmt.Fprintf(p.w, "Priority: %s\n", orDash(t.Priority))
	fmt.Fprintf(p.w, "Type:     %s\n", orDash(t.IssueType))
	fmt.Fprintf(p.w, "Assignee: %s\n", personName(t.Assignee))
	fmt.Fprintf(p.w, "Reporter: %s\n", personName(t.Reporter))
	fmt.Fprintf(p.w, "Created:  %s\n", formatTime(t.Created))
	fmt.Fprintf(p.w, "Updated:  %s\n", formatTime(t.Updated))
	if len(t.Labels) > 0 {
		fmt.Fprintf(p.w, "Labels:   %s\n", strings.Join(t.Labels, ", "))
	}

	if desc := strings.TrimSpace(t.Description); desc != "" {
		fmt.Fprintln(p.w)
		fmt.Fprintln(p.w, lipgloss.NewStyle().Width(p.width).Render(desc))
	}

	fmt.Fprintln(p.w)
	fmt.Fprintln(p.w, headerStyle.Render(fmt.Sprintf("Comments (%d)", len(d.Comments))))
	if len(d.Comments) == 0 {
		fmt.Fprintln(p.w, mutedStyle.Render("No comments yet."))
		return
	}
	for _, c := range d.Comments {
		p.comment(c)
	}
}

func (p *Printer) comment(c desk.Comment) {
	head := personName(c.Author) + " · " + formatTime(c.Created)
	if c.Internal {
		head += " " + internalStyle.Render("INTERNAL")
	}
	fmt.Fprintln(p.w)
	fmt.Fprintln(p.w, mutedStyle.Render(head))
	fmt.Fprintln(p.w, lipgloss.NewStyle().PaddingLeft(2).Width(p.width).Render(c.Body))
}

// Transitions prints the available target statuses.
func (p *Printer) Transitions(transitions []desk.Transition) {
	if len(transitions) == 0 {
		fmt.Fprintln(p.w, mutedStyle.Render("No transitions available."))
		return
	}
	for _, t := range transitions {
		fmt.Fprintf(p.w, "%s  (%s)\n", t.Target, t.Name)
	}
}

// Candidates prints numbered people for an assignee choice.
func (p *Printer) Candidates(people []desk.Person) {
	if len(people) == 0 {
		fmt.Fprintln(p.w, mutedStyle.Render("No matching users."))
		return
	}
	for i, person := range people {
		line := fmt.Sprintf("%2d. %s", i+1, person.DisplayName)
		if person.Email != "" {
			line += " <" + person.Email + ">"
		}
		fmt.Fprintln(p.w, line)
	}
}

func personName(person *desk.Person) string {
	if person == nil || person.DisplayName == "" {
		return "Unassigned"
	}
	return person.DisplayName
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

// truncate shortens text to maxWidth visual cells with an ellipsis.
func truncate(text string, maxWidth int) string {
	if lipgloss.Width(text) <= maxWidth {
		return text
	}
	runes := []rune(text)
	for length := len(runes) - 1; length >= 0; length-- {
		candidate := string(runes[:length]) + "…"
		if lipgloss.Width(candidate) <= maxWidth {
			return candidate
		}
	}
	return ""
}
