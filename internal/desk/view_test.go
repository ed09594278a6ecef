package desk

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var fixedNow = time.Date(2026, 3, 14, 15, 30, 0, 0, time.UTC)

func newTestView(tickets []Ticket, opts ...ViewOption) *View {
	repo := NewRepository()
	repo.ReplaceAll(tickets)
	opts = append([]ViewOption{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewView(repo, opts...)
}

func keys(tickets []Ticket) []string {
	out := make([]string, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, t.Key)
	}
	return out
}

func TestViewCategoryFilters(t *testing.T) {
	t.Parallel()

	view := newTestView([]Ticket{
		{Key: "SD-1", Status: "Em Andamento"},
		{Key: "SD-2", Status: "Resolvido", Updated: fixedNow.Add(-time.Hour)},
	})

	tests := []struct {
		filter Filter
		want   []string
	}{
		{filter: FilterOpen, want: []string{"SD-1"}},
		{filter: FilterResolved, want: []string{"SD-2"}},
		{filter: FilterWaiting, want: []string{}},
		{filter: FilterAll, want: []string{"SD-1", "SD-2"}},
	}
	for _, tc := range tests {
		if err := view.SetFilter(tc.filter); err != nil {
			t.Fatalf("SetFilter(%q): %v", tc.filter, err)
		}
		if diff := cmp.Diff(tc.want, keys(view.VisibleTickets())); diff != "" {
			t.Fatalf("filter %q mismatch (-want +got):\n%s", tc.filter, diff)
		}
	}

	want := Statistics{Total: 2, Open: 1, Waiting: 0, ResolvedToday: 1}
	if diff := cmp.Diff(want, view.Statistics()); diff != "" {
		t.Fatalf("Statistics mismatch (-want +got):\n%s", diff)
	}
}

func TestViewSearchQuery(t *testing.T) {
	t.Parallel()

	view := newTestView([]Ticket{
		{Key: "SD-1", Summary: "Erro no login"},
		{Key: "SD-2", Summary: "Erro de rede"},
		{Key: "SD-3", Summary: "Outro", Description: "Usuario sem LOGIN desde ontem"},
	})

	view.SetSearchQuery("login")
	if diff := cmp.Diff([]string{"SD-1", "SD-3"}, keys(view.VisibleTickets())); diff != "" {
		t.Fatalf("search mismatch (-want +got):\n%s", diff)
	}

	view.SetSearchQuery("sd-2")
	if diff := cmp.Diff([]string{"SD-2"}, keys(view.VisibleTickets())); diff != "" {
		t.Fatalf("key search mismatch (-want +got):\n%s", diff)
	}

	view.SetSearchQuery("   ")
	if got := len(view.VisibleTickets()); got != 3 {
		t.Fatalf("blank query should match everything, got %d", got)
	}
}

func TestViewFilterAndQueryCombine(t *testing.T) {
	t.Parallel()

	view := newTestView([]Ticket{
		{Key: "SD-1", Summary: "login falhou", Status: "Em Andamento"},
		{Key: "SD-2", Summary: "login ok", Status: "Fechado"},
		{Key: "SD-3", Summary: "impressora", Status: "Em Andamento"},
	})

	if err := view.SetFilter(FilterOpen); err != nil {
		t.Fatalf("SetFilter: %v", err)
	}
	view.SetSearchQuery("LOGIN")

	if diff := cmp.Diff([]string{"SD-1"}, keys(view.VisibleTickets())); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestViewVisibleIsOrderedSubset(t *testing.T) {
	t.Parallel()

	tickets := []Ticket{
		{Key: "SD-5", Summary: "rede", Status: "Aguardando cliente"},
		{Key: "SD-4", Summary: "login", Status: "Em Andamento"},
		{Key: "SD-3", Summary: "rede", Status: "Resolvido"},
		{Key: "SD-2", Summary: "login rede", Status: "Itens Pendentes"},
		{Key: "SD-1", Summary: "email", Status: "Desconhecido"},
	}
	view := newTestView(tickets)

	position := map[string]int{}
	for i, tk := range tickets {
		position[tk.Key] = i
	}

	for _, f := range []Filter{FilterAll, FilterOpen, FilterWaiting, FilterResolved} {
		for _, q := range []string{"", "rede", "login", "nada"} {
			if err := view.SetFilter(f); err != nil {
				t.Fatalf("SetFilter: %v", err)
			}
			view.SetSearchQuery(q)

			first := view.VisibleTickets()
			second := view.VisibleTickets()
			if diff := cmp.Diff(first, second); diff != "" {
				t.Fatalf("filter=%q query=%q not idempotent (-first +second):\n%s", f, q, diff)
			}

			last := -1
			for _, tk := range first {
				p, ok := position[tk.Key]
				if !ok {
					t.Fatalf("filter=%q query=%q returned unknown ticket %s", f, q, tk.Key)
				}
				if p <= last {
					t.Fatalf("filter=%q query=%q broke server order at %s", f, q, tk.Key)
				}
				last = p
			}
		}
	}

	if err := view.SetFilter(FilterAll); err != nil {
		t.Fatalf("SetFilter: %v", err)
	}
	view.SetSearchQuery("")
	if diff := cmp.Diff(tickets, view.VisibleTickets()); diff != "" {
		t.Fatalf("all/empty should return the full set (-want +got):\n%s", diff)
	}
}

func TestViewMineFilter(t *testing.T) {
	t.Parallel()

	me := "agent@example.com"
	view := newTestView([]Ticket{
		{Key: "SD-1", Assignee: &Person{Email: me}},
		{Key: "SD-2", Assignee: &Person{Email: "other@example.com"}},
		{Key: "SD-3"},
		{Key: "SD-4", Assignee: &Person{Email: "Agent@Example.com"}},
		{Key: "SD-5", Assignee: &Person{DisplayName: "Hidden Email"}},
	}, WithCurrentUser(func() string { return me }))

	if err := view.SetFilter(FilterMine); err != nil {
		t.Fatalf("SetFilter: %v", err)
	}
	if diff := cmp.Diff([]string{"SD-1"}, keys(view.VisibleTickets())); diff != "" {
		t.Fatalf("mine mismatch (-want +got):\n%s", diff)
	}
}

func TestViewMineWithoutCurrentUser(t *testing.T) {
	t.Parallel()

	view := newTestView([]Ticket{
		{Key: "SD-1", Assignee: &Person{DisplayName: "No Email"}},
		{Key: "SD-2"},
	})
	if err := view.SetFilter(FilterMine); err != nil {
		t.Fatalf("SetFilter: %v", err)
	}
	if got := view.VisibleTickets(); len(got) != 0 {
		t.Fatalf("expected no tickets without a current user, got %v", keys(got))
	}
}

func TestViewStatisticsIgnoreFilterAndQuery(t *testing.T) {
	t.Parallel()

	view := newTestView([]Ticket{
		{Key: "SD-1", Status: "Em Andamento"},
		{Key: "SD-2", Status: "Aguardando pelo suporte"},
		{Key: "SD-3", Status: "Aguardando cliente"},
		{Key: "SD-4", Status: "Itens Pendentes"},
		{Key: "SD-5", Status: "Resolvido", Updated: fixedNow.Add(-2 * time.Hour)},
		{Key: "SD-6", Status: "Fechado", Updated: fixedNow.AddDate(0, 0, -1)},
		{Key: "SD-7", Status: "Fechado"},
		{Key: "SD-8", Status: "Triagem"},
	})

	want := Statistics{Total: 8, Open: 3, Waiting: 2, ResolvedToday: 1}
	if diff := cmp.Diff(want, view.Statistics()); diff != "" {
		t.Fatalf("Statistics mismatch (-want +got):\n%s", diff)
	}

	if err := view.SetFilter(FilterWaiting); err != nil {
		t.Fatalf("SetFilter: %v", err)
	}
	view.SetSearchQuery("nothing matches this")
	if diff := cmp.Diff(want, view.Statistics()); diff != "" {
		t.Fatalf("Statistics changed with filter/query (-want +got):\n%s", diff)
	}
}

func TestViewResolvedTodayUsesClockLocation(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("BRT", -3*60*60)
	// 01:00 UTC on the 15th is still the 14th in BRT.
	now := time.Date(2026, 3, 14, 23, 0, 0, 0, loc)
	updated := time.Date(2026, 3, 15, 1, 0, 0, 0, time.UTC)

	repo := NewRepository()
	repo.ReplaceAll([]Ticket{{Key: "SD-1", Status: "Resolvido", Updated: updated}})
	view := NewView(repo, WithClock(func() time.Time { return now }))

	if got := view.Statistics().ResolvedToday; got != 1 {
		t.Fatalf("ResolvedToday = %d, want 1", got)
	}
}

func TestViewStatusTableOverride(t *testing.T) {
	t.Parallel()

	table := NewStatusTable(map[string]Category{
		"Triagem":      CategoryWaiting,
		"Em Andamento": CategoryResolved,
	})
	view := newTestView([]Ticket{
		{Key: "SD-1", Status: "Triagem"},
		{Key: "SD-2", Status: "Em Andamento"},
		{Key: "SD-3", Status: "Aguardando cliente"},
	}, WithStatusTable(table))

	if err := view.SetFilter(FilterWaiting); err != nil {
		t.Fatalf("SetFilter: %v", err)
	}
	if diff := cmp.Diff([]string{"SD-1", "SD-3"}, keys(view.VisibleTickets())); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
	if got := DefaultStatuses["Em Andamento"]; got != CategoryOpen {
		t.Fatalf("override leaked into DefaultStatuses: %q", got)
	}
}

func TestViewReadsRepositoryChanges(t *testing.T) {
	t.Parallel()

	repo := NewRepository()
	view := NewView(repo)
	if got := view.VisibleTickets(); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}

	repo.ReplaceAll([]Ticket{{Key: "SD-1"}})
	if diff := cmp.Diff([]string{"SD-1"}, keys(view.VisibleTickets())); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestParseFilter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw     string
		want    Filter
		wantErr bool
	}{
		{raw: "", want: FilterAll},
		{raw: "all", want: FilterAll},
		{raw: "my", want: FilterMine},
		{raw: "Mine", want: FilterMine},
		{raw: " open ", want: FilterOpen},
		{raw: "waiting", want: FilterWaiting},
		{raw: "RESOLVED", want: FilterResolved},
		{raw: "closed", wantErr: true},
	}

	for _, tc := range tests {
		got, err := ParseFilter(tc.raw)
		if tc.wantErr {
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("ParseFilter(%q) error = %v, want ErrValidation", tc.raw, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseFilter(%q): %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("ParseFilter(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestSetFilterRejectsUnknown(t *testing.T) {
	t.Parallel()

	view := newTestView(nil)
	if err := view.SetFilter("bogus"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if view.Filter() != FilterAll {
		t.Fatalf("filter changed after rejection: %q", view.Filter())
	}
}

func TestStatusTableDefaults(t *testing.T) {
	t.Parallel()

	table := NewStatusTable(nil)
	if got := table.Categorize("Itens Pendentes"); got != CategoryWaiting {
		t.Fatalf("Categorize = %q", got)
	}
	if got := table.Categorize("Something New"); got != CategoryOpen {
		t.Fatalf("unknown status should be open, got %q", got)
	}
	if table.Known("Something New") {
		t.Fatalf("unknown status reported as known")
	}
	if _, err := ParseCategory("Pending"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestStatusTableEntriesIsACopy(t *testing.T) {
	t.Parallel()

	table := NewStatusTable(map[string]Category{"Triagem": CategoryWaiting})
	entries := table.Entries()
	if len(entries) != len(DefaultStatuses)+1 {
		t.Fatalf("entries = %d, want %d", len(entries), len(DefaultStatuses)+1)
	}
	entries["Resolvido"] = CategoryOpen
	if got := table.Categorize("Resolvido"); got != CategoryResolved {
		t.Fatalf("mutating entries changed the table: %q", got)
	}
}
