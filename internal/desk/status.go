package desk

import (
	"fmt"
	"maps"
	"strings"
)

// Category groups raw status names for filtering and counting.
type Category string

const (
	CategoryOpen     Category = "open"
	CategoryWaiting  Category = "waiting"
	CategoryResolved Category = "resolved"
)

// ParseCategory accepts "open", "waiting" or "resolved" in any case.
func ParseCategory(raw string) (Category, error) {
	switch c := Category(strings.ToLower(strings.TrimSpace(raw))); c {
	case CategoryOpen, CategoryWaiting, CategoryResolved:
		return c, nil
	default:
		return "", fmt.Errorf("%w: unknown status category %q", ErrValidation, raw)
	}
}

// DefaultStatuses is the service desk workflow vocabulary.
var DefaultStatuses = map[string]Category{
	"Em Andamento":            CategoryOpen,
	"Aguardando pelo suporte": CategoryOpen,
	"Aguardando cliente":      CategoryWaiting,
	"Itens Pendentes":         CategoryWaiting,
	"Resolvido":               CategoryResolved,
	"Fechado":                 CategoryResolved,
}

// StatusTable maps exact status names to categories. Names missing from
// the table are reported as CategoryOpen.
type StatusTable struct {
	categories map[string]Category
}

// NewStatusTable builds a table from DefaultStatuses with overrides applied on top.
func NewStatusTable(overrides map[string]Category) StatusTable {
	categories := maps.Clone(DefaultStatuses)
	maps.Copy(categories, overrides)
	return StatusTable{categories: categories}
}

// Categorize returns the category for an exact status name.
func (t StatusTable) Categorize(status string) Category {
	if c, ok := t.categories[status]; ok {
		return c
	}
	return CategoryOpen
}

// Known reports whether the status name has an explicit entry.
func (t StatusTable) Known(status string) bool {
	_, ok := t.categories[status]
	return ok
}

// Entries returns a copy of the name to category mapping.
func (t StatusTable) Entries() map[string]Category {
	return maps.Clone(t.categories)
}
