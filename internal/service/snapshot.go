package service

import (
	"sort"
	"strings"

	"sheetnotes/internal/domain"
	"sheetnotes/internal/priority"
)

// Snapshot is an immutable view of a board for rendering.
type Snapshot struct {
	Active      []domain.Note `json:"active"`
	Done        []domain.Note `json:"done"`
	Systems     []string      `json:"systems"`
	Query       string        `json:"query"`
	Total       int           `json:"total"`
	ActiveCount int           `json:"active_count"`
	DoneCount   int           `json:"done_count"`
	Pending     []string      `json:"pending"`
	Failures    []PushFailure `json:"failures"`
}

// Snapshot copies the board in canonical order, filtered by the current tag
// query. Counts and system suggestions cover every note.
func (b *Board) Snapshot() *Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	priority.Sort(b.notes)
	tags := domain.ParseTags(b.query)

	snap := &Snapshot{
		Active:   []domain.Note{},
		Done:     []domain.Note{},
		Systems:  systems(b.notes),
		Query:    b.query,
		Total:    len(b.notes),
		Pending:  []string{},
		Failures: append([]PushFailure{}, b.failures...),
	}

	for _, n := range b.notes {
		if n.Done {
			snap.DoneCount++
		} else {
			snap.ActiveCount++
		}
		if !n.MatchesAnyTag(tags) {
			continue
		}
		if n.Done {
			snap.Done = append(snap.Done, *n)
		} else {
			snap.Active = append(snap.Active, *n)
		}
	}

	for id := range b.pending {
		snap.Pending = append(snap.Pending, id)
	}
	sort.Strings(snap.Pending)

	return snap
}

// systems returns the distinct non-empty system names, sorted.
func systems(notes []*domain.Note) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, n := range notes {
		s := strings.TrimSpace(n.System)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
