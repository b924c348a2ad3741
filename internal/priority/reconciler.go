// Package priority orders notes and keeps active-note priorities dense.
//
// Active notes are ordered by ascending priority, then by creation time.
// Done notes are ordered by completion time, newest first, and their
// priority is left as it was when they were completed.
package priority

import (
	"sort"
	"time"

	"sheetnotes/internal/domain"
)

// Step is the distance between consecutive active priorities.
const Step int64 = 1000

// TimeLayout is the ISO-8601 form used for every note timestamp.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

var epoch = time.Unix(0, 0).UTC()

// FormatTime renders t in UTC using TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func parseTime(s string, fallback time.Time) time.Time {
	if s == "" {
		return fallback
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return fallback
}

// Less is the canonical order.
func Less(a, b *domain.Note) bool {
	if a.Done != b.Done {
		return !a.Done
	}

	if !a.Done {
		if a.Priority.Set != b.Priority.Set {
			return a.Priority.Set
		}
		if a.Priority.Set && a.Priority.Value != b.Priority.Value {
			return a.Priority.Value < b.Priority.Value
		}
		return parseTime(a.Timestamp, time.Time{}).Before(parseTime(b.Timestamp, time.Time{}))
	}

	return parseTime(a.DateDone, epoch).After(parseTime(b.DateDone, epoch))
}

// Sort puts notes in canonical order. Equal notes keep their relative order.
func Sort(notes []*domain.Note) {
	sort.SliceStable(notes, func(i, j int) bool {
		return Less(notes[i], notes[j])
	})
}

// Reassign sorts notes and renumbers active ones as index*Step. It returns
// the notes whose priority changed.
func Reassign(notes []*domain.Note) []*domain.Note {
	Sort(notes)

	var changed []*domain.Note
	var index int64
	for _, n := range notes {
		if n.Done {
			continue
		}
		want := domain.P(index * Step)
		if !n.Priority.Equal(want) {
			n.Priority = want
			changed = append(changed, n)
		}
		index++
	}
	return changed
}

// Active returns the active notes of an already sorted slice.
func Active(notes []*domain.Note) []*domain.Note {
	var out []*domain.Note
	for _, n := range notes {
		if !n.Done {
			out = append(out, n)
		}
	}
	return out
}

// Done returns the completed notes of an already sorted slice.
func Done(notes []*domain.Note) []*domain.Note {
	var out []*domain.Note
	for _, n := range notes {
		if n.Done {
			out = append(out, n)
		}
	}
	return out
}

// PlaceFront gives target a priority lower than every other active note so
// that the next Reassign puts it first.
func PlaceFront(notes []*domain.Note, target *domain.Note) {
	var lowest int64
	for _, n := range notes {
		if n == target || n.Done || !n.Priority.Set {
			continue
		}
		if n.Priority.Value < lowest {
			lowest = n.Priority.Value
		}
	}
	target.Priority = domain.P(lowest - 1)
}

// MarkDone completes n. Ordering is not touched.
func MarkDone(n *domain.Note, now time.Time) {
	n.Done = true
	n.DateDone = FormatTime(now)
	n.DateUndone = ""
}

// MarkActive reopens n and moves it to the front of the active notes.
func MarkActive(notes []*domain.Note, n *domain.Note, now time.Time) {
	n.Done = false
	n.DateUndone = FormatTime(now)
	n.DateDone = ""
	PlaceFront(notes, n)
}

// Move swaps the note with its neighbour in the active order. Moving the
// first note up or the last note down does nothing. It returns every note
// whose priority changed.
func Move(notes []*domain.Note, id string, dir domain.MoveDirection) ([]*domain.Note, error) {
	Sort(notes)
	active := Active(notes)

	idx := -1
	for i, n := range active {
		if n.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		for _, n := range notes {
			if n.ID == id {
				return nil, domain.ErrDoneNoteMove
			}
		}
		return nil, domain.ErrNotFound
	}

	j := idx - 1
	if dir == domain.MoveDown {
		j = idx + 1
	}
	if j < 0 || j >= len(active) {
		return nil, nil
	}

	a, b := active[idx], active[j]

	var changed []*domain.Note
	if !a.Priority.Set || !b.Priority.Set || a.Priority.Value == b.Priority.Value {
		changed = Reassign(notes)
	}

	a.Priority, b.Priority = b.Priority, a.Priority
	Sort(notes)

	return append(changed, a, b), nil
}
