package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"sheetnotes/internal/domain"
	"sheetnotes/internal/envelope"
	"sheetnotes/internal/priority"
)

const (
	DefaultTitle       = "New Note"
	DefaultDescription = "Add your description here."
	DefaultTags        = "new"
)

// Board is one user's note state: the decrypted notes, the session user,
// their envelope, the active tag query and the notes whose stored copy is
// stale. Operations are serialized.
type Board struct {
	svc  *BoardService
	user *domain.User
	env  *envelope.Envelope

	mu       sync.Mutex
	notes    []*domain.Note
	query    string
	pending  map[string]string
	failures []PushFailure
}

func newBoard(svc *BoardService, user *domain.User, env *envelope.Envelope) *Board {
	return &Board{
		svc:     svc,
		user:    user,
		env:     env,
		pending: make(map[string]string),
	}
}

// Load replaces the local notes with the stored ones and refreshes stale
// overdue flags.
func (b *Board) Load(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	notes, err := b.svc.store.List(ctx, b.user, b.env)
	if err != nil {
		return fmt.Errorf("failed to load notes: %w", err)
	}

	b.notes = notes
	b.pending = make(map[string]string)
	b.failures = nil
	priority.Sort(b.notes)

	if flipped := b.refreshOverdue(); flipped > 0 {
		b.failures = b.flushPending(ctx)
	}
	return nil
}

func (b *Board) refreshOverdue() int {
	now := b.svc.now()
	loc := b.svc.cfg.Location
	checkedAt := priority.FormatTime(now)

	flipped := 0
	for _, n := range b.notes {
		if n.Done || n.DueDate == "" {
			continue
		}
		if b.checkedRecently(n) {
			continue
		}

		overdue := IsOverdue(n.DueDate, now, loc)
		n.OverdueCheckedAt = checkedAt
		if overdue != n.IsOverdue {
			n.IsOverdue = overdue
			b.markDirty(n.ID, domain.ActionUpdate)
			flipped++
		}
	}
	return flipped
}

func (b *Board) checkedRecently(n *domain.Note) bool {
	if n.OverdueCheckedAt == "" {
		return false
	}
	last, err := ParseDueDate(n.OverdueCheckedAt, b.svc.cfg.Location)
	if err != nil {
		return false
	}
	return b.svc.now().Sub(last) < b.svc.cfg.OverdueInterval
}

func (b *Board) Add(ctx context.Context, req *domain.CreateNoteRequest) (*domain.Note, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.svc.now()
	stamp := priority.FormatTime(now)

	n := &domain.Note{
		ID:           uuid.New().String(),
		Title:        DefaultTitle,
		Description:  DefaultDescription,
		Tags:         DefaultTags,
		Timestamp:    stamp,
		DueDate:      DefaultDueDate(now, b.svc.cfg.Location),
		UserID:       b.user.Subject,
		UserEmail:    b.user.Email,
		CreatedBy:    b.user.Subject,
		LastModified: stamp,
	}
	if req != nil {
		dueDate := req.DueDate
		if dueDate != nil && *dueDate == "" {
			dueDate = nil
		}
		if err := b.apply(n, req.Title, req.Description, req.Tags, req.Comments, req.System, dueDate); err != nil {
			return nil, err
		}
	}

	b.notes = append(b.notes, n)
	priority.PlaceFront(b.notes, n)
	b.markDirty(n.ID, domain.ActionAdd)
	b.reassign()

	if err := b.commit(ctx, n.ID); err != nil {
		return nil, err
	}
	return n.Clone(), nil
}

func (b *Board) Edit(ctx context.Context, id string, req *domain.UpdateNoteRequest) (*domain.Note, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.find(id)
	if n == nil {
		return nil, domain.ErrNotFound
	}

	if err := b.apply(n, req.Title, req.Description, req.Tags, req.Comments, req.System, req.DueDate); err != nil {
		return nil, err
	}
	n.LastModified = priority.FormatTime(b.svc.now())
	b.markDirty(n.ID, domain.ActionUpdate)

	if err := b.commit(ctx, n.ID); err != nil {
		return nil, err
	}
	return n.Clone(), nil
}

func (b *Board) apply(n *domain.Note, title, description, tags, comments, system, dueDate *string) error {
	if dueDate != nil && *dueDate != "" {
		if _, err := ParseDueDate(*dueDate, b.svc.cfg.Location); err != nil {
			return err
		}
	}

	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&n.Title, title)
	set(&n.Description, description)
	set(&n.Tags, tags)
	set(&n.Comments, comments)
	set(&n.System, system)

	if dueDate != nil && *dueDate != n.DueDate {
		now := b.svc.now()
		n.DueDate = *dueDate
		n.IsOverdue = !n.Done && IsOverdue(n.DueDate, now, b.svc.cfg.Location)
		n.OverdueCheckedAt = priority.FormatTime(now)
	}
	return nil
}

func (b *Board) Delete(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.find(id) == nil {
		return domain.ErrNotFound
	}

	b.failures = nil
	if _, err := b.svc.store.Delete(ctx, b.user, id); err != nil {
		b.svc.logger.Error(ctx, "failed to delete note", "note_id", id, "error", err)
		return err
	}

	kept := b.notes[:0]
	for _, n := range b.notes {
		if n.ID != id {
			kept = append(kept, n)
		}
	}
	b.notes = kept
	delete(b.pending, id)

	b.reassign()
	b.failures = b.flushPending(ctx)
	b.svc.notify(b.user.Subject, domain.ActionDelete)
	return nil
}

// Toggle flips a note between active and done. A reopened note goes to the
// front of the active notes.
func (b *Board) Toggle(ctx context.Context, id string) (*domain.Note, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.find(id)
	if n == nil {
		return nil, domain.ErrNotFound
	}

	now := b.svc.now()
	if n.Done {
		priority.MarkActive(b.notes, n, now)
		b.reassign()
	} else {
		priority.MarkDone(n, now)
		priority.Sort(b.notes)
	}
	n.LastModified = priority.FormatTime(now)
	b.markDirty(n.ID, domain.ActionUpdate)

	if err := b.commit(ctx, n.ID); err != nil {
		return nil, err
	}
	return n.Clone(), nil
}

// Move swaps an active note with its neighbour. Boundary moves do nothing.
func (b *Board) Move(ctx context.Context, id string, dir domain.MoveDirection) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	changed, err := priority.Move(b.notes, id, dir)
	if err != nil {
		return err
	}

	b.failures = nil
	if len(changed) == 0 {
		return nil
	}

	now := priority.FormatTime(b.svc.now())
	for _, n := range changed {
		n.LastModified = now
		b.markDirty(n.ID, domain.ActionUpdate)
	}
	b.reassign()

	b.failures = b.flushPending(ctx)
	b.svc.notify(b.user.Subject, "move")
	return nil
}

// Filter sets the tag query used by Snapshot.
func (b *Board) Filter(query string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.query = strings.TrimSpace(query)
}

// Failures returns the pushes that failed during the last operation.
func (b *Board) Failures() []PushFailure {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]PushFailure(nil), b.failures...)
}

// Close purges the key. Later pushes of sealed data fail.
func (b *Board) Close() {
	b.env.Clear()
}

func (b *Board) find(id string) *domain.Note {
	for _, n := range b.notes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// markDirty keeps an unsent add as an add.
func (b *Board) markDirty(id, action string) {
	if b.pending[id] == domain.ActionAdd {
		return
	}
	b.pending[id] = action
}

func (b *Board) reassign() {
	for _, n := range priority.Reassign(b.notes) {
		b.markDirty(n.ID, domain.ActionUpdate)
	}
}

// commit pushes the primary note first. Its failure fails the operation;
// the other pending notes are then pushed and their failures recorded.
func (b *Board) commit(ctx context.Context, primary string) error {
	b.failures = nil
	reason := b.pending[primary]

	if err := b.push(ctx, primary); err != nil {
		b.svc.logger.Error(ctx, "failed to push note", "note_id", primary, "error", err)
		return err
	}

	b.failures = b.flushPending(ctx)
	b.svc.notify(b.user.Subject, reason)
	return nil
}

func (b *Board) push(ctx context.Context, id string) error {
	action, ok := b.pending[id]
	if !ok {
		return nil
	}
	n := b.find(id)
	if n == nil {
		delete(b.pending, id)
		return nil
	}

	if _, err := b.svc.store.Push(ctx, b.user, action, n.Clone(), b.env); err != nil {
		return err
	}
	delete(b.pending, id)
	return nil
}

// flushPending pushes every pending note concurrently. Each push stands on
// its own; failed notes stay pending.
func (b *Board) flushPending(ctx context.Context) []PushFailure {
	type job struct {
		action string
		note   *domain.Note
	}

	ids := make([]string, 0, len(b.pending))
	for id := range b.pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	jobs := make([]job, 0, len(ids))
	for _, id := range ids {
		n := b.find(id)
		if n == nil {
			delete(b.pending, id)
			continue
		}
		jobs = append(jobs, job{action: b.pending[id], note: n.Clone()})
	}
	if len(jobs) == 0 {
		return nil
	}

	errs := make([]error, len(jobs))

	var g errgroup.Group
	g.SetLimit(b.svc.cfg.PushConcurrency)
	for i, j := range jobs {
		g.Go(func() error {
			_, errs[i] = b.svc.store.Push(ctx, b.user, j.action, j.note, b.env)
			return nil
		})
	}
	_ = g.Wait()

	var failures []PushFailure
	for i, j := range jobs {
		if errs[i] != nil {
			b.svc.logger.Error(ctx, "failed to push note", "note_id", j.note.ID, "action", j.action, "error", errs[i])
			failures = append(failures, pushFailure(j.note.ID, errs[i]))
			continue
		}
		delete(b.pending, j.note.ID)
	}
	return failures
}
