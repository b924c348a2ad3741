package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"testing"
	"time"

	"sheetnotes/internal/domain"
	"sheetnotes/internal/envelope"
	"sheetnotes/internal/notestore"
)

var (
	testUser = &domain.User{Subject: "sub-1", Email: "ann@example.com", Name: "Ann"}
	testNow  = time.Date(2024, 3, 10, 4, 0, 0, 0, time.UTC)
)

type pushCall struct {
	action   string
	id       string
	priority domain.Priority
}

type fakeStore struct {
	mu        sync.Mutex
	notes     map[string]*domain.Note
	pushes    []pushCall
	deletes   []string
	lists     int
	fail      map[string]error
	listErr   error
	deleteErr error
}

func newFakeStore(notes ...*domain.Note) *fakeStore {
	s := &fakeStore{notes: make(map[string]*domain.Note), fail: make(map[string]error)}
	for _, n := range notes {
		s.notes[n.ID] = n.Clone()
	}
	return s
}

func (s *fakeStore) List(ctx context.Context, user *domain.User, cipher notestore.Cipher) ([]*domain.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lists++
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []*domain.Note
	for _, n := range s.notes {
		out = append(out, n.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) Push(ctx context.Context, user *domain.User, action string, n *domain.Note, cipher notestore.Cipher) (*domain.StorageResult, error) {
	if _, err := cipher.Encrypt(n.Title); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pushes = append(s.pushes, pushCall{action: action, id: n.ID, priority: n.Priority})
	if err := s.fail[n.ID]; err != nil {
		return nil, err
	}
	s.notes[n.ID] = n.Clone()
	return &domain.StorageResult{Success: true}, nil
}

func (s *fakeStore) Delete(ctx context.Context, user *domain.User, id string) (*domain.StorageResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deleteErr != nil {
		return nil, s.deleteErr
	}
	s.deletes = append(s.deletes, id)
	delete(s.notes, id)
	return &domain.StorageResult{Success: true}, nil
}

func (s *fakeStore) pushedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for _, p := range s.pushes {
		ids = append(ids, p.action+":"+p.id)
	}
	sort.Strings(ids)
	return ids
}

func (s *fakeStore) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushes = nil
	s.deletes = nil
}

type countingNotifier struct {
	mu    sync.Mutex
	calls map[string]int
}

func (c *countingNotifier) NotifyNotesChanged(userID, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = make(map[string]int)
	}
	c.calls[userID]++
}

func newTestBoardService(store NoteStore, notifier Notifier) *BoardService {
	svc := NewBoardService(store, BoardConfig{
		Envelope: envelope.Params{Secret: "app-secret", Salt: "app-salt", Iterations: 1000},
		Location: time.UTC,
	}, notifier, nil)
	svc.now = func() time.Time { return testNow }
	return svc
}

func activeNote(id string, p int64) *domain.Note {
	return &domain.Note{
		ID:        id,
		Title:     "title " + id,
		Priority:  domain.P(p),
		Timestamp: "2024-01-01T00:00:00.000Z",
		UserID:    testUser.Subject,
	}
}

func fiveNotes() []*domain.Note {
	return []*domain.Note{
		activeNote("A", 0),
		activeNote("B", 1000),
		activeNote("C", 2000),
		activeNote("D", 3000),
		activeNote("E", 4000),
	}
}

func openBoard(t *testing.T, svc *BoardService) *Board {
	t.Helper()
	b, err := svc.Open(context.Background(), testUser)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(b.Close)
	return b
}

func activeOrder(snap *Snapshot) ([]string, []int64) {
	var ids []string
	var prios []int64
	for _, n := range snap.Active {
		ids = append(ids, n.ID)
		prios = append(prios, n.Priority.Value)
	}
	return ids, prios
}

func TestBoardService_Open_RequiresUser(t *testing.T) {
	store := newFakeStore()
	svc := newTestBoardService(store, nil)

	for _, user := range []*domain.User{nil, {}} {
		_, err := svc.Open(context.Background(), user)
		if !errors.Is(err, domain.ErrAuthentication) {
			t.Errorf("Open(%v) error = %v, want ErrAuthentication", user, err)
		}
	}
	if store.lists != 0 {
		t.Errorf("store was called %d times without a session", store.lists)
	}
}

func TestBoardService_Open_StorageFailure(t *testing.T) {
	store := newFakeStore()
	store.listErr = &domain.StorageError{Action: "list", StatusCode: 500, Message: "down"}

	_, err := newTestBoardService(store, nil).Open(context.Background(), testUser)
	if !errors.Is(err, domain.ErrStorage) {
		t.Errorf("Open() error = %v, want ErrStorage", err)
	}
}

func TestBoard_Add(t *testing.T) {
	store := newFakeStore(activeNote("A", 0), activeNote("B", 1000))
	notifier := &countingNotifier{}
	b := openBoard(t, newTestBoardService(store, notifier))

	n, err := b.Add(context.Background(), nil)
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	if n.Title != DefaultTitle || n.Description != DefaultDescription || n.Tags != DefaultTags {
		t.Errorf("Add() defaults = %q/%q/%q", n.Title, n.Description, n.Tags)
	}
	if n.UserID != testUser.Subject || n.CreatedBy != testUser.Subject || n.UserEmail != testUser.Email {
		t.Errorf("Add() ownership = %q/%q/%q", n.UserID, n.CreatedBy, n.UserEmail)
	}
	if n.DueDate != "2024-03-11T00:00:00.000Z" {
		t.Errorf("Add() dueDate = %q", n.DueDate)
	}
	if n.Done || n.IsShared {
		t.Error("Add() new note must be active and private")
	}

	ids, prios := activeOrder(b.Snapshot())
	if !reflect.DeepEqual(ids, []string{n.ID, "A", "B"}) {
		t.Errorf("active order = %v", ids)
	}
	if !reflect.DeepEqual(prios, []int64{0, 1000, 2000}) {
		t.Errorf("active priorities = %v", prios)
	}

	want := []string{"add:" + n.ID, "update:A", "update:B"}
	sort.Strings(want)
	if got := store.pushedIDs(); !reflect.DeepEqual(got, want) {
		t.Errorf("pushes = %v, want %v", got, want)
	}
	if store.pushes[0].action != domain.ActionAdd {
		t.Errorf("first push = %v, want the add", store.pushes[0])
	}
	if notifier.calls[testUser.Subject] != 1 {
		t.Errorf("notifications = %d, want 1", notifier.calls[testUser.Subject])
	}
}

func TestBoard_Add_WithFields(t *testing.T) {
	store := newFakeStore()
	b := openBoard(t, newTestBoardService(store, nil))

	title, system, empty := "Buy milk", "home", ""
	n, err := b.Add(context.Background(), &domain.CreateNoteRequest{Title: &title, System: &system, DueDate: &empty})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	if n.Title != title || n.System != system {
		t.Errorf("Add() = %+v", n)
	}
	if n.DueDate == "" {
		t.Error("Add() with empty dueDate should keep the default")
	}
	if n.Priority != domain.P(0) {
		t.Errorf("Add() priority = %v, want 0", n.Priority)
	}
}

func TestBoard_Add_PrimaryFailure(t *testing.T) {
	store := newFakeStore()
	b := openBoard(t, newTestBoardService(store, nil))
	b.Close()

	_, err := b.Add(context.Background(), nil)
	if !errors.Is(err, envelope.ErrEncryption) {
		t.Errorf("Add() after Close error = %v, want ErrEncryption", err)
	}
}

func TestBoard_Edit(t *testing.T) {
	store := newFakeStore(activeNote("A", 0))
	b := openBoard(t, newTestBoardService(store, nil))

	title, tags := "Renamed", "urgent, work"
	n, err := b.Edit(context.Background(), "A", &domain.UpdateNoteRequest{Title: &title, Tags: &tags})
	if err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if n.Title != title || n.Tags != tags {
		t.Errorf("Edit() = %+v", n)
	}
	if n.LastModified == "" {
		t.Error("Edit() did not set lastModified")
	}
	if got := store.pushedIDs(); !reflect.DeepEqual(got, []string{"update:A"}) {
		t.Errorf("pushes = %v", got)
	}

	yesterday := "2024-03-09"
	n, err = b.Edit(context.Background(), "A", &domain.UpdateNoteRequest{DueDate: &yesterday})
	if err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if !n.IsOverdue || n.OverdueCheckedAt == "" {
		t.Errorf("Edit() past due date: isOverdue=%v checkedAt=%q", n.IsOverdue, n.OverdueCheckedAt)
	}

	bad := "someday"
	if _, err := b.Edit(context.Background(), "A", &domain.UpdateNoteRequest{DueDate: &bad}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("Edit() bad due date error = %v, want ErrInvalidInput", err)
	}
	if _, err := b.Edit(context.Background(), "missing", &domain.UpdateNoteRequest{}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Edit() unknown note error = %v, want ErrNotFound", err)
	}
}

func TestBoard_Delete_ClosesGap(t *testing.T) {
	store := newFakeStore(fiveNotes()...)
	b := openBoard(t, newTestBoardService(store, nil))

	if err := b.Delete(context.Background(), "C"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	ids, prios := activeOrder(b.Snapshot())
	if !reflect.DeepEqual(ids, []string{"A", "B", "D", "E"}) {
		t.Errorf("active order = %v", ids)
	}
	if !reflect.DeepEqual(prios, []int64{0, 1000, 2000, 3000}) {
		t.Errorf("active priorities = %v", prios)
	}
	if !reflect.DeepEqual(store.deletes, []string{"C"}) {
		t.Errorf("deletes = %v", store.deletes)
	}
	if got := store.pushedIDs(); !reflect.DeepEqual(got, []string{"update:D", "update:E"}) {
		t.Errorf("pushes = %v, want only the shifted notes", got)
	}
	if store.notes["E"].Priority != domain.P(3000) {
		t.Errorf("stored E priority = %v", store.notes["E"].Priority)
	}
}

func TestBoard_Delete_Failure(t *testing.T) {
	store := newFakeStore(fiveNotes()...)
	store.deleteErr = &domain.StorageError{Action: "delete", Message: "Note not found", Err: domain.ErrNotFound}
	b := openBoard(t, newTestBoardService(store, nil))

	if err := b.Delete(context.Background(), "C"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Delete() error = %v, want ErrNotFound", err)
	}
	if snap := b.Snapshot(); snap.Total != 5 {
		t.Errorf("failed delete removed the note locally, total = %d", snap.Total)
	}
	if err := b.Delete(context.Background(), "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Delete() unknown error = %v", err)
	}
}

func TestBoard_Toggle(t *testing.T) {
	store := newFakeStore(activeNote("A", 0), activeNote("B", 1000), activeNote("C", 2000))
	b := openBoard(t, newTestBoardService(store, nil))

	n, err := b.Toggle(context.Background(), "B")
	if err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	if !n.Done || n.DateDone == "" || n.DateUndone != "" {
		t.Errorf("Toggle() to done = %+v", n)
	}
	if got := store.pushedIDs(); !reflect.DeepEqual(got, []string{"update:B"}) {
		t.Errorf("pushes = %v, completing must not reorder", got)
	}

	snap := b.Snapshot()
	if ids, _ := activeOrder(snap); !reflect.DeepEqual(ids, []string{"A", "C"}) {
		t.Errorf("active order = %v", ids)
	}
	if len(snap.Done) != 1 || snap.Done[0].ID != "B" {
		t.Errorf("done = %+v", snap.Done)
	}

	store.reset()
	n, err = b.Toggle(context.Background(), "B")
	if err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	if n.Done || n.DateDone != "" || n.DateUndone == "" {
		t.Errorf("Toggle() to active = %+v", n)
	}
	if n.Priority != domain.P(0) {
		t.Errorf("reopened priority = %v, want 0", n.Priority)
	}

	ids, prios := activeOrder(b.Snapshot())
	if !reflect.DeepEqual(ids, []string{"B", "A", "C"}) || !reflect.DeepEqual(prios, []int64{0, 1000, 2000}) {
		t.Errorf("after reopen = %v %v", ids, prios)
	}
	if got := store.pushedIDs(); !reflect.DeepEqual(got, []string{"update:A", "update:B"}) {
		t.Errorf("pushes = %v", got)
	}
}

func TestBoard_Move(t *testing.T) {
	store := newFakeStore(activeNote("A", 0), activeNote("B", 1000), activeNote("C", 2000))
	b := openBoard(t, newTestBoardService(store, nil))

	if err := b.Move(context.Background(), "C", domain.MoveUp); err != nil {
		t.Fatalf("Move() error = %v", err)
	}

	ids, prios := activeOrder(b.Snapshot())
	if !reflect.DeepEqual(ids, []string{"A", "C", "B"}) || !reflect.DeepEqual(prios, []int64{0, 1000, 2000}) {
		t.Errorf("after move = %v %v", ids, prios)
	}
	if got := store.pushedIDs(); !reflect.DeepEqual(got, []string{"update:B", "update:C"}) {
		t.Errorf("pushes = %v", got)
	}

	store.reset()
	if err := b.Move(context.Background(), "A", domain.MoveUp); err != nil {
		t.Fatalf("Move() boundary error = %v", err)
	}
	if len(store.pushes) != 0 {
		t.Errorf("boundary move pushed %v", store.pushes)
	}
}

func TestBoard_Move_DoneNote(t *testing.T) {
	done := activeNote("X", 5000)
	done.Done = true
	done.DateDone = "2024-01-02T00:00:00.000Z"
	store := newFakeStore(activeNote("A", 0), done)
	b := openBoard(t, newTestBoardService(store, nil))

	if err := b.Move(context.Background(), "X", domain.MoveUp); !errors.Is(err, domain.ErrDoneNoteMove) {
		t.Errorf("Move() error = %v, want ErrDoneNoteMove", err)
	}
	if len(store.pushes) != 0 {
		t.Errorf("rejected move pushed %v", store.pushes)
	}
}

func TestBoard_PartialFailureIsReported(t *testing.T) {
	store := newFakeStore(fiveNotes()...)
	store.fail["D"] = &domain.StorageError{Action: "update", StatusCode: 500, Message: "quota exceeded"}
	b := openBoard(t, newTestBoardService(store, nil))

	if err := b.Delete(context.Background(), "B"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	snap := b.Snapshot()
	if len(snap.Failures) != 1 || snap.Failures[0].ID != "D" || snap.Failures[0].Message != "quota exceeded" {
		t.Errorf("failures = %+v", snap.Failures)
	}
	if !reflect.DeepEqual(snap.Pending, []string{"D"}) {
		t.Errorf("pending = %v", snap.Pending)
	}
	if store.notes["C"].Priority != domain.P(1000) || store.notes["E"].Priority != domain.P(3000) {
		t.Error("successful pushes must not be held back by a failed one")
	}
}

func TestBoard_FilterAndSystems(t *testing.T) {
	a := activeNote("A", 0)
	a.Tags, a.System = "Urgent, work", "billing"
	bn := activeNote("B", 1000)
	bn.Tags, bn.System = "urgently", "auth"
	c := activeNote("C", 2000)
	c.Tags, c.System = "home", "billing"
	d := activeNote("D", 3000)
	d.Tags, d.Done, d.DateDone = "urgent", true, "2024-01-01T00:00:00.000Z"

	b := openBoard(t, newTestBoardService(newFakeStore(a, bn, c, d), nil))
	b.Filter("urgent")

	snap := b.Snapshot()
	if ids, _ := activeOrder(snap); !reflect.DeepEqual(ids, []string{"A"}) {
		t.Errorf("filtered active = %v", ids)
	}
	if len(snap.Done) != 1 || snap.Done[0].ID != "D" {
		t.Errorf("filtered done = %+v", snap.Done)
	}
	if snap.Total != 4 || snap.ActiveCount != 3 || snap.DoneCount != 1 {
		t.Errorf("counts = %d/%d/%d", snap.Total, snap.ActiveCount, snap.DoneCount)
	}
	if !reflect.DeepEqual(snap.Systems, []string{"auth", "billing"}) {
		t.Errorf("systems = %v", snap.Systems)
	}

	b.Filter("")
	if ids, _ := activeOrder(b.Snapshot()); len(ids) != 3 {
		t.Errorf("unfiltered active = %v", ids)
	}
}

func TestBoard_Snapshot_IsACopy(t *testing.T) {
	b := openBoard(t, newTestBoardService(newFakeStore(activeNote("A", 0)), nil))

	snap := b.Snapshot()
	snap.Active[0].Title = "mutated"

	if b.Snapshot().Active[0].Title == "mutated" {
		t.Error("snapshot shares state with the board")
	}
}

func TestBoard_Load_RefreshesOverdue(t *testing.T) {
	stale := activeNote("stale", 0)
	stale.DueDate = "2024-03-09"

	fresh := activeNote("fresh", 1000)
	fresh.DueDate = "2024-03-09"
	fresh.OverdueCheckedAt = testNow.Add(-10 * time.Minute).Format(time.RFC3339)

	future := activeNote("future", 2000)
	future.DueDate = "2024-03-20"
	future.OverdueCheckedAt = testNow.Add(-2 * time.Hour).Format(time.RFC3339)

	store := newFakeStore(stale, fresh, future)
	b := openBoard(t, newTestBoardService(store, nil))

	if got := store.pushedIDs(); !reflect.DeepEqual(got, []string{"update:stale"}) {
		t.Errorf("pushes = %v, want only the flipped note", got)
	}
	if !store.notes["stale"].IsOverdue {
		t.Error("stale note was not marked overdue")
	}
	if store.notes["fresh"].IsOverdue {
		t.Error("recently checked note was re-evaluated")
	}

	for _, n := range b.Snapshot().Active {
		if n.ID == "future" && n.OverdueCheckedAt != "2024-03-10T04:00:00.000Z" {
			t.Errorf("future checkedAt = %q", n.OverdueCheckedAt)
		}
	}
}

func TestBoard_ConcurrentPushesAreBounded(t *testing.T) {
	var notes []*domain.Note
	for i := 0; i < 40; i++ {
		notes = append(notes, activeNote(fmt.Sprintf("n%02d", i), int64(i)*1000))
	}
	store := newFakeStore(notes...)
	svc := newTestBoardService(store, nil)
	svc.cfg.PushConcurrency = 3
	b := openBoard(t, svc)

	if err := b.Delete(context.Background(), "n00"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(store.pushes) != 39 {
		t.Errorf("pushes = %d, want 39", len(store.pushes))
	}
	if len(b.Failures()) != 0 {
		t.Errorf("failures = %v", b.Failures())
	}
}

func TestBoardService_With_ClosesBoard(t *testing.T) {
	svc := newTestBoardService(newFakeStore(activeNote("A", 0)), nil)

	var opened *Board
	err := svc.With(context.Background(), testUser, func(b *Board) error {
		opened = b
		return nil
	})
	if err != nil {
		t.Fatalf("With() error = %v", err)
	}
	if !opened.env.Cleared() {
		t.Error("With() left the key in memory")
	}
}

func TestBoardService_WithCipher(t *testing.T) {
	store := newFakeStore()
	svc := newTestBoardService(store, nil)

	var got notestore.Cipher
	err := svc.WithCipher(testUser, func(c notestore.Cipher) error {
		got = c
		sealed, err := c.Encrypt("secret")
		if err != nil {
			return err
		}
		if !envelope.IsEncrypted(sealed) {
			t.Error("Encrypt() returned plain text")
		}
		plain, err := c.Decrypt(sealed)
		if plain != "secret" {
			t.Errorf("Decrypt() = %q, want secret", plain)
		}
		return err
	})
	if err != nil {
		t.Fatalf("WithCipher() error = %v", err)
	}
	if env, ok := got.(*envelope.Envelope); !ok || !env.Cleared() {
		t.Error("WithCipher() left the key in memory")
	}
	if store.lists != 0 {
		t.Errorf("WithCipher() loaded the board %d times", store.lists)
	}

	if err := svc.WithCipher(nil, func(notestore.Cipher) error { return nil }); !errors.Is(err, domain.ErrAuthentication) {
		t.Errorf("WithCipher(nil) error = %v, want ErrAuthentication", err)
	}
}
