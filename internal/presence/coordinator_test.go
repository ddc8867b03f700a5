package presence

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"membership/internal/apperr"
	"membership/internal/attendance"
	"membership/internal/member"
	"membership/internal/store"
)

// world is an in-memory stand-in for both stores. All mutation goes through the
// same mutex so the fakes are safe under the concurrency tests.
type world struct {
	mu      sync.Mutex
	members map[string]member.Member      // by human-readable member ID
	open    map[string]attendance.Record  // open record by member ref
	closed  []attendance.Record
	nextID  int
}

func newWorld(memberIDs ...string) *world {
	w := &world{
		members: map[string]member.Member{},
		open:    map[string]attendance.Record{},
	}
	for i, id := range memberIDs {
		w.members[id] = member.Member{
			ID:       fmt.Sprintf("ref-%d", i+1),
			MemberID: id,
			FullName: "Member " + id,
			Status:   member.StatusActive,
		}
	}
	return w
}

func (w *world) GetByMemberID(_ context.Context, memberID string) (member.Member, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	m, ok := w.members[memberID]
	if !ok {
		return member.Member{}, apperr.NotFound("member not found")
	}
	return m, nil
}

func (w *world) ListAll(context.Context) ([]member.Member, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []member.Member
	for _, m := range w.members {
		out = append(out, m)
	}
	return out, nil
}

func (w *world) SetPresence(_ context.Context, _ store.Querier, id string, present bool, lastIn, lastOut *time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for key, m := range w.members {
		if m.ID == id {
			m.IsPresent = present
			if lastIn != nil {
				m.LastCheckIn = lastIn
			}
			if lastOut != nil {
				m.LastCheckOut = lastOut
			}
			w.members[key] = m
			return nil
		}
	}
	return apperr.NotFound("member not found")
}

func (w *world) OpenTx(_ context.Context, _ store.Querier, rec attendance.Record) (attendance.Record, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextID++
	rec.ID = fmt.Sprintf("rec-%d", w.nextID)
	rec.Status = attendance.StatusCheckedIn
	w.open[rec.MemberRef] = rec
	return rec, nil
}

func (w *world) CloseTx(_ context.Context, _ store.Querier, recordID string, at time.Time, loc *attendance.GeoPoint) (attendance.Record, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for ref, rec := range w.open {
		if rec.ID == recordID {
			closed, err := rec.CloseAt(at, loc)
			if err != nil {
				return attendance.Record{}, err
			}
			delete(w.open, ref)
			w.closed = append(w.closed, closed)
			return closed, nil
		}
	}
	return attendance.Record{}, apperr.NotFound("no active attendance record found")
}

func (w *world) FindOpenFor(_ context.Context, memberRef string) (attendance.Record, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	rec, ok := w.open[memberRef]
	if !ok {
		return attendance.Record{}, apperr.NotFound("no active attendance record found")
	}
	return rec, nil
}

func (w *world) LastTimesFor(_ context.Context, memberRef string) (*time.Time, *time.Time, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var lastIn, lastOut *time.Time
	if rec, ok := w.open[memberRef]; ok {
		t := rec.CheckIn
		lastIn = &t
	}
	for _, rec := range w.closed {
		if rec.MemberRef != memberRef {
			continue
		}
		if lastIn == nil || rec.CheckIn.After(*lastIn) {
			t := rec.CheckIn
			lastIn = &t
		}
		if rec.CheckOut != nil && (lastOut == nil || rec.CheckOut.After(*lastOut)) {
			lastOut = rec.CheckOut
		}
	}
	return lastIn, lastOut, nil
}

func (w *world) WithinTx(_ context.Context, fn func(q store.Querier) error) error {
	return fn(nil)
}

func newTestCoordinator(w *world, at time.Time) *Coordinator {
	c := NewCoordinator(w, w, w, zap.NewNop())
	c.now = func() time.Time { return at }
	return c
}

func TestCheckInCheckOutCycle(t *testing.T) {
	w := newWorld("25010001")
	base := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	c := newTestCoordinator(w, base)
	ctx := context.Background()

	rec, err := c.CheckIn(ctx, "25010001", nil)
	if err != nil {
		t.Fatalf("check-in: %v", err)
	}
	if rec.Status != attendance.StatusCheckedIn {
		t.Fatalf("status = %q", rec.Status)
	}
	if !w.members["25010001"].IsPresent {
		t.Fatal("presence flag not set")
	}
	if err := c.VerifyInvariant(ctx, "25010001"); err != nil {
		t.Fatalf("invariant after check-in: %v", err)
	}

	c.now = func() time.Time { return base.Add(90 * time.Minute) }
	closed, err := c.CheckOut(ctx, "25010001", nil)
	if err != nil {
		t.Fatalf("check-out: %v", err)
	}
	if closed.Duration != 90 {
		t.Fatalf("duration = %d, want 90", closed.Duration)
	}
	if w.members["25010001"].IsPresent {
		t.Fatal("presence flag not cleared")
	}
	if err := c.VerifyInvariant(ctx, "25010001"); err != nil {
		t.Fatalf("invariant after check-out: %v", err)
	}
}

func TestDoubleCheckInConflicts(t *testing.T) {
	w := newWorld("25010001")
	c := newTestCoordinator(w, time.Now())
	ctx := context.Background()

	if _, err := c.CheckIn(ctx, "25010001", nil); err != nil {
		t.Fatalf("check-in: %v", err)
	}
	if _, err := c.CheckIn(ctx, "25010001", nil); !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("second check-in: got %v, want conflict", err)
	}
	if len(w.open) != 1 {
		t.Fatalf("open records = %d, want 1", len(w.open))
	}
}

func TestCheckOutWhileAwayConflicts(t *testing.T) {
	w := newWorld("25010001")
	c := newTestCoordinator(w, time.Now())

	if _, err := c.CheckOut(context.Background(), "25010001", nil); !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("got %v, want conflict", err)
	}
}

func TestCheckOutReportsConsistencyBreach(t *testing.T) {
	w := newWorld("25010001")
	// Flag says present but the ledger has no open record.
	m := w.members["25010001"]
	m.IsPresent = true
	w.members["25010001"] = m

	c := newTestCoordinator(w, time.Now())
	_, err := c.CheckOut(context.Background(), "25010001", nil)
	if !apperr.IsKind(err, apperr.KindConsistency) {
		t.Fatalf("got %v, want consistency error", err)
	}
	// The breach is reported, not silently repaired.
	if !w.members["25010001"].IsPresent {
		t.Fatal("check-out must not repair the flag itself")
	}
}

func TestConcurrentCheckInsSingleWinner(t *testing.T) {
	w := newWorld("25010001")
	c := newTestCoordinator(w, time.Now())
	ctx := context.Background()

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.CheckIn(ctx, "25010001", nil)
		}(i)
	}
	wg.Wait()

	var okCount, conflictCount int
	for _, err := range errs {
		switch {
		case err == nil:
			okCount++
		case apperr.IsKind(err, apperr.KindConflict):
			conflictCount++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if okCount != 1 || conflictCount != n-1 {
		t.Fatalf("ok=%d conflict=%d, want 1/%d", okCount, conflictCount, n-1)
	}
	if len(w.open) != 1 {
		t.Fatalf("open records = %d, want 1", len(w.open))
	}
}

func TestReconcileRepairsFlags(t *testing.T) {
	w := newWorld("25010001", "25010002", "25010003")
	base := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	c := newTestCoordinator(w, base)
	ctx := context.Background()

	// 0001 checked in legitimately; 0002 has a stale present flag; 0003 is fine.
	if _, err := c.CheckIn(ctx, "25010001", nil); err != nil {
		t.Fatalf("check-in: %v", err)
	}
	m := w.members["25010002"]
	m.IsPresent = true
	w.members["25010002"] = m

	res, err := c.Reconcile(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if res.Checked != 3 {
		t.Fatalf("checked = %d, want 3", res.Checked)
	}
	if res.Repaired != 1 {
		t.Fatalf("repaired = %d, want 1", res.Repaired)
	}
	if w.members["25010002"].IsPresent {
		t.Fatal("stale flag not cleared")
	}
	if !w.members["25010001"].IsPresent {
		t.Fatal("legitimate flag must survive reconciliation")
	}
	for _, id := range []string{"25010001", "25010002", "25010003"} {
		if err := c.VerifyInvariant(ctx, id); err != nil {
			t.Fatalf("invariant for %s: %v", id, err)
		}
	}
}
