package report

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"membership/internal/attendance"
	"membership/internal/member"
)

type fakeMembers struct {
	stats   member.Stats
	all     []member.Member
	present []member.Member
}

func (f *fakeMembers) Stats(context.Context) (member.Stats, error)     { return f.stats, nil }
func (f *fakeMembers) ListAll(context.Context) ([]member.Member, error) { return f.all, nil }
func (f *fakeMembers) Present(context.Context) ([]member.Member, error) { return f.present, nil }

type fakeLedger struct {
	records []attendance.WithMember
}

func (f *fakeLedger) CountSince(_ context.Context, since time.Time) (int, error) {
	n := 0
	for _, r := range f.records {
		if !r.CheckIn.Before(since) {
			n++
		}
	}
	return n, nil
}

func (f *fakeLedger) CountOpen(context.Context) (int, error) {
	n := 0
	for _, r := range f.records {
		if r.Status == attendance.StatusCheckedIn {
			n++
		}
	}
	return n, nil
}

func (f *fakeLedger) AvgCompletedDuration(_ context.Context, since *time.Time) (float64, error) {
	var sum, n int
	for _, r := range f.records {
		if r.Status != attendance.StatusCheckedOut {
			continue
		}
		if since != nil && r.CheckIn.Before(*since) {
			continue
		}
		sum += r.Duration
		n++
	}
	if n == 0 {
		return 0, nil
	}
	return float64(sum) / float64(n), nil
}

func (f *fakeLedger) ListBetween(_ context.Context, start, end time.Time) ([]attendance.WithMember, error) {
	var out []attendance.WithMember
	for _, r := range f.records {
		if !r.CheckIn.Before(start) && !r.CheckIn.After(end) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeLedger) All(context.Context) ([]attendance.WithMember, error) {
	return f.records, nil
}

func (f *fakeLedger) NewestCheckIn(context.Context) (*time.Time, error) {
	var newest *time.Time
	for _, r := range f.records {
		if newest == nil || r.CheckIn.After(*newest) {
			t := r.CheckIn
			newest = &t
		}
	}
	return newest, nil
}

func rec(memberRef, memberID, name string, in time.Time, durationMin int) attendance.WithMember {
	r := attendance.WithMember{
		Record: attendance.Record{
			MemberRef: memberRef,
			CheckIn:   in,
			Status:    attendance.StatusCheckedIn,
		},
		MemberID: memberID,
		FullName: name,
	}
	if durationMin >= 0 {
		out := in.Add(time.Duration(durationMin) * time.Minute)
		r.CheckOut = &out
		r.Duration = durationMin
		r.Status = attendance.StatusCheckedOut
	}
	return r
}

func newTestEngine(members *fakeMembers, ledger *fakeLedger, at time.Time) *Engine {
	e := NewEngine(members, ledger, nil, zap.NewNop())
	e.now = func() time.Time { return at }
	return e
}

func TestCounts(t *testing.T) {
	// Wednesday; the week bucket starts Sunday April 13, the month April 1.
	now := time.Date(2025, 4, 16, 12, 0, 0, 0, time.UTC)
	ledger := &fakeLedger{records: []attendance.WithMember{
		rec("r1", "25010001", "A", time.Date(2025, 4, 16, 9, 0, 0, 0, time.UTC), 60),
		rec("r2", "25010002", "B", time.Date(2025, 4, 14, 10, 0, 0, 0, time.UTC), 30),
		rec("r1", "25010001", "A", time.Date(2025, 4, 5, 10, 0, 0, 0, time.UTC), 90),
		rec("r2", "25010002", "B", time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC), 120),
	}}
	e := newTestEngine(&fakeMembers{}, ledger, now)

	counts, err := e.Counts(context.Background())
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Today != 1 || counts.Week != 2 || counts.Month != 3 {
		t.Fatalf("counts = %+v", counts)
	}
	// Average spans all completed records, not just the current month.
	if counts.AvgDuration != 75 {
		t.Fatalf("avgDuration = %d, want 75", counts.AvgDuration)
	}
}

func TestDailyTrendsSkipsEmptyDays(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2025, 4, d, 10, 0, 0, 0, time.UTC) }
	ledger := &fakeLedger{records: []attendance.WithMember{
		rec("r1", "25010001", "A", day(1), 60),
		rec("r1", "25010001", "A", day(1).Add(4*time.Hour), 30),
		rec("r2", "25010002", "B", day(3), 90),
	}}
	e := newTestEngine(&fakeMembers{}, ledger, day(5))

	trends, err := e.DailyTrends(context.Background(), day(1), day(4))
	if err != nil {
		t.Fatalf("trends: %v", err)
	}
	// April 2 and 4 had no records and must not appear as zero rows.
	if len(trends) != 2 {
		t.Fatalf("buckets = %d, want 2", len(trends))
	}
	if trends[0].Date != "2025-04-01" || trends[1].Date != "2025-04-03" {
		t.Fatalf("dates = %s, %s", trends[0].Date, trends[1].Date)
	}
	if trends[0].Count != 2 || trends[0].AvgDuration != 45 {
		t.Fatalf("day one: count=%d avg=%d", trends[0].Count, trends[0].AvgDuration)
	}
}

func TestTopActiveAnchorsAtNewestCheckIn(t *testing.T) {
	// Ledger data ends 2025-03-31; wall clock is months later. The window must
	// anchor at the data, not at now, or every ranking would come back empty.
	day := func(d int) time.Time { return time.Date(2025, 3, d, 9, 0, 0, 0, time.UTC) }
	ledger := &fakeLedger{records: []attendance.WithMember{
		rec("r1", "25010001", "A", day(10), 60),
		rec("r1", "25010001", "A", day(20), 60),
		rec("r2", "25010002", "B", day(15), 120),
		rec("r2", "25010002", "B", day(31), 30),
		rec("r3", "25010003", "C", day(2).AddDate(0, -2, 0), 60), // far outside window
	}}
	e := newTestEngine(&fakeMembers{}, ledger, time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC))

	top, err := e.TopActive(context.Background(), "month", 10)
	if err != nil {
		t.Fatalf("top active: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("rows = %d, want 2", len(top))
	}
	// Equal counts break ties ascending by member ID.
	if top[0].MemberID != "25010001" || top[1].MemberID != "25010002" {
		t.Fatalf("order = %s, %s", top[0].MemberID, top[1].MemberID)
	}
	if top[0].CheckInCount != 2 || top[0].TotalDuration != 120 {
		t.Fatalf("row = %+v", top[0])
	}
}

func TestTopActiveEmptyLedger(t *testing.T) {
	e := newTestEngine(&fakeMembers{}, &fakeLedger{}, time.Now())
	top, err := e.TopActive(context.Background(), "week", 5)
	if err != nil {
		t.Fatalf("top active: %v", err)
	}
	if len(top) != 0 {
		t.Fatalf("rows = %d, want 0", len(top))
	}
}

func TestInactiveReport(t *testing.T) {
	anchor := time.Date(2025, 4, 30, 12, 0, 0, 0, time.UTC)
	members := &fakeMembers{all: []member.Member{
		{ID: "r1", MemberID: "25010001", FullName: "A", Status: member.StatusActive},
		{ID: "r2", MemberID: "25010002", FullName: "B", Status: member.StatusActive},
		{ID: "r3", MemberID: "25010003", FullName: "C", Status: member.StatusActive},
		{ID: "r4", MemberID: "25010004", FullName: "D", Status: member.StatusSuspended},
	}}
	ledger := &fakeLedger{records: []attendance.WithMember{
		rec("r1", "25010001", "A", anchor, 0),                      // active today
		rec("r2", "25010002", "B", anchor.AddDate(0, 0, -30), 60),  // 30 days stale
		// r3 never checked in; r4 is suspended and excluded regardless.
	}}
	e := newTestEngine(members, ledger, anchor.AddDate(0, 1, 0))

	rows, err := e.Inactive(context.Background(), 21)
	if err != nil {
		t.Fatalf("inactive: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2: %+v", len(rows), rows)
	}
	// Sorted by inactivity descending: r2 at 30 days, then r3 at days+1.
	if rows[0].MemberID != "25010002" || rows[0].InactiveDays != 30 {
		t.Fatalf("first row = %+v", rows[0])
	}
	if rows[1].MemberID != "25010003" || rows[1].InactiveDays != 22 {
		t.Fatalf("never-visited row = %+v", rows[1])
	}
	if rows[1].LastCheckIn != nil {
		t.Fatal("never-visited member must have no lastCheckIn")
	}
}

func TestInactiveCutoffIsStrict(t *testing.T) {
	anchor := time.Date(2025, 4, 30, 12, 0, 0, 0, time.UTC)
	members := &fakeMembers{all: []member.Member{
		{ID: "r1", MemberID: "25010001", Status: member.StatusActive},
	}}
	// Last check-in exactly at the cutoff is not inactive.
	ledger := &fakeLedger{records: []attendance.WithMember{
		rec("r1", "25010001", "A", anchor.AddDate(0, 0, -21), 60),
		rec("r2", "25010002", "B", anchor, 0),
	}}
	e := newTestEngine(members, ledger, anchor)

	rows, err := e.Inactive(context.Background(), 21)
	if err != nil {
		t.Fatalf("inactive: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("rows = %d, want 0: %+v", len(rows), rows)
	}
}

func TestMembersReportIncludesZeroVisitRows(t *testing.T) {
	members := &fakeMembers{all: []member.Member{
		{ID: "r1", MemberID: "25010001", FullName: "A", Email: "a@era.lk", Status: member.StatusActive},
		{ID: "r2", MemberID: "25010002", FullName: "B", Email: "b@era.lk", Status: member.StatusActive},
	}}
	in := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	ledger := &fakeLedger{records: []attendance.WithMember{
		rec("r1", "25010001", "A", in, 60),
		rec("r1", "25010001", "A", in.AddDate(0, 0, 2), 30),
	}}
	e := newTestEngine(members, ledger, in.AddDate(0, 0, 7))

	rows, err := e.MembersReport(context.Background())
	if err != nil {
		t.Fatalf("members report: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0].TotalVisits != 2 || rows[0].LastVisit == nil {
		t.Fatalf("visited row = %+v", rows[0])
	}
	if rows[1].TotalVisits != 0 || rows[1].LastVisit != nil {
		t.Fatalf("zero-visit row = %+v", rows[1])
	}
}

func TestWeeklyUsesSundayFirstNumbering(t *testing.T) {
	// 2025-04-06 is a Sunday.
	sunday := time.Date(2025, 4, 6, 10, 0, 0, 0, time.UTC)
	ledger := &fakeLedger{records: []attendance.WithMember{
		rec("r1", "25010001", "A", sunday, 60),
		rec("r1", "25010001", "A", sunday.AddDate(0, 0, 3), 30), // Wednesday
	}}
	e := newTestEngine(&fakeMembers{}, ledger, sunday.AddDate(0, 0, 4))

	buckets, err := e.Weekly(context.Background())
	if err != nil {
		t.Fatalf("weekly: %v", err)
	}
	if len(buckets) != 2 {
		t.Fatalf("buckets = %d, want 2", len(buckets))
	}
	if buckets[0].Day != 1 {
		t.Fatalf("sunday bucket = %d, want 1", buckets[0].Day)
	}
	if buckets[1].Day != 4 {
		t.Fatalf("wednesday bucket = %d, want 4", buckets[1].Day)
	}
}

func TestHeatmapOrdering(t *testing.T) {
	sunday := time.Date(2025, 4, 6, 0, 0, 0, 0, time.UTC)
	ledger := &fakeLedger{records: []attendance.WithMember{
		rec("r1", "25010001", "A", sunday.Add(18*time.Hour), 60),
		rec("r1", "25010001", "A", sunday.Add(9*time.Hour), 60),
		rec("r2", "25010002", "B", sunday.Add(9*time.Hour+30*time.Minute), 30),
		rec("r2", "25010002", "B", sunday.AddDate(0, 0, 1).Add(9*time.Hour), 30),
	}}
	e := newTestEngine(&fakeMembers{}, ledger, sunday.AddDate(0, 0, 7))

	cells, err := e.Heatmap(context.Background())
	if err != nil {
		t.Fatalf("heatmap: %v", err)
	}
	want := []HeatCell{
		{DayOfWeek: 1, Hour: 9, Count: 2},
		{DayOfWeek: 1, Hour: 18, Count: 1},
		{DayOfWeek: 2, Hour: 9, Count: 1},
	}
	if len(cells) != len(want) {
		t.Fatalf("cells = %d, want %d", len(cells), len(want))
	}
	for i := range want {
		if cells[i] != want[i] {
			t.Fatalf("cell %d = %+v, want %+v", i, cells[i], want[i])
		}
	}
}

func TestLiveStats(t *testing.T) {
	now := time.Date(2025, 4, 10, 15, 0, 0, 0, time.UTC)
	ledger := &fakeLedger{records: []attendance.WithMember{
		rec("r1", "25010001", "A", now.Add(-2*time.Hour), -1), // still open
		rec("r2", "25010002", "B", now.Add(-5*time.Hour), 60),
		rec("r3", "25010003", "C", now.AddDate(0, 0, -3), 90), // not today
	}}
	e := newTestEngine(&fakeMembers{}, ledger, now)

	live, err := e.Live(context.Background())
	if err != nil {
		t.Fatalf("live: %v", err)
	}
	if live.Present != 1 {
		t.Fatalf("present = %d, want 1", live.Present)
	}
	if live.Today != 2 {
		t.Fatalf("today = %d, want 2", live.Today)
	}
	if live.AvgDuration != 60 {
		t.Fatalf("avg = %d, want 60", live.AvgDuration)
	}
}
