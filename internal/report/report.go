// Package report computes read-only statistics over the member registry and the
// attendance ledger: dashboard counts, time-bucketed trends, rankings, heatmaps,
// and cross-store reports. Nothing here mutates state.
package report

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"membership/internal/attendance"
	"membership/internal/member"
)

// MemberSource is the read-side slice of the member registry.
type MemberSource interface {
	Stats(ctx context.Context) (member.Stats, error)
	ListAll(ctx context.Context) ([]member.Member, error)
	Present(ctx context.Context) ([]member.Member, error)
}

// LedgerSource is the read-side slice of the attendance ledger.
type LedgerSource interface {
	CountSince(ctx context.Context, since time.Time) (int, error)
	CountOpen(ctx context.Context) (int, error)
	AvgCompletedDuration(ctx context.Context, since *time.Time) (float64, error)
	ListBetween(ctx context.Context, start, end time.Time) ([]attendance.WithMember, error)
	All(ctx context.Context) ([]attendance.WithMember, error)
	NewestCheckIn(ctx context.Context) (*time.Time, error)
}

// Engine runs the aggregations. Counting queries run in SQL through the sources;
// bucketing, ranking, and joins run here over ledger scans.
type Engine struct {
	members MemberSource
	ledger  LedgerSource
	cache   *Cache
	log     *zap.Logger
	now     func() time.Time
}

// NewEngine builds the engine. cache may be nil to disable read-side caching.
func NewEngine(members MemberSource, ledger LedgerSource, cache *Cache, log *zap.Logger) *Engine {
	return &Engine{
		members: members,
		ledger:  ledger,
		cache:   cache,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// AttendanceCounts summarizes ledger volume for the dashboard.
type AttendanceCounts struct {
	Today       int `json:"today"`
	Week        int `json:"week"`
	Month       int `json:"month"`
	AvgDuration int `json:"avgDuration"`
}

// DashboardStats is the admin landing-page summary.
type DashboardStats struct {
	Members    member.Stats     `json:"members"`
	Attendance AttendanceCounts `json:"attendance"`
}

// Counts returns today/week/month ledger volume plus the all-time average
// completed duration. Also served standalone as the attendance stats endpoint.
func (e *Engine) Counts(ctx context.Context) (AttendanceCounts, error) {
	now := e.now()
	counts := AttendanceCounts{}
	for _, span := range []struct {
		since time.Time
		dst   *int
	}{
		{startOfDay(now), &counts.Today},
		{startOfWeek(now), &counts.Week},
		{startOfMonth(now), &counts.Month},
	} {
		n, err := e.ledger.CountSince(ctx, span.since)
		if err != nil {
			return AttendanceCounts{}, err
		}
		*span.dst = n
	}
	avg, err := e.ledger.AvgCompletedDuration(ctx, nil)
	if err != nil {
		return AttendanceCounts{}, err
	}
	counts.AvgDuration = int(math.Round(avg))
	return counts, nil
}

// Dashboard returns registry counts plus today/week/month ledger volume.
func (e *Engine) Dashboard(ctx context.Context) (DashboardStats, error) {
	if out, ok := cacheGet[DashboardStats](ctx, e.cache, "report:dashboard"); ok {
		return out, nil
	}

	ms, err := e.members.Stats(ctx)
	if err != nil {
		return DashboardStats{}, fmt.Errorf("member stats: %w", err)
	}
	counts, err := e.Counts(ctx)
	if err != nil {
		return DashboardStats{}, err
	}

	out := DashboardStats{Members: ms, Attendance: counts}
	cacheSet(ctx, e.cache, "report:dashboard", out)
	return out, nil
}

// HourBucket counts check-ins within one hour of the day.
type HourBucket struct {
	Hour  int `json:"hour"`
	Count int `json:"count"`
}

// TodayStats summarizes the current day.
type TodayStats struct {
	TotalCheckins      int          `json:"totalCheckins"`
	CurrentlyPresent   int          `json:"currentlyPresent"`
	AvgDuration        int          `json:"avgDuration"`
	HourlyDistribution []HourBucket `json:"hourlyDistribution"`
}

// Today returns today's volume with an hourly distribution of check-ins.
func (e *Engine) Today(ctx context.Context) (TodayStats, error) {
	now := e.now()
	records, err := e.ledger.ListBetween(ctx, startOfDay(now), now)
	if err != nil {
		return TodayStats{}, err
	}
	open, err := e.ledger.CountOpen(ctx)
	if err != nil {
		return TodayStats{}, err
	}

	stats := TodayStats{TotalCheckins: len(records), CurrentlyPresent: open}
	hours := map[int]int{}
	var durSum, durN int
	for _, r := range records {
		hours[r.CheckIn.Hour()]++
		if r.Status == attendance.StatusCheckedOut {
			durSum += r.Duration
			durN++
		}
	}
	if durN > 0 {
		stats.AvgDuration = int(math.Round(float64(durSum) / float64(durN)))
	}
	for h, n := range hours {
		stats.HourlyDistribution = append(stats.HourlyDistribution, HourBucket{Hour: h, Count: n})
	}
	sort.Slice(stats.HourlyDistribution, func(i, j int) bool {
		return stats.HourlyDistribution[i].Hour < stats.HourlyDistribution[j].Hour
	})
	return stats, nil
}

// DayBucket is a calendar bucket keyed by day-of-week (1=Sunday..7) or
// day-of-month, depending on the report.
type DayBucket struct {
	Day         int `json:"day"`
	Count       int `json:"count"`
	AvgDuration int `json:"avgDuration"`
}

// Weekly groups the current week's records by day of week (1=Sunday..7),
// ascending. Days without records are omitted.
func (e *Engine) Weekly(ctx context.Context) ([]DayBucket, error) {
	now := e.now()
	start := startOfWeek(now)
	records, err := e.ledger.ListBetween(ctx, start, start.AddDate(0, 0, 7).Add(-time.Nanosecond))
	if err != nil {
		return nil, err
	}
	return bucketByDay(records, func(t time.Time) int { return int(t.Weekday()) + 1 }), nil
}

// Monthly groups the current month's records by day of month, ascending.
func (e *Engine) Monthly(ctx context.Context) ([]DayBucket, error) {
	now := e.now()
	start := startOfMonth(now)
	records, err := e.ledger.ListBetween(ctx, start, start.AddDate(0, 1, 0).Add(-time.Nanosecond))
	if err != nil {
		return nil, err
	}
	return bucketByDay(records, func(t time.Time) int { return t.Day() }), nil
}

func bucketByDay(records []attendance.WithMember, key func(time.Time) int) []DayBucket {
	type agg struct{ count, durSum, durN int }
	buckets := map[int]*agg{}
	for _, r := range records {
		a := buckets[key(r.CheckIn)]
		if a == nil {
			a = &agg{}
			buckets[key(r.CheckIn)] = a
		}
		a.count++
		if r.Status == attendance.StatusCheckedOut {
			a.durSum += r.Duration
			a.durN++
		}
	}
	out := make([]DayBucket, 0, len(buckets))
	for day, a := range buckets {
		b := DayBucket{Day: day, Count: a.count}
		if a.durN > 0 {
			b.AvgDuration = int(math.Round(float64(a.durSum) / float64(a.durN)))
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out
}

// DateBucket counts records on one calendar date.
type DateBucket struct {
	Date        string `json:"date"`
	Count       int    `json:"count"`
	AvgDuration int    `json:"avgDuration"`
}

// DailyTrends groups records by calendar day within [start, end], ascending by
// date. Empty days are omitted, not zero-filled.
func (e *Engine) DailyTrends(ctx context.Context, start, end time.Time) ([]DateBucket, error) {
	records, err := e.ledger.ListBetween(ctx, startOfDay(start), endOfDay(end))
	if err != nil {
		return nil, err
	}
	type agg struct{ count, durSum, durN int }
	buckets := map[string]*agg{}
	for _, r := range records {
		key := r.CheckIn.Format("2006-01-02")
		a := buckets[key]
		if a == nil {
			a = &agg{}
			buckets[key] = a
		}
		a.count++
		if r.Status == attendance.StatusCheckedOut {
			a.durSum += r.Duration
			a.durN++
		}
	}
	out := make([]DateBucket, 0, len(buckets))
	for date, a := range buckets {
		b := DateBucket{Date: date, Count: a.count}
		if a.durN > 0 {
			b.AvgDuration = int(math.Round(float64(a.durSum) / float64(a.durN)))
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// HeatCell counts check-ins at one (day-of-week, hour) coordinate.
type HeatCell struct {
	DayOfWeek int `json:"dayOfWeek"`
	Hour      int `json:"hour"`
	Count     int `json:"count"`
}

// Heatmap buckets the whole ledger by (day-of-week, hour), day 1=Sunday..7,
// ordered by day then hour.
func (e *Engine) Heatmap(ctx context.Context) ([]HeatCell, error) {
	records, err := e.ledger.All(ctx)
	if err != nil {
		return nil, err
	}
	counts := map[[2]int]int{}
	for _, r := range records {
		counts[[2]int{int(r.CheckIn.Weekday()) + 1, r.CheckIn.Hour()}]++
	}
	out := make([]HeatCell, 0, len(counts))
	for key, n := range counts {
		out = append(out, HeatCell{DayOfWeek: key[0], Hour: key[1], Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DayOfWeek != out[j].DayOfWeek {
			return out[i].DayOfWeek < out[j].DayOfWeek
		}
		return out[i].Hour < out[j].Hour
	})
	return out, nil
}

// TopMember is one row of the top-active ranking.
type TopMember struct {
	MemberID      string    `json:"memberId"`
	FullName      string    `json:"fullName"`
	Department    string    `json:"department"`
	CheckInCount  int       `json:"checkInCount"`
	TotalDuration int       `json:"totalDuration"`
	LastCheckIn   time.Time `json:"lastCheckIn"`
}

// TopActive ranks members by visit count within a window anchored at the most
// recent check-in in the whole ledger, not wall-clock now; stable over seeded
// data. Ties break ascending by member ID for determinism.
func (e *Engine) TopActive(ctx context.Context, period string, limit int) ([]TopMember, error) {
	if limit <= 0 {
		limit = 10
	}
	anchor, err := e.ledger.NewestCheckIn(ctx)
	if err != nil {
		return nil, err
	}
	if anchor == nil {
		return []TopMember{}, nil
	}

	var start time.Time
	switch period {
	case "week":
		start = anchor.AddDate(0, 0, -7)
	case "year":
		start = anchor.AddDate(-1, 0, 0)
	default: // month
		start = anchor.AddDate(0, -1, 0)
	}

	records, err := e.ledger.ListBetween(ctx, start, *anchor)
	if err != nil {
		return nil, err
	}

	byMember := map[string]*TopMember{}
	for _, r := range records {
		t := byMember[r.MemberID]
		if t == nil {
			t = &TopMember{MemberID: r.MemberID, FullName: r.FullName, Department: r.Department}
			byMember[r.MemberID] = t
		}
		t.CheckInCount++
		t.TotalDuration += r.Duration
		if r.CheckIn.After(t.LastCheckIn) {
			t.LastCheckIn = r.CheckIn
		}
	}

	out := make([]TopMember, 0, len(byMember))
	for _, t := range byMember {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CheckInCount != out[j].CheckInCount {
			return out[i].CheckInCount > out[j].CheckInCount
		}
		return out[i].MemberID < out[j].MemberID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// InactiveMember is one row of the inactivity report.
type InactiveMember struct {
	MemberID     string     `json:"memberId"`
	FullName     string     `json:"fullName"`
	Department   string     `json:"department"`
	LastCheckIn  *time.Time `json:"lastCheckIn,omitempty"`
	InactiveDays int        `json:"inactiveDays"`
}

// Inactive lists active members whose last check-in is strictly older than
// `days` before the ledger's newest check-in. Members with no check-in ever get
// inactiveDays = days+1. Sorted descending by inactive days.
func (e *Engine) Inactive(ctx context.Context, days int) ([]InactiveMember, error) {
	if days <= 0 {
		days = 21
	}
	anchor, err := e.ledger.NewestCheckIn(ctx)
	if err != nil {
		return nil, err
	}
	if anchor == nil {
		return []InactiveMember{}, nil
	}
	cutoff := anchor.AddDate(0, 0, -days)

	members, err := e.members.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	lastByMember, err := e.lastCheckIns(ctx)
	if err != nil {
		return nil, err
	}

	var out []InactiveMember
	for _, m := range members {
		if m.Status != member.StatusActive {
			continue
		}
		last, ok := lastByMember[m.ID]
		row := InactiveMember{MemberID: m.MemberID, FullName: m.FullName, Department: m.Department}
		if !ok {
			row.InactiveDays = days + 1
		} else {
			if !last.Before(cutoff) {
				continue
			}
			l := last
			row.LastCheckIn = &l
			row.InactiveDays = int(math.Round(anchor.Sub(last).Hours() / 24))
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].InactiveDays != out[j].InactiveDays {
			return out[i].InactiveDays > out[j].InactiveDays
		}
		return out[i].MemberID < out[j].MemberID
	})
	if out == nil {
		out = []InactiveMember{}
	}
	return out, nil
}

// lastCheckIns maps each member ref to its newest check-in across the whole
// ledger.
func (e *Engine) lastCheckIns(ctx context.Context) (map[string]time.Time, error) {
	records, err := e.ledger.All(ctx)
	if err != nil {
		return nil, err
	}
	out := map[string]time.Time{}
	for _, r := range records {
		if last, ok := out[r.MemberRef]; !ok || r.CheckIn.After(last) {
			out[r.MemberRef] = r.CheckIn
		}
	}
	return out, nil
}

// MemberAggregate is one row of the per-member attendance report.
type MemberAggregate struct {
	MemberID      string `json:"memberId"`
	FullName      string `json:"fullName"`
	Email         string `json:"email"`
	TotalVisits   int    `json:"totalVisits"`
	TotalDuration int    `json:"totalDuration"`
	AvgDuration   int    `json:"avgDuration"`
}

// AttendanceReport aggregates visits per member within [start, end]. Members
// without records in the window are absent (inner-join semantics).
func (e *Engine) AttendanceReport(ctx context.Context, start, end time.Time) ([]MemberAggregate, error) {
	records, err := e.ledger.ListBetween(ctx, start, end)
	if err != nil {
		return nil, err
	}
	byMember := map[string]*MemberAggregate{}
	for _, r := range records {
		a := byMember[r.MemberID]
		if a == nil {
			a = &MemberAggregate{MemberID: r.MemberID, FullName: r.FullName, Email: r.Email}
			byMember[r.MemberID] = a
		}
		a.TotalVisits++
		a.TotalDuration += r.Duration
	}
	out := make([]MemberAggregate, 0, len(byMember))
	for _, a := range byMember {
		if a.TotalVisits > 0 {
			a.AvgDuration = int(math.Round(float64(a.TotalDuration) / float64(a.TotalVisits)))
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MemberID < out[j].MemberID })
	return out, nil
}

// MemberReportRow is one row of the members report.
type MemberReportRow struct {
	MemberID       string     `json:"memberId"`
	FullName       string     `json:"fullName"`
	Email          string     `json:"email"`
	MembershipType string     `json:"membershipType"`
	Status         string     `json:"status"`
	TotalVisits    int        `json:"totalVisits"`
	LastVisit      *time.Time `json:"lastVisit,omitempty"`
}

// MembersReport joins every member with its all-time visit count and last visit
// (left-join semantics: zero-visit members appear with totalVisits=0).
func (e *Engine) MembersReport(ctx context.Context) ([]MemberReportRow, error) {
	members, err := e.members.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	records, err := e.ledger.All(ctx)
	if err != nil {
		return nil, err
	}

	type agg struct {
		visits int
		last   time.Time
	}
	byMember := map[string]*agg{}
	for _, r := range records {
		a := byMember[r.MemberRef]
		if a == nil {
			a = &agg{}
			byMember[r.MemberRef] = a
		}
		a.visits++
		if r.CheckIn.After(a.last) {
			a.last = r.CheckIn
		}
	}

	out := make([]MemberReportRow, 0, len(members))
	for _, m := range members {
		row := MemberReportRow{
			MemberID:       m.MemberID,
			FullName:       m.FullName,
			Email:          m.Email,
			MembershipType: m.MembershipType,
			Status:         m.Status,
		}
		if a, ok := byMember[m.ID]; ok {
			row.TotalVisits = a.visits
			last := a.last
			row.LastVisit = &last
		}
		out = append(out, row)
	}
	return out, nil
}

// DeptCount counts active members in one department.
type DeptCount struct {
	Department string `json:"department"`
	Count      int    `json:"count"`
}

// Analytics bundles daily trends with the department distribution.
type Analytics struct {
	DailyTrends            []DateBucket `json:"dailyTrends"`
	DepartmentDistribution []DeptCount  `json:"departmentDistribution"`
}

// AnalyticsReport returns the daily trend over [start, end] plus the department
// distribution of active members (department "None" excluded), sorted by count
// descending.
func (e *Engine) AnalyticsReport(ctx context.Context, start, end time.Time) (Analytics, error) {
	trends, err := e.DailyTrends(ctx, start, end)
	if err != nil {
		return Analytics{}, err
	}
	members, err := e.members.ListAll(ctx)
	if err != nil {
		return Analytics{}, err
	}
	counts := map[string]int{}
	for _, m := range members {
		if m.Status != member.StatusActive || m.Department == "None" {
			continue
		}
		counts[m.Department]++
	}
	depts := make([]DeptCount, 0, len(counts))
	for d, n := range counts {
		depts = append(depts, DeptCount{Department: d, Count: n})
	}
	sort.Slice(depts, func(i, j int) bool {
		if depts[i].Count != depts[j].Count {
			return depts[i].Count > depts[j].Count
		}
		return depts[i].Department < depts[j].Department
	})
	return Analytics{DailyTrends: trends, DepartmentDistribution: depts}, nil
}

// LiveStats is the live monitoring summary.
type LiveStats struct {
	Present     int `json:"present"`
	Today       int `json:"today"`
	AvgDuration int `json:"avgDuration"`
}

// Live returns present count, today's volume, and today's average completed
// duration. Cached briefly when a cache is configured.
func (e *Engine) Live(ctx context.Context) (LiveStats, error) {
	if out, ok := cacheGet[LiveStats](ctx, e.cache, "report:live"); ok {
		return out, nil
	}

	open, err := e.ledger.CountOpen(ctx)
	if err != nil {
		return LiveStats{}, err
	}
	start := startOfDay(e.now())
	today, err := e.ledger.CountSince(ctx, start)
	if err != nil {
		return LiveStats{}, err
	}
	avg, err := e.ledger.AvgCompletedDuration(ctx, &start)
	if err != nil {
		return LiveStats{}, err
	}
	out := LiveStats{Present: open, Today: today, AvgDuration: int(math.Round(avg))}
	cacheSet(ctx, e.cache, "report:live", out)
	return out, nil
}

// DefaultWindow resolves an optional [start, end] pair, defaulting to the last
// 30 days ending now.
func (e *Engine) DefaultWindow(start, end *time.Time) (time.Time, time.Time) {
	now := e.now()
	s := now.AddDate(0, 0, -30)
	if start != nil {
		s = *start
	}
	en := now
	if end != nil {
		en = *end
	}
	return s, en
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return startOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// startOfWeek truncates to the preceding Sunday, matching the original
// calendars.
func startOfWeek(t time.Time) time.Time {
	return startOfDay(t).AddDate(0, 0, -int(t.Weekday()))
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
