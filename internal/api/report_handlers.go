package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"membership/internal/apperr"
	"membership/internal/attendance"
	"membership/internal/export"
	"membership/internal/member"
	"membership/internal/presence"
	"membership/internal/report"
)

// ReportHandler serves the admin dashboard, reports, exports, live monitoring,
// and search.
type ReportHandler struct {
	engine   *report.Engine
	members  *member.Service
	ledger   *attendance.Repository
	presence *presence.Coordinator
	log      *zap.Logger
}

// NewReportHandler wires the admin read-side endpoints.
func NewReportHandler(engine *report.Engine, members *member.Service,
	ledger *attendance.Repository, coord *presence.Coordinator, log *zap.Logger) *ReportHandler {
	return &ReportHandler{
		engine: engine, members: members, ledger: ledger, presence: coord, log: log,
	}
}

// Dashboard handles GET /api/admin/dashboard.
func (h *ReportHandler) Dashboard(c *gin.Context) {
	stats, err := h.engine.Dashboard(c.Request.Context())
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	respondOK(c, "", stats)
}

// DashboardToday handles GET /api/admin/dashboard/today.
func (h *ReportHandler) DashboardToday(c *gin.Context) {
	stats, err := h.engine.Today(c.Request.Context())
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	respondOK(c, "", stats)
}

// DashboardWeekly handles GET /api/admin/dashboard/weekly.
func (h *ReportHandler) DashboardWeekly(c *gin.Context) {
	buckets, err := h.engine.Weekly(c.Request.Context())
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	respondOK(c, "", buckets)
}

// DashboardMonthly handles GET /api/admin/dashboard/monthly.
func (h *ReportHandler) DashboardMonthly(c *gin.Context) {
	buckets, err := h.engine.Monthly(c.Request.Context())
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	respondOK(c, "", buckets)
}

// AttendanceReport handles GET /api/admin/reports/attendance.
func (h *ReportHandler) AttendanceReport(c *gin.Context) {
	start, end, ok := h.window(c)
	if !ok {
		return
	}
	rows, err := h.engine.AttendanceReport(c.Request.Context(), start, end)
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	respondOK(c, "", rows)
}

// MembersReport handles GET /api/admin/reports/members.
func (h *ReportHandler) MembersReport(c *gin.Context) {
	rows, err := h.engine.MembersReport(c.Request.Context())
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	respondOK(c, "", rows)
}

// AnalyticsReport handles GET /api/admin/reports/analytics.
func (h *ReportHandler) AnalyticsReport(c *gin.Context) {
	start, end, ok := h.window(c)
	if !ok {
		return
	}
	analytics, err := h.engine.AnalyticsReport(c.Request.Context(), start, end)
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	respondOK(c, "", analytics)
}

// TopActive handles GET /api/admin/reports/top-active.
func (h *ReportHandler) TopActive(c *gin.Context) {
	top, err := h.engine.TopActive(c.Request.Context(),
		c.DefaultQuery("period", "month"), queryInt(c, "limit", 10))
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	respondOK(c, "", top)
}

// Inactive handles GET /api/admin/reports/inactive.
func (h *ReportHandler) Inactive(c *gin.Context) {
	rows, err := h.engine.Inactive(c.Request.Context(), queryInt(c, "days", 21))
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	respondOK(c, "", gin.H{"count": len(rows), "members": rows})
}

// Export handles GET /api/admin/reports/export?type=attendance|members|analytics&format=...
func (h *ReportHandler) Export(c *gin.Context) {
	format := c.DefaultQuery("format", "csv")
	kind := c.DefaultQuery("type", "attendance")
	ctx := c.Request.Context()

	switch kind {
	case "attendance":
		start, end, ok := h.window(c)
		if !ok {
			return
		}
		records, err := h.ledger.ListBetween(ctx, start, end)
		if err != nil {
			respondErr(c, h.log, err)
			return
		}
		writeExport(c, h.log, format, "attendance-report", records, export.AttendanceTable(records))
	case "members":
		rows, err := h.engine.MembersReport(ctx)
		if err != nil {
			respondErr(c, h.log, err)
			return
		}
		writeExport(c, h.log, format, "members-report", rows, export.MembersTable(rows))
	case "analytics":
		start, end, ok := h.window(c)
		if !ok {
			return
		}
		analytics, err := h.engine.AnalyticsReport(ctx, start, end)
		if err != nil {
			respondErr(c, h.log, err)
			return
		}
		writeExport(c, h.log, format, "analytics-report", analytics, export.AnalyticsTables(analytics)...)
	default:
		respondErr(c, h.log, apperr.Validation("invalid report type", map[string]string{
			"type": "must be one of: attendance members analytics"}))
	}
}

// LivePresent handles GET /api/admin/live/present.
func (h *ReportHandler) LivePresent(c *gin.Context) {
	members, err := h.members.Present(c.Request.Context())
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	respondOK(c, "", gin.H{"count": len(members), "members": members})
}

// LiveStats handles GET /api/admin/live/stats.
func (h *ReportHandler) LiveStats(c *gin.Context) {
	stats, err := h.engine.Live(c.Request.Context())
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	respondOK(c, "", stats)
}

// SearchMembers handles GET /api/admin/search/members?q=.
func (h *ReportHandler) SearchMembers(c *gin.Context) {
	f := member.SearchFilter{
		Query:          c.Query("q"),
		Status:         c.Query("status"),
		MembershipType: c.Query("membershipType"),
	}
	if f.Query == "" && f.Status == "" && f.MembershipType == "" {
		respondErr(c, h.log, apperr.Validation("provide a search query or filter", nil))
		return
	}
	members, err := h.members.Search(c.Request.Context(), f)
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	respondOK(c, "", gin.H{"count": len(members), "members": members})
}

// SearchAttendance handles GET /api/admin/search/attendance?memberId=&status=.
func (h *ReportHandler) SearchAttendance(c *gin.Context) {
	page, limit := pageParams(c)
	f := attendance.ListFilter{
		Status: c.Query("status"),
		Page:   page,
		Limit:  limit,
	}
	if memberID := c.Query("memberId"); memberID != "" {
		m, err := h.members.Get(c.Request.Context(), memberID)
		if err != nil {
			respondErr(c, h.log, err)
			return
		}
		f.MemberRef = m.ID
	}
	records, total, err := h.ledger.List(c.Request.Context(), f)
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	respondPage(c, records, f.Page, f.Limit, total)
}

// Reconcile handles POST /api/admin/reconcile: re-derives presence flags from
// the ledger.
func (h *ReportHandler) Reconcile(c *gin.Context) {
	res, err := h.presence.Reconcile(c.Request.Context())
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	respondOK(c, "reconciliation completed", res)
}

func (h *ReportHandler) window(c *gin.Context) (time.Time, time.Time, bool) {
	start, err := queryDate(c, "startDate")
	if err != nil {
		respondErr(c, h.log, err)
		return time.Time{}, time.Time{}, false
	}
	end, err := queryDate(c, "endDate")
	if err != nil {
		respondErr(c, h.log, err)
		return time.Time{}, time.Time{}, false
	}
	s, e := h.engine.DefaultWindow(start, end)
	return s, e, true
}
