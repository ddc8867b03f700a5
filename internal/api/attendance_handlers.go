package api

import (
	"context"
	"fmt"
	"net/http"
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

// AttendanceHandler serves the ledger: listings, per-record lookup, manual
// transitions, and the attendance-centric analytics.
type AttendanceHandler struct {
	ledger   *attendance.Repository
	members  *member.Service
	presence *presence.Coordinator
	engine   *report.Engine
	log      *zap.Logger
}

// NewAttendanceHandler wires the ledger endpoints.
func NewAttendanceHandler(ledger *attendance.Repository, members *member.Service,
	coord *presence.Coordinator, engine *report.Engine, log *zap.Logger) *AttendanceHandler {
	return &AttendanceHandler{
		ledger: ledger, members: members, presence: coord, engine: engine, log: log,
	}
}

// List handles GET /api/attendance with filtering and pagination.
func (h *AttendanceHandler) List(c *gin.Context) {
	page, limit := pageParams(c)
	f := attendance.ListFilter{
		Status: c.Query("status"),
		Page:   page,
		Limit:  limit,
	}
	records, total, err := h.ledger.List(c.Request.Context(), f)
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	respondPage(c, records, f.Page, f.Limit, total)
}

// Stats handles GET /api/attendance/stats: today/week/month volume plus the
// average completed duration.
func (h *AttendanceHandler) Stats(c *gin.Context) {
	counts, err := h.engine.Counts(c.Request.Context())
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	respondOK(c, "", counts)
}

// Get handles GET /api/attendance/:id.
func (h *AttendanceHandler) Get(c *gin.Context) {
	rec, err := h.ledger.GetByIDWithMember(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	respondOK(c, "", rec)
}

// ByMember handles GET /api/attendance/member/:memberId.
func (h *AttendanceHandler) ByMember(c *gin.Context) {
	m, err := h.members.Get(c.Request.Context(), c.Param("memberId"))
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	page, limit := pageParams(c)
	f := attendance.ListFilter{
		MemberRef: m.ID,
		Page:      page,
		Limit:     limit,
	}
	records, total, err := h.ledger.List(c.Request.Context(), f)
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	respondPage(c, records, f.Page, f.Limit, total)
}

// Today handles GET /api/attendance/today.
func (h *AttendanceHandler) Today(c *gin.Context) {
	stats, err := h.engine.Today(c.Request.Context())
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	respondOK(c, "", stats)
}

// Analytics handles GET /api/attendance/analytics?startDate&endDate.
func (h *AttendanceHandler) Analytics(c *gin.Context) {
	start, end, ok := h.window(c)
	if !ok {
		return
	}
	trends, err := h.engine.DailyTrends(c.Request.Context(), start, end)
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	respondOK(c, "", gin.H{"dailyTrends": trends})
}

// Heatmap handles GET /api/attendance/heatmap.
func (h *AttendanceHandler) Heatmap(c *gin.Context) {
	cells, err := h.engine.Heatmap(c.Request.Context())
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	respondOK(c, "", cells)
}

// TopActive handles GET /api/attendance/top-active?period&limit.
func (h *AttendanceHandler) TopActive(c *gin.Context) {
	top, err := h.engine.TopActive(c.Request.Context(),
		c.DefaultQuery("period", "month"), queryInt(c, "limit", 10))
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	respondOK(c, "", top)
}

// Inactive handles GET /api/attendance/inactive?days.
func (h *AttendanceHandler) Inactive(c *gin.Context) {
	rows, err := h.engine.Inactive(c.Request.Context(), queryInt(c, "days", 21))
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	respondOK(c, "", gin.H{"count": len(rows), "members": rows})
}

// ManualCheckIn handles POST /api/attendance/manual-check-in (admin fallback
// when the kiosk is unavailable). Same state machine as the kiosk path.
func (h *AttendanceHandler) ManualCheckIn(c *gin.Context) {
	h.manualTransition(c, h.presence.CheckIn, "checked in successfully")
}

// ManualCheckOut handles POST /api/attendance/manual-check-out.
func (h *AttendanceHandler) ManualCheckOut(c *gin.Context) {
	h.manualTransition(c, h.presence.CheckOut, "checked out successfully")
}

func (h *AttendanceHandler) manualTransition(c *gin.Context,
	fn func(ctx context.Context, memberID string, loc *attendance.GeoPoint) (attendance.Record, error),
	message string) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadJSON(c, err)
		return
	}
	if req.MemberID == "" {
		respondErr(c, h.log, apperr.Validation("memberId is required", nil))
		return
	}
	rec, err := fn(c.Request.Context(), req.MemberID, req.Location)
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	respondOK(c, message, rec)
}

// Export handles GET /api/attendance/export?format=csv|xlsx|pdf|json.
func (h *AttendanceHandler) Export(c *gin.Context) {
	start, end, ok := h.window(c)
	if !ok {
		return
	}
	records, err := h.ledger.ListBetween(c.Request.Context(), start, end)
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	writeExport(c, h.log, c.DefaultQuery("format", "json"), "attendance-report",
		records, export.AttendanceTable(records))
}

func (h *AttendanceHandler) window(c *gin.Context) (time.Time, time.Time, bool) {
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

// writeExport renders tables in the requested download format, falling back to
// the JSON envelope.
func writeExport(c *gin.Context, log *zap.Logger, format, basename string, raw any, tables ...export.Table) {
	stamp := time.Now().Format("2006-01-02")
	name := fmt.Sprintf("%s-%s", basename, stamp)
	switch format {
	case "csv":
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.csv", name))
		c.Header("Content-Type", "text/csv")
		if err := export.RenderCSV(c.Writer, tables...); err != nil {
			log.Error("csv export failed", zap.Error(err))
		}
	case "xlsx":
		buf, err := export.RenderXLSX(tables...)
		if err != nil {
			respondErr(c, log, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.xlsx", name))
		c.Data(http.StatusOK,
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
	case "pdf":
		buf, err := export.RenderPDF(tables...)
		if err != nil {
			respondErr(c, log, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.pdf", name))
		c.Data(http.StatusOK, "application/pdf", buf.Bytes())
	default:
		respondOK(c, "", raw)
	}
}
