package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"membership/internal/attendance"
	"membership/internal/report"
)

func sampleAttendance() []attendance.WithMember {
	in := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	out := in.Add(90 * time.Minute)
	return []attendance.WithMember{
		{
			Record: attendance.Record{
				CheckIn:  in,
				CheckOut: &out,
				Duration: 90,
				Status:   attendance.StatusCheckedOut,
			},
			MemberID: "25010001",
			FullName: "Nimal Perera",
			Email:    "nimal@era.lk",
		},
		{
			Record: attendance.Record{
				CheckIn: in.Add(time.Hour),
				Status:  attendance.StatusCheckedIn,
			},
			MemberID: "25010002",
			FullName: "Kamala Silva",
			Email:    "kamala@era.lk",
		},
	}
}

func TestRenderCSVSingleTable(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderCSV(&buf, AttendanceTable(sampleAttendance())); err != nil {
		t.Fatalf("render: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
	if rows[0][0] != "Member ID" {
		t.Fatalf("header = %v", rows[0])
	}
	if rows[1][0] != "25010001" || rows[1][5] != "90" {
		t.Fatalf("first row = %v", rows[1])
	}
	// Open record has an empty check-out column.
	if rows[2][4] != "" || rows[2][6] != attendance.StatusCheckedIn {
		t.Fatalf("open row = %v", rows[2])
	}
}

func TestRenderCSVMultiTable(t *testing.T) {
	analytics := report.Analytics{
		DailyTrends: []report.DateBucket{{Date: "2025-04-01", Count: 3}},
		DepartmentDistribution: []report.DeptCount{
			{Department: "ERA Softwares", Count: 5},
		},
	}
	var buf bytes.Buffer
	if err := RenderCSV(&buf, AnalyticsTables(analytics)...); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Daily Trends") || !strings.Contains(out, "Department Distribution") {
		t.Fatalf("titles missing:\n%s", out)
	}
	if !strings.Contains(out, "2025-04-01,3") || !strings.Contains(out, "ERA Softwares,5") {
		t.Fatalf("data missing:\n%s", out)
	}
}

func TestRenderXLSX(t *testing.T) {
	buf, err := RenderXLSX(AttendanceTable(sampleAttendance()))
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	// xlsx files are zip archives.
	if buf.Len() < 4 || !bytes.HasPrefix(buf.Bytes(), []byte("PK")) {
		t.Fatalf("not a workbook, %d bytes", buf.Len())
	}
}

func TestRenderPDF(t *testing.T) {
	buf, err := RenderPDF(MembersTable([]report.MemberReportRow{
		{MemberID: "25010001", FullName: "Nimal Perera", Email: "nimal@era.lk",
			MembershipType: "Student", Status: "active", TotalVisits: 4},
	}))
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF")) {
		t.Fatal("missing pdf header")
	}
}

func TestRenderPDFEmptyTable(t *testing.T) {
	buf, err := RenderPDF(Table{Title: "Empty", Header: []string{"A", "B"}})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("empty output")
	}
}
