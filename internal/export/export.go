// Package export renders aggregation output as downloadable tabular documents.
// The report engine supplies structured rows; this package only formats them.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/xuri/excelize/v2"

	"membership/internal/attendance"
	"membership/internal/report"
)

const timestampLayout = "2006-01-02 15:04"

// Table is a titled grid ready for rendering in any supported format.
type Table struct {
	Title  string
	Header []string
	Rows   [][]string
}

// AttendanceTable formats ledger rows joined with member identity.
func AttendanceTable(records []attendance.WithMember) Table {
	t := Table{
		Title:  "Attendance Report",
		Header: []string{"Member ID", "Full Name", "Email", "Check In", "Check Out", "Duration", "Status"},
	}
	for _, r := range records {
		out := ""
		if r.CheckOut != nil {
			out = r.CheckOut.Format(timestampLayout)
		}
		t.Rows = append(t.Rows, []string{
			r.MemberID, r.FullName, r.Email,
			r.CheckIn.Format(timestampLayout), out,
			strconv.Itoa(r.Duration), r.Status,
		})
	}
	return t
}

// MembersTable formats the members report.
func MembersTable(rows []report.MemberReportRow) Table {
	t := Table{
		Title:  "Members Report",
		Header: []string{"Member ID", "Full Name", "Email", "Membership Type", "Status", "Total Visits", "Last Visit"},
	}
	for _, r := range rows {
		last := ""
		if r.LastVisit != nil {
			last = r.LastVisit.Format(time.DateTime)
		}
		t.Rows = append(t.Rows, []string{
			r.MemberID, r.FullName, r.Email, r.MembershipType, r.Status,
			strconv.Itoa(r.TotalVisits), last,
		})
	}
	return t
}

// AnalyticsTables formats the analytics report as two tables.
func AnalyticsTables(a report.Analytics) []Table {
	trends := Table{Title: "Daily Trends", Header: []string{"Date", "Total"}}
	for _, b := range a.DailyTrends {
		trends.Rows = append(trends.Rows, []string{b.Date, strconv.Itoa(b.Count)})
	}
	depts := Table{Title: "Department Distribution", Header: []string{"Department", "Count"}}
	for _, d := range a.DepartmentDistribution {
		depts.Rows = append(depts.Rows, []string{d.Department, strconv.Itoa(d.Count)})
	}
	return []Table{trends, depts}
}

// RenderCSV writes one table as CSV. Multi-table exports are joined with a
// blank line and per-table title row.
func RenderCSV(w io.Writer, tables ...Table) error {
	cw := csv.NewWriter(w)
	for i, t := range tables {
		if len(tables) > 1 {
			if i > 0 {
				if err := cw.Write([]string{}); err != nil {
					return err
				}
			}
			if err := cw.Write([]string{t.Title}); err != nil {
				return err
			}
		}
		if err := cw.Write(t.Header); err != nil {
			return err
		}
		for _, row := range t.Rows {
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// RenderXLSX produces a workbook with one sheet per table.
func RenderXLSX(tables ...Table) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	for i, t := range tables {
		sheet := t.Title
		if sheet == "" {
			sheet = fmt.Sprintf("Sheet%d", i+1)
		}
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet); err != nil {
				return nil, err
			}
		} else {
			if _, err := f.NewSheet(sheet); err != nil {
				return nil, err
			}
		}
		if err := writeSheetRow(f, sheet, 1, t.Header); err != nil {
			return nil, err
		}
		for rowIdx, row := range t.Rows {
			if err := writeSheetRow(f, sheet, rowIdx+2, row); err != nil {
				return nil, err
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf, nil
}

func writeSheetRow(f *excelize.File, sheet string, row int, values []string) error {
	cells := make([]any, len(values))
	for i, v := range values {
		cells[i] = v
	}
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &cells)
}

// RenderPDF produces a landscape PDF with each table laid out as a light grid,
// mirroring the original document layout.
func RenderPDF(tables ...Table) (*bytes.Buffer, error) {
	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	pageW, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	usable := pageW - left - right

	for i, t := range tables {
		if i > 0 {
			pdf.Ln(8)
		}
		pdf.SetFont("Helvetica", "B", 14)
		pdf.CellFormat(0, 9, t.Title, "", 1, "L", false, 0, "")

		colW := usable / float64(len(t.Header))
		pdf.SetFont("Helvetica", "B", 9)
		for _, h := range t.Header {
			pdf.CellFormat(colW, 7, h, "B", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)

		pdf.SetFont("Helvetica", "", 9)
		for _, row := range t.Rows {
			for _, cell := range row {
				pdf.CellFormat(colW, 6, cell, "B", 0, "L", false, 0, "")
			}
			pdf.Ln(-1)
		}
		if len(t.Rows) == 0 {
			pdf.CellFormat(usable, 6, "No data available", "B", 1, "L", false, 0, "")
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return &buf, nil
}
