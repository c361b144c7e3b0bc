package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	commandsapp "device-relay/internal/commands/application"
)

const maxPDFCommandLen = 48

// Report is a listing of one operator's commands.
type Report struct {
	Operator    string
	DeviceID    string
	GeneratedAt time.Time
	Commands    []commandsapp.CommandView
}

var columns = []string{"ID", "Device", "Command", "Status", "Issued At", "Completed At", "Result"}

func row(cmd commandsapp.CommandView) []string {
	completedAt := ""
	if cmd.CompletedAt != nil {
		completedAt = cmd.CompletedAt.UTC().Format(time.RFC3339)
	}
	result := ""
	if cmd.Result != nil {
		result = *cmd.Result
	}
	return []string{
		cmd.ID,
		cmd.DeviceID,
		cmd.Command,
		cmd.Status,
		cmd.Timestamp.UTC().Format(time.RFC3339),
		completedAt,
		result,
	}
}

// BuildCSV renders the report as CSV with a header row.
func BuildCSV(report Report) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(columns); err != nil {
		return nil, err
	}
	for _, cmd := range report.Commands {
		if err := w.Write(row(cmd)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildXLSX renders the report as a workbook with summary and commands sheets.
func BuildXLSX(report Report) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	commandsSheet := "commands"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(commandsSheet); err != nil {
		return nil, err
	}

	pending, completed := countByStatus(report.Commands)
	_ = f.SetCellValue(summarySheet, "A1", "Command Report")
	_ = f.SetCellValue(summarySheet, "A3", "Operator")
	_ = f.SetCellValue(summarySheet, "B3", report.Operator)
	_ = f.SetCellValue(summarySheet, "A4", "Device")
	_ = f.SetCellValue(summarySheet, "B4", deviceLabel(report.DeviceID))
	_ = f.SetCellValue(summarySheet, "A5", "Generated")
	_ = f.SetCellValue(summarySheet, "B5", report.GeneratedAt.UTC().Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A6", "Pending")
	_ = f.SetCellValue(summarySheet, "B6", pending)
	_ = f.SetCellValue(summarySheet, "A7", "Completed")
	_ = f.SetCellValue(summarySheet, "B7", completed)

	for i, title := range columns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		_ = f.SetCellValue(commandsSheet, cell, title)
	}
	for r, cmd := range report.Commands {
		for c, value := range row(cmd) {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return nil, err
			}
			_ = f.SetCellValue(commandsSheet, cell, value)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildPDF renders a minimal PDF table of the report.
func BuildPDF(report Report) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Command Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, tr(fmt.Sprintf("Operator: %s", report.Operator)))
	pdf.Ln(5)
	pdf.Cell(0, 6, tr(fmt.Sprintf("Device: %s", deviceLabel(report.DeviceID))))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", report.GeneratedAt.UTC().Format(time.RFC3339)))
	pdf.Ln(5)
	pending, completed := countByStatus(report.Commands)
	pdf.Cell(0, 6, fmt.Sprintf("Pending: %d  Completed: %d", pending, completed))
	pdf.Ln(8)

	widths := []float64{62, 40, 70, 22, 44, 38}
	headers := []string{"ID", "Device", "Command", "Status", "Issued At", "Result"}
	pdf.SetFont("Arial", "B", 9)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 6, h, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 8)
	for _, cmd := range report.Commands {
		values := row(cmd)
		cells := []string{values[0], values[1], truncate(values[2]), values[3], values[4], truncate(values[6])}
		for i, v := range cells {
			pdf.CellFormat(widths[i], 6, tr(v), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func countByStatus(list []commandsapp.CommandView) (pending, completed int) {
	for _, cmd := range list {
		if cmd.Result != nil {
			completed++
		} else {
			pending++
		}
	}
	return pending, completed
}

func deviceLabel(deviceID string) string {
	if deviceID == "" {
		return "all"
	}
	return deviceID
}

func truncate(value string) string {
	runes := []rune(value)
	if len(runes) <= maxPDFCommandLen {
		return value
	}
	return string(runes[:maxPDFCommandLen-3]) + "..."
}
