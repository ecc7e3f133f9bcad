package audit

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"veridoc/internal/jobs"
	"veridoc/internal/logging"
)

// ReportXLSX renders the entries matching the filter as an XLSX workbook for
// compliance hand-off.
func (l *Ledger) ReportXLSX(ctx context.Context, filter jobs.AuditFilter) ([]byte, error) {
	entries, err := l.Query(ctx, filter)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	const sheet = "Audit Log"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("drop default sheet: %w", err)
	}

	headers := []string{"Timestamp", "Job", "Region", "Actor", "Action", "Previous Value", "New Value"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
	}

	for row, entry := range entries {
		values := []any{
			entry.CreatedAt.Format("2006-01-02 15:04:05"),
			entry.JobID,
			entry.RegionID,
			entry.Actor,
			entry.Action,
			entry.PrevValue,
			entry.NewValue,
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return nil, fmt.Errorf("write row %d: %w", row+2, err)
			}
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 20)
	_ = f.SetColWidth(sheet, "B", "C", 38)
	_ = f.SetColWidth(sheet, "D", "E", 18)
	_ = f.SetColWidth(sheet, "F", "G", 40)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	l.logger.Info("audit report rendered", logging.Int("entries", len(entries)))
	return buf.Bytes(), nil
}
