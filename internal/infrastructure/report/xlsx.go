package report

import (
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/document-validity-gateway/internal/core/domain"
)

// XLSXExporter renders a validity result as a downloadable workbook: one
// overview sheet plus one sheet per document type that has records.
type XLSXExporter struct{}

func NewXLSXExporter() *XLSXExporter {
	return &XLSXExporter{}
}

const overviewSheet = "Overview"

func (e *XLSXExporter) Export(result *domain.ValidityResult) ([]byte, error) {
	if result == nil {
		return nil, fmt.Errorf("export report: nil result")
	}

	workbook := excelize.NewFile()
	defer workbook.Close()

	if err := workbook.SetSheetName("Sheet1", overviewSheet); err != nil {
		return nil, fmt.Errorf("rename overview sheet: %w", err)
	}
	if err := e.writeOverview(workbook, result); err != nil {
		return nil, err
	}

	for _, docType := range domain.KnownDocTypes() {
		valid := result.Valid[docType]
		invalid := result.Invalid[docType]
		if len(valid) == 0 && len(invalid) == 0 {
			continue
		}
		if err := e.writeTypeSheet(workbook, docType, valid, invalid); err != nil {
			return nil, err
		}
	}

	buf, err := workbook.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *XLSXExporter) writeOverview(workbook *excelize.File, result *domain.ValidityResult) error {
	rows := [][]any{
		{"Start date", result.Range.StartDate},
		{"End date", result.Range.EndDate},
		{"Checked at", result.CheckedAt.Format("2006-01-02 15:04:05")},
		{"Total valid", result.TotalValid},
		{},
		{"Document type", "Valid", "Invalid"},
	}
	for _, docType := range domain.KnownDocTypes() {
		rows = append(rows, []any{string(docType), len(result.Valid[docType]), len(result.Invalid[docType])})
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("overview cell name: %w", err)
		}
		if err := workbook.SetSheetRow(overviewSheet, cell, &row); err != nil {
			return fmt.Errorf("write overview row: %w", err)
		}
	}
	return nil
}

func (e *XLSXExporter) writeTypeSheet(workbook *excelize.File, docType domain.DocType, valid, invalid []domain.ExtractionRecord) error {
	sheet := string(docType)
	if _, err := workbook.NewSheet(sheet); err != nil {
		return fmt.Errorf("create sheet %q: %w", sheet, err)
	}

	columns := fieldColumns(valid, invalid)
	header := append([]any{"Item ID", "Verdict"}, columns...)
	if err := workbook.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header on %q: %w", sheet, err)
	}

	rowIndex := 2
	for _, group := range []struct {
		verdict string
		records []domain.ExtractionRecord
	}{
		{"valid", valid},
		{"invalid", invalid},
	} {
		for _, record := range group.records {
			row := []any{record.ItemID, group.verdict}
			for _, column := range columns {
				row = append(row, record.Fields[column.(string)])
			}
			cell, err := excelize.CoordinatesToCellName(1, rowIndex)
			if err != nil {
				return fmt.Errorf("cell name on %q: %w", sheet, err)
			}
			if err := workbook.SetSheetRow(sheet, cell, &row); err != nil {
				return fmt.Errorf("write row on %q: %w", sheet, err)
			}
			rowIndex++
		}
	}
	return nil
}

// fieldColumns is the union of field names across all records, sorted so the
// workbook layout is stable between exports.
func fieldColumns(groups ...[]domain.ExtractionRecord) []any {
	seen := make(map[string]struct{})
	for _, records := range groups {
		for _, record := range records {
			for name := range record.Fields {
				seen[name] = struct{}{}
			}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)

	columns := make([]any, len(names))
	for i, name := range names {
		columns[i] = name
	}
	return columns
}
