package writer

import (
	"errors"
	"fmt"
	"math"

	"github.com/giygas/gho-indicators/entities"
	"github.com/xuri/excelize/v2"
)

// Sheet names of the workbook output. Tables that do not fit one sheet continue
// on "long_2", "wide_2" and so on.
const (
	SheetLong = "long"
	SheetWide = "wide"
)

// ErrWorkbookLimit is returned when a table cannot be laid out within the xlsx
// sheet limits even when split
var ErrWorkbookLimit = errors.New("table exceeds xlsx sheet limits")

// xlsx grid limits; vars so tests can use small tables
var (
	maxSheetRows    = excelize.TotalRows
	maxSheetColumns = excelize.MaxColumns
)

// wideHeaderRows is the number of header rows above the country rows
const wideHeaderRows = 3

// WriteWorkbook writes both tables to one xlsx file. Null cells are left blank.
// The long table is split across sheets every maxSheetRows-1 rows and the wide
// table every maxSheetColumns-1 value columns, repeating the headers and the
// country column on each sheet.
func WriteWorkbook(path string, long entities.LongTable, wide entities.WideTable) (err error) {
	if len(wide.Countries)+wideHeaderRows > maxSheetRows {
		return fmt.Errorf("%w: %d countries", ErrWorkbookLimit, len(wide.Countries))
	}

	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close workbook: %w", cerr)
		}
	}()

	if err := f.SetSheetName("Sheet1", SheetLong); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	perSheet := maxSheetRows - 1
	for part, start := 1, 0; part == 1 || start < len(long.Rows); part, start = part+1, start+perSheet {
		end := min(start+perSheet, len(long.Rows))
		name := sheetName(SheetLong, part)
		if part > 1 {
			if _, err := f.NewSheet(name); err != nil {
				return fmt.Errorf("create sheet %s: %w", name, err)
			}
		}
		if err := writeLongSheet(f, name, long.Header(), long.Rows[start:end]); err != nil {
			return err
		}
	}

	perSheet = maxSheetColumns - 1
	for part, start := 1, 0; part == 1 || start < len(wide.Columns); part, start = part+1, start+perSheet {
		end := min(start+perSheet, len(wide.Columns))
		name := sheetName(SheetWide, part)
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
		if err := writeWideSheet(f, name, wide, wide.Columns[start:end]); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook %s: %w", path, err)
	}
	return nil
}

func sheetName(base string, part int) string {
	if part == 1 {
		return base
	}
	return fmt.Sprintf("%s_%d", base, part)
}

func writeLongSheet(f *excelize.File, sheet string, header []string, rows []entities.LongRow) error {
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("open sheet %s: %w", sheet, err)
	}

	values := make([]any, 0, len(header))
	for _, name := range header {
		values = append(values, name)
	}
	if err := sw.SetRow("A1", values); err != nil {
		return fmt.Errorf("write %s header: %w", sheet, err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []any{row.Country, row.Year, row.IndicatorCode, cellValue(row.NumericValue)}
		if err := sw.SetRow(cell, values); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+2, err)
		}
	}

	return sw.Flush()
}

// writeWideSheet writes the given slice of the wide table's columns
func writeWideSheet(f *excelize.File, sheet string, wide entities.WideTable, columns []entities.ColumnKey) error {
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("open sheet %s: %w", sheet, err)
	}

	width := len(columns) + 1
	codes := make([]any, 0, width)
	years := make([]any, 0, width)
	codes = append(codes, entities.FieldIndicatorCode)
	years = append(years, entities.ColumnYear)
	for _, key := range columns {
		codes = append(codes, key.IndicatorCode)
		years = append(years, key.Year)
	}

	rows := [][]any{codes, years, {countryColumn(wide.CountryColumn)}}
	for _, country := range wide.Countries {
		values := make([]any, 0, width)
		values = append(values, country)
		for _, key := range columns {
			v, _ := wide.Cell(country, key)
			values = append(values, cellValue(v))
		}
		rows = append(rows, values)
	}

	for i, values := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, values); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}

	return sw.Flush()
}

func cellValue(v *float64) any {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	return *v
}
