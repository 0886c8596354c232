// Package reshape turns concatenated raw observations into the long table and
// its country x (indicator, year) pivot.
package reshape

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/giygas/gho-indicators/entities"
)

// DuplicatePolicy decides the wide cell value when several long rows share
// (country, indicator, year)
type DuplicatePolicy int

const (
	// DuplicateLast keeps the value of the last such row in long-table order,
	// even when that value is null
	DuplicateLast DuplicatePolicy = iota
	// DuplicateReject fails the reshape
	DuplicateReject
	// DuplicateMean averages the non-null values; null if none
	DuplicateMean
)

func (p DuplicatePolicy) String() string {
	switch p {
	case DuplicateReject:
		return "reject"
	case DuplicateMean:
		return "mean"
	default:
		return "last"
	}
}

// ParseDuplicatePolicy maps a configuration value to a policy
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "last":
		return DuplicateLast, nil
	case "reject":
		return DuplicateReject, nil
	case "mean":
		return DuplicateMean, nil
	default:
		return DuplicateLast, fmt.Errorf("unknown duplicate policy %q (want last, reject or mean)", s)
	}
}

// Options controls renaming and pivot aggregation
type Options struct {
	CountryColumn string // COUNTRY (default) or COUNTRY/REGION
	Duplicates    DuplicatePolicy
}

// Stats reports what the cleaning step did
type Stats struct {
	InputRows   int
	DroppedRows int
}

// requiredColumns must be present in the raw table. NumericValue is optional and
// read as null when absent.
var requiredColumns = []string{entities.FieldSpatialDim, entities.FieldTimeDim, entities.FieldIndicatorCode}

// CheckColumns verifies the hard-required raw columns are present
func CheckColumns(table entities.ObservationTable) error {
	var missing []string
	for _, col := range requiredColumns {
		if !table.HasColumn(col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		expected := append(slices.Clone(requiredColumns), entities.FieldNumericValue)
		return &SchemaError{Expected: expected, Missing: missing}
	}
	return nil
}

// Reshape validates, cleans and pivots the raw observations
func Reshape(table entities.ObservationTable, opts Options) (entities.LongTable, entities.WideTable, Stats, error) {
	long, stats, err := Long(table, opts)
	if err != nil {
		return entities.LongTable{}, entities.WideTable{}, stats, err
	}

	wide, err := Pivot(long, opts.Duplicates)
	if err != nil {
		return entities.LongTable{}, entities.WideTable{}, stats, err
	}

	return long, wide, stats, nil
}

// Long renames the raw columns, drops rows without country, year or indicator
// code and coerces YEAR to an integer. Row order is preserved.
func Long(table entities.ObservationTable, opts Options) (entities.LongTable, Stats, error) {
	stats := Stats{InputRows: len(table.Rows)}

	if err := CheckColumns(table); err != nil {
		return entities.LongTable{}, stats, err
	}

	countryColumn := opts.CountryColumn
	if countryColumn == "" {
		countryColumn = entities.ColumnCountry
	}

	long := entities.LongTable{
		CountryColumn: countryColumn,
		Rows:          make([]entities.LongRow, 0, len(table.Rows)),
	}

	for _, rec := range table.Rows {
		country := deref(rec.SpatialDim)
		year := deref(rec.TimeDim)
		if country == "" || year == "" || strings.TrimSpace(rec.IndicatorCode) == "" {
			stats.DroppedRows++
			continue
		}

		y, err := coerceYear(year)
		if err != nil {
			return entities.LongTable{}, stats, &YearError{IndicatorCode: rec.IndicatorCode, Country: country, Value: year}
		}

		long.Rows = append(long.Rows, entities.LongRow{
			Country:       country,
			Year:          y,
			IndicatorCode: rec.IndicatorCode,
			NumericValue:  rec.NumericValue,
		})
	}

	return long, stats, nil
}

// Pivot builds the wide table from the long table. Countries are sorted, columns
// are sorted by (indicator, year), and a cell exists for every long row.
func Pivot(long entities.LongTable, policy DuplicatePolicy) (entities.WideTable, error) {
	type acc struct {
		sum   float64
		count int
	}

	wide := entities.WideTable{
		CountryColumn: long.CountryColumn,
		Cells:         make(map[string]map[entities.ColumnKey]*float64),
	}
	columns := make(map[entities.ColumnKey]struct{})
	var means map[string]map[entities.ColumnKey]*acc
	if policy == DuplicateMean {
		means = make(map[string]map[entities.ColumnKey]*acc)
	}

	for _, row := range long.Rows {
		key := entities.ColumnKey{IndicatorCode: row.IndicatorCode, Year: row.Year}
		columns[key] = struct{}{}

		cells, ok := wide.Cells[row.Country]
		if !ok {
			cells = make(map[entities.ColumnKey]*float64)
			wide.Cells[row.Country] = cells
			wide.Countries = append(wide.Countries, row.Country)
		}

		_, exists := cells[key]
		switch policy {
		case DuplicateReject:
			if exists {
				return entities.WideTable{}, &DuplicateError{Country: row.Country, IndicatorCode: row.IndicatorCode, Year: row.Year}
			}
			cells[key] = copyValue(row.NumericValue)

		case DuplicateMean:
			if means[row.Country] == nil {
				means[row.Country] = make(map[entities.ColumnKey]*acc)
			}
			a := means[row.Country][key]
			if a == nil {
				a = &acc{}
				means[row.Country][key] = a
			}
			if row.NumericValue != nil && !math.IsNaN(*row.NumericValue) {
				a.sum += *row.NumericValue
				a.count++
			}
			if a.count == 0 {
				cells[key] = nil
			} else {
				mean := a.sum / float64(a.count)
				cells[key] = &mean
			}

		default:
			cells[key] = copyValue(row.NumericValue)
		}
	}

	slices.Sort(wide.Countries)

	wide.Columns = make([]entities.ColumnKey, 0, len(columns))
	for key := range columns {
		wide.Columns = append(wide.Columns, key)
	}
	slices.SortFunc(wide.Columns, func(a, b entities.ColumnKey) int {
		switch {
		case a.Less(b):
			return -1
		case b.Less(a):
			return 1
		default:
			return 0
		}
	})

	return wide, nil
}

// coerceYear accepts integer text and float text with a zero fraction ("2020.0")
func coerceYear(s string) (int, error) {
	s = strings.TrimSpace(s)

	var year int64
	if y, err := strconv.ParseInt(s, 10, 64); err == nil {
		year = y
	} else {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
			return 0, fmt.Errorf("not an integer: %q", s)
		}
		if f > math.MaxInt32 || f < math.MinInt32 {
			return 0, fmt.Errorf("out of range: %q", s)
		}
		year = int64(f)
	}

	if year > math.MaxInt32 || year < math.MinInt32 {
		return 0, fmt.Errorf("out of range: %q", s)
	}
	return int(year), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func copyValue(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
