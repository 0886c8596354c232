package entities

// Country column names used for the long and wide outputs
const (
	ColumnCountry       = "COUNTRY"
	ColumnCountryRegion = "COUNTRY/REGION"
	ColumnRegion        = "REGION"
	ColumnYear          = "YEAR"
)

// CountryColumns lists the accepted names for the renamed SpatialDim column
var CountryColumns = []string{ColumnCountry, ColumnCountryRegion, ColumnRegion}

// LongRow is one cleaned observation
type LongRow struct {
	Country       string   `json:"country"`
	Year          int      `json:"year"`
	IndicatorCode string   `json:"indicatorCode"`
	NumericValue  *float64 `json:"numericValue"`
}

// LongTable holds one row per observation after cleaning and renaming.
type LongTable struct {
	CountryColumn string    `json:"countryColumn"`
	Rows          []LongRow `json:"rows"`
}

// Header returns the column names of the long table in output order
func (t LongTable) Header() []string {
	country := t.CountryColumn
	if country == "" {
		country = ColumnCountry
	}
	return []string{country, ColumnYear, FieldIndicatorCode, FieldNumericValue}
}

// ColumnKey is the composite (indicator, year) column of the wide table
type ColumnKey struct {
	IndicatorCode string `json:"indicatorCode"`
	Year          int    `json:"year"`
}

// Less orders keys by indicator code, then year
func (k ColumnKey) Less(other ColumnKey) bool {
	if k.IndicatorCode != other.IndicatorCode {
		return k.IndicatorCode < other.IndicatorCode
	}
	return k.Year < other.Year
}

// WideTable is the country x (indicator, year) pivot of a LongTable.
// A cell missing from Cells means no long row exists for it; a present nil cell
// means a long row exists with a null value.
type WideTable struct {
	CountryColumn string                            `json:"countryColumn"`
	Countries     []string                          `json:"countries"`
	Columns       []ColumnKey                       `json:"columns"`
	Cells         map[string]map[ColumnKey]*float64 `json:"-"`
}

// Cell returns the value at (country, key) and whether the cell exists
func (t WideTable) Cell(country string, key ColumnKey) (*float64, bool) {
	row, ok := t.Cells[country]
	if !ok {
		return nil, false
	}
	v, ok := row[key]
	return v, ok
}
