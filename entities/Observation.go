package entities

// Raw GHO field names used by the observation payloads
const (
	FieldSpatialDim    = "SpatialDim"
	FieldTimeDim       = "TimeDim"
	FieldIndicatorCode = "IndicatorCode"
	FieldNumericValue  = "NumericValue"
)

// ObservationRecord is one raw data point as returned by the per-indicator endpoint.
// A nil pointer means the field was absent or null in the payload.
type ObservationRecord struct {
	SpatialDim    *string  `json:"SpatialDim"`
	TimeDim       *string  `json:"TimeDim"` // raw scalar text, e.g. "2020"
	IndicatorCode string   `json:"IndicatorCode"`
	NumericValue  *float64 `json:"NumericValue"`
}

// ObservationTable is the concatenation of observation rows across indicators.
// Columns is the union of the field names seen in any row.
type ObservationTable struct {
	Columns map[string]bool
	Rows    []ObservationRecord
}

// NewObservationTable returns an empty table with the IndicatorCode column present,
// since every fetched row is tagged with its source indicator.
func NewObservationTable() ObservationTable {
	return ObservationTable{
		Columns: map[string]bool{FieldIndicatorCode: true},
		Rows:    make([]ObservationRecord, 0),
	}
}

// Append concatenates other onto t, merging column sets
func (t *ObservationTable) Append(other ObservationTable) {
	if t.Columns == nil {
		t.Columns = make(map[string]bool, len(other.Columns))
	}
	for col := range other.Columns {
		t.Columns[col] = true
	}
	t.Rows = append(t.Rows, other.Rows...)
}

// HasColumn reports whether any row carried the given field
func (t ObservationTable) HasColumn(name string) bool {
	return t.Columns[name]
}
