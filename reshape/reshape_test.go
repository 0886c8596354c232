package reshape

import (
	"errors"
	"testing"

	"github.com/giygas/gho-indicators/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func str(s string) *string   { return &s }
func num(f float64) *float64 { return &f }

func obs(country, year, code string, value *float64) entities.ObservationRecord {
	rec := entities.ObservationRecord{IndicatorCode: code, NumericValue: value}
	if country != "" {
		rec.SpatialDim = str(country)
	}
	if year != "" {
		rec.TimeDim = str(year)
	}
	return rec
}

func table(rows ...entities.ObservationRecord) entities.ObservationTable {
	t := entities.NewObservationTable()
	for _, col := range []string{"SpatialDim", "TimeDim", "NumericValue"} {
		t.Columns[col] = true
	}
	t.Rows = rows
	return t
}

func TestReshapeScenario(t *testing.T) {
	raw := table(
		obs("USA", "2020", "X1", num(5.0)),
		obs("USA", "2021", "X1", nil),
	)

	long, wide, stats, err := Reshape(raw, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.DroppedRows)

	assert.Equal(t, entities.ColumnCountry, long.CountryColumn)
	require.Len(t, long.Rows, 2)
	assert.Equal(t, entities.LongRow{Country: "USA", Year: 2020, IndicatorCode: "X1", NumericValue: num(5.0)}, long.Rows[0])
	assert.Nil(t, long.Rows[1].NumericValue)

	assert.Equal(t, []string{"USA"}, wide.Countries)
	assert.Equal(t, []entities.ColumnKey{{IndicatorCode: "X1", Year: 2020}, {IndicatorCode: "X1", Year: 2021}}, wide.Columns)

	v, ok := wide.Cell("USA", entities.ColumnKey{IndicatorCode: "X1", Year: 2020})
	require.True(t, ok)
	assert.Equal(t, 5.0, *v)

	v, ok = wide.Cell("USA", entities.ColumnKey{IndicatorCode: "X1", Year: 2021})
	assert.True(t, ok, "a null long row still has a wide cell")
	assert.Nil(t, v)
}

func TestMissingNumericValueColumnIsTolerated(t *testing.T) {
	raw := entities.NewObservationTable()
	raw.Columns["SpatialDim"] = true
	raw.Columns["TimeDim"] = true
	raw.Rows = []entities.ObservationRecord{obs("FRA", "2001", "X1", nil)}

	long, wide, _, err := Reshape(raw, Options{})
	require.NoError(t, err)
	require.Len(t, long.Rows, 1)
	assert.Nil(t, long.Rows[0].NumericValue)
	assert.Len(t, wide.Columns, 1)
}

func TestMissingRequiredColumns(t *testing.T) {
	raw := entities.NewObservationTable()
	raw.Columns["NumericValue"] = true
	raw.Rows = []entities.ObservationRecord{{IndicatorCode: "X1", NumericValue: num(1)}}

	_, _, _, err := Reshape(raw, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingColumns))

	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, []string{"SpatialDim", "TimeDim"}, schemaErr.Missing)
	assert.Contains(t, err.Error(), "SpatialDim, TimeDim")
}

func TestDropsIncompleteRows(t *testing.T) {
	raw := table(
		obs("", "2020", "X1", num(1)),
		obs("USA", "", "X1", num(2)),
		obs("USA", "2020", "", num(3)),
		obs("   ", "2020", "X1", num(4)),
		obs("USA", "2020", "X1", num(5)),
	)

	long, _, stats, err := Reshape(raw, Options{})
	require.NoError(t, err)
	assert.Equal(t, 4, stats.DroppedRows)
	assert.Equal(t, 5, stats.InputRows)
	require.Len(t, long.Rows, 1)
	assert.Equal(t, 5.0, *long.Rows[0].NumericValue)
}

func TestYearCoercion(t *testing.T) {
	long, _, _, err := Reshape(table(
		obs("USA", "2020.0", "X1", nil),
		obs("USA", " 2019 ", "X1", nil),
	), Options{})
	require.NoError(t, err)
	assert.Equal(t, 2020, long.Rows[0].Year)
	assert.Equal(t, 2019, long.Rows[1].Year)

	for _, bad := range []string{"2020-2021", "2020.5", "abc", "NaN", "1e20", "99999999999", "99999999999.0", "-2147483649"} {
		_, _, _, err := Reshape(table(obs("USA", bad, "X1", nil)), Options{})
		require.Error(t, err, bad)
		assert.ErrorIs(t, err, ErrYearCoercion)

		var yearErr *YearError
		require.ErrorAs(t, err, &yearErr)
		assert.Equal(t, "X1", yearErr.IndicatorCode)
	}
}

func TestCountryRegionColumn(t *testing.T) {
	long, wide, _, err := Reshape(table(obs("AFR", "2020", "X1", num(1))), Options{CountryColumn: entities.ColumnCountryRegion})
	require.NoError(t, err)
	assert.Equal(t, []string{"COUNTRY/REGION", "YEAR", "IndicatorCode", "NumericValue"}, long.Header())
	assert.Equal(t, entities.ColumnCountryRegion, wide.CountryColumn)
}

func TestDuplicatePolicies(t *testing.T) {
	key := entities.ColumnKey{IndicatorCode: "X1", Year: 2020}
	raw := table(
		obs("USA", "2020", "X1", num(2)),
		obs("USA", "2020", "X1", nil),
		obs("USA", "2020", "X1", num(4)),
	)

	t.Run("last", func(t *testing.T) {
		_, wide, _, err := Reshape(raw, Options{Duplicates: DuplicateLast})
		require.NoError(t, err)
		v, ok := wide.Cell("USA", key)
		require.True(t, ok)
		assert.Equal(t, 4.0, *v)
	})

	t.Run("last keeps a trailing null", func(t *testing.T) {
		_, wide, _, err := Reshape(table(obs("USA", "2020", "X1", num(2)), obs("USA", "2020", "X1", nil)), Options{})
		require.NoError(t, err)
		v, ok := wide.Cell("USA", key)
		require.True(t, ok)
		assert.Nil(t, v)
	})

	t.Run("mean", func(t *testing.T) {
		_, wide, _, err := Reshape(raw, Options{Duplicates: DuplicateMean})
		require.NoError(t, err)
		v, _ := wide.Cell("USA", key)
		require.NotNil(t, v)
		assert.Equal(t, 3.0, *v)
	})

	t.Run("mean of nulls is null", func(t *testing.T) {
		_, wide, _, err := Reshape(table(obs("USA", "2020", "X1", nil), obs("USA", "2020", "X1", nil)), Options{Duplicates: DuplicateMean})
		require.NoError(t, err)
		v, ok := wide.Cell("USA", key)
		assert.True(t, ok)
		assert.Nil(t, v)
	})

	t.Run("reject", func(t *testing.T) {
		_, _, _, err := Reshape(raw, Options{Duplicates: DuplicateReject})
		require.ErrorIs(t, err, ErrDuplicateObservation)
		var dupErr *DuplicateError
		require.ErrorAs(t, err, &dupErr)
		assert.Equal(t, DuplicateError{Country: "USA", IndicatorCode: "X1", Year: 2020}, *dupErr)
	})
}

func TestParseDuplicatePolicy(t *testing.T) {
	for in, want := range map[string]DuplicatePolicy{"": DuplicateLast, "last": DuplicateLast, "REJECT": DuplicateReject, " mean ": DuplicateMean} {
		got, err := ParseDuplicatePolicy(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Equal(t, got.String(), mustParse(t, got.String()).String())
	}

	_, err := ParseDuplicatePolicy("first")
	assert.Error(t, err)
}

func mustParse(t *testing.T, s string) DuplicatePolicy {
	t.Helper()
	p, err := ParseDuplicatePolicy(s)
	require.NoError(t, err)
	return p
}

func TestPivotOrderingAndRoundTrip(t *testing.T) {
	raw := table(
		obs("ZWE", "2001", "B", num(1)),
		obs("AFG", "2000", "B", num(2)),
		obs("AFG", "2010", "A", num(3)),
		obs("BRA", "1999", "A", nil),
		obs("AFG", "2001", "B", num(4)),
	)

	long, wide, _, err := Reshape(raw, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"AFG", "BRA", "ZWE"}, wide.Countries)
	assert.Equal(t, []entities.ColumnKey{
		{IndicatorCode: "A", Year: 1999},
		{IndicatorCode: "A", Year: 2010},
		{IndicatorCode: "B", Year: 2000},
		{IndicatorCode: "B", Year: 2001},
	}, wide.Columns)

	// every long row has its cell and every cell comes from a long row
	cells := 0
	for _, row := range long.Rows {
		v, ok := wide.Cell(row.Country, entities.ColumnKey{IndicatorCode: row.IndicatorCode, Year: row.Year})
		require.True(t, ok, "%+v has no wide cell", row)
		assert.Equal(t, row.NumericValue, v)
	}
	for _, country := range wide.Countries {
		cells += len(wide.Cells[country])
	}
	assert.Equal(t, len(long.Rows), cells)

	_, ok := wide.Cell("ZWE", entities.ColumnKey{IndicatorCode: "A", Year: 1999})
	assert.False(t, ok)
}
