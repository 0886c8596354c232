package validation

import (
	"strings"
	"testing"

	"github.com/giygas/gho-indicators/entities"
	"github.com/giygas/gho-indicators/interfaces"
	"github.com/stretchr/testify/assert"
)

var _ interfaces.DataValidator = (*DataValidatorImpl)(nil)

func num(f float64) *float64 { return &f }

func TestReportDataQuality(t *testing.T) {
	long := entities.LongTable{Rows: []entities.LongRow{
		{Country: "USA", Year: 2020, IndicatorCode: "X1", NumericValue: num(1)},
		{Country: "USA", Year: 2020, IndicatorCode: "X1", NumericValue: num(2)},
		{Country: "USA", Year: 2020, IndicatorCode: "X1"},
		{Country: "FRA", Year: 2021, IndicatorCode: "X2"},
	}}
	wide := entities.WideTable{
		Countries: []string{"FRA", "USA"},
		Columns: []entities.ColumnKey{
			{IndicatorCode: "X1", Year: 2020},
			{IndicatorCode: "X2", Year: 2021},
		},
	}

	report := NewDataValidator().ReportDataQuality(long, wide)

	assert.Equal(t, 4, report.LongRows)
	assert.Equal(t, 2, report.Countries)
	assert.Equal(t, 2, report.Indicators)
	assert.Equal(t, 2, report.WideColumns)
	assert.Equal(t, 2, report.NullValues)
	assert.Equal(t, 1, report.DuplicateCells)
	assert.Equal(t, []string{"USA|X1|2020"}, report.DuplicateKeys)
}

func TestReportDataQualityEmpty(t *testing.T) {
	report := NewDataValidator().ReportDataQuality(entities.LongTable{}, entities.WideTable{})

	assert.Zero(t, report.LongRows)
	assert.Zero(t, report.DuplicateCells)
	assert.NotNil(t, report.DuplicateKeys)
	assert.NotNil(t, report.EmptyIndicators)
	assert.NotNil(t, report.UnavailableIndicators)
}

func TestReportCapsDuplicateKeys(t *testing.T) {
	var rows []entities.LongRow
	for year := 2000; year < 2020; year++ {
		rows = append(rows,
			entities.LongRow{Country: "USA", Year: year, IndicatorCode: "X1"},
			entities.LongRow{Country: "USA", Year: year, IndicatorCode: "X1"},
		)
	}

	report := NewDataValidator().ReportDataQuality(entities.LongTable{Rows: rows}, entities.WideTable{})

	assert.Equal(t, 20, report.DuplicateCells)
	assert.Len(t, report.DuplicateKeys, maxReportedKeys)
}

func TestLogReportNil(t *testing.T) {
	assert.NotPanics(t, func() {
		LogReport("HIV", nil)
		LogReport("HIV", &interfaces.DataQualityReport{DroppedRows: 1, DuplicateCells: 1, UnavailableIndicators: []string{"X"}})
	})
}

func TestValidateTopicName(t *testing.T) {
	v := NewDataValidator()

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"plain", "HIV", false},
		{"spaces", "Universal Health Coverage", false},
		{"slug", "patient_safety", false},
		{"hyphen", "oral-health", false},
		{"digits", "International Health Regulations 2005", false},
		{"acronym", "Water Sanitation and Hygiene WASH", false},
		{"empty", "", true},
		{"blank", "   ", true},
		{"traversal", "../etc", true},
		{"script", "<script>", true},
		{"slash", "a/b", true},
		{"dot", "hiv.csv", true},
		{"too long", strings.Repeat("ab", 33), true},
		{"repetition", "aaaaaaaaaaaa", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateTopicName(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
