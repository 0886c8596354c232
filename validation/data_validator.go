// Package validation provides data quality reporting and input validation for
// the indicator harvester.
package validation

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/giygas/gho-indicators/entities"
	"github.com/giygas/gho-indicators/interfaces"
	"github.com/giygas/gho-indicators/logging"
)

// maxReportedKeys caps the sample lists stored in a report
const maxReportedKeys = 10

var (
	// Topic names and slugs: letters, digits, spaces, hyphens, underscores
	topicNameRegex = regexp.MustCompile(`^[a-zA-Z0-9 _\-]+$`)

	dangerousPatterns = []string{
		"../", "..\\", "%2e%2e", "file://",
		"<script", "javascript:", "$(", "${", "`",
	}
)

// DataValidatorImpl implements the interfaces.DataValidator interface
type DataValidatorImpl struct{}

// NewDataValidator creates a new data validator
func NewDataValidator() interfaces.DataValidator {
	return &DataValidatorImpl{}
}

// ReportDataQuality counts what a reshaped topic contains: rows, countries,
// contributing indicators, null values and (country, indicator, year) triples
// seen more than once in the long table
func (v *DataValidatorImpl) ReportDataQuality(long entities.LongTable, wide entities.WideTable) *interfaces.DataQualityReport {
	report := &interfaces.DataQualityReport{
		LongRows:              len(long.Rows),
		Countries:             len(wide.Countries),
		WideColumns:           len(wide.Columns),
		DuplicateKeys:         []string{},
		EmptyIndicators:       []string{},
		UnavailableIndicators: []string{},
	}

	indicators := make(map[string]struct{})
	seen := make(map[string]int)
	for _, row := range long.Rows {
		indicators[row.IndicatorCode] = struct{}{}

		if row.NumericValue == nil || math.IsNaN(*row.NumericValue) {
			report.NullValues++
		}

		key := row.Country + "|" + row.IndicatorCode + "|" + strconv.Itoa(row.Year)
		seen[key]++
		if seen[key] == 2 {
			report.DuplicateCells++
			if len(report.DuplicateKeys) < maxReportedKeys {
				report.DuplicateKeys = append(report.DuplicateKeys, key)
			}
		}
	}
	report.Indicators = len(indicators)

	return report
}

// LogReport writes the report of a topic run, as warnings when something was
// skipped or collapsed
func LogReport(topic string, report *interfaces.DataQualityReport) {
	if report == nil {
		return
	}

	logging.Info("Data quality report",
		"topic", topic,
		"long_rows", report.LongRows,
		"countries", report.Countries,
		"indicators", report.Indicators,
		"wide_columns", report.WideColumns,
		"null_values", report.NullValues,
	)

	if report.DroppedRows > 0 {
		logging.Warn("Rows without country, year or indicator code were dropped",
			"topic", topic,
			"count", report.DroppedRows,
		)
	}
	if report.DuplicateCells > 0 {
		logging.Warn("Duplicate observations collapsed in the wide table",
			"topic", topic,
			"count", report.DuplicateCells,
			"examples", report.DuplicateKeys,
		)
	}
	if len(report.UnavailableIndicators) > 0 {
		logging.Warn("Indicators skipped after an error status",
			"topic", topic,
			"count", len(report.UnavailableIndicators),
			"indicators", report.UnavailableIndicators,
		)
	}
	if len(report.EmptyIndicators) > 0 {
		logging.Debug("Indicators without observations",
			"topic", topic,
			"count", len(report.EmptyIndicators),
			"indicators", report.EmptyIndicators,
		)
	}
}

// ValidateTopicName validates a topic name or slug taken from user input
func (v *DataValidatorImpl) ValidateTopicName(input string) error {
	if strings.TrimSpace(input) == "" {
		return fmt.Errorf("topic cannot be empty")
	}

	if len(input) > 64 {
		return fmt.Errorf("topic too long: maximum 64 characters")
	}

	lowerInput := strings.ToLower(input)
	for _, pattern := range dangerousPatterns {
		if strings.Contains(lowerInput, pattern) {
			return fmt.Errorf("topic contains potentially dangerous content")
		}
	}

	if !topicNameRegex.MatchString(input) {
		return fmt.Errorf("topic contains invalid characters. Only letters, numbers, spaces, hyphens and underscores are allowed")
	}

	if v.hasExcessiveRepetition(input) {
		return fmt.Errorf("topic contains excessive character repetition")
	}

	return nil
}

// hasExcessiveRepetition checks for the same character repeated more than 10 times consecutively
func (v *DataValidatorImpl) hasExcessiveRepetition(input string) bool {
	for i := 0; i < len(input)-10; i++ {
		allSame := true
		for j := 1; j <= 10; j++ {
			if input[i] != input[i+j] {
				allSame = false
				break
			}
		}
		if allSame {
			return true
		}
	}
	return false
}
