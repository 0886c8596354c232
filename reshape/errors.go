package reshape

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingColumns is returned when a hard-required raw column is absent
	ErrMissingColumns = errors.New("missing required columns")

	// ErrYearCoercion is returned when a retained YEAR value is not an integer
	ErrYearCoercion = errors.New("year is not integer-coercible")

	// ErrDuplicateObservation is returned under DuplicateReject when two rows
	// share (country, indicator, year)
	ErrDuplicateObservation = errors.New("duplicate observation")
)

// SchemaError names the required columns that were absent
type SchemaError struct {
	Expected []string
	Missing  []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("expected columns [%s], missing [%s]",
		strings.Join(e.Expected, ", "), strings.Join(e.Missing, ", "))
}

func (e *SchemaError) Unwrap() error {
	return ErrMissingColumns
}

// YearError describes the first non-numeric year found
type YearError struct {
	IndicatorCode string
	Country       string
	Value         string
}

func (e *YearError) Error() string {
	return fmt.Sprintf("indicator %s, country %s: YEAR %q is not an integer", e.IndicatorCode, e.Country, e.Value)
}

func (e *YearError) Unwrap() error {
	return ErrYearCoercion
}

// DuplicateError identifies a colliding pivot cell
type DuplicateError struct {
	Country       string
	IndicatorCode string
	Year          int
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("more than one observation for country %s, indicator %s, year %d", e.Country, e.IndicatorCode, e.Year)
}

func (e *DuplicateError) Unwrap() error {
	return ErrDuplicateObservation
}
