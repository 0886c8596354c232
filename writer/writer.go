// Package writer persists long and wide tables as delimited flat files and,
// optionally, as an xlsx workbook.
package writer

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/giygas/gho-indicators/entities"
	"github.com/giygas/gho-indicators/logging"
)

// Output formats
const (
	FormatCSV = "csv"
	FormatTSV = "tsv"
)

// Options controls the delimited output
type Options struct {
	Format string // csv (default) or tsv
}

func (o Options) comma() rune {
	if strings.EqualFold(o.Format, FormatTSV) {
		return '\t'
	}
	return ','
}

// WriteLong writes the long table with a single header row and no index column
func WriteLong(w io.Writer, long entities.LongTable, opts Options) error {
	cw := csv.NewWriter(w)
	cw.Comma = opts.comma()

	if err := cw.Write(long.Header()); err != nil {
		return fmt.Errorf("write long header: %w", err)
	}

	record := make([]string, 4)
	for _, row := range long.Rows {
		record[0] = row.Country
		record[1] = strconv.Itoa(row.Year)
		record[2] = row.IndicatorCode
		record[3] = FormatValue(row.NumericValue)
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write long row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteWide writes the pivot with its two column levels as the first two header
// rows, followed by a row naming the country index
func WriteWide(w io.Writer, wide entities.WideTable, opts Options) error {
	cw := csv.NewWriter(w)
	cw.Comma = opts.comma()

	width := len(wide.Columns) + 1
	codes := make([]string, 0, width)
	years := make([]string, 0, width)
	codes = append(codes, entities.FieldIndicatorCode)
	years = append(years, entities.ColumnYear)
	for _, key := range wide.Columns {
		codes = append(codes, key.IndicatorCode)
		years = append(years, strconv.Itoa(key.Year))
	}

	index := make([]string, width)
	index[0] = countryColumn(wide.CountryColumn)

	for _, header := range [][]string{codes, years, index} {
		if err := cw.Write(header); err != nil {
			return fmt.Errorf("write wide header: %w", err)
		}
	}

	record := make([]string, width)
	for _, country := range wide.Countries {
		record[0] = country
		for i, key := range wide.Columns {
			v, _ := wide.Cell(country, key)
			record[i+1] = FormatValue(v)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write wide row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// FormatValue renders a value the way the reference dataframe output does:
// shortest round-trip digits, ".0" on integral values, scientific notation
// outside [1e-4, 1e16). Nil and NaN render as an empty field.
func FormatValue(v *float64) string {
	if v == nil || math.IsNaN(*v) {
		return ""
	}
	f := *v
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}

	abs := math.Abs(f)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}

	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func countryColumn(name string) string {
	if name == "" {
		return entities.ColumnCountry
	}
	return name
}

// Paths lists the files written for one topic
type Paths struct {
	Long     string
	Wide     string
	Workbook string // empty unless a workbook was requested
}

// All returns the written paths in a stable order
func (p Paths) All() []string {
	all := []string{p.Long, p.Wide}
	if p.Workbook != "" {
		all = append(all, p.Workbook)
	}
	return all
}

// FileWriter writes a topic's tables under Dir. A topic's own output directory
// replaces Dir when absolute and is nested under it when relative.
type FileWriter struct {
	Dir      string
	Format   string
	Workbook bool
}

// Write creates the output directory and writes the long and wide files, then the
// workbook if enabled. Existing files are overwritten. Paths.Workbook stays empty
// when the workbook could not be written.
func (fw FileWriter) Write(topic entities.Topic, long entities.LongTable, wide entities.WideTable) (Paths, error) {
	dir := fw.Dir
	switch {
	case topic.OutputDir == "":
	case filepath.IsAbs(topic.OutputDir):
		dir = topic.OutputDir
	default:
		dir = filepath.Join(fw.Dir, topic.OutputDir)
	}
	if dir == "" {
		dir = "."
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return Paths{}, fmt.Errorf("create output directory %s: %w", dir, err)
	}

	opts := Options{Format: fw.Format}
	paths := Paths{
		Long: filepath.Join(dir, topic.LongFile),
		Wide: filepath.Join(dir, topic.WideFile),
	}

	if err := writeFile(paths.Long, func(w io.Writer) error { return WriteLong(w, long, opts) }); err != nil {
		return Paths{}, err
	}
	if err := writeFile(paths.Wide, func(w io.Writer) error { return WriteWide(w, wide, opts) }); err != nil {
		return Paths{}, err
	}

	// The flat files are the product; a workbook that cannot be written is
	// reported and skipped.
	if fw.Workbook {
		path := filepath.Join(dir, workbookName(topic))
		if err := WriteWorkbook(path, long, wide); err != nil {
			logging.Warn("Skipping workbook", "topic", topic.Name, "path", path, "error", err)
			_ = os.Remove(path)
		} else {
			paths.Workbook = path
		}
	}

	return paths, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	buffered := bufio.NewWriterSize(f, 1<<16)
	if err := write(buffered); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := buffered.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

// workbookName derives the workbook file from the long file name:
// hiv_all_long.csv -> hiv_all.xlsx
func workbookName(topic entities.Topic) string {
	base := strings.TrimSuffix(topic.LongFile, filepath.Ext(topic.LongFile))
	base = strings.TrimSuffix(base, "_long")
	if base == "" {
		base = "topic"
	}
	return base + ".xlsx"
}
