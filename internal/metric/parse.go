package metric

import (
	"context"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tract-overlays/internal/fetcher"
	"github.com/sells-group/tract-overlays/internal/overlay"
)

// ParseStats counts what a parse kept and dropped.
type ParseStats struct {
	Rows    int
	Kept    int
	Skipped int
	// Header is the discarded header row, when the format has one.
	Header []string
}

// Parser turns (value, identifier) rows into a Record.
type Parser struct {
	Columns overlay.Columns
	stats   ParseStats
	rec     Record
}

// NewParser creates a parser for the given column layout.
func NewParser(cols overlay.Columns) *Parser {
	return &Parser{Columns: cols, rec: Record{}}
}

// Add consumes one data row. Rows too short for either column, with an
// empty identifier, or with a value that is not a finite number are skipped.
// A repeated identifier keeps its last value.
func (p *Parser) Add(row []string) {
	p.stats.Rows++
	if p.Columns.Value >= len(row) || p.Columns.Key >= len(row) {
		p.stats.Skipped++
		return
	}
	key := strings.TrimSpace(row[p.Columns.Key])
	v, ok := ParseValue(row[p.Columns.Value])
	if key == "" || !ok {
		p.stats.Skipped++
		return
	}
	p.rec[key] = v
	p.stats.Kept++
}

// Result returns the parsed record and counters.
func (p *Parser) Result() (Record, ParseStats) {
	return p.rec, p.stats
}

// ParseValue accepts plain numbers plus the thousands separators and
// currency sign spreadsheet exports leave behind.
func ParseValue(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// ParseCSV reads a delimited dataset, discarding the header row.
func ParseCSV(ctx context.Context, r io.Reader, cols overlay.Columns) (Record, ParseStats, error) {
	p := NewParser(cols)
	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{
		HasHeader:  true,
		HeaderCh:   headerCh,
		LazyQuotes: true,
		TrimSpace:  true,
	})
	for row := range rowCh {
		p.Add(row)
	}
	if err := <-errCh; err != nil {
		return nil, ParseStats{}, eris.Wrap(err, "metric: parse csv")
	}
	rec, stats := p.Result()
	select {
	case stats.Header = <-headerCh:
	default:
	}
	return rec, stats, nil
}

// ParseColumn returns every parseable value in column col of a delimited
// dataset, with no GEOID de-duplication. Total counts every data row.
func ParseColumn(ctx context.Context, r io.Reader, col int) (values []float64, total int, err error) {
	rowCh, errCh := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{
		HasHeader:  true,
		LazyQuotes: true,
		TrimSpace:  true,
	})
	for row := range rowCh {
		total++
		if col >= len(row) {
			continue
		}
		if v, ok := ParseValue(row[col]); ok {
			values = append(values, v)
		}
	}
	if err := <-errCh; err != nil {
		return nil, 0, eris.Wrap(err, "metric: parse column")
	}
	return values, total, nil
}

// ParseXLSX reads the first worksheet of a workbook, discarding the header
// row.
func ParseXLSX(ctx context.Context, path string, cols overlay.Columns) (Record, ParseStats, error) {
	p := NewParser(cols)
	rowCh, errCh := fetcher.StreamXLSX(ctx, path, fetcher.XLSXOptions{SkipRows: 1})
	for row := range rowCh {
		p.Add(row)
	}
	if err := <-errCh; err != nil {
		return nil, ParseStats{}, eris.Wrap(err, "metric: parse xlsx")
	}
	rec, stats := p.Result()
	return rec, stats, nil
}
