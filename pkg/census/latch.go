package census

import (
	"context"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tract-overlays/internal/fetcher"
)

// LATCH (Local Area Transportation Characteristics for Households) publishes
// estimated weekday vehicle miles per household for every tract. The
// emissions dataset converts those miles to annual tailpipe CO2.
const (
	LatchDataset = "latch_emissions"
	LatchColumn  = "co2_metric_tons_per_household"

	latchGeocode = "geocode"
	latchMiles   = "est_vmiles"
)

// Average passenger vehicle emissions and weekday driving days per year.
const (
	gramsCO2PerMile    = 400
	drivingDaysPerYear = 250
)

// GEOIDWidth is the digit count of a tract GEOID.
const GEOIDWidth = 11

// LatchStats counts the rows of a LATCH extract.
type LatchStats struct {
	Rows   int `json:"rows"`
	InArea int `json:"in_area"`
	Kept   int `json:"kept"`
}

// LatchCO2 converts weekday vehicle miles per household to metric tons of
// CO2 per household per year, rounded to three decimals.
func LatchCO2(vmiles float64) float64 {
	return math.Round(vmiles*gramsCO2PerMile*drivingDaysPerYear/1e6*1000) / 1000
}

// PadGEOID restores the leading zeros a geocode loses when it is stored as
// a number, dropping any ".0" the export added.
func PadGEOID(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '.'); i >= 0 && strings.Trim(s[i+1:], "0") == "" {
		s = s[:i]
	}
	if len(s) < GEOIDWidth {
		s = strings.Repeat("0", GEOIDWidth-len(s)) + s
	}
	return s
}

// BuildLatch reads a LATCH estimate CSV and returns co2,GEOID rows for the
// tracts of q's county. Rows without a numeric est_vmiles are dropped.
func BuildLatch(ctx context.Context, r io.Reader, q Query) ([][]string, LatchStats, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{
		HasHeader:  true,
		HeaderCh:   headerCh,
		LazyQuotes: true,
		TrimSpace:  true,
	})

	var (
		stats LatchStats
		rows  [][]string
	)
	geoCol, milesCol := -1, -1
	prefix := q.Prefix()

	for row := range rowCh {
		if geoCol < 0 {
			// The header is sent before the first row.
			var err error
			if geoCol, milesCol, err = latchColumns(<-headerCh); err != nil {
				return nil, stats, err
			}
		}

		stats.Rows++
		if geoCol >= len(row) || milesCol >= len(row) {
			continue
		}
		geoid := PadGEOID(row[geoCol])
		if !strings.HasPrefix(geoid, prefix) {
			continue
		}
		stats.InArea++

		miles, err := strconv.ParseFloat(row[milesCol], 64)
		if err != nil || math.IsNaN(miles) || math.IsInf(miles, 0) {
			continue
		}
		stats.Kept++
		rows = append(rows, []string{strconv.FormatFloat(LatchCO2(miles), 'f', -1, 64), geoid})
	}
	if err := <-errCh; err != nil {
		return nil, stats, eris.Wrap(err, "census: read latch file")
	}

	if geoCol < 0 {
		select {
		case header := <-headerCh:
			if _, _, err := latchColumns(header); err != nil {
				return nil, stats, err
			}
		default:
			return nil, stats, eris.New("census: latch file is empty")
		}
	}
	return rows, stats, nil
}

func latchColumns(header []string) (int, int, error) {
	geoCol, milesCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(name) {
		case latchGeocode:
			geoCol = i
		case latchMiles:
			milesCol = i
		}
	}
	if geoCol < 0 {
		return -1, -1, eris.Errorf("census: latch file has no %s column", latchGeocode)
	}
	if milesCol < 0 {
		return -1, -1, eris.Errorf("census: latch file has no %s column", latchMiles)
	}
	return geoCol, milesCol, nil
}

// WriteLatch builds the latch emissions dataset from the extract returned by
// open. An existing file is kept unless Force is set, and open is not called.
func (w *Writer) WriteLatch(ctx context.Context, open func(ctx context.Context) (io.ReadCloser, error)) (Result, LatchStats, error) {
	path := w.Path(Dataset{Name: LatchDataset})
	res := Result{Dataset: LatchDataset, Path: path}
	log := zap.L().With(zap.String("dataset", LatchDataset), zap.String("path", path))

	if w.exists(path) {
		log.Info("dataset exists, skipping")
		res.Existed = true
		return res, LatchStats{}, nil
	}
	if err := w.mkdir(); err != nil {
		return res, LatchStats{}, err
	}

	body, err := open(ctx)
	if err != nil {
		return res, LatchStats{}, eris.Wrap(err, "census: open latch file")
	}
	defer body.Close() //nolint:errcheck

	rows, stats, err := BuildLatch(ctx, body, w.Query)
	if err != nil {
		return res, stats, err
	}
	if err := writeCSV(path, []string{LatchColumn, "GEOID"}, rows); err != nil {
		return res, stats, err
	}

	res.Rows, res.Dropped = stats.Kept, stats.InArea-stats.Kept
	log.Info("dataset written",
		zap.Int("rows", res.Rows),
		zap.Int("dropped", res.Dropped),
		zap.Int("outside_county", stats.Rows-stats.InArea),
	)
	return res, stats, nil
}
