package census

import (
	"math"
	"strconv"
	"strings"
)

// Dataset derives one per-tract metric from a set of ACS variables.
type Dataset struct {
	// Name is the value column and the file stem, e.g. "home_ownership_rate".
	Name string
	Vars []string
	// Derive computes the tract value from parsed variables. Unparseable
	// cells are NaN. Returning false drops the tract.
	Derive func(v map[string]float64) (float64, bool)
}

// Datasets returns the tract metrics the built-in overlays and their
// companions are built from.
func Datasets() []Dataset {
	return []Dataset{
		{Name: "median_household_income", Vars: []string{"B19013_001E"}, Derive: raw("B19013_001E")},
		{Name: "avg_household_size", Vars: []string{"B25010_001E"}, Derive: raw("B25010_001E")},
		{
			Name:   "vehicles_per_household",
			Vars:   vehicleVars,
			Derive: vehiclesPerHousehold,
		},
		{Name: "median_rooms_per_household", Vars: []string{"B25018_001E"}, Derive: raw("B25018_001E")},
		{
			Name:   "college_attainment",
			Vars:   []string{"B15003_001E", "B15003_022E", "B15003_023E", "B15003_024E", "B15003_025E"},
			Derive: ratio("B15003_001E", "B15003_022E", "B15003_023E", "B15003_024E", "B15003_025E"),
		},
		{
			Name:   "home_ownership_rate",
			Vars:   []string{"B25003_001E", "B25003_002E"},
			Derive: ratio("B25003_001E", "B25003_002E"),
		},
	}
}

// Lookup finds datasets by name. Unknown names are returned separately.
func Lookup(names []string) ([]Dataset, []string) {
	all := Datasets()
	var out []Dataset
	var unknown []string
	for _, n := range names {
		found := false
		for _, d := range all {
			if d.Name == n {
				out = append(out, d)
				found = true
				break
			}
		}
		if !found {
			unknown = append(unknown, n)
		}
	}
	return out, unknown
}

// B25044 tenure by vehicles available: 001 is occupied units, 004-008 owner
// households with 1..5+ vehicles, 011-015 renter households with 1..5+.
var vehicleVars = []string{
	"B25044_001E",
	"B25044_004E", "B25044_005E", "B25044_006E", "B25044_007E", "B25044_008E",
	"B25044_011E", "B25044_012E", "B25044_013E", "B25044_014E", "B25044_015E",
}

// vehiclesPerHousehold weights each vehicles-available bucket by its count,
// with 5+ counted as 5.
func vehiclesPerHousehold(v map[string]float64) (float64, bool) {
	var total float64
	for i, owner := range vehicleVars[1:6] {
		renter := vehicleVars[6+i]
		total += float64(i+1) * (v[owner] + v[renter])
	}
	return safeRatio(total, v["B25044_001E"]), true
}

func raw(name string) func(map[string]float64) (float64, bool) {
	return func(v map[string]float64) (float64, bool) {
		x := v[name]
		return x, !math.IsNaN(x)
	}
}

// ratio divides the sum of the numerator variables by den, rounded to two
// decimals.
func ratio(den string, nums ...string) func(map[string]float64) (float64, bool) {
	return func(v map[string]float64) (float64, bool) {
		var sum float64
		for _, n := range nums {
			sum += v[n]
		}
		return safeRatio(sum, v[den]), true
	}
}

// safeRatio returns num/den rounded to two decimals, or 0 when either side
// is unusable or den is zero.
func safeRatio(num, den float64) float64 {
	if den == 0 || math.IsNaN(num) || math.IsNaN(den) {
		return 0
	}
	r := math.Round(num/den*100) / 100
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return r
}

// Build computes the dataset's value,GEOID rows from an ACS table. It
// returns the rows and the number of tracts dropped.
func Build(t *Table, d Dataset) ([][]string, int) {
	idx := make(map[string]int, len(d.Vars))
	for _, name := range d.Vars {
		idx[name] = t.Index(name)
	}

	rows := make([][]string, 0, len(t.Rows))
	dropped := 0
	for i, row := range t.Rows {
		vals := make(map[string]float64, len(d.Vars))
		for name, j := range idx {
			vals[name] = math.NaN()
			if j >= 0 {
				if f, err := strconv.ParseFloat(strings.TrimSpace(row[j]), 64); err == nil {
					vals[name] = f
				}
			}
		}
		v, ok := d.Derive(vals)
		if !ok {
			dropped++
			continue
		}
		rows = append(rows, []string{strconv.FormatFloat(v, 'f', -1, 64), t.GEOID(i)})
	}
	return rows, dropped
}
