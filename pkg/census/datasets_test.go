package census

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func table(header []string, rows ...[]string) *Table {
	return &Table{Header: append(append([]string(nil), header...), "state", "county", "tract"), Rows: rows}
}

func geo(tract string, vals ...string) []string {
	return append(vals, "06", "037", tract)
}

func dataset(t *testing.T, name string) Dataset {
	t.Helper()
	ds, unknown := Lookup([]string{name})
	require.Empty(t, unknown)
	require.Len(t, ds, 1)
	return ds[0]
}

func TestBuild_Raw(t *testing.T) {
	tbl := table([]string{"B19013_001E"},
		geo("101110", "72000"),
		geo("101122", ""),
		geo("101210", "-666666666"),
	)

	rows, dropped := Build(tbl, dataset(t, "median_household_income"))
	assert.Equal(t, 1, dropped, "unparseable raw values are dropped")
	assert.Equal(t, [][]string{
		{"72000", "06037101110"},
		{"-666666666", "06037101210"},
	}, rows)
}

func TestBuild_VehiclesPerHousehold(t *testing.T) {
	// 100 households: owners 10x1, 20x2, 5x3, 0x4, 1x5; renters 30x1, 10x2, 0x3, 0x4, 0x5.
	tbl := table(vehicleVars,
		geo("101110", "100", "10", "20", "5", "0", "1", "30", "10", "0", "0", "0"),
		geo("101122", "0", "0", "0", "0", "0", "0", "0", "0", "0", "0", "0"),
		geo("101210", "50", "", "0", "0", "0", "0", "0", "0", "0", "0", "0"),
	)

	rows, dropped := Build(tbl, dataset(t, "vehicles_per_household"))
	assert.Zero(t, dropped)
	require.Len(t, rows, 3)
	// (10 + 40 + 15 + 0 + 5 + 30 + 20) / 100
	assert.Equal(t, []string{"1.2", "06037101110"}, rows[0])
	assert.Equal(t, []string{"0", "06037101122"}, rows[1], "no households divides to 0")
	assert.Equal(t, []string{"0", "06037101210"}, rows[2], "missing buckets fill to 0")
}

func TestBuild_Ratios(t *testing.T) {
	tbl := table([]string{"B15003_001E", "B15003_022E", "B15003_023E", "B15003_024E", "B15003_025E"},
		geo("101110", "300", "50", "30", "10", "10"),
		geo("101122", "0", "0", "0", "0", "0"),
	)
	rows, _ := Build(tbl, dataset(t, "college_attainment"))
	assert.Equal(t, []string{"0.33", "06037101110"}, rows[0])
	assert.Equal(t, []string{"0", "06037101122"}, rows[1])

	tbl = table([]string{"B25003_001E", "B25003_002E"}, geo("101110", "1520", "980"))
	rows, _ = Build(tbl, dataset(t, "home_ownership_rate"))
	assert.Equal(t, []string{"0.64", "06037101110"}, rows[0])
}

func TestSafeRatio(t *testing.T) {
	assert.Equal(t, 0.0, safeRatio(5, 0))
	assert.Equal(t, 0.5, safeRatio(1, 2))
	assert.Equal(t, 0.67, safeRatio(2, 3))
}

func TestLookup(t *testing.T) {
	ds, unknown := Lookup([]string{"home_ownership_rate", "rainfall", "avg_household_size"})
	require.Len(t, ds, 2)
	assert.Equal(t, "home_ownership_rate", ds[0].Name)
	assert.Equal(t, "avg_household_size", ds[1].Name)
	assert.Equal(t, []string{"rainfall"}, unknown)
}

func TestDatasets_UniqueNames(t *testing.T) {
	seen := map[string]bool{}
	for _, d := range Datasets() {
		assert.False(t, seen[d.Name], d.Name)
		seen[d.Name] = true
		assert.NotEmpty(t, d.Vars)
	}
	assert.Len(t, seen, 6)
}
