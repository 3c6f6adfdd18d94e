package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/tract-overlays/internal/overlay"
)

func writeBreaksDataset(t *testing.T) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("value,GEOID\n")
	for i := 1; i <= 100; i++ {
		fmt.Fprintf(&b, "%d,06037%06d\n", i, i)
	}
	b.WriteString("-666666666,06037999998\n")
	b.WriteString("N/A,06037999999\n")

	path := filepath.Join(t.TempDir(), "dataset.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func TestBreaks(t *testing.T) {
	out, err := execute(t, "breaks", writeBreaksDataset(t), "--bands", "4")
	require.NoError(t, err)

	var doc struct {
		Brackets []bracketYAML `yaml:"brackets"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	require.Len(t, doc.Brackets, 4)

	var cuts []float64
	for i, b := range doc.Brackets {
		assert.Equal(t, overlay.DefaultRamp[i], b.Color)
		if b.Max != nil {
			cuts = append(cuts, *b.Max)
		}
	}
	assert.Equal(t, []float64{25.75, 50.5, 75.25}, cuts)
	assert.Equal(t, 0.0, doc.Brackets[0].Min)
	assert.Nil(t, doc.Brackets[3].Max)
	assert.NotContains(t, out, "max: .inf")
	assert.Contains(t, out, "# average: 50.50\n")
	assert.Contains(t, out, "# clean values: 100 / 102 records\n")
}

func writeCSVFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dataset.csv")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func breakCuts(t *testing.T, out string) []float64 {
	t.Helper()
	var doc struct {
		Brackets []bracketYAML `yaml:"brackets"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	var cuts []float64
	for _, b := range doc.Brackets {
		if b.Max != nil {
			cuts = append(cuts, *b.Max)
		}
	}
	return cuts
}

func TestBreaks_UsesEveryRow(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		cuts  []float64
		clean string
	}{
		{
			name:  "repeated geoid",
			body:  "value,GEOID\n1,06037101110\n3,06037101110\n",
			cuts:  []float64{2},
			clean: "# clean values: 2 / 2 records",
		},
		{
			name:  "empty geoid",
			body:  "value,GEOID\n1,\n3,06037101210\n",
			cuts:  []float64{2},
			clean: "# clean values: 2 / 2 records",
		},
		{
			name:  "value only",
			body:  "value\n1\n3\nN/A\n",
			cuts:  []float64{2},
			clean: "# clean values: 2 / 3 records",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, "breaks", writeCSVFile(t, tt.body), "--bands", "2")
			require.NoError(t, err)
			assert.Equal(t, tt.cuts, breakCuts(t, out))
			assert.Contains(t, out, "# average: 2.00")
			assert.Contains(t, out, tt.clean)
		})
	}
}

func TestBreaks_NoCleanValues(t *testing.T) {
	_, err := execute(t, "breaks", writeCSVFile(t, "value,GEOID\n-1,06037101110\nN/A,06037101210\n"))
	assert.Error(t, err)
}

func TestBreaks_BandsOutOfRange(t *testing.T) {
	for _, bands := range []string{"0", "13"} {
		_, err := execute(t, "breaks", writeBreaksDataset(t), "--bands", bands)
		assert.Error(t, err, "bands %s", bands)
	}
}

func TestBreaks_MissingFile(t *testing.T) {
	_, err := execute(t, "breaks", filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}
