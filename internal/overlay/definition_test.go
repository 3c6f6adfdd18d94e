package overlay

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDef() Definition {
	return Definition{
		ID:       "income",
		Title:    "Income",
		Source:   "census/income.csv",
		Property: "income",
		Brackets: []Bracket{
			{Min: 0, Max: 49000, Color: "#111111"},
			{Min: 49000, Max: 58000, Color: "#222222"},
			{Min: 58000, Max: 65000, Color: "#333333"},
			{Min: 65000, Max: math.Inf(1), Color: "#444444"},
		},
	}
}

func TestDefinitionValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(d *Definition)
		wantErr string
	}{
		{name: "valid", mutate: func(*Definition) {}},
		{name: "missing id", mutate: func(d *Definition) { d.ID = "" }, wantErr: "id is required"},
		{name: "missing property", mutate: func(d *Definition) { d.Property = "" }, wantErr: "property is required"},
		{name: "missing source", mutate: func(d *Definition) { d.Source = "" }, wantErr: "source is required"},
		{name: "no brackets", mutate: func(d *Definition) { d.Brackets = nil }, wantErr: "at least one bracket"},
		{
			name:    "gap between brackets",
			mutate:  func(d *Definition) { d.Brackets[1].Min = 50000 },
			wantErr: "does not meet",
		},
		{
			name:    "bounded last bracket",
			mutate:  func(d *Definition) { d.Brackets[3].Max = 90000 },
			wantErr: "last bracket must be unbounded",
		},
		{
			name:    "unbounded middle bracket",
			mutate:  func(d *Definition) { d.Brackets[1].Max = math.Inf(1) },
			wantErr: "only the last bracket",
		},
		{
			name:    "decreasing bracket",
			mutate:  func(d *Definition) { d.Brackets[0].Max = 0; d.Brackets[1].Min = 0 },
			wantErr: "is not below",
		},
		{
			name:    "missing color",
			mutate:  func(d *Definition) { d.Brackets[2].Color = "" },
			wantErr: "has no color",
		},
		{
			name:    "bad format",
			mutate:  func(d *Definition) { d.Format.Style = "roman" },
			wantErr: "unknown style",
		},
		{
			name:    "same column twice",
			mutate:  func(d *Definition) { d.Columns = &Columns{Value: 1, Key: 1} },
			wantErr: "invalid columns",
		},
		{
			name:    "unknown source format",
			mutate:  func(d *Definition) { d.SourceFormat = "parquet" },
			wantErr: "unsupported source format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDef()
			tt.mutate(&d)
			err := d.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDatasetFormat(t *testing.T) {
	d := validDef()
	assert.Equal(t, FormatCSV, d.DatasetFormat())

	d.Source = "https://example.com/data/Income.XLSX"
	assert.Equal(t, FormatXLSX, d.DatasetFormat())

	d.SourceFormat = "CSV"
	assert.Equal(t, FormatCSV, d.DatasetFormat())
}

func TestNewSet_NormalizesImplicitUpperBound(t *testing.T) {
	d := validDef()
	d.Brackets[3].Max = 0

	s, err := NewSet([]Definition{d}, DefaultPalette)
	require.NoError(t, err)

	got, ok := s.Get("income")
	require.True(t, ok)
	assert.True(t, got.Brackets[3].Unbounded())
	// The caller's table is not modified.
	assert.Equal(t, 0.0, d.Brackets[3].Max)
}

func TestNewSet_Rejects(t *testing.T) {
	other := validDef()
	other.ID = "income-2"

	tests := []struct {
		name    string
		defs    []Definition
		palette Palette
		wantErr string
	}{
		{name: "empty", palette: DefaultPalette, wantErr: "at least one overlay"},
		{name: "duplicate id", defs: []Definition{validDef(), validDef()}, palette: DefaultPalette, wantErr: "duplicate id"},
		{name: "shared property", defs: []Definition{validDef(), other}, palette: DefaultPalette, wantErr: "share property"},
		{
			name:    "palette collision",
			defs:    []Definition{validDef()},
			palette: Palette{Missing: "#808080", NonPositive: "#808080"},
			wantErr: "must differ",
		},
		{
			name:    "bracket uses reserved color",
			defs:    []Definition{validDef()},
			palette: Palette{Missing: "#111111", NonPositive: "#e7298a"},
			wantErr: "collides",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSet(tt.defs, tt.palette)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSet_Order(t *testing.T) {
	s := builtinSet(t)

	assert.Equal(t, "travel-time", s.Default().ID)
	assert.Equal(t, s.Len(), len(s.IDs()))
	assert.Equal(t, s.IDs()[0], s.All()[0].ID)

	_, ok := s.Get("nope")
	assert.False(t, ok)
}

func TestBracketMarshalJSON_UnboundedIsNull(t *testing.T) {
	data, err := json.Marshal([]Bracket{
		{Min: 0, Max: 1.5, Color: "#000000"},
		{Min: 1.5, Max: math.Inf(1), Color: "#ffffff"},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"min":0,"max":1.5,"color":"#000000"},{"min":1.5,"max":null,"color":"#ffffff"}]`, string(data))
}
