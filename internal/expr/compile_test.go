package expr

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tract-overlays/internal/overlay"
)

func builtinSet(t *testing.T) *overlay.Set {
	t.Helper()
	s, err := overlay.NewSet(overlay.Builtin(), overlay.DefaultPalette)
	require.NoError(t, err)
	return s
}

// samples returns values spanning every bracket, every boundary, and the
// reserved tiers.
func samples(def overlay.Definition) []*float64 {
	out := []*float64{nil, overlay.Ptr(0), overlay.Ptr(-5), overlay.Ptr(-666666666), overlay.Ptr(1e-6)}
	for _, b := range def.Brackets {
		out = append(out, overlay.Ptr(b.Min), overlay.Ptr(b.Min+(b.Max-b.Min)/2))
		if !b.Unbounded() {
			out = append(out, overlay.Ptr(b.Max), overlay.Ptr(math.Nextafter(b.Max, 0)))
		}
	}
	return append(out, overlay.Ptr(1e12))
}

func propsFor(def overlay.Definition, v *float64) map[string]any {
	if v == nil {
		return map[string]any{def.Property: nil}
	}
	return map[string]any{def.Property: *v}
}

func TestCompile_AgreesWithClassifier(t *testing.T) {
	s := builtinSet(t)

	for _, def := range s.All() {
		compiled := Compile(def, s.Palette())

		// Round-trip through JSON, as the rendering engine receives it.
		data, err := json.Marshal(compiled)
		require.NoError(t, err)
		var decoded any
		require.NoError(t, json.Unmarshal(data, &decoded))

		for _, v := range samples(def) {
			want := overlay.Classify(v, def, s.Palette()).Color

			got, err := Eval(compiled, propsFor(def, v))
			require.NoError(t, err)
			assert.Equal(t, want, got, "%s value %v", def.ID, v)

			got, err = Eval(decoded, propsFor(def, v))
			require.NoError(t, err)
			assert.Equal(t, want, got, "%s value %v (json)", def.ID, v)
		}
	}
}

func TestCompile_AbsentPropertyIsMissing(t *testing.T) {
	s := builtinSet(t)
	def := s.Default()

	got, err := Eval(Compile(def, s.Palette()), map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, s.Palette().Missing, got)
}

func TestCompile_Shape(t *testing.T) {
	def := overlay.Definition{
		ID:       "income",
		Property: "income",
		Brackets: []overlay.Bracket{
			{Min: 0, Max: 58000, Color: "#111111"},
			{Min: 58000, Max: math.Inf(1), Color: "#222222"},
		},
	}

	data, err := json.Marshal(Compile(def, overlay.DefaultPalette))
	require.NoError(t, err)
	assert.JSONEq(t, `[
		"case", ["!=", ["get", "income"], null],
		["case",
			["<=", ["get", "income"], 0], "#e7298a",
			["<", ["get", "income"], 58000], "#111111",
			"#222222"],
		"#808080"
	]`, string(data))
}

func TestCompile_SingleBracket(t *testing.T) {
	def := overlay.Definition{
		Property: "v",
		Brackets: []overlay.Bracket{{Min: 0, Max: math.Inf(1), Color: "#123456"}},
	}
	compiled := Compile(def, overlay.DefaultPalette)

	got, err := Eval(compiled, map[string]any{"v": 3.0})
	require.NoError(t, err)
	assert.Equal(t, "#123456", got)
}

func TestCompile_Pure(t *testing.T) {
	s := builtinSet(t)
	def := s.Default()
	assert.Equal(t, Compile(def, s.Palette()), Compile(def, s.Palette()))
}

func TestEval_Errors(t *testing.T) {
	tests := []struct {
		name string
		expr any
	}{
		{name: "empty", expr: []any{}},
		{name: "non-string operator", expr: []any{1.0, 2.0}},
		{name: "unknown operator", expr: []any{"interpolate", 1.0}},
		{name: "case without fallback", expr: []any{"case", true, "a"}},
		{name: "non-boolean condition", expr: []any{"case", "yes", "a", "b"}},
		{name: "compare null", expr: []any{"<", []any{"get", "v"}, 1.0}},
		{name: "get arity", expr: []any{"get"}},
		{name: "unsupported literal", expr: []any{"==", struct{}{}, 1.0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Eval(tt.expr, map[string]any{})
			assert.Error(t, err)
		})
	}
}

func TestEval_Literals(t *testing.T) {
	got, err := Eval([]any{">=", []any{"get", "v"}, 2}, map[string]any{"v": json.Number("2")})
	require.NoError(t, err)
	assert.Equal(t, true, got)

	got, err = Eval([]any{"==", []any{"get", "missing"}, nil}, nil)
	require.NoError(t, err)
	assert.Equal(t, true, got)

	got, err = Eval("#ffffff", nil)
	require.NoError(t, err)
	assert.Equal(t, "#ffffff", got)
}
