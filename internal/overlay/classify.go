package overlay

// Kind identifies which tier of the classification rule matched.
type Kind string

// Classification tiers, in priority order.
const (
	KindMissing     Kind = "missing"
	KindNonPositive Kind = "non_positive"
	KindBracket     Kind = "bracket"
)

// Labels for the two reserved tiers.
const (
	LabelMissing     = "No data"
	LabelNonPositive = "No estimate"
)

// Class is the outcome of classifying one value.
type Class struct {
	Kind  Kind   `json:"kind"`
	Color string `json:"color"`
	Label string `json:"label"`
	// Index is the matched bracket, or -1 for the reserved tiers.
	Index int `json:"index"`
}

// Classify maps a value to its color and label. A nil value is missing data;
// values <= 0 are treated as invalid estimates. Otherwise the first bracket
// whose Max exceeds the value wins, so a value equal to Brackets[i].Max lands
// in Brackets[i+1].
func Classify(value *float64, def Definition, p Palette) Class {
	if value == nil {
		return Class{Kind: KindMissing, Color: p.Missing, Label: LabelMissing, Index: -1}
	}
	v := *value
	if v <= 0 {
		return Class{Kind: KindNonPositive, Color: p.NonPositive, Label: LabelNonPositive, Index: -1}
	}

	i := bracketIndex(v, def.Brackets)
	return Class{
		Kind:  KindBracket,
		Color: def.Brackets[i].Color,
		Label: BracketLabel(def, i),
		Index: i,
	}
}

func bracketIndex(v float64, brackets []Bracket) int {
	for i, b := range brackets {
		if v < b.Max {
			return i
		}
	}
	return len(brackets) - 1
}

// BracketLabel renders the display range of bracket i: "min - max" for
// bounded brackets and ">min" for the unbounded one.
func BracketLabel(def Definition, i int) string {
	b := def.Brackets[i]
	if b.Unbounded() {
		return ">" + def.Format.Value(b.Min)
	}
	return def.Format.Value(b.Min) + " - " + def.Format.Value(b.Max)
}

// Ptr returns a pointer to v, for building classifier inputs.
func Ptr(v float64) *float64 {
	return &v
}
