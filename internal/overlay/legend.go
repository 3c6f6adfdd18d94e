package overlay

// LegendEntry is one swatch of an overlay legend.
type LegendEntry struct {
	Kind  Kind   `json:"kind"`
	Color string `json:"color"`
	Label string `json:"label"`
}

// Legend describes an overlay's coloring with the same labels Classify
// produces, so the legend and the map fill cannot disagree.
type Legend struct {
	Overlay string        `json:"overlay"`
	Title   string        `json:"title"`
	Entries []LegendEntry `json:"entries"`
}

// BuildLegend returns the bracket swatches in ascending order followed by the
// non-positive and missing-data swatches.
func BuildLegend(def Definition, p Palette) Legend {
	entries := make([]LegendEntry, 0, len(def.Brackets)+2)
	for i, b := range def.Brackets {
		entries = append(entries, LegendEntry{
			Kind:  KindBracket,
			Color: b.Color,
			Label: BracketLabel(def, i),
		})
	}
	entries = append(entries,
		LegendEntry{Kind: KindNonPositive, Color: p.NonPositive, Label: LabelNonPositive},
		LegendEntry{Kind: KindMissing, Color: p.Missing, Label: LabelMissing},
	)
	return Legend{Overlay: def.ID, Title: def.Title, Entries: entries}
}
