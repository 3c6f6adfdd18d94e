// Package expr compiles overlay bracket tables into declarative paint
// expressions: nested arrays tagged by operator name, e.g.
// ["<", ["get", "income"], 58000]. The trees are plain data and serialize
// directly to the JSON expression syntax of Mapbox GL / MapLibre styles.
package expr

import (
	"github.com/sells-group/tract-overlays/internal/overlay"
)

// Operators understood by Compile's output and by Eval.
const (
	OpGet          = "get"
	OpCase         = "case"
	OpEqual        = "=="
	OpNotEqual     = "!="
	OpLess         = "<"
	OpLessEqual    = "<="
	OpGreater      = ">"
	OpGreaterEqual = ">="
)

// Expression is one node of an expression tree.
type Expression = []any

// Compile encodes the classifier's three tiers for def:
//
//	["case", ["!=", get, null],
//	    ["case", ["<=", get, 0], nonPositive,
//	             ["<", get, max0], color0, ..., colorLast],
//	    missing]
//
// The unbounded bracket is the inner fallback, so a value equal to a bracket
// max falls through to the next bracket exactly as overlay.Classify does.
func Compile(def overlay.Definition, p overlay.Palette) Expression {
	get := func() Expression { return Expression{OpGet, def.Property} }

	inner := make(Expression, 0, 3+2*len(def.Brackets))
	inner = append(inner, OpCase, Expression{OpLessEqual, get(), 0.0}, p.NonPositive)

	last := len(def.Brackets) - 1
	for i, b := range def.Brackets {
		if i == last {
			inner = append(inner, b.Color)
			break
		}
		inner = append(inner, Expression{OpLess, get(), b.Max}, b.Color)
	}

	return Expression{
		OpCase,
		Expression{OpNotEqual, get(), nil},
		inner,
		p.Missing,
	}
}
