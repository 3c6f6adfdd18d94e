package expr

import (
	"encoding/json"

	"github.com/rotisserie/eris"
)

// Eval evaluates a compiled expression against a feature's properties,
// following the rendering engine's semantics for the operators Compile emits:
// "get" yields nil for absent properties, "case" takes condition/output pairs
// and a fallback, equality compares any values, and ordering comparisons
// require numbers.
func Eval(e any, props map[string]any) (any, error) {
	node, ok := e.([]any)
	if !ok {
		return literal(e)
	}
	if len(node) == 0 {
		return nil, eris.New("expr: empty expression")
	}
	op, ok := node[0].(string)
	if !ok {
		return nil, eris.Errorf("expr: operator must be a string, got %T", node[0])
	}
	args := node[1:]

	switch op {
	case OpGet:
		if len(args) != 1 {
			return nil, eris.Errorf("expr: get takes 1 argument, got %d", len(args))
		}
		key, ok := args[0].(string)
		if !ok {
			return nil, eris.Errorf("expr: get key must be a string, got %T", args[0])
		}
		v, ok := props[key]
		if !ok {
			return nil, nil
		}
		return literal(v)

	case OpCase:
		if len(args) < 3 || len(args)%2 == 0 {
			return nil, eris.Errorf("expr: case needs condition/output pairs and a fallback, got %d arguments", len(args))
		}
		for i := 0; i+1 < len(args); i += 2 {
			cond, err := Eval(args[i], props)
			if err != nil {
				return nil, err
			}
			b, ok := cond.(bool)
			if !ok {
				return nil, eris.Errorf("expr: case condition must be boolean, got %T", cond)
			}
			if b {
				return Eval(args[i+1], props)
			}
		}
		return Eval(args[len(args)-1], props)

	case OpEqual, OpNotEqual:
		l, r, err := evalPair(op, args, props)
		if err != nil {
			return nil, err
		}
		eq := equal(l, r)
		if op == OpNotEqual {
			return !eq, nil
		}
		return eq, nil

	case OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
		l, r, err := evalPair(op, args, props)
		if err != nil {
			return nil, err
		}
		lf, lok := l.(float64)
		rf, rok := r.(float64)
		if !lok || !rok {
			return nil, eris.Errorf("expr: %s expects numbers, got %T and %T", op, l, r)
		}
		switch op {
		case OpLess:
			return lf < rf, nil
		case OpLessEqual:
			return lf <= rf, nil
		case OpGreater:
			return lf > rf, nil
		default:
			return lf >= rf, nil
		}

	default:
		return nil, eris.Errorf("expr: unknown operator %q", op)
	}
}

func evalPair(op string, args []any, props map[string]any) (any, any, error) {
	if len(args) != 2 {
		return nil, nil, eris.Errorf("expr: %s takes 2 arguments, got %d", op, len(args))
	}
	l, err := Eval(args[0], props)
	if err != nil {
		return nil, nil, err
	}
	r, err := Eval(args[1], props)
	if err != nil {
		return nil, nil, err
	}
	return l, r, nil
}

func equal(l, r any) bool {
	if l == nil || r == nil {
		return l == nil && r == nil
	}
	return l == r
}

// literal normalizes numeric literals to float64, matching JSON decoding.
func literal(v any) (any, error) {
	switch n := v.(type) {
	case nil, bool, string, float64:
		return v, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return nil, eris.Wrapf(err, "expr: parse number %q", n.String())
		}
		return f, nil
	case *float64:
		if n == nil {
			return nil, nil
		}
		return *n, nil
	default:
		return nil, eris.Errorf("expr: unsupported literal %T", v)
	}
}
