// Package template implements the Template Interpolator (spec.md §4.4,
// component C4): resolving {{inputs[i].path}} and
// {{steps.name.outputs[i].path}} references against a resolution
// environment, and the "JSON-in-string" fixed-point normalization applied
// to leaf outputs.
package template

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/starthub-run/runtime/pkg/action"
	"github.com/starthub-run/runtime/pkg/value"
)

// Sibling is the subset of a tree node's state the interpolator needs to
// resolve a `{{steps.S.outputs[I].P}}` reference: the instantiated output
// slots of a previously-executed sibling step.
type Sibling interface {
	OutputValue(i int) (value.Value, bool)
}

// Env is the interpolation environment: `(parent inputs, executed
// siblings)` from spec.md's glossary.
type Env struct {
	Inputs []value.Value
	Steps  map[string]Sibling
}

// reference matches both reference grammars in a single pass, per spec.md
// §4.4 ("Parsing of references is greedy and non-nested: the grammar is a
// regular expression"). Unmatched "{{...}}" fragments are left as literal
// text because they simply never match this pattern.
var reference = regexp.MustCompile(
	`\{\{inputs\[(\d+)\](\.[A-Za-z0-9_.\[\]]*)?\}\}` +
		`|\{\{steps\.([A-Za-z0-9_-]+)\.outputs\[(\d+)\](\.[A-Za-z0-9_.\[\]]*)?\}\}`,
)

// Interpolate resolves every reference found anywhere in tmpl, recursing
// through objects and arrays and preserving key order, and returns the
// resulting value.
func Interpolate(tmpl value.Value, env Env) (value.Value, error) {
	switch tmpl.Kind {
	case value.KindObject:
		obj := make(map[string]value.Value, len(tmpl.Keys))
		for _, k := range tmpl.Keys {
			resolved, err := Interpolate(tmpl.Obj[k], env)
			if err != nil {
				return value.Value{}, err
			}
			obj[k] = resolved
		}
		return value.NewObject(append([]string(nil), tmpl.Keys...), obj), nil

	case value.KindArray:
		out := make([]value.Value, len(tmpl.Arr))
		for i, el := range tmpl.Arr {
			resolved, err := Interpolate(el, env)
			if err != nil {
				return value.Value{}, err
			}
			out[i] = resolved
		}
		return value.NewArray(out), nil

	case value.KindString:
		return interpolateString(tmpl.Str, env)

	default:
		return tmpl, nil
	}
}

func interpolateString(s string, env Env) (value.Value, error) {
	var resolveErr error
	result := reference.ReplaceAllStringFunc(s, func(match string) string {
		if resolveErr != nil {
			return match
		}
		resolved, err := resolveMatch(match, reference.FindStringSubmatch(match), env)
		if err != nil {
			resolveErr = err
			return match
		}
		if resolved.Kind == value.KindString {
			return resolved.Str
		}
		return canonicalJSON(resolved)
	})
	if resolveErr != nil {
		return value.Value{}, resolveErr
	}
	return value.NewString(result), nil
}

func resolveMatch(expression string, groups []string, env Env) (value.Value, error) {
	// groups layout from `reference`: [whole, inIdx, inPath, stepName, stepIdx, stepPath]
	if groups[1] != "" {
		idx, err := strconv.Atoi(groups[1])
		if err != nil {
			return value.Value{}, action.ReferenceError(expression)
		}
		if idx < 0 || idx >= len(env.Inputs) {
			return value.Value{}, action.ReferenceError(expression)
		}
		root := env.Inputs[idx]
		return resolvePathOrFail(root, strings.TrimPrefix(groups[2], "."), expression)
	}

	stepName := groups[3]
	idx, err := strconv.Atoi(groups[4])
	if err != nil {
		return value.Value{}, action.ReferenceError(expression)
	}
	sibling, ok := env.Steps[stepName]
	if !ok {
		return value.Value{}, action.ReferenceError(expression)
	}
	root, ok := sibling.OutputValue(idx)
	if !ok {
		return value.Value{}, action.ReferenceError(expression)
	}
	return resolvePathOrFail(root, strings.TrimPrefix(groups[5], "."), expression)
}

func resolvePathOrFail(root value.Value, path, expression string) (value.Value, error) {
	if path == "" {
		return root, nil
	}
	v, ok, err := value.ResolvePath(root, path)
	if err != nil || !ok {
		return value.Value{}, action.ReferenceError(expression)
	}
	return v, nil
}

// canonicalJSON renders v as its canonical JSON serialization, used when a
// resolved reference's type is not string (spec.md §4.4).
func canonicalJSON(v value.Value) string {
	b, err := v.MarshalJSON()
	if err != nil {
		return ""
	}
	return string(b)
}
