package template

import "github.com/starthub-run/runtime/pkg/value"

// FindStepNames returns every sibling step id referenced anywhere within
// tmpl via a `{{steps.S.outputs[I].P}}` expression, in first-seen order
// with duplicates removed. Used by the dependency planner (spec.md §4.6) to
// build edges without re-implementing reference parsing.
func FindStepNames(tmpl value.Value) []string {
	seen := make(map[string]bool)
	var order []string
	collectStepNames(tmpl, seen, &order)
	return order
}

func collectStepNames(v value.Value, seen map[string]bool, order *[]string) {
	switch v.Kind {
	case value.KindString:
		for _, m := range reference.FindAllStringSubmatch(v.Str, -1) {
			name := m[3]
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			*order = append(*order, name)
		}
	case value.KindArray:
		for _, el := range v.Arr {
			collectStepNames(el, seen, order)
		}
	case value.KindObject:
		for _, k := range v.Keys {
			collectStepNames(v.Obj[k], seen, order)
		}
	}
}
