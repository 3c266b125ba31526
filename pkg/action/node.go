package action

import (
	"sync/atomic"

	"github.com/starthub-run/runtime/pkg/value"
)

// IOSlot is a runtime input or output slot. Template is the expression as
// authored (or overlaid by a parent's step-level binding); Value is
// populated once the slot is instantiated (spec.md §3 lifecycle).
type IOSlot struct {
	Name     string
	Type     string
	Template value.Value
	Value    value.Value
	hasValue bool
}

// SetValue assigns the slot's instantiated value.
func (s *IOSlot) SetValue(v value.Value) {
	s.Value = v
	s.hasValue = true
}

// HasValue reports whether SetValue has been called.
func (s *IOSlot) HasValue() bool { return s.hasValue }

var nodeIDCounter int64

// NextNodeID returns a fresh process-unique node id.
func NextNodeID() int64 {
	return atomic.AddInt64(&nodeIDCounter, 1)
}

// Node is a runtime instance of one manifest occurrence within a tree
// (spec.md §3 "ActionNode").
type Node struct {
	ID   int64
	Name string
	Kind Kind
	Uses string // original action reference string

	Inputs  []IOSlot
	Outputs []IOSlot

	Types       map[string]value.Value
	Mirrors     []string
	Permissions Permissions

	Steps          map[string]*Node
	ExecutionOrder []string // permutation of keys(Steps), topologically sorted
}

// IsLeaf reports whether the node is a wasm or docker leaf (empty Steps and
// ExecutionOrder by construction).
func (n *Node) IsLeaf() bool {
	return n.Kind == KindWasm || n.Kind == KindDocker
}

// NewNodeFromManifest allocates a fresh node from a decoded manifest,
// capturing each declared default as the corresponding slot's template
// (spec.md §4.5 step 3). Step overlay and execution order are filled in by
// the tree builder.
func NewNodeFromManifest(ref Reference, m *Manifest) *Node {
	n := &Node{
		ID:          NextNodeID(),
		Name:        m.Name,
		Kind:        m.Kind,
		Uses:        ref.String(),
		Types:       m.Types,
		Mirrors:     m.Mirrors,
		Permissions: m.Permissions,
	}
	n.Inputs = make([]IOSlot, len(m.Inputs))
	for i, d := range m.Inputs {
		n.Inputs[i] = IOSlot{Name: d.Name, Type: d.Type, Template: d.Template}
	}
	n.Outputs = make([]IOSlot, len(m.Outputs))
	for i, d := range m.Outputs {
		n.Outputs[i] = IOSlot{Name: d.Name, Type: d.Type, Template: d.Template}
	}
	if m.Kind == KindComposition {
		n.Steps = make(map[string]*Node, len(m.Steps))
	}
	return n
}

// InputValues returns the ordered Value sequence currently held by Inputs,
// used as positional leaf stdin payloads and as the "inputs" half of an
// interpolation environment.
func (n *Node) InputValues() []value.Value {
	out := make([]value.Value, len(n.Inputs))
	for i, s := range n.Inputs {
		out[i] = s.Value
	}
	return out
}

// InputsObject returns the node's ordered input values wrapped as a single
// array Value.
func (n *Node) InputsObject() value.Value {
	return value.NewArray(n.InputValues())
}

// OutputValue returns the instantiated value of output slot i, implementing
// pkg/template.Sibling so a completed Node can serve as an executed-sibling
// environment for `{{steps.S.outputs[I].P}}` references.
func (n *Node) OutputValue(i int) (value.Value, bool) {
	if i < 0 || i >= len(n.Outputs) {
		return value.Value{}, false
	}
	if !n.Outputs[i].HasValue() {
		return value.Value{}, false
	}
	return n.Outputs[i].Value, true
}
