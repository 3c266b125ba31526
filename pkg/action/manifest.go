package action

import (
	"fmt"

	"github.com/starthub-run/runtime/pkg/value"
)

// Kind is the manifest's declared action kind.
type Kind string

const (
	KindComposition Kind = "composition"
	KindWasm        Kind = "wasm"
	KindDocker      Kind = "docker"
)

// IODecl is one entry of a manifest's "inputs" or "outputs" sequence.
type IODecl struct {
	Name     string
	Type     string
	Template value.Value // authored default expression; Null if absent
	Required bool
}

// Permissions is the sandbox capability declaration of a manifest.
type Permissions struct {
	FS  []string
	Net []string
}

// StepDecl is one entry of a composition manifest's "steps" mapping.
type StepDecl struct {
	Uses   string
	Inputs []value.Value // positional authored templates, overlaid onto the callee's inputs
}

// Manifest is the decoded registry document for one action reference.
type Manifest struct {
	Name            string
	Version         string
	ManifestVersion int
	License         string
	Repository      string
	Kind            Kind

	Inputs  []IODecl
	Outputs []IODecl

	// Types maps a type name to its raw structural definition, compiled
	// lazily by pkg/schema. Kept as value.Value rather than a typed Go
	// struct because definitions are themselves recursively-shaped JSON
	// (spec.md §4.3; original_source/server/src/models.rs).
	Types map[string]value.Value

	// StepOrder preserves manifest authoring order of step ids; Steps is
	// keyed the same way. Authoring order matters only as the planner's
	// deterministic tie-break (spec.md §4.6), never for correctness.
	StepOrder []string
	Steps     map[string]StepDecl

	Mirrors     []string
	Permissions Permissions
}

// ParseManifest decodes a starthub-lock.json document.
func ParseManifest(data []byte) (*Manifest, error) {
	root, err := value.ParseJSON(data)
	if err != nil {
		return nil, fmt.Errorf("action: decode manifest: %w", err)
	}

	kindField, ok := root.Get("kind")
	if !ok || kindField.Kind != value.KindString {
		return nil, fmt.Errorf("action: manifest missing required string field %q", "kind")
	}

	m := &Manifest{Kind: Kind(kindField.Str)}
	m.Name = getString(root, "name")
	m.Version = getString(root, "version")
	m.ManifestVersion = int(getNumber(root, "manifest_version"))
	m.License = getString(root, "license")
	m.Repository = getString(root, "repository")

	if m.Kind != KindComposition && m.Kind != KindWasm && m.Kind != KindDocker {
		return nil, fmt.Errorf("action: manifest has unknown kind %q", m.Kind)
	}

	if ins, ok := root.Get("inputs"); ok {
		decls, err := decodeIODecls(ins)
		if err != nil {
			return nil, fmt.Errorf("action: decode inputs: %w", err)
		}
		m.Inputs = decls
	}
	if outs, ok := root.Get("outputs"); ok {
		decls, err := decodeIODecls(outs)
		if err != nil {
			return nil, fmt.Errorf("action: decode outputs: %w", err)
		}
		m.Outputs = decls
	}

	if types, ok := root.Get("types"); ok && types.Kind == value.KindObject {
		m.Types = make(map[string]value.Value, len(types.Keys))
		for _, k := range types.Keys {
			m.Types[k] = types.Obj[k]
		}
	}

	if steps, ok := root.Get("steps"); ok && steps.Kind == value.KindObject {
		if m.Kind != KindComposition {
			return nil, fmt.Errorf("action: manifest declares steps but kind is %q", m.Kind)
		}
		m.StepOrder = append([]string(nil), steps.Keys...)
		m.Steps = make(map[string]StepDecl, len(steps.Keys))
		for _, id := range steps.Keys {
			decl, err := decodeStepDecl(steps.Obj[id])
			if err != nil {
				return nil, fmt.Errorf("action: decode step %q: %w", id, err)
			}
			m.Steps[id] = decl
		}
	}

	if mirrors, ok := root.Get("mirrors"); ok && mirrors.Kind == value.KindArray {
		for _, e := range mirrors.Arr {
			m.Mirrors = append(m.Mirrors, e.Str)
		}
	}

	if perms, ok := root.Get("permissions"); ok && perms.Kind == value.KindObject {
		if fs, ok := perms.Get("fs"); ok && fs.Kind == value.KindArray {
			for _, e := range fs.Arr {
				m.Permissions.FS = append(m.Permissions.FS, e.Str)
			}
		}
		if net, ok := perms.Get("net"); ok && net.Kind == value.KindArray {
			for _, e := range net.Arr {
				m.Permissions.Net = append(m.Permissions.Net, e.Str)
			}
		}
	}

	return m, nil
}

func decodeIODecls(seq value.Value) ([]IODecl, error) {
	if seq.Kind != value.KindArray {
		return nil, fmt.Errorf("expected array, got %s", seq.Kind)
	}
	out := make([]IODecl, 0, len(seq.Arr))
	for _, entry := range seq.Arr {
		if entry.Kind != value.KindObject {
			return nil, fmt.Errorf("expected IO declaration object, got %s", entry.Kind)
		}
		decl := IODecl{
			Name: getString(entry, "name"),
			Type: getString(entry, "type"),
		}
		if tmpl, ok := entry.Get("template"); ok {
			decl.Template = tmpl
		} else {
			decl.Template = value.Null()
		}
		if req, ok := entry.Get("required"); ok && req.Kind == value.KindBool {
			decl.Required = req.Bool
		}
		out = append(out, decl)
	}
	return out, nil
}

func decodeStepDecl(v value.Value) (StepDecl, error) {
	if v.Kind != value.KindObject {
		return StepDecl{}, fmt.Errorf("expected step object, got %s", v.Kind)
	}
	decl := StepDecl{Uses: getString(v, "uses")}
	if ins, ok := v.Get("inputs"); ok && ins.Kind == value.KindArray {
		decl.Inputs = append([]value.Value(nil), ins.Arr...)
	}
	return decl, nil
}

func getString(v value.Value, key string) string {
	if f, ok := v.Get(key); ok && f.Kind == value.KindString {
		return f.Str
	}
	return ""
}

func getNumber(v value.Value, key string) float64 {
	if f, ok := v.Get(key); ok && f.Kind == value.KindNumber {
		return f.Num
	}
	return 0
}
