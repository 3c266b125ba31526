package value

import (
	"fmt"
	"strconv"
	"strings"
)

// Segment is one step of a dotted path: either a plain key lookup or a
// key-then-index lookup (k[N]) or a bare numeric array index.
type Segment struct {
	Key      string
	HasIndex bool
	Index    int
	// BareIndex is true for a segment that is only a number, e.g. the "1"
	// in "items.1" — indexes the current array directly rather than a
	// named key first.
	BareIndex bool
}

// ParsePath splits a dotted path ("k[N].field" or "field.sub") into
// segments, per spec.md §4.4: a plain identifier indexes an object; "k[N]"
// indexes object key k then numeric position N; a bare numeric segment
// indexes a sequence directly.
func ParsePath(path string) ([]Segment, error) {
	if path == "" {
		return nil, nil
	}
	parts := strings.Split(path, ".")
	segs := make([]Segment, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("value: empty path segment in %q", path)
		}
		if bracket := strings.IndexByte(p, '['); bracket >= 0 {
			if !strings.HasSuffix(p, "]") {
				return nil, fmt.Errorf("value: malformed index segment %q", p)
			}
			key := p[:bracket]
			idxStr := p[bracket+1 : len(p)-1]
			idx, err := strconv.Atoi(idxStr)
			if err != nil {
				return nil, fmt.Errorf("value: non-numeric index in %q: %w", p, err)
			}
			segs = append(segs, Segment{Key: key, HasIndex: true, Index: idx})
			continue
		}
		if idx, err := strconv.Atoi(p); err == nil {
			segs = append(segs, Segment{BareIndex: true, Index: idx})
			continue
		}
		segs = append(segs, Segment{Key: p})
	}
	return segs, nil
}

// Resolve walks segs against root, returning the value at the end of the
// path. ok is false on a missing key or out-of-bounds index.
func Resolve(root Value, segs []Segment) (Value, bool) {
	cur := root
	for _, seg := range segs {
		switch {
		case seg.BareIndex:
			v, ok := cur.Index(seg.Index)
			if !ok {
				return Value{}, false
			}
			cur = v
		case seg.HasIndex:
			v, ok := cur.Get(seg.Key)
			if !ok {
				return Value{}, false
			}
			v, ok = v.Index(seg.Index)
			if !ok {
				return Value{}, false
			}
			cur = v
		default:
			v, ok := cur.Get(seg.Key)
			if !ok {
				return Value{}, false
			}
			cur = v
		}
	}
	return cur, true
}

// ResolvePath is a convenience wrapper combining ParsePath and Resolve.
func ResolvePath(root Value, path string) (Value, bool, error) {
	if path == "" {
		return root, true, nil
	}
	segs, err := ParsePath(path)
	if err != nil {
		return Value{}, false, err
	}
	v, ok := Resolve(root, segs)
	return v, ok, nil
}
