// Package leaf implements the Leaf Executor (spec.md §4.7, component C7):
// it drives a single WASM or container leaf given its already-instantiated
// input values, returning the leaf's raw output value sequence. The
// subprocess-piping shape (stdin/stdout/stderr all piped, stdin closed
// after the full payload is written, stdout read line-by-line) is grounded
// on original_source/server/src/wasm.rs's run_wasm/download_wasm, ported
// from tokio's async process handle to os/exec.CommandContext in the style
// of the teacher's Worker.runVerification (pkg/orchestra/worker.go), which
// is the one place in the teacher repo that shells out to an external
// tool and captures its output.
package leaf

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/starthub-run/runtime/pkg/action"
	"github.com/starthub-run/runtime/pkg/value"
)

// stderrTailLimit bounds how much stderr is retained for a LeafFailed
// error, matching the original's 4096-byte tail (SPEC_FULL.md §12).
const stderrTailLimit = 4096

// tailBuffer is an io.Writer that keeps only the last limit bytes written
// to it, used to cap stderr retention without buffering an entire noisy
// leaf's error output.
type tailBuffer struct {
	limit int
	buf   bytes.Buffer
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	t.buf.Write(p)
	if over := t.buf.Len() - t.limit; over > 0 {
		t.buf.Next(over)
	}
	return n, nil
}

func (t *tailBuffer) String() string {
	return t.buf.String()
}

// Driver runs one leaf kind (wasm or docker) to completion.
type Driver interface {
	Run(ctx context.Context, node *action.Node) ([]value.Value, error)
}

// decodeOutputSequence applies the output format contract (spec.md §4.7):
// WASM leaves emit newline-delimited JSON records, of which only the first
// is meaningful — if it is an array it *is* the output sequence, otherwise
// it is wrapped into a singleton sequence. Container leaves emit one JSON
// document, always treated as a singleton sequence (handled by the caller
// before reaching here since there is no line-splitting to do).
func decodeOutputSequence(lines [][]byte) ([]value.Value, error) {
	var records []value.Value
	for _, line := range lines {
		v, err := value.ParseJSON(line)
		if err != nil {
			continue // not every line need parse as JSON (spec.md §4.7)
		}
		records = append(records, v)
	}
	if len(records) == 0 {
		return nil, nil
	}
	first := records[0]
	if first.Kind == value.KindArray {
		return first.Arr, nil
	}
	return []value.Value{first}, nil
}

// singleDocumentSequence wraps a single parsed JSON document into the
// singleton sequence a container leaf always produces.
func singleDocumentSequence(doc []byte) ([]value.Value, error) {
	v, err := value.ParseJSON(doc)
	if err != nil {
		return nil, err
	}
	return []value.Value{v}, nil
}

// inputJSON serializes a node's instantiated input values as the ordered
// JSON array every leaf receives on stdin (spec.md §4.7 input format
// contract).
func inputJSON(inputs []value.Value) ([]byte, error) {
	arr := value.NewArray(inputs)
	return json.Marshal(arr)
}
