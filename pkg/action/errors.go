package action

import "fmt"

// Code identifies one of the error taxonomy entries from spec.md §7.
type Code string

const (
	CodeManifestNotFound  Code = "manifest_not_found"
	CodeManifestMalformed Code = "manifest_malformed"
	CodeArtifactUnavail   Code = "artifact_unavailable"
	CodeArtifactMalformed Code = "artifact_malformed"
	CodeReferenceError    Code = "reference_error"
	CodeTypeMismatch      Code = "type_mismatch"
	CodeCycleDetected     Code = "cycle_detected"
	CodeLeafUnavailable   Code = "leaf_unavailable"
	CodeLeafFailed        Code = "leaf_failed"
	CodeCancelled         Code = "cancelled"
	CodeInternal          Code = "internal"
)

// Error is the common shape for every error the runtime surfaces to a
// caller of Execute. It carries enough structured context (Fields) for the
// Log Channel to emit a diagnosable error record without re-parsing a
// formatted string (spec.md §7: "enough context to diagnose").
type Error struct {
	Code    Code
	Message string
	Fields  map[string]any
}

func (e *Error) Error() string {
	return e.Message
}

// LogFields returns the structured context attached to this error, safe to
// merge into a log record.
func (e *Error) LogFields() map[string]any {
	if e.Fields == nil {
		return map[string]any{"code": string(e.Code)}
	}
	out := make(map[string]any, len(e.Fields)+1)
	for k, v := range e.Fields {
		out[k] = v
	}
	out["code"] = string(e.Code)
	return out
}

func newErr(code Code, fields map[string]any, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Fields: fields}
}

// ManifestNotFound builds a CodeManifestNotFound error for ref.
func ManifestNotFound(ref string) *Error {
	return newErr(CodeManifestNotFound, map[string]any{"ref": ref}, "manifest not found: %s", ref)
}

// ManifestMalformed builds a CodeManifestMalformed error for ref, wrapping cause.
func ManifestMalformed(ref string, cause error) *Error {
	return newErr(CodeManifestMalformed, map[string]any{"ref": ref, "cause": cause.Error()},
		"manifest malformed for %s: %v", ref, cause)
}

// ArtifactUnavailable builds a CodeArtifactUnavail error listing every source tried.
func ArtifactUnavailable(ref string, kind string, tried []string) *Error {
	return newErr(CodeArtifactUnavail, map[string]any{"ref": ref, "kind": kind, "tried": tried},
		"artifact unavailable for %s (%s): tried %d source(s)", ref, kind, len(tried))
}

// ArtifactMalformed builds a CodeArtifactMalformed error.
func ArtifactMalformed(ref string, kind string, reason string) *Error {
	return newErr(CodeArtifactMalformed, map[string]any{"ref": ref, "kind": kind},
		"artifact malformed for %s (%s): %s", ref, kind, reason)
}

// ReferenceError builds a CodeReferenceError for a template expression that
// failed to resolve.
func ReferenceError(expression string) *Error {
	return newErr(CodeReferenceError, map[string]any{"expression": expression},
		"reference error: %s", expression)
}

// TypeMismatch builds a CodeTypeMismatch error describing the first failing
// location of a validation.
func TypeMismatch(path, expected, got string) *Error {
	return newErr(CodeTypeMismatch, map[string]any{"path": path, "expected": expected, "got": got},
		"type mismatch at %s: expected %s, got %s", path, expected, got)
}

// CycleDetected builds a CodeCycleDetected error listing the cyclic step ids.
func CycleDetected(steps []string) *Error {
	return newErr(CodeCycleDetected, map[string]any{"steps": steps},
		"cycle detected among steps: %v", steps)
}

// LeafUnavailable builds a CodeLeafUnavailable error.
func LeafUnavailable(ref string, reason string) *Error {
	return newErr(CodeLeafUnavailable, map[string]any{"ref": ref},
		"leaf unavailable for %s: %s", ref, reason)
}

// LeafFailed builds a CodeLeafFailed error with the exit status and a
// bounded tail of stderr.
func LeafFailed(ref string, status int, stderrTail string) *Error {
	return newErr(CodeLeafFailed, map[string]any{"ref": ref, "status": status, "stderr_tail": stderrTail},
		"leaf failed for %s: exit status %d", ref, status)
}

// Cancelled builds a CodeCancelled error.
func Cancelled(actionID string) *Error {
	return newErr(CodeCancelled, map[string]any{"action_id": actionID}, "execution cancelled")
}

// InternalError builds a CodeInternal error; should not occur in practice.
func InternalError(format string, args ...any) *Error {
	return newErr(CodeInternal, nil, "internal error: "+format, args...)
}
