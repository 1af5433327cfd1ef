/*
Copyright 2026 conda-forge contributors.
SPDX-License-Identifier: Apache-2.0
*/

package taskresult

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind identifies which operation a task performs.
type Kind string

const (
	KindRerender      Kind = "rerender"
	KindVersionUpdate Kind = "version_update"
	KindLint          Kind = "lint"
)

// Valid reports whether the kind is one of the known task kinds. An unknown
// kind is a configuration error, not a tool error: the runner aborts before
// producing a result.
func (k Kind) Valid() bool {
	switch k {
	case KindRerender, KindVersionUpdate, KindLint:
		return true
	}
	return false
}

// Task is the immutable identity of one dispatched pipeline invocation.
type Task struct {
	Kind     Kind
	Repo     string // feedstock name, e.g. "zlib-feedstock"
	PRNumber int

	// SHA is the commit the dispatching workflow ran against; commit
	// statuses are keyed to it. Optional for kinds that set no status.
	SHA string

	// RequestedVersion applies to version_update only. The sentinel values
	// "null", "none" (case-insensitive) and the empty string all mean
	// "auto-detect".
	RequestedVersion string
}

// NormalizedVersion resolves the requested-version sentinel: the empty string
// return means auto-detect.
func (t Task) NormalizedVersion() string {
	switch strings.ToLower(t.RequestedVersion) {
	case "", "null", "none":
		return ""
	}
	return t.RequestedVersion
}

// Validate checks the task identity tuple before dispatch.
func (t Task) Validate() error {
	if !t.Kind.Valid() {
		return fmt.Errorf("%w: task kind %q", ErrInvalidKind, t.Kind)
	}
	if t.Repo == "" {
		return errors.New("task repo cannot be empty")
	}
	if t.PRNumber <= 0 {
		return fmt.Errorf("task pr_number must be positive, got %d", t.PRNumber)
	}
	return nil
}

// ErrInvalidKind marks a configuration error: the dispatched task kind is not
// one of rerender, version_update, or lint.
var ErrInvalidKind = errors.New("invalid task kind")

// Result is the serialized outcome of one sandboxed task, consumed exactly
// once by the finalizer.
type Result struct {
	Task     Kind        `json:"task"`
	Repo     string      `json:"repo"`
	PRNumber int         `json:"pr_number"`
	SHA      string      `json:"sha"`
	Results  TaskResults `json:"task_results"`
}

// TaskResults is the kind-specific outcome mapping. Fields are pointers where
// "absent" is meaningful; bools default to the "nothing happened" state.
type TaskResults struct {
	// Rerender fields. Changed/RerenderError describe the rerender
	// operation whether it ran standalone or chained after a version bump.
	Changed       bool    `json:"changed"`
	RerenderError bool    `json:"rerender_error"`
	InfoMessage   *string `json:"info_message"`
	CommitMessage *string `json:"commit_message"`
	Patch         *string `json:"patch"`

	// Version-update fields.
	VersionChanged  bool    `json:"version_changed"`
	VersionError    bool    `json:"version_error"`
	NewVersion      *string `json:"new_version"`
	RerenderChanged bool    `json:"rerender_changed"`

	// Lint fields. On internal lint failure LintError is set and the
	// findings maps are all nil.
	LintError bool                `json:"lint_error"`
	Lints     map[string][]string `json:"lints"`
	Hints     map[string][]string `json:"hints"`
	Errors    map[string]bool     `json:"errors"`
}

// HasFindings reports whether the lint findings maps are all populated, i.e.
// the lint tool actually ran to completion.
func (r TaskResults) HasFindings() bool {
	return r.Lints != nil && r.Hints != nil && r.Errors != nil
}

// ContentChanged reports whether the working tree changed for the task kind:
// the rerender flag for rerenders, the version flag for version updates.
func (r *Result) ContentChanged() bool {
	if r.Task == KindVersionUpdate {
		return r.Results.VersionChanged
	}
	return r.Results.Changed
}

// Validate enforces the structural invariants of the artifact. It must be
// called on every decoded Result before the finalizer acts on it.
func (r *Result) Validate() error {
	if !r.Task.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, r.Task)
	}
	if r.Repo == "" {
		return errors.New("result repo cannot be empty")
	}
	if r.PRNumber <= 0 {
		return fmt.Errorf("result pr_number must be positive, got %d", r.PRNumber)
	}

	tr := r.Results
	if tr.Patch != nil && !r.ContentChanged() {
		return errors.New("patch present but no change recorded")
	}
	if tr.CommitMessage != nil && tr.Patch == nil && r.Task != KindVersionUpdate {
		// A version bump records its message before the chained rerender
		// produces a patch; every other kind needs a patch to justify one.
		return errors.New("commit message present without a patch")
	}
	if r.Task == KindLint {
		if !tr.LintError && !tr.HasFindings() {
			return errors.New("lint result has neither findings nor a lint error")
		}
		if tr.LintError && tr.HasFindings() {
			return errors.New("lint error set but findings are populated")
		}
	}
	return nil
}

// Decode parses a serialized Result, rejecting unknown fields. The payload is
// produced by untrusted execution, so anything outside the schema is an error
// rather than ignored.
func Decode(data []byte) (*Result, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var r Result
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("decoding task result: %w", err)
	}
	if dec.More() {
		return nil, errors.New("decoding task result: trailing data after document")
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("validating task result: %w", err)
	}
	return &r, nil
}

// Encode serializes the Result after validating it, so the runner can never
// hand off an artifact the finalizer would reject.
func (r *Result) Encode() ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("validating task result: %w", err)
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encoding task result: %w", err)
	}
	return data, nil
}

// Ptr returns a pointer to v, for populating the optional fields.
func Ptr[T any](v T) *T {
	return &v
}
