/*
Copyright 2026 conda-forge contributors.
SPDX-License-Identifier: Apache-2.0
*/

package feedstockops

import "context"

// RerenderMessagePrefix is the fixed prefix the rerender tool puts on its
// commit messages. Version-update chaining strips it before concatenating the
// rerender message onto the version bump's.
const RerenderMessagePrefix = "MNT: "

// RerenderOutcome is the structured result of one rerender run.
type RerenderOutcome struct {
	Changed       bool   `json:"changed"`
	Errored       bool   `json:"errored"`
	InfoMessage   string `json:"info_message"`
	CommitMessage string `json:"commit_message"`
}

// VersionOutcome is the structured result of one version detection/bump run.
type VersionOutcome struct {
	Changed    bool   `json:"changed"`
	Errored    bool   `json:"errored"`
	NewVersion string `json:"new_version"`
}

// LintOutcome is the structured result of one lint run. The maps are keyed by
// recipe path. Errors may be nil when the tool speaks the legacy two-field
// form; Normalize fills it in.
type LintOutcome struct {
	Lints  map[string][]string `json:"lints"`
	Hints  map[string][]string `json:"hints"`
	Errors map[string]bool     `json:"errors"`
}

// Normalize converts the legacy findings-only form into the full form by
// synthesizing an all-false error map keyed by the union of the lints and
// hints keys. Outcomes that already carry an error map are returned as-is.
func (o LintOutcome) Normalize() LintOutcome {
	if o.Errors != nil {
		return o
	}
	errs := make(map[string]bool, len(o.Lints)+len(o.Hints))
	for key := range o.Lints {
		errs[key] = false
	}
	for key := range o.Hints {
		errs[key] = false
	}
	o.Errors = errs
	return o
}

// Operations is the capability surface of the feedstock maintenance tools.
// Implementations run one operation against the working tree at feedstockDir
// and report a structured outcome. Tool-level failures are data in the
// outcome; the error return is reserved for infrastructure failures
// (container missing, protocol violation).
type Operations interface {
	Rerender(ctx context.Context, feedstockDir string) (RerenderOutcome, error)
	UpdateVersion(ctx context.Context, feedstockDir, fullRepoName, inputVersion string) (VersionOutcome, error)
	Lint(ctx context.Context, feedstockDir string) (LintOutcome, error)
}
