/*
Copyright 2026 conda-forge contributors.
SPDX-License-Identifier: Apache-2.0
*/

// Package taskresult defines the serialized handoff artifact between the
// untrusted sandboxed task runner and the trusted finalizer. The two phases
// are separate processes that share nothing but this file, so the artifact is
// fully written and closed before the finalizer is ever invoked.
//
// The artifact crosses a trust boundary: the runner executes
// repository-supplied build logic, so the finalizer must treat the payload as
// untrusted data. Decoding rejects unknown fields and Validate enforces the
// structural invariants (a patch implies a change, a commit message implies a
// patch or an unconditionally-committing task kind) before any of it is
// replayed against a live pull request.
package taskresult
