/*
Copyright 2026 conda-forge contributors.
SPDX-License-Identifier: Apache-2.0
*/

// Package finalizer is the trusted half of the task pipeline. It loads the
// sandboxed runner's result artifact, re-fetches the live pull request state,
// re-applies the patch to a fresh clone of the contributor's branch, and
// drives reconciliation: push, comment, status, title, close, and
// ready-for-review.
//
// The live pull request is captured once per run into a snapshot. Every
// decision derives from that snapshot; it is never implicitly re-read, so
// stale-versus-live reasoning stays in one place. A closed pull request aborts
// the run before any mutation.
package finalizer
