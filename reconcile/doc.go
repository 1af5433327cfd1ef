/*
Copyright 2026 conda-forge contributors.
SPDX-License-Identifier: Apache-2.0
*/

// Package reconcile decides and executes the pull request mutations that
// follow a task: pushing the finalizer's local commit, posting a single
// idempotent status comment, closing the pull request when there is nothing
// left to do, setting commit statuses, and promoting draft pull requests.
//
// The engine is shared across task kinds and parameterized by an action label
// and an action-error flag. It never retries: a push or comment failure is
// reported in the outcome and the caller decides the process exit code.
package reconcile
