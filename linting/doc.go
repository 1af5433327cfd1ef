/*
Copyright 2026 conda-forge contributors.
SPDX-License-Identifier: Apache-2.0
*/

// Package linting turns raw lint findings into the linter's pull request
// surface: which recipes are actually in scope for the pull request, whether
// the lint task counts as errored, the findings comment, and the commit
// status.
//
// The runner's global lint_error flag is advisory only. The authoritative
// error decision is scoped to the recipes the pull request touches, so an
// unrelated broken recipe elsewhere in the feedstock cannot fail someone
// else's pull request.
package linting
