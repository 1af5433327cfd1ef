/*
Copyright 2026 conda-forge contributors.
SPDX-License-Identifier: Apache-2.0
*/

// Package automerge locates the open pull request whose head matches a commit
// and merges it with elevated privilege once the feedstock's automerge policy
// and the commit's checks allow it.
//
// The trigger is fired per commit, not per pull request, so a commit with no
// matching open pull request is an expected no-op: pushes to stale refs land
// here too.
package automerge
