/*
Copyright 2026 conda-forge contributors.
SPDX-License-Identifier: Apache-2.0
*/

package taskrunner

import (
	"context"
	"fmt"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// patchRelativeTo renders the working tree as a unified diff against the
// pre-operation commit, or nil when nothing changed. Diff failures are
// logged and reported as "no patch": the changed/error flags in the result
// still describe the tool outcome, and the finalizer treats a changed result
// without a patch as a message-only commit.
func (r *Runner) patchRelativeTo(ctx context.Context, gitRepo *git.Repository, prevHead plumbing.Hash) *string {
	patch, err := worktreePatch(gitRepo, prevHead)
	if err != nil {
		clog.WarnContextf(ctx, "Computing patch against %s failed: %v", prevHead, err)
		return nil
	}
	return patch
}

// worktreePatch stages the entire working tree (untracked files included) and
// diffs it against prev. The staged state is captured with a scratch commit:
// the sandbox clone is discarded at end of run, so the commit never escapes.
func worktreePatch(repo *git.Repository, prev plumbing.Hash) (*string, error) {
	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("getting worktree: %w", err)
	}

	if err := worktree.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return nil, fmt.Errorf("staging working tree: %w", err)
	}

	status, err := worktree.Status()
	if err != nil {
		return nil, fmt.Errorf("getting worktree status: %w", err)
	}
	if status.IsClean() {
		return nil, nil
	}

	scratch, err := worktree.Commit("scratch: diff capture", &git.CommitOptions{
		Author: &object.Signature{
			Name:  "conda-forge-webservices",
			Email: "conda-forge-webservices@users.noreply.github.com",
			When:  time.Now(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating scratch commit: %w", err)
	}

	prevCommit, err := repo.CommitObject(prev)
	if err != nil {
		return nil, fmt.Errorf("resolving pre-operation commit: %w", err)
	}
	scratchCommit, err := repo.CommitObject(scratch)
	if err != nil {
		return nil, fmt.Errorf("resolving scratch commit: %w", err)
	}

	patch, err := prevCommit.Patch(scratchCommit)
	if err != nil {
		return nil, fmt.Errorf("rendering patch: %w", err)
	}

	text := patch.String()
	if text == "" {
		return nil, nil
	}
	return &text, nil
}
