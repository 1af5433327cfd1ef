/*
Copyright 2026 conda-forge contributors.
SPDX-License-Identifier: Apache-2.0
*/

package finalizer

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/abuturkyi/conda-forge-webservices/forge"
	"github.com/abuturkyi/conda-forge-webservices/taskresult"
	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/waigani/diffparser"
)

// cloneURL resolves the remote URL for a contributor's fork. Tests override
// this to point at local fixture repositories.
var cloneURL = func(owner, repo string) string {
	return fmt.Sprintf("https://github.com/%s/%s.git", owner, repo)
}

// prepareCommit clones the contributor's branch fresh, applies the patch if
// one exists, and creates the single atomic commit for the task. The clone
// happens even without a patch: a message-only commit is valid. On failure it
// logs and returns a nil repository, and the subsequent push reports the
// error. The cleanup function removes the scratch clone and is always safe to
// call.
func (f *Finalizer) prepareCommit(ctx context.Context, pr *forge.PullRequest, tr taskresult.TaskResults) (*git.Repository, func()) {
	log := clog.FromContext(ctx)

	commitMessage := tr.CommitMessage
	if tr.Patch != nil && commitMessage == nil {
		log.Warnf("The task provided a patch but no commit message. This is likely an upstream error. Proceeding with a default commit message.")
		commitMessage = taskresult.Ptr(defaultCommitMessage)
	}

	tmpDir, err := os.MkdirTemp("", "webservices-finalize-*")
	if err != nil {
		log.Errorf("Creating scratch dir failed: %v", err)
		return nil, func() {}
	}
	cleanup := func() { os.RemoveAll(tmpDir) }

	feedstockDir := filepath.Join(tmpDir, pr.HeadRepo)
	remote := cloneURL(pr.HeadOwner, pr.HeadRepo)
	log.Infof("Cloning %s@%s into %s", remote, pr.HeadRef, feedstockDir)

	gitRepo, err := git.PlainCloneContext(ctx, feedstockDir, false, &git.CloneOptions{
		URL:           remote,
		ReferenceName: plumbing.NewBranchReferenceName(pr.HeadRef),
		SingleBranch:  true,
	})
	if err != nil {
		log.Errorf("Cloning %s failed: %v", remote, err)
		return nil, cleanup
	}

	if tr.Patch != nil {
		if err := applyPatch(ctx, tmpDir, feedstockDir, *tr.Patch); err != nil {
			log.Errorf("Applying patch failed: %v", err)
			return nil, cleanup
		}
	}

	if commitMessage != nil {
		if err := commitAll(gitRepo, *commitMessage); err != nil {
			log.Errorf("Committing failed: %v", err)
			return nil, cleanup
		}
	}

	return gitRepo, cleanup
}

// applyPatch validates the untrusted patch, writes it next to the clone, and
// applies it with empty-patch tolerance. A no-op patch is valid: the task ran
// and produced no content change, yet a commit is still desired.
func applyPatch(ctx context.Context, tmpDir, feedstockDir, patch string) error {
	diff, err := diffparser.Parse(patch)
	if err != nil {
		return fmt.Errorf("parsing patch: %w", err)
	}
	clog.InfoContextf(ctx, "Applying patch touching %d files", len(diff.Files))

	patchFile := filepath.Join(tmpDir, "rerender-diff.patch")
	if err := os.WriteFile(patchFile, []byte(patch), 0o644); err != nil {
		return fmt.Errorf("writing patch file: %w", err)
	}

	cmd := exec.CommandContext(ctx, "git", "apply", "--allow-empty", patchFile)
	cmd.Dir = feedstockDir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git apply: %w: %s", err, out)
	}
	return nil
}

// commitAll stages the whole tree, untracked files included, and creates one
// commit even when nothing changed.
func commitAll(gitRepo *git.Repository, message string) error {
	worktree, err := gitRepo.Worktree()
	if err != nil {
		return fmt.Errorf("getting worktree: %w", err)
	}
	if err := worktree.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return fmt.Errorf("staging changes: %w", err)
	}

	sig := &object.Signature{
		Name:  "conda-forge-admin",
		Email: "conda-forge-admin@users.noreply.github.com",
		When:  time.Now(),
	}
	if _, err := worktree.Commit(message, &git.CommitOptions{
		Author:            sig,
		Committer:         sig,
		AllowEmptyCommits: true,
	}); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	return nil
}
