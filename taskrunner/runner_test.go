/*
Copyright 2026 conda-forge contributors.
SPDX-License-Identifier: Apache-2.0
*/

package taskrunner

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/abuturkyi/conda-forge-webservices/feedstockops"
	"github.com/abuturkyi/conda-forge-webservices/taskresult"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

// fakeOps implements feedstockops.Operations with function fields so each
// test controls the tool outcome and its side effects on the working tree.
type fakeOps struct {
	rerender      func(dir string) (feedstockops.RerenderOutcome, error)
	updateVersion func(dir string) (feedstockops.VersionOutcome, error)
	lint          func(dir string) (feedstockops.LintOutcome, error)
}

func (f *fakeOps) Rerender(_ context.Context, dir string) (feedstockops.RerenderOutcome, error) {
	return f.rerender(dir)
}

func (f *fakeOps) UpdateVersion(_ context.Context, dir, _, _ string) (feedstockops.VersionOutcome, error) {
	return f.updateVersion(dir)
}

func (f *fakeOps) Lint(_ context.Context, dir string) (feedstockops.LintOutcome, error) {
	return f.lint(dir)
}

// initFeedstock creates a temporary git repo with a committed recipe and
// returns the repo, its directory, and the head commit.
func initFeedstock(t *testing.T) (*gogit.Repository, string, plumbing.Hash) {
	t.Helper()

	dir := t.TempDir()
	repo, err := gogit.PlainInit(dir, false)
	if err != nil {
		t.Fatal(err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}

	writeFile(t, dir, "recipe/meta.yaml", "package:\n  name: zlib\n  version: 1.2.11\n")
	writeFile(t, dir, "README.md", "zlib feedstock\n")

	if err := worktree.AddWithOptions(&gogit.AddOptions{All: true}); err != nil {
		t.Fatal(err)
	}
	head, err := worktree.Commit("initial", &gogit.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@test", When: time.Now()},
	})
	if err != nil {
		t.Fatal(err)
	}

	return repo, dir, head
}

func writeFile(t *testing.T, dir, relPath, content string) {
	t.Helper()
	fullPath := filepath.Join(dir, relPath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(fullPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestExecuteRerender(t *testing.T) {
	repo, dir, head := initFeedstock(t)

	ops := &fakeOps{
		rerender: func(dir string) (feedstockops.RerenderOutcome, error) {
			writeFile(t, dir, ".ci_support/linux_64.yaml", "zlib:\n- '1.2'\n")
			return feedstockops.RerenderOutcome{
				Changed:       true,
				CommitMessage: "MNT: Re-rendered with conda-smithy 3.30",
			}, nil
		},
	}

	runner := New(ops, nil, t.TempDir())
	task := taskresult.Task{Kind: taskresult.KindRerender, Repo: "zlib-feedstock", PRNumber: 7, SHA: "abc"}

	result, err := runner.execute(context.Background(), task, dir, repo, head)
	require.NoError(t, err)
	require.NoError(t, result.Validate())

	require.True(t, result.Results.Changed)
	require.False(t, result.Results.RerenderError)
	require.NotNil(t, result.Results.Patch)
	require.Contains(t, *result.Results.Patch, ".ci_support/linux_64.yaml")
	require.Equal(t, "MNT: Re-rendered with conda-smithy 3.30", *result.Results.CommitMessage)
}

func TestExecuteRerenderToolError(t *testing.T) {
	repo, dir, head := initFeedstock(t)

	ops := &fakeOps{
		rerender: func(string) (feedstockops.RerenderOutcome, error) {
			return feedstockops.RerenderOutcome{}, errors.New("container exploded")
		},
	}

	runner := New(ops, nil, t.TempDir())
	task := taskresult.Task{Kind: taskresult.KindRerender, Repo: "zlib-feedstock", PRNumber: 7}

	result, err := runner.execute(context.Background(), task, dir, repo, head)
	require.NoError(t, err, "tool errors are captured as data, not returned")
	require.True(t, result.Results.RerenderError)
	require.Nil(t, result.Results.Patch)
}

func TestExecuteVersionUpdateChainsRerender(t *testing.T) {
	repo, dir, head := initFeedstock(t)

	ops := &fakeOps{
		updateVersion: func(dir string) (feedstockops.VersionOutcome, error) {
			writeFile(t, dir, "recipe/meta.yaml", "package:\n  name: zlib\n  version: 1.3.0\n")
			return feedstockops.VersionOutcome{Changed: true, NewVersion: "1.3.0"}, nil
		},
		rerender: func(dir string) (feedstockops.RerenderOutcome, error) {
			writeFile(t, dir, ".ci_support/linux_64.yaml", "zlib:\n- '1.3'\n")
			return feedstockops.RerenderOutcome{
				Changed:       true,
				CommitMessage: "MNT: Re-rendered with conda-smithy 3.30",
			}, nil
		},
	}

	runner := New(ops, nil, t.TempDir())
	task := taskresult.Task{Kind: taskresult.KindVersionUpdate, Repo: "zlib-feedstock", PRNumber: 3}

	result, err := runner.execute(context.Background(), task, dir, repo, head)
	require.NoError(t, err)
	require.NoError(t, result.Validate())

	require.True(t, result.Results.VersionChanged)
	require.True(t, result.Results.RerenderChanged)
	require.Equal(t, "1.3.0", *result.Results.NewVersion)
	// One commit message describes both changes, with the rerender prefix
	// stripped before concatenation.
	require.Equal(t,
		"ENH: updated version to 1.3.0 & Re-rendered with conda-smithy 3.30",
		*result.Results.CommitMessage)
	require.NotNil(t, result.Results.Patch)
	require.Contains(t, *result.Results.Patch, "recipe/meta.yaml")
	require.Contains(t, *result.Results.Patch, ".ci_support/linux_64.yaml")
}

func TestExecuteVersionUpdateUnchangedSkipsRerender(t *testing.T) {
	repo, dir, head := initFeedstock(t)

	ops := &fakeOps{
		updateVersion: func(string) (feedstockops.VersionOutcome, error) {
			return feedstockops.VersionOutcome{Changed: false}, nil
		},
		rerender: func(string) (feedstockops.RerenderOutcome, error) {
			t.Fatal("rerender must not run when the version did not change")
			return feedstockops.RerenderOutcome{}, nil
		},
	}

	runner := New(ops, nil, t.TempDir())
	task := taskresult.Task{Kind: taskresult.KindVersionUpdate, Repo: "zlib-feedstock", PRNumber: 3}

	result, err := runner.execute(context.Background(), task, dir, repo, head)
	require.NoError(t, err)

	require.False(t, result.Results.VersionChanged)
	require.False(t, result.Results.RerenderChanged)
	require.False(t, result.Results.RerenderError)
	require.Nil(t, result.Results.CommitMessage)
	require.Nil(t, result.Results.Patch)
}

func TestExecuteLintCapturesToolFailure(t *testing.T) {
	repo, dir, head := initFeedstock(t)

	ops := &fakeOps{
		lint: func(string) (feedstockops.LintOutcome, error) {
			return feedstockops.LintOutcome{}, errors.New("conda-smithy bug")
		},
	}

	runner := New(ops, nil, t.TempDir())
	task := taskresult.Task{Kind: taskresult.KindLint, Repo: "zlib-feedstock", PRNumber: 9}

	result, err := runner.execute(context.Background(), task, dir, repo, head)
	require.NoError(t, err, "lint failures must never crash the runner")
	require.True(t, result.Results.LintError)
	require.Nil(t, result.Results.Lints)
	require.Nil(t, result.Results.Hints)
	require.Nil(t, result.Results.Errors)
}

func TestExecuteLintFindings(t *testing.T) {
	repo, dir, head := initFeedstock(t)

	ops := &fakeOps{
		lint: func(string) (feedstockops.LintOutcome, error) {
			return feedstockops.LintOutcome{
				Lints: map[string][]string{"recipe/meta.yaml": {"missing license"}},
				Hints: map[string][]string{"recipe/meta.yaml": {"consider noarch"}},
			}, nil
		},
	}

	runner := New(ops, nil, t.TempDir())
	task := taskresult.Task{Kind: taskresult.KindLint, Repo: "zlib-feedstock", PRNumber: 9}

	result, err := runner.execute(context.Background(), task, dir, repo, head)
	require.NoError(t, err)
	require.False(t, result.Results.LintError)
	// The legacy two-field form is normalized at the boundary.
	require.Equal(t, map[string]bool{"recipe/meta.yaml": false}, result.Results.Errors)
}

func TestRunRejectsInvalidKind(t *testing.T) {
	runner := New(&fakeOps{}, nil, t.TempDir())
	err := runner.Run(context.Background(), taskresult.Task{Kind: "retcon", Repo: "r", PRNumber: 1})
	require.ErrorIs(t, err, taskresult.ErrInvalidKind)
}

// TestPatchRoundTrip verifies the core diff property: applying the captured
// patch to a clean checkout of the pre-operation commit reproduces the
// working tree exactly.
func TestPatchRoundTrip(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}

	repo, dir, head := initFeedstock(t)

	// Mutate the tree the way a rerender would: edit, add, and leave an
	// untracked file behind.
	writeFile(t, dir, "README.md", "zlib feedstock\nrerendered\n")
	writeFile(t, dir, ".ci_support/osx_64.yaml", "zlib:\n- '1.2'\n")

	patch, err := worktreePatch(repo, head)
	require.NoError(t, err)
	require.NotNil(t, patch)

	// Fresh clone, checked out at the base commit (worktreePatch left a
	// scratch commit at the branch tip).
	cloneDir := t.TempDir()
	clone, err := gogit.PlainClone(cloneDir, false, &gogit.CloneOptions{URL: dir})
	require.NoError(t, err)
	cloneWorktree, err := clone.Worktree()
	require.NoError(t, err)
	require.NoError(t, cloneWorktree.Checkout(&gogit.CheckoutOptions{Hash: head}))

	patchFile := filepath.Join(t.TempDir(), "update.patch")
	require.NoError(t, os.WriteFile(patchFile, []byte(*patch), 0o644))

	apply := exec.Command("git", "apply", "--allow-empty", patchFile)
	apply.Dir = cloneDir
	out, err := apply.CombinedOutput()
	require.NoError(t, err, "git apply output: %s", out)

	readme, err := os.ReadFile(filepath.Join(cloneDir, "README.md"))
	require.NoError(t, err)
	require.Equal(t, "zlib feedstock\nrerendered\n", string(readme))

	ci, err := os.ReadFile(filepath.Join(cloneDir, ".ci_support/osx_64.yaml"))
	require.NoError(t, err)
	require.Equal(t, "zlib:\n- '1.2'\n", string(ci))
}

func TestWorktreePatchCleanTreeIsNil(t *testing.T) {
	repo, _, head := initFeedstock(t)

	patch, err := worktreePatch(repo, head)
	require.NoError(t, err)
	require.Nil(t, patch)
}
