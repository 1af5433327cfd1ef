/*
Copyright 2026 conda-forge contributors.
SPDX-License-Identifier: Apache-2.0
*/

package taskrunner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/abuturkyi/conda-forge-webservices/feedstockops"
	"github.com/abuturkyi/conda-forge-webservices/taskresult"
	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
)

// cloneURL resolves the remote URL for a feedstock. Tests override this to
// point at local fixture repositories.
var cloneURL = func(org, repo string) string {
	return fmt.Sprintf("https://github.com/%s/%s.git", org, repo)
}

// Puller provisions the tool container image. Pull failures are tolerated:
// the subsequent tool invocation surfaces the real error.
type Puller interface {
	Pull(ctx context.Context) error
}

// Option configures a Runner.
type Option func(*Runner)

// WithOrg overrides the GitHub organization feedstocks are cloned from.
func WithOrg(org string) Option {
	return func(r *Runner) {
		r.org = org
	}
}

// Runner executes sandboxed tasks and writes their results into the shared
// task-data directory.
type Runner struct {
	ops     feedstockops.Operations
	puller  Puller
	dataDir string
	org     string
}

// New constructs a Runner. The task-data directory holds both the scratch
// feedstock clone and the result artifact.
func New(ops feedstockops.Operations, puller Puller, dataDir string, opts ...Option) *Runner {
	r := &Runner{
		ops:     ops,
		puller:  puller,
		dataDir: dataDir,
		org:     "conda-forge",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the task and persists its result. An invalid task aborts
// before any artifact is written; every other failure mode is captured inside
// the artifact.
func (r *Runner) Run(ctx context.Context, task taskresult.Task) error {
	if err := task.Validate(); err != nil {
		return err
	}

	log := clog.FromContext(ctx)
	log.Infof("task `%s` for %s/%s#%d", task.Kind, r.org, task.Repo, task.PRNumber)

	feedstockDir := filepath.Join(r.dataDir, task.Repo)
	if err := os.MkdirAll(feedstockDir, 0o755); err != nil {
		return fmt.Errorf("creating feedstock dir: %w", err)
	}
	// No sandbox residue: drop the git metadata first, then the tree.
	defer func() {
		os.RemoveAll(filepath.Join(feedstockDir, ".git"))
		os.RemoveAll(feedstockDir)
	}()

	gitRepo, prevHead, err := r.clonePRHead(ctx, feedstockDir, task)
	if err != nil {
		return err
	}

	result, err := r.execute(ctx, task, feedstockDir, gitRepo, prevHead)
	if err != nil {
		return err
	}

	return taskresult.NewStore(r.dataDir).Write(result)
}

// clonePRHead clones the feedstock, fetches the pull request head ref, checks
// it out, and reports the pre-operation commit.
func (r *Runner) clonePRHead(ctx context.Context, feedstockDir string, task taskresult.Task) (*git.Repository, plumbing.Hash, error) {
	remote := cloneURL(r.org, task.Repo)
	clog.InfoContextf(ctx, "Cloning %s into %s", remote, feedstockDir)

	gitRepo, err := git.PlainCloneContext(ctx, feedstockDir, false, &git.CloneOptions{URL: remote})
	if err != nil {
		return nil, plumbing.ZeroHash, fmt.Errorf("cloning %s: %w", remote, err)
	}

	branch := fmt.Sprintf("pull/%d/head", task.PRNumber)
	refSpec := gitconfig.RefSpec(fmt.Sprintf("+refs/pull/%d/head:refs/heads/%s", task.PRNumber, branch))
	if err := gitRepo.FetchContext(ctx, &git.FetchOptions{RefSpecs: []gitconfig.RefSpec{refSpec}}); err != nil {
		return nil, plumbing.ZeroHash, fmt.Errorf("fetching %s: %w", refSpec, err)
	}

	worktree, err := gitRepo.Worktree()
	if err != nil {
		return nil, plumbing.ZeroHash, fmt.Errorf("getting worktree: %w", err)
	}
	if err := worktree.Checkout(&git.CheckoutOptions{Branch: plumbing.NewBranchReferenceName(branch)}); err != nil {
		return nil, plumbing.ZeroHash, fmt.Errorf("checking out %s: %w", branch, err)
	}

	head, err := gitRepo.Head()
	if err != nil {
		return nil, plumbing.ZeroHash, fmt.Errorf("resolving head: %w", err)
	}
	return gitRepo, head.Hash(), nil
}

// execute dispatches the single opaque tool operation for the task kind and
// assembles the result artifact.
func (r *Runner) execute(ctx context.Context, task taskresult.Task, feedstockDir string, gitRepo *git.Repository, prevHead plumbing.Hash) (*taskresult.Result, error) {
	result := &taskresult.Result{
		Task:     task.Kind,
		Repo:     task.Repo,
		PRNumber: task.PRNumber,
		SHA:      task.SHA,
	}

	r.pullImage(ctx)

	switch task.Kind {
	case taskresult.KindRerender:
		result.Results = r.runRerender(ctx, feedstockDir, gitRepo, prevHead)
	case taskresult.KindVersionUpdate:
		result.Results = r.runVersionUpdate(ctx, task, feedstockDir, gitRepo, prevHead)
	case taskresult.KindLint:
		result.Results = r.runLint(ctx, feedstockDir)
	default:
		return nil, fmt.Errorf("%w: %q", taskresult.ErrInvalidKind, task.Kind)
	}

	return result, nil
}

func (r *Runner) pullImage(ctx context.Context) {
	if r.puller == nil {
		return
	}
	if err := r.puller.Pull(ctx); err != nil {
		// An interrupted pull must not skip the task: the tool
		// invocation will surface the real error if the image is
		// actually unusable.
		clog.WarnContextf(ctx, "Image pull failed, continuing: %v", err)
	}
}

func (r *Runner) runRerender(ctx context.Context, feedstockDir string, gitRepo *git.Repository, prevHead plumbing.Hash) taskresult.TaskResults {
	out, err := r.ops.Rerender(ctx, feedstockDir)
	if err != nil {
		clog.WarnContextf(ctx, "Rerender failed: %v", err)
		return taskresult.TaskResults{RerenderError: true}
	}

	tr := taskresult.TaskResults{
		Changed:       out.Changed,
		RerenderError: out.Errored,
		InfoMessage:   optional(out.InfoMessage),
		CommitMessage: optional(out.CommitMessage),
	}
	if out.Changed {
		tr.Patch = r.patchRelativeTo(ctx, gitRepo, prevHead)
	}
	return tr
}

func (r *Runner) runVersionUpdate(ctx context.Context, task taskresult.Task, feedstockDir string, gitRepo *git.Repository, prevHead plumbing.Hash) taskresult.TaskResults {
	inputVersion := task.NormalizedVersion()
	clog.InfoContextf(ctx, "version update requested version: %q", inputVersion)

	fullRepoName := fmt.Sprintf("%s/%s", r.org, task.Repo)
	out, err := r.ops.UpdateVersion(ctx, feedstockDir, fullRepoName, inputVersion)
	if err != nil {
		clog.WarnContextf(ctx, "Version update failed: %v", err)
		return taskresult.TaskResults{VersionError: true}
	}

	tr := taskresult.TaskResults{
		VersionChanged: out.Changed,
		VersionError:   out.Errored,
		NewVersion:     optional(out.NewVersion),
	}
	if !out.Changed {
		// A rerender is never attempted on an unchanged version; the
		// chained fields stay at their nothing-happened defaults.
		return tr
	}

	commitMessage := fmt.Sprintf("ENH: updated version to %s", out.NewVersion)

	rerender, err := r.ops.Rerender(ctx, feedstockDir)
	if err != nil {
		clog.WarnContextf(ctx, "Chained rerender failed: %v", err)
		rerender = feedstockops.RerenderOutcome{Errored: true}
	}
	tr.RerenderChanged = rerender.Changed
	tr.RerenderError = rerender.Errored
	tr.InfoMessage = optional(rerender.InfoMessage)
	if rerender.Changed {
		// One commit message describes both changes.
		commitMessage += " & " + strings.TrimPrefix(rerender.CommitMessage, feedstockops.RerenderMessagePrefix)
	}
	tr.CommitMessage = &commitMessage
	tr.Patch = r.patchRelativeTo(ctx, gitRepo, prevHead)
	return tr
}

func (r *Runner) runLint(ctx context.Context, feedstockDir string) taskresult.TaskResults {
	out, err := r.ops.Lint(ctx, feedstockDir)
	if err != nil {
		// A malformed recipe is an expected, recoverable outcome; it
		// must never propagate as a crash of the runner.
		clog.WarnContextf(ctx, "LINTING ERROR: %v", err)
		return taskresult.TaskResults{LintError: true}
	}

	out = out.Normalize()
	return taskresult.TaskResults{
		Lints:  out.Lints,
		Hints:  out.Hints,
		Errors: out.Errors,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
