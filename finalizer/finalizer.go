/*
Copyright 2026 conda-forge contributors.
SPDX-License-Identifier: Apache-2.0
*/

package finalizer

import (
	"context"
	"errors"
	"fmt"

	"github.com/abuturkyi/conda-forge-webservices/forge"
	"github.com/abuturkyi/conda-forge-webservices/linting"
	"github.com/abuturkyi/conda-forge-webservices/reconcile"
	"github.com/abuturkyi/conda-forge-webservices/taskresult"
	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5"
)

const (
	// botLogin is the account bot-opened pull requests belong to.
	botLogin = "conda-forge-admin"

	// botRerenderTitle is the fixed title of bot-opened rerender PRs.
	botRerenderTitle = "MNT: rerender"

	// defaultCommitMessage substitutes for a missing commit message when a
	// patch is present. That combination is an upstream contract violation,
	// logged loudly, but it must not block the pipeline.
	defaultCommitMessage = "chore: conda-forge-webservices update"

	rerenderHelpMessage = " or you can try [rerendering locally]" +
		"(https://conda-forge.org/docs/maintainer/updating_pkgs.html" +
		"#rerendering-with-conda-smithy-locally)"
)

// Forge is the live pull request surface the finalizer consumes directly.
// *forge.Client satisfies it; reconciliation goes through the engine instead.
type Forge interface {
	GetPullRequest(ctx context.Context, owner, repo string, number int) (*forge.PullRequest, error)
	ListPullRequestFiles(ctx context.Context, owner, repo string, number int) ([]string, error)
	UpdatePullRequestTitle(ctx context.Context, owner, repo string, number int, title string) error
	SetCommitStatus(ctx context.Context, owner, repo, sha string, status forge.CommitStatus) error
}

// Option configures a Finalizer.
type Option func(*Finalizer)

// WithOrg overrides the GitHub organization the base repositories live in.
func WithOrg(org string) Option {
	return func(f *Finalizer) {
		f.org = org
	}
}

// Finalizer drives the trusted phase for one task result.
type Finalizer struct {
	forge  Forge
	engine *reconcile.Engine
	org    string
}

// New constructs a Finalizer around a forge session and a reconciliation
// engine sharing that session's credential.
func New(f Forge, engine *reconcile.Engine, opts ...Option) (*Finalizer, error) {
	if f == nil || engine == nil {
		return nil, errors.New("forge and engine cannot be nil")
	}
	fin := &Finalizer{forge: f, engine: engine, org: "conda-forge"}
	for _, opt := range opts {
		opt(fin)
	}
	return fin, nil
}

// Run loads the result artifact from the task-data directory and finalizes it.
func (f *Finalizer) Run(ctx context.Context, dataDir string) error {
	result, err := taskresult.NewStore(dataDir).Load()
	if err != nil {
		return err
	}
	return f.Finalize(ctx, result)
}

// Finalize re-fetches the live pull request and reconciles it with the task
// result. A closed pull request is a cooperative cancellation point: the run
// ends there with no mutation.
func (f *Finalizer) Finalize(ctx context.Context, result *taskresult.Result) error {
	log := clog.FromContext(ctx)
	log.Infof("finalizing task `%s` for %s/%s#%d", result.Task, f.org, result.Repo, result.PRNumber)

	pr, err := f.forge.GetPullRequest(ctx, f.org, result.Repo, result.PRNumber)
	if err != nil {
		return err
	}
	if pr.Closed() {
		log.Errorf("Closed PRs cannot be linted, rerendered, or have their versions updated, exiting")
		return nil
	}

	switch result.Task {
	case taskresult.KindRerender:
		return f.finalizeRerender(ctx, result, pr)
	case taskresult.KindVersionUpdate:
		return f.finalizeVersionUpdate(ctx, result, pr)
	case taskresult.KindLint:
		return f.finalizeLint(ctx, result, pr)
	}
	return fmt.Errorf("%w: %q", taskresult.ErrInvalidKind, result.Task)
}

func (f *Finalizer) finalizeRerender(ctx context.Context, result *taskresult.Result, pr *forge.PullRequest) error {
	tr := result.Results

	gitRepo, cleanup := f.prepareCommit(ctx, pr, tr)
	defer cleanup()

	out := f.engine.PushAndComment(ctx, pr, gitRepo, reconcile.Request{
		Action:      "rerender",
		ActionError: tr.RerenderError,
		InfoMessage: deref(tr.InfoMessage),
		HelpMessage: rerenderHelpMessage,
		Changed:     tr.Changed,
	})

	errored := tr.RerenderError || out.PushError
	if err := f.engine.SetRerenderStatus(ctx, pr, result.SHA, !errored); err != nil {
		clog.ErrorContextf(ctx, "Setting rerender status failed: %v", err)
		errored = true
	}

	// Draft bot-rerender PRs auto-promote once rerendering is confirmed
	// clean.
	if !errored && pr.Title == botRerenderTitle && pr.AuthorLogin == botLogin {
		f.engine.MarkReadyForReview(ctx, pr)
	}

	if errored {
		return fmt.Errorf("rerender for %s/%s#%d failed, check the workflow logs of the `run task` job", f.org, result.Repo, result.PRNumber)
	}
	return nil
}

func (f *Finalizer) finalizeVersionUpdate(ctx context.Context, result *taskresult.Result, pr *forge.PullRequest) error {
	gitRepo, cleanup := f.prepareCommit(ctx, pr, result.Results)
	defer cleanup()
	return f.reconcileVersionUpdate(ctx, result, pr, gitRepo)
}

// reconcileVersionUpdate applies the version-update decision table to an
// already prepared local clone.
func (f *Finalizer) reconcileVersionUpdate(ctx context.Context, result *taskresult.Result, pr *forge.PullRequest, gitRepo *git.Repository) error {
	tr := result.Results

	titleError := false
	if !tr.VersionError && tr.VersionChanged && tr.NewVersion != nil {
		title := fmt.Sprintf("ENH: update package version to %s", *tr.NewVersion)
		clog.InfoContextf(ctx, "Updating PR title for %s/%s#%d with version=%s", f.org, result.Repo, pr.Number, *tr.NewVersion)
		if err := f.forge.UpdatePullRequestTitle(ctx, pr.Owner, pr.Repo, pr.Number, title); err != nil {
			clog.ErrorContextf(ctx, "Updating PR title failed: %v", err)
			titleError = true
		}
	}

	// A rerender failure on an unchanged version is unrelated noise and is
	// not reported.
	actionError := tr.VersionError || (tr.VersionChanged && tr.RerenderError)

	out := f.engine.PushAndComment(ctx, pr, gitRepo, reconcile.Request{
		Action:           "update the version and rerender",
		ActionError:      actionError,
		InfoMessage:      deref(tr.InfoMessage),
		HelpMessage:      rerenderHelpMessage,
		Changed:          tr.VersionChanged,
		CloseIfUnchanged: true,
	})

	// Version-update PRs are never left in draft.
	if !actionError && !out.PushError {
		f.engine.MarkReadyForReview(ctx, pr)
	}

	if titleError || actionError || out.PushError {
		return fmt.Errorf("version update for %s/%s#%d failed (title error: %v), check the workflow logs of the `run task` job",
			f.org, result.Repo, result.PRNumber, titleError)
	}
	return nil
}

func (f *Finalizer) finalizeLint(ctx context.Context, result *taskresult.Result, pr *forge.PullRequest) error {
	tr := result.Results
	log := clog.FromContext(ctx)

	// The runner's global flag is advisory. With findings in hand the error
	// decision is re-derived from the recipes this PR actually touches.
	errored := tr.LintError
	var recipes []string
	if tr.HasFindings() {
		files, err := f.forge.ListPullRequestFiles(ctx, pr.Owner, pr.Repo, pr.Number)
		if err != nil {
			log.Warnf("Listing PR files failed, keeping every recipe in scope: %v", err)
			files = nil
		}
		recipes = linting.RecipesForLinting(files, tr.Lints, tr.Hints)
		errored = linting.Errored(tr.Errors, recipes)
	}

	var body string
	var status linting.Status
	if errored {
		body = linting.FailureComment(f.engine.RunURL())
		status = linting.StatusBad
	} else {
		body, status = linting.BuildComment(tr.Lints, tr.Hints, recipes)
	}

	comment, err := f.engine.UpsertComment(ctx, pr, "lint", body)
	if err != nil {
		log.Errorf("Posting lint comment failed: %v", err)
		errored = true
	}

	if err := f.forge.SetCommitStatus(ctx, pr.Owner, pr.Repo, result.SHA, status.CommitStatus(comment.HTMLURL)); err != nil {
		log.Errorf("Setting lint status failed: %v", err)
		errored = true
	}

	log.Infof("Linter status: %s", status)
	if errored {
		return fmt.Errorf("linting for %s/%s#%d failed, check the workflow logs of the `run task` job", f.org, result.Repo, result.PRNumber)
	}
	return nil
}

// deref unwraps an optional string.
func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
