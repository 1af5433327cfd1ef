/*
Copyright 2026 conda-forge contributors.
SPDX-License-Identifier: Apache-2.0
*/

package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/abuturkyi/conda-forge-webservices/forge"
	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"golang.org/x/oauth2"
)

// Forge is the pull request mutation surface the engine needs. *forge.Client
// satisfies it; tests substitute a fake.
type Forge interface {
	ListComments(ctx context.Context, owner, repo string, number int) ([]forge.Comment, error)
	CreateComment(ctx context.Context, owner, repo string, number int, body string) (forge.Comment, error)
	UpdateComment(ctx context.Context, owner, repo string, id int64, body string) (forge.Comment, error)
	ClosePullRequest(ctx context.Context, owner, repo string, number int) error
	SetCommitStatus(ctx context.Context, owner, repo, sha string, status forge.CommitStatus) error
	MarkReadyForReview(ctx context.Context, nodeID string) error
}

// troubleshootingSuffix is appended to the info message whenever the task
// itself errored.
const troubleshootingSuffix = `
The following suggestions might help debug any issues:
* Is the ` + "`recipe/{meta.yaml,recipe.yaml}`" + ` file valid?
* If there is a ` + "`recipe/conda_build_config.yaml`" + ` file in the feedstock make sure that it is compatible with the current [global pinnings](https://github.com/conda-forge/conda-forge-pinning-feedstock/blob/main/recipe/conda_build_config.yaml).
* Is the fork used for this PR on an organization or user GitHub account? Automated rerendering via the webservices admin bot only works for user GitHub accounts.`

// Request parameterizes one push/comment decision.
type Request struct {
	// Action is the human-readable label for the comment, e.g. "rerender"
	// or "update the version and rerender".
	Action string

	// ActionError reports whether the task's own operation failed.
	ActionError bool

	// InfoMessage is extra detail from the tool, shown in the comment.
	InfoMessage string

	// HelpMessage is an optional " or you can ..." suffix for the error
	// comment, e.g. a link to local-rerender docs.
	HelpMessage string

	// Changed reports whether the finalizer's local clone carries a commit
	// that should be pushed to the contributor's branch.
	Changed bool

	// CloseIfUnchanged closes the pull request when there is neither a
	// change nor an error. Version updates use this so a "nothing to
	// update" PR does not linger open.
	CloseIfUnchanged bool
}

// Outcome is the derived result of one reconciliation. It is never persisted.
type Outcome struct {
	PushError bool
	Comment   forge.Comment
}

// Engine drives pull request reconciliation for all task kinds.
type Engine struct {
	forge       Forge
	tokenSource oauth2.TokenSource
	runURL      string
}

// New constructs an Engine. The token source authenticates git pushes to the
// contributor's branch; runURL links commit statuses back to this pipeline
// run.
func New(f Forge, tokenSource oauth2.TokenSource, runURL string) (*Engine, error) {
	if f == nil {
		return nil, errors.New("forge cannot be nil")
	}
	return &Engine{forge: f, tokenSource: tokenSource, runURL: runURL}, nil
}

// RunURL returns the link to this pipeline run used in statuses and comments.
func (e *Engine) RunURL() string {
	return e.runURL
}

// PushAndComment pushes the local commit if the task changed anything, posts
// or updates the single status comment for the action, and optionally closes
// the pull request when nothing happened. The returned push error is
// independent of the action error: the caller combines them into the final
// task state.
func (e *Engine) PushAndComment(ctx context.Context, pr *forge.PullRequest, gitRepo *git.Repository, req Request) Outcome {
	log := clog.FromContext(ctx)

	info := req.InfoMessage
	if req.ActionError {
		info += "\n" + troubleshootingSuffix
	}

	pushError := false
	if req.Changed {
		if err := e.push(ctx, gitRepo, pr.HeadRef); err != nil {
			log.Errorf("Pushing to %s/%s@%s failed: %v", pr.HeadOwner, pr.HeadRepo, pr.HeadRef, err)
			pushError = true
		}
	}

	errored := req.ActionError || pushError
	closing := req.CloseIfUnchanged && !req.Changed && !errored

	body := e.commentBody(req, pr, errored, closing, info)
	comment, err := e.UpsertComment(ctx, pr, req.Action, body)
	if err != nil {
		// A failed comment leaves the PR consistent but unexplained;
		// surface it as a push-level error so the job fails loudly.
		log.Errorf("Commenting on %s/%s#%d failed: %v", pr.Owner, pr.Repo, pr.Number, err)
		pushError = true
	}

	if closing {
		if err := e.forge.ClosePullRequest(ctx, pr.Owner, pr.Repo, pr.Number); err != nil {
			log.Errorf("Closing %s/%s#%d failed: %v", pr.Owner, pr.Repo, pr.Number, err)
			pushError = true
		}
	}

	return Outcome{PushError: pushError, Comment: comment}
}

// commentBody renders the bot comment for the current combination of change,
// error, and close states.
func (e *Engine) commentBody(req Request, pr *forge.PullRequest, errored, closing bool, info string) string {
	var sb strings.Builder
	sb.WriteString("Hi! This is the friendly automated conda-forge-webservice.\n\n")

	switch {
	case errored:
		fmt.Fprintf(&sb,
			"I tried to %s for you, but it looks like I ran into some issues. "+
				"Please check the output logs of the GitHub actions workflow for errors%s.",
			req.Action, req.HelpMessage)
	case req.Changed:
		fmt.Fprintf(&sb, "I just wanted to let you know that I %s in %s/%s#%d.",
			req.Action, pr.Owner, pr.Repo, pr.Number)
	default:
		fmt.Fprintf(&sb, "I tried to %s for you, but it looks like there was nothing to do.", req.Action)
	}

	if closing {
		sb.WriteString("\n\nI'm closing this PR!")
	}

	if strings.TrimSpace(info) != "" {
		sb.WriteString("\n\n")
		sb.WriteString(strings.TrimSpace(info))
	}

	if e.runURL != "" {
		fmt.Fprintf(&sb, "\n\n<sub>This message was generated by %s. Examine the logs at this URL for more detail.</sub>", e.runURL)
	}

	return sb.String()
}

// UpsertComment posts a comment idempotently: each action owns at most one
// comment per pull request, recognized by a hidden marker and edited in place
// on subsequent runs.
func (e *Engine) UpsertComment(ctx context.Context, pr *forge.PullRequest, action, body string) (forge.Comment, error) {
	marker := commentMarker(action)
	body = marker + "\n" + body

	comments, err := e.forge.ListComments(ctx, pr.Owner, pr.Repo, pr.Number)
	if err != nil {
		return forge.Comment{}, fmt.Errorf("listing comments: %w", err)
	}

	for i := len(comments) - 1; i >= 0; i-- {
		if strings.Contains(comments[i].Body, marker) {
			return e.forge.UpdateComment(ctx, pr.Owner, pr.Repo, comments[i].ID, body)
		}
	}
	return e.forge.CreateComment(ctx, pr.Owner, pr.Repo, pr.Number, body)
}

func commentMarker(action string) string {
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '-'
		}
	}, action)
	return fmt.Sprintf("<!-- conda-forge-webservices:%s -->", slug)
}

// push sends the finalizer's local commit to the contributor's branch using
// the engine's credential.
func (e *Engine) push(ctx context.Context, gitRepo *git.Repository, branch string) error {
	if gitRepo == nil {
		return errors.New("no local repository to push from")
	}

	var auth *githttp.BasicAuth
	if e.tokenSource != nil {
		token, err := e.tokenSource.Token()
		if err != nil {
			return fmt.Errorf("getting token: %w", err)
		}
		auth = &githttp.BasicAuth{
			Username: "unused-when-using-access-tokens",
			Password: token.AccessToken,
		}
	}

	refSpec := gitconfig.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", branch, branch))
	clog.InfoContextf(ctx, "Pushing %s", refSpec)

	err := gitRepo.PushContext(ctx, &git.PushOptions{
		RemoteName: "origin",
		RefSpecs:   []gitconfig.RefSpec{refSpec},
		Auth:       auth,
	})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		clog.InfoContextf(ctx, "Branch already up to date")
		return nil
	}
	return err
}

// SetRerenderStatus records the rerender outcome as a commit status against
// the dispatch SHA, linking back to this pipeline run.
func (e *Engine) SetRerenderStatus(ctx context.Context, pr *forge.PullRequest, sha string, succeeded bool) error {
	state, description := "failure", "Rerendering failed"
	if succeeded {
		state, description = "success", "Rerendering complete"
	}
	return e.forge.SetCommitStatus(ctx, pr.Owner, pr.Repo, sha, forge.CommitStatus{
		State:       state,
		Context:     "conda-forge-webservices/rerender",
		Description: description,
		TargetURL:   e.runURL,
	})
}

// MarkReadyForReview promotes a draft pull request. The failure is logged and
// returned; callers decide whether it is fatal.
func (e *Engine) MarkReadyForReview(ctx context.Context, pr *forge.PullRequest) error {
	clog.InfoContextf(ctx, "Marking %s/%s#%d as ready for review", pr.Owner, pr.Repo, pr.Number)
	if err := e.forge.MarkReadyForReview(ctx, pr.NodeID); err != nil {
		clog.WarnContextf(ctx, "Marking ready for review failed: %v", err)
		return err
	}
	return nil
}
