/*
Copyright 2026 conda-forge contributors.
SPDX-License-Identifier: Apache-2.0
*/

package forge

import (
	"context"
	"errors"
	"fmt"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"
)

// Client is a privilege-scoped GitHub API session. It bundles the REST client
// with a GraphQL client for the few operations REST does not expose, and keeps
// the token source so git pushes can reuse the same credential.
type Client struct {
	rest *github.Client
	gql  *githubv4.Client

	tokenSource oauth2.TokenSource
}

// New builds a standard-privilege session from a static token.
func New(ctx context.Context, token string) (*Client, error) {
	if token == "" {
		return nil, errors.New("token cannot be empty")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := oauth2.NewClient(ctx, ts)

	return &Client{
		rest:        github.NewClient(httpClient),
		gql:         githubv4.NewClient(httpClient),
		tokenSource: ts,
	}, nil
}

// NewElevated builds an elevated-privilege session. The construction is
// identical to New; the distinction is which token the caller supplies, and
// keeping a separate constructor makes call sites state which privilege level
// they require.
func NewElevated(ctx context.Context, token string) (*Client, error) {
	if token == "" {
		return nil, errors.New("elevated token cannot be empty")
	}
	return New(ctx, token)
}

// TokenSource exposes the session credential for git transport use.
func (c *Client) TokenSource() oauth2.TokenSource {
	return c.tokenSource
}

// GetPullRequest fetches the live pull request state as a snapshot record.
func (c *Client) GetPullRequest(ctx context.Context, owner, repo string, number int) (*PullRequest, error) {
	pr, _, err := c.rest.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return nil, fmt.Errorf("fetching %s/%s#%d: %w", owner, repo, number, err)
	}
	return pullRequestFromGitHub(owner, repo, pr), nil
}

// ListOpenPullRequests returns snapshots of all open pull requests on the
// repository, paginating through the full list.
func (c *Client) ListOpenPullRequests(ctx context.Context, owner, repo string) ([]*PullRequest, error) {
	opts := &github.PullRequestListOptions{
		State:       "open",
		ListOptions: github.ListOptions{PerPage: 100},
	}

	var out []*PullRequest
	for {
		prs, resp, err := c.rest.PullRequests.List(ctx, owner, repo, opts)
		if err != nil {
			return nil, fmt.Errorf("listing pull requests for %s/%s: %w", owner, repo, err)
		}
		for _, pr := range prs {
			out = append(out, pullRequestFromGitHub(owner, repo, pr))
		}
		if resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
}

// ListPullRequestFiles returns the paths touched by the pull request.
func (c *Client) ListPullRequestFiles(ctx context.Context, owner, repo string, number int) ([]string, error) {
	opts := &github.ListOptions{PerPage: 100}

	var paths []string
	for {
		files, resp, err := c.rest.PullRequests.ListFiles(ctx, owner, repo, number, opts)
		if err != nil {
			return nil, fmt.Errorf("listing files for %s/%s#%d: %w", owner, repo, number, err)
		}
		for _, f := range files {
			paths = append(paths, f.GetFilename())
		}
		if resp.NextPage == 0 {
			return paths, nil
		}
		opts.Page = resp.NextPage
	}
}

// ListComments returns all issue comments on the pull request in creation order.
func (c *Client) ListComments(ctx context.Context, owner, repo string, number int) ([]Comment, error) {
	opts := &github.IssueListCommentsOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}

	var out []Comment
	for {
		comments, resp, err := c.rest.Issues.ListComments(ctx, owner, repo, number, opts)
		if err != nil {
			return nil, fmt.Errorf("listing comments for %s/%s#%d: %w", owner, repo, number, err)
		}
		for _, cm := range comments {
			out = append(out, Comment{
				ID:          cm.GetID(),
				Body:        cm.GetBody(),
				HTMLURL:     cm.GetHTMLURL(),
				AuthorLogin: cm.GetUser().GetLogin(),
			})
		}
		if resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
}

// CreateComment posts a new issue comment on the pull request.
func (c *Client) CreateComment(ctx context.Context, owner, repo string, number int, body string) (Comment, error) {
	cm, _, err := c.rest.Issues.CreateComment(ctx, owner, repo, number, &github.IssueComment{
		Body: github.Ptr(body),
	})
	if err != nil {
		return Comment{}, fmt.Errorf("creating comment on %s/%s#%d: %w", owner, repo, number, err)
	}
	return Comment{ID: cm.GetID(), Body: cm.GetBody(), HTMLURL: cm.GetHTMLURL(), AuthorLogin: cm.GetUser().GetLogin()}, nil
}

// UpdateComment replaces the body of an existing issue comment.
func (c *Client) UpdateComment(ctx context.Context, owner, repo string, id int64, body string) (Comment, error) {
	cm, _, err := c.rest.Issues.EditComment(ctx, owner, repo, id, &github.IssueComment{
		Body: github.Ptr(body),
	})
	if err != nil {
		return Comment{}, fmt.Errorf("updating comment %d on %s/%s: %w", id, owner, repo, err)
	}
	return Comment{ID: cm.GetID(), Body: cm.GetBody(), HTMLURL: cm.GetHTMLURL(), AuthorLogin: cm.GetUser().GetLogin()}, nil
}

// ClosePullRequest transitions the pull request to the closed state.
func (c *Client) ClosePullRequest(ctx context.Context, owner, repo string, number int) error {
	_, _, err := c.rest.PullRequests.Edit(ctx, owner, repo, number, &github.PullRequest{
		State: github.Ptr("closed"),
	})
	if err != nil {
		return fmt.Errorf("closing %s/%s#%d: %w", owner, repo, number, err)
	}
	return nil
}

// UpdatePullRequestTitle sets a new title on the pull request.
func (c *Client) UpdatePullRequestTitle(ctx context.Context, owner, repo string, number int, title string) error {
	_, _, err := c.rest.PullRequests.Edit(ctx, owner, repo, number, &github.PullRequest{
		Title: github.Ptr(title),
	})
	if err != nil {
		return fmt.Errorf("updating title of %s/%s#%d: %w", owner, repo, number, err)
	}
	return nil
}

// SetCommitStatus sets a commit status against the given SHA.
func (c *Client) SetCommitStatus(ctx context.Context, owner, repo, sha string, status CommitStatus) error {
	_, _, err := c.rest.Repositories.CreateStatus(ctx, owner, repo, sha, github.RepoStatus{
		State:       github.Ptr(status.State),
		Context:     github.Ptr(status.Context),
		Description: github.Ptr(status.Description),
		TargetURL:   github.Ptr(status.TargetURL),
	})
	if err != nil {
		return fmt.Errorf("setting status %q on %s/%s@%s: %w", status.Context, owner, repo, sha, err)
	}
	return nil
}

// MarkReadyForReview promotes a draft pull request to ready. The REST API has
// no endpoint for this, so it goes through the GraphQL mutation.
func (c *Client) MarkReadyForReview(ctx context.Context, nodeID string) error {
	var m struct {
		MarkPullRequestReadyForReview struct {
			PullRequest struct {
				IsDraft githubv4.Boolean
			}
		} `graphql:"markPullRequestReadyForReview(input: $input)"`
	}
	input := githubv4.MarkPullRequestReadyForReviewInput{
		PullRequestID: githubv4.ID(nodeID),
	}
	if err := c.gql.Mutate(ctx, &m, input, nil); err != nil {
		return fmt.Errorf("marking pull request ready for review: %w", err)
	}
	return nil
}

// CombinedStatusState returns the rolled-up commit status state for a ref and
// the number of individual statuses contributing to it.
func (c *Client) CombinedStatusState(ctx context.Context, owner, repo, ref string) (string, int, error) {
	status, _, err := c.rest.Repositories.GetCombinedStatus(ctx, owner, repo, ref, &github.ListOptions{PerPage: 100})
	if err != nil {
		return "", 0, fmt.Errorf("getting combined status for %s/%s@%s: %w", owner, repo, ref, err)
	}
	return status.GetState(), status.GetTotalCount(), nil
}

// CheckRunsConclusions returns every check run on the ref as name → conclusion.
// Incomplete runs report an empty conclusion.
func (c *Client) CheckRunsConclusions(ctx context.Context, owner, repo, ref string) (map[string]string, error) {
	opts := &github.ListCheckRunsOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}

	out := map[string]string{}
	for {
		runs, resp, err := c.rest.Checks.ListCheckRunsForRef(ctx, owner, repo, ref, opts)
		if err != nil {
			return nil, fmt.Errorf("listing check runs for %s/%s@%s: %w", owner, repo, ref, err)
		}
		for _, run := range runs.CheckRuns {
			if run.GetStatus() != "completed" {
				out[run.GetName()] = ""
				continue
			}
			out[run.GetName()] = run.GetConclusion()
		}
		if resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
}

// FileContent fetches the decoded content of a file at a ref. A missing file
// is reported via ErrNotFound so callers can treat it as policy-absent rather
// than a failure.
func (c *Client) FileContent(ctx context.Context, owner, repo, path, ref string) (string, error) {
	content, _, resp, err := c.rest.Repositories.GetContents(ctx, owner, repo, path, &github.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		if resp != nil && resp.StatusCode == 404 {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("fetching %s from %s/%s@%s: %w", path, owner, repo, ref, err)
	}
	if content == nil {
		return "", ErrNotFound
	}
	decoded, err := content.GetContent()
	if err != nil {
		return "", fmt.Errorf("decoding %s from %s/%s: %w", path, owner, repo, err)
	}
	return decoded, nil
}

// MergePullRequest merges the pull request with the merge method. Only the
// elevated session should call this.
func (c *Client) MergePullRequest(ctx context.Context, owner, repo string, number int, commitTitle string) error {
	result, _, err := c.rest.PullRequests.Merge(ctx, owner, repo, number, commitTitle, &github.PullRequestOptions{
		MergeMethod: "merge",
	})
	if err != nil {
		return fmt.Errorf("merging %s/%s#%d: %w", owner, repo, number, err)
	}
	if !result.GetMerged() {
		return fmt.Errorf("merging %s/%s#%d: %s", owner, repo, number, result.GetMessage())
	}
	clog.InfoContextf(ctx, "Merged %s/%s#%d: %s", owner, repo, number, result.GetSHA())
	return nil
}

// ErrNotFound indicates the requested object does not exist on the forge.
var ErrNotFound = errors.New("not found")
