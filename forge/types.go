/*
Copyright 2026 conda-forge contributors.
SPDX-License-Identifier: Apache-2.0
*/

package forge

import (
	"github.com/google/go-github/v84/github"
)

// PullRequest is the live pull request state captured once per run. The
// finalizer derives every decision from this snapshot; it is refreshed only at
// defined checkpoints, never implicitly re-read.
type PullRequest struct {
	Owner  string // base repository owner, e.g. "conda-forge"
	Repo   string // base repository name, e.g. "zlib-feedstock"
	Number int
	NodeID string // GraphQL node ID, needed for ready-for-review

	State       string // "open" or "closed"
	Draft       bool
	Title       string
	AuthorLogin string
	Labels      []string

	// Contributor-side head. Pushes from the trusted phase target this
	// branch, which may live on a fork.
	HeadRef   string
	HeadOwner string
	HeadRepo  string
	HeadSHA   string
}

// Closed reports whether the pull request is a terminal, immutable target for
// the task pipeline.
func (pr *PullRequest) Closed() bool {
	return pr.State == "closed"
}

// HasLabel reports whether the pull request carries the named label.
func (pr *PullRequest) HasLabel(name string) bool {
	for _, l := range pr.Labels {
		if l == name {
			return true
		}
	}
	return false
}

// Comment is a single issue comment on a pull request.
type Comment struct {
	ID          int64
	Body        string
	HTMLURL     string
	AuthorLogin string
}

// CommitStatus describes a commit status to set against a SHA.
type CommitStatus struct {
	State       string // "success", "failure", "error", "pending"
	Context     string
	Description string
	TargetURL   string
}

func pullRequestFromGitHub(owner, repo string, pr *github.PullRequest) *PullRequest {
	out := &PullRequest{
		Owner:       owner,
		Repo:        repo,
		Number:      pr.GetNumber(),
		NodeID:      pr.GetNodeID(),
		State:       pr.GetState(),
		Draft:       pr.GetDraft(),
		Title:       pr.GetTitle(),
		AuthorLogin: pr.GetUser().GetLogin(),
		HeadRef:     pr.GetHead().GetRef(),
		HeadOwner:   pr.GetHead().GetRepo().GetOwner().GetLogin(),
		HeadRepo:    pr.GetHead().GetRepo().GetName(),
		HeadSHA:     pr.GetHead().GetSHA(),
	}
	for _, l := range pr.Labels {
		out.Labels = append(out.Labels, l.GetName())
	}
	return out
}
