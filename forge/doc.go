/*
Copyright 2026 conda-forge contributors.
SPDX-License-Identifier: Apache-2.0
*/

// Package forge wraps the GitHub API surface used by the webservices task
// pipeline. Two privilege levels exist: the standard session can read pull
// requests, comment, and set commit statuses; the elevated session is only
// required for merging (automerge) and is constructed separately so that the
// default credentials never need merge rights.
//
// Client methods deliberately return small value types (PullRequest, Comment)
// rather than go-github structs. The finalizer captures a PullRequest record
// once per run and reasons about that snapshot instead of re-reading a mutable
// remote object at each branch of its decision logic.
package forge
