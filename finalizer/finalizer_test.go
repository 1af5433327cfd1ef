/*
Copyright 2026 conda-forge contributors.
SPDX-License-Identifier: Apache-2.0
*/

package finalizer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/abuturkyi/conda-forge-webservices/forge"
	"github.com/abuturkyi/conda-forge-webservices/reconcile"
	"github.com/abuturkyi/conda-forge-webservices/taskresult"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

// fakeForge backs both the finalizer and the reconciliation engine so a test
// observes every mutation the trusted phase performs.
type fakeForge struct {
	pr    *forge.PullRequest
	files []string

	comments []forge.Comment
	nextID   int64
	titles   []string
	closed   []int
	statuses []recordedStatus
	promoted []string
}

type recordedStatus struct {
	sha    string
	status forge.CommitStatus
}

func (f *fakeForge) GetPullRequest(context.Context, string, string, int) (*forge.PullRequest, error) {
	return f.pr, nil
}

func (f *fakeForge) ListPullRequestFiles(context.Context, string, string, int) ([]string, error) {
	return f.files, nil
}

func (f *fakeForge) UpdatePullRequestTitle(_ context.Context, _, _ string, _ int, title string) error {
	f.titles = append(f.titles, title)
	return nil
}

func (f *fakeForge) ListComments(context.Context, string, string, int) ([]forge.Comment, error) {
	return append([]forge.Comment(nil), f.comments...), nil
}

func (f *fakeForge) CreateComment(_ context.Context, _, _ string, _ int, body string) (forge.Comment, error) {
	f.nextID++
	c := forge.Comment{ID: f.nextID, Body: body, HTMLURL: "https://github.test/comment"}
	f.comments = append(f.comments, c)
	return c, nil
}

func (f *fakeForge) UpdateComment(_ context.Context, _, _ string, id int64, body string) (forge.Comment, error) {
	for i := range f.comments {
		if f.comments[i].ID == id {
			f.comments[i].Body = body
			return f.comments[i], nil
		}
	}
	return forge.Comment{}, forge.ErrNotFound
}

func (f *fakeForge) ClosePullRequest(_ context.Context, _, _ string, number int) error {
	f.closed = append(f.closed, number)
	return nil
}

func (f *fakeForge) SetCommitStatus(_ context.Context, _, _, sha string, status forge.CommitStatus) error {
	f.statuses = append(f.statuses, recordedStatus{sha: sha, status: status})
	return nil
}

func (f *fakeForge) MarkReadyForReview(_ context.Context, nodeID string) error {
	f.promoted = append(f.promoted, nodeID)
	return nil
}

func (f *fakeForge) statusByContext(context string) (recordedStatus, bool) {
	for _, s := range f.statuses {
		if s.status.Context == context {
			return s, true
		}
	}
	return recordedStatus{}, false
}

func openPR() *forge.PullRequest {
	return &forge.PullRequest{
		Owner:       "conda-forge",
		Repo:        "zlib-feedstock",
		Number:      12,
		NodeID:      "PR_node",
		State:       "open",
		Title:       "update zlib",
		AuthorLogin: "some-user",
		HeadRef:     "master",
		HeadOwner:   "some-user",
		HeadRepo:    "zlib-feedstock",
		HeadSHA:     "deadbeef",
	}
}

// initUpstream creates a local repository standing in for the contributor's
// fork and points the clone hook at it for the duration of the test.
func initUpstream(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	repo, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)
	worktree, err := repo.Worktree()
	require.NoError(t, err)

	recipe := filepath.Join(dir, "recipe", "meta.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(recipe), 0o755))
	require.NoError(t, os.WriteFile(recipe, []byte("package:\n  name: zlib\n"), 0o644))

	require.NoError(t, worktree.AddWithOptions(&gogit.AddOptions{All: true}))
	_, err = worktree.Commit("initial", &gogit.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@test", When: time.Now()},
	})
	require.NoError(t, err)

	orig := cloneURL
	cloneURL = func(string, string) string { return dir }
	t.Cleanup(func() { cloneURL = orig })
	return dir
}

func newFinalizer(t *testing.T, f *fakeForge) *Finalizer {
	t.Helper()

	engine, err := reconcile.New(f, nil, "https://github.test/run/1")
	require.NoError(t, err)
	fin, err := New(f, engine)
	require.NoError(t, err)
	return fin
}

func TestFinalizeClosedPRAborts(t *testing.T) {
	pr := openPR()
	pr.State = "closed"
	f := &fakeForge{pr: pr}
	fin := newFinalizer(t, f)

	result := &taskresult.Result{
		Task:     taskresult.KindRerender,
		Repo:     "zlib-feedstock",
		PRNumber: 12,
		Results:  taskresult.TaskResults{RerenderError: true},
	}

	require.NoError(t, fin.Finalize(context.Background(), result))
	require.Empty(t, f.comments, "a closed PR must not be mutated")
	require.Empty(t, f.statuses)
	require.Empty(t, f.closed)
	require.Empty(t, f.promoted)
}

func TestFinalizeRerenderNothingToDo(t *testing.T) {
	initUpstream(t)
	f := &fakeForge{pr: openPR()}
	fin := newFinalizer(t, f)

	result := &taskresult.Result{
		Task:     taskresult.KindRerender,
		Repo:     "zlib-feedstock",
		PRNumber: 12,
		SHA:      "deadbeef",
	}

	require.NoError(t, fin.Finalize(context.Background(), result))
	require.Len(t, f.comments, 1)
	require.Contains(t, f.comments[0].Body, "nothing to do")

	status, ok := f.statusByContext("conda-forge-webservices/rerender")
	require.True(t, ok)
	require.Equal(t, "deadbeef", status.sha)
	require.Equal(t, "success", status.status.State)
	require.Empty(t, f.promoted, "a user PR is never promoted")
}

func TestFinalizeRerenderErrorFailsTheJob(t *testing.T) {
	initUpstream(t)
	f := &fakeForge{pr: openPR()}
	fin := newFinalizer(t, f)

	result := &taskresult.Result{
		Task:     taskresult.KindRerender,
		Repo:     "zlib-feedstock",
		PRNumber: 12,
		SHA:      "deadbeef",
		Results: taskresult.TaskResults{
			RerenderError: true,
			InfoMessage:   taskresult.Ptr("conda-smithy exploded"),
		},
	}

	require.Error(t, fin.Finalize(context.Background(), result))
	require.Contains(t, f.comments[0].Body, "ran into some issues")
	require.Contains(t, f.comments[0].Body, "rerendering locally")

	status, ok := f.statusByContext("conda-forge-webservices/rerender")
	require.True(t, ok)
	require.Equal(t, "failure", status.status.State)
	require.Empty(t, f.promoted, "an errored rerender must not promote")
}

func TestFinalizeRerenderPromotesBotPR(t *testing.T) {
	pr := openPR()
	pr.Title = "MNT: rerender"
	pr.AuthorLogin = "conda-forge-admin"
	pr.Draft = true
	initUpstream(t)
	f := &fakeForge{pr: pr}
	fin := newFinalizer(t, f)

	result := &taskresult.Result{
		Task:     taskresult.KindRerender,
		Repo:     "zlib-feedstock",
		PRNumber: 12,
		SHA:      "deadbeef",
	}

	require.NoError(t, fin.Finalize(context.Background(), result))
	require.Equal(t, []string{"PR_node"}, f.promoted)
}

func TestFinalizeVersionUpdateNothingToUpdateClosesPR(t *testing.T) {
	initUpstream(t)
	f := &fakeForge{pr: openPR()}
	fin := newFinalizer(t, f)

	result := &taskresult.Result{
		Task:     taskresult.KindVersionUpdate,
		Repo:     "zlib-feedstock",
		PRNumber: 12,
	}

	require.NoError(t, fin.Finalize(context.Background(), result))
	require.Equal(t, []int{12}, f.closed)
	require.Contains(t, f.comments[0].Body, "I'm closing this PR!")
	require.Empty(t, f.titles, "an unchanged version must not retitle")
	require.Equal(t, []string{"PR_node"}, f.promoted, "version PRs always leave draft on success")
}

func TestFinalizeVersionUpdateErrorCombination(t *testing.T) {
	tests := []struct {
		name          string
		results       taskresult.TaskResults
		wantErr       bool
		wantTitled    bool
		wantErrorBody bool
	}{{
		name: "version error always reported",
		results: taskresult.TaskResults{
			VersionError: true,
		},
		wantErr:       true,
		wantErrorBody: true,
	}, {
		name: "rerender error reported only when the version changed",
		results: taskresult.TaskResults{
			VersionChanged: true,
			RerenderError:  true,
			NewVersion:     taskresult.Ptr("1.3.0"),
			CommitMessage:  taskresult.Ptr("ENH: updated version to 1.3.0"),
		},
		wantErr:       true,
		wantTitled:    true,
		wantErrorBody: true,
	}, {
		name: "rerender error on an unchanged version is ignored",
		results: taskresult.TaskResults{
			RerenderError: true,
		},
		wantErr: false,
	}}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := &fakeForge{pr: openPR()}
			fin := newFinalizer(t, f)

			result := &taskresult.Result{
				Task:     taskresult.KindVersionUpdate,
				Repo:     "zlib-feedstock",
				PRNumber: 12,
				Results:  tc.results,
			}
			err := fin.reconcileVersionUpdate(context.Background(), result, f.pr, nil)
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			if tc.wantTitled {
				require.Equal(t, []string{"ENH: update package version to 1.3.0"}, f.titles)
			} else {
				require.Empty(t, f.titles)
			}
			if tc.wantErrorBody {
				require.Contains(t, f.comments[0].Body, "ran into some issues")
			}
		})
	}
}

func TestFinalizeLintScopedError(t *testing.T) {
	tests := []struct {
		name      string
		files     []string
		errs      map[string]bool
		wantErr   bool
		wantState string
	}{{
		name:      "error outside the PR scope is ignored",
		files:     []string{"recipes/b/meta.yaml"},
		errs:      map[string]bool{"recipes/a/meta.yaml": true, "recipes/b/meta.yaml": false},
		wantErr:   false,
		wantState: "success",
	}, {
		name:      "error inside the PR scope fails",
		files:     []string{"recipes/a/meta.yaml"},
		errs:      map[string]bool{"recipes/a/meta.yaml": true, "recipes/b/meta.yaml": false},
		wantErr:   true,
		wantState: "failure",
	}}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := &fakeForge{pr: openPR(), files: tc.files}
			fin := newFinalizer(t, f)

			result := &taskresult.Result{
				Task:     taskresult.KindLint,
				Repo:     "zlib-feedstock",
				PRNumber: 12,
				SHA:      "deadbeef",
				Results: taskresult.TaskResults{
					Lints: map[string][]string{
						"recipes/a/meta.yaml": nil,
						"recipes/b/meta.yaml": nil,
					},
					Hints:  map[string][]string{},
					Errors: tc.errs,
				},
			}

			err := fin.Finalize(context.Background(), result)
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}

			status, ok := f.statusByContext("conda-forge-linter")
			require.True(t, ok)
			require.Equal(t, "deadbeef", status.sha, "lint status keys to the dispatch SHA")
			require.Equal(t, tc.wantState, status.status.State)
			require.Equal(t, "https://github.test/comment", status.status.TargetURL,
				"lint status links to the findings comment")
		})
	}
}

func TestFinalizeLintToolFailure(t *testing.T) {
	f := &fakeForge{pr: openPR()}
	fin := newFinalizer(t, f)

	result := &taskresult.Result{
		Task:     taskresult.KindLint,
		Repo:     "zlib-feedstock",
		PRNumber: 12,
		SHA:      "deadbeef",
		Results:  taskresult.TaskResults{LintError: true},
	}

	require.Error(t, fin.Finalize(context.Background(), result))
	require.Contains(t, f.comments[0].Body, "failed to even lint")

	status, ok := f.statusByContext("conda-forge-linter")
	require.True(t, ok)
	require.Equal(t, "failure", status.status.State)
}

func TestFinalizeLintIsIdempotent(t *testing.T) {
	f := &fakeForge{pr: openPR()}
	fin := newFinalizer(t, f)

	result := &taskresult.Result{
		Task:     taskresult.KindLint,
		Repo:     "zlib-feedstock",
		PRNumber: 12,
		SHA:      "deadbeef",
		Results: taskresult.TaskResults{
			Lints:  map[string][]string{"recipe/meta.yaml": {"missing license"}},
			Hints:  map[string][]string{},
			Errors: map[string]bool{"recipe/meta.yaml": false},
		},
	}

	require.NoError(t, fin.Finalize(context.Background(), result))
	require.NoError(t, fin.Finalize(context.Background(), result))
	require.Len(t, f.comments, 1, "a second run must edit the comment, not duplicate it")
}
