/*
Copyright 2026 conda-forge contributors.
SPDX-License-Identifier: Apache-2.0
*/

package automerge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/abuturkyi/conda-forge-webservices/forge"
	"github.com/chainguard-dev/clog"
	"gopkg.in/yaml.v3"
)

const (
	// Label on the pull request that opts it into automerging.
	Label = "automerge"

	// TitleSlug in the pull request title that opts it into automerging.
	TitleSlug = "[bot-automerge]"
)

// Forge is the read-only lookup surface the trigger needs. *forge.Client
// satisfies it.
type Forge interface {
	ListOpenPullRequests(ctx context.Context, owner, repo string) ([]*forge.PullRequest, error)
	FileContent(ctx context.Context, owner, repo, path, ref string) (string, error)
	CombinedStatusState(ctx context.Context, owner, repo, ref string) (string, int, error)
	CheckRunsConclusions(ctx context.Context, owner, repo, ref string) (map[string]string, error)
}

// Merger performs the merge itself. This is the only elevated-privilege
// operation in the package, kept separate so the read session never needs
// merge permissions.
type Merger interface {
	MergePullRequest(ctx context.Context, owner, repo string, number int, commitTitle string) error
}

// Trigger evaluates and executes automerge for one commit.
type Trigger struct {
	forge  Forge
	merger Merger
}

// New constructs a Trigger from a read session and an elevated merge session.
func New(f Forge, m Merger) (*Trigger, error) {
	if f == nil || m == nil {
		return nil, errors.New("forge and merger cannot be nil")
	}
	return &Trigger{forge: f, merger: m}, nil
}

// Run finds the open pull request whose head commit is sha and merges it if
// policy and checks allow. A commit with no matching pull request is a
// logged no-op, not an error.
func (t *Trigger) Run(ctx context.Context, owner, repo, sha string) error {
	log := clog.FromContext(ctx)

	prs, err := t.forge.ListOpenPullRequests(ctx, owner, repo)
	if err != nil {
		return fmt.Errorf("listing open pull requests: %w", err)
	}

	var pr *forge.PullRequest
	for _, candidate := range prs {
		if candidate.HeadSHA == sha {
			pr = candidate
			break
		}
	}
	if pr == nil {
		log.Warnf("No open pull request in %s/%s has head %s, nothing to merge", owner, repo, sha)
		return nil
	}

	enabled, reason, err := t.policyAllows(ctx, pr)
	if err != nil {
		return fmt.Errorf("evaluating automerge policy for %s/%s#%d: %w", owner, repo, pr.Number, err)
	}
	if !enabled {
		log.Infof("Not merging %s/%s#%d: %s", owner, repo, pr.Number, reason)
		return nil
	}

	green, reason, err := t.checksGreen(ctx, pr)
	if err != nil {
		return fmt.Errorf("evaluating checks for %s/%s#%d: %w", owner, repo, pr.Number, err)
	}
	if !green {
		log.Infof("Not merging %s/%s#%d: %s", owner, repo, pr.Number, reason)
		return nil
	}

	title := fmt.Sprintf("%s [merged by conda-forge-webservices]", pr.Title)
	if err := t.merger.MergePullRequest(ctx, owner, repo, pr.Number, title); err != nil {
		return fmt.Errorf("merging %s/%s#%d: %w", owner, repo, pr.Number, err)
	}
	return nil
}

// condaForgeConfig is the slice of conda-forge.yml the trigger cares about.
type condaForgeConfig struct {
	Bot struct {
		Automerge bool `yaml:"automerge"`
	} `yaml:"bot"`
}

// policyAllows reports whether the pull request has opted into automerging,
// via its label, its title, or the feedstock's conda-forge.yml.
func (t *Trigger) policyAllows(ctx context.Context, pr *forge.PullRequest) (bool, string, error) {
	if pr.HasLabel(Label) {
		return true, "", nil
	}

	titled := strings.Contains(pr.Title, TitleSlug)
	if !titled {
		return false, fmt.Sprintf("neither the %q label nor the %q title slug is present", Label, TitleSlug), nil
	}

	// Title-based automerge from a bot still requires the feedstock to have
	// opted in through its configuration.
	raw, err := t.forge.FileContent(ctx, pr.Owner, pr.Repo, "conda-forge.yml", "")
	if errors.Is(err, forge.ErrNotFound) {
		return false, "the feedstock has no conda-forge.yml", nil
	} else if err != nil {
		return false, "", err
	}

	var cfg condaForgeConfig
	if err := yaml.Unmarshal([]byte(raw), &cfg); err != nil {
		return false, "", fmt.Errorf("parsing conda-forge.yml: %w", err)
	}
	if !cfg.Bot.Automerge {
		return false, "conda-forge.yml does not set bot.automerge", nil
	}
	return true, "", nil
}

// checksGreen reports whether every commit status and check run on the head
// SHA succeeded. A head with no checks at all never merges: silence is not
// success.
func (t *Trigger) checksGreen(ctx context.Context, pr *forge.PullRequest) (bool, string, error) {
	state, count, err := t.forge.CombinedStatusState(ctx, pr.Owner, pr.Repo, pr.HeadSHA)
	if err != nil {
		return false, "", err
	}
	if count > 0 && state != "success" {
		return false, fmt.Sprintf("combined commit status is %q", state), nil
	}

	conclusions, err := t.forge.CheckRunsConclusions(ctx, pr.Owner, pr.Repo, pr.HeadSHA)
	if err != nil {
		return false, "", err
	}
	for name, conclusion := range conclusions {
		switch conclusion {
		case "success", "neutral", "skipped":
		case "":
			return false, fmt.Sprintf("check %q has not completed", name), nil
		default:
			return false, fmt.Sprintf("check %q concluded %q", name, conclusion), nil
		}
	}

	if count == 0 && len(conclusions) == 0 {
		return false, "no statuses or checks have reported on the head commit", nil
	}
	return true, "", nil
}
