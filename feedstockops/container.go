/*
Copyright 2026 conda-forge contributors.
SPDX-License-Identifier: Apache-2.0
*/

package feedstockops

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"

	"github.com/chainguard-dev/clog"
)

// mountPoint is where the feedstock working tree appears inside the tool
// container.
const mountPoint = "/cf_feedstock_ops_dir"

// ContainerOps runs each operation inside the feedstock-ops container image.
// The tools print a single JSON document on stdout; stderr is surfaced into
// the logs.
type ContainerOps struct {
	image   string // name:tag
	runtime string // container runtime binary, normally "docker"
}

// NewContainerOps builds a ContainerOps for the given image reference.
func NewContainerOps(image string) (*ContainerOps, error) {
	if image == "" {
		return nil, errors.New("container image cannot be empty")
	}
	return &ContainerOps{image: image, runtime: "docker"}, nil
}

// Rerender regenerates the feedstock CI configuration in place.
func (c *ContainerOps) Rerender(ctx context.Context, feedstockDir string) (RerenderOutcome, error) {
	var out RerenderOutcome
	err := c.run(ctx, feedstockDir, []string{"rerender"}, &out)
	return out, err
}

// UpdateVersion detects or applies a new upstream version in place. An empty
// inputVersion means auto-detect.
func (c *ContainerOps) UpdateVersion(ctx context.Context, feedstockDir, fullRepoName, inputVersion string) (VersionOutcome, error) {
	args := []string{"version-update", "--repo", fullRepoName}
	if inputVersion != "" {
		args = append(args, "--input-version", inputVersion)
	}

	var out VersionOutcome
	err := c.run(ctx, feedstockDir, args, &out)
	return out, err
}

// Lint lints the feedstock recipes. The outcome is normalized so the error
// map is always present even when the tool speaks the legacy two-field form.
func (c *ContainerOps) Lint(ctx context.Context, feedstockDir string) (LintOutcome, error) {
	var out LintOutcome
	if err := c.run(ctx, feedstockDir, []string{"lint"}, &out); err != nil {
		return LintOutcome{}, err
	}
	return out.Normalize(), nil
}

func (c *ContainerOps) run(ctx context.Context, feedstockDir string, args []string, out any) error {
	cmdArgs := append([]string{
		"run", "--rm",
		"--volume", fmt.Sprintf("%s:%s:rw", feedstockDir, mountPoint),
		c.image,
	}, args...)

	clog.InfoContextf(ctx, "Running feedstock op: %s %v", c.runtime, cmdArgs)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.runtime, cmdArgs...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			clog.WarnContextf(ctx, "Feedstock op stderr:\n%s", stderr.String())
		}
		return fmt.Errorf("running %s in %s: %w", args[0], c.image, err)
	}
	if stderr.Len() > 0 {
		clog.DebugContextf(ctx, "Feedstock op stderr:\n%s", stderr.String())
	}

	if err := json.Unmarshal(stdout.Bytes(), out); err != nil {
		return fmt.Errorf("decoding %s outcome: %w", args[0], err)
	}
	return nil
}
