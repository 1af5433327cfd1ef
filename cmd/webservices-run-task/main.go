/*
Copyright 2026 conda-forge contributors.
SPDX-License-Identifier: Apache-2.0
*/

// webservices-run-task is the untrusted half of the task pipeline. It runs one
// sandboxed task (rerender, version_update, or lint) against a fresh clone of
// the pull request head and writes the result artifact into the task-data
// directory. It holds no credentials and performs no forge mutations.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/abuturkyi/conda-forge-webservices/feedstockops"
	"github.com/abuturkyi/conda-forge-webservices/taskresult"
	"github.com/abuturkyi/conda-forge-webservices/taskrunner"
	"github.com/chainguard-dev/clog"
	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/pflag"
)

type config struct {
	ContainerName string `env:"CF_FEEDSTOCK_OPS_CONTAINER_NAME,required"`
	ContainerTag  string `env:"CF_FEEDSTOCK_OPS_CONTAINER_TAG,required"`
}

func main() {
	ctx := context.Background()
	if err := run(ctx); err != nil {
		clog.FromContext(ctx).Errorf("%v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var (
		task             string
		repo             string
		prNumber         int
		dataDir          string
		requestedVersion string
		sha              string
	)

	flagSet := pflag.NewFlagSet("webservices-run-task", pflag.ContinueOnError)
	flagSet.StringVar(&task, "task", "", "task kind: rerender, version_update, or lint")
	flagSet.StringVar(&repo, "repo", "", "feedstock repository name, e.g. zlib-feedstock")
	flagSet.IntVar(&prNumber, "pr-number", 0, "pull request number")
	flagSet.StringVar(&dataDir, "task-data-dir", "", "directory for the task result artifact")
	flagSet.StringVar(&requestedVersion, "requested-version", "", "version to update to (version_update only; empty means auto-detect)")
	flagSet.StringVar(&sha, "sha", "", "commit SHA the dispatching workflow ran against")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}

	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return fmt.Errorf("processing config: %w", err)
	}
	image := fmt.Sprintf("%s:%s", cfg.ContainerName, cfg.ContainerTag)

	ops, err := feedstockops.NewContainerOps(image)
	if err != nil {
		return err
	}
	puller, err := feedstockops.NewImagePuller(image)
	if err != nil {
		return err
	}

	runner := taskrunner.New(ops, puller, dataDir)
	return runner.Run(ctx, taskresult.Task{
		Kind:             taskresult.Kind(task),
		Repo:             repo,
		PRNumber:         prNumber,
		SHA:              sha,
		RequestedVersion: requestedVersion,
	})
}
