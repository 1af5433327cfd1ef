/*
Copyright 2026 conda-forge contributors.
SPDX-License-Identifier: Apache-2.0
*/

// webservices-finalize-task is the trusted half of the task pipeline. It loads
// the task result artifact produced by webservices-run-task, re-fetches the
// live pull request, applies and commits the patch on a fresh clone of the
// contributor's branch, and reconciles the pull request: push, comment,
// status, title, close, ready-for-review.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/abuturkyi/conda-forge-webservices/finalizer"
	"github.com/abuturkyi/conda-forge-webservices/forge"
	"github.com/abuturkyi/conda-forge-webservices/reconcile"
	"github.com/chainguard-dev/clog"
	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/pflag"
)

type config struct {
	Token string `env:"GH_TOKEN,required"`
	RunID string `env:"GITHUB_RUN_ID"`
}

func main() {
	ctx := context.Background()
	if err := run(ctx); err != nil {
		clog.FromContext(ctx).Errorf("%v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var dataDir string

	flagSet := pflag.NewFlagSet("webservices-finalize-task", pflag.ContinueOnError)
	flagSet.StringVar(&dataDir, "task-data-dir", "", "directory holding the task result artifact")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}

	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return fmt.Errorf("processing config: %w", err)
	}

	client, err := forge.New(ctx, cfg.Token)
	if err != nil {
		return err
	}

	engine, err := reconcile.New(client, client.TokenSource(), runURL(cfg.RunID))
	if err != nil {
		return err
	}

	fin, err := finalizer.New(client, engine)
	if err != nil {
		return err
	}
	return fin.Run(ctx, dataDir)
}

// runURL links statuses and comments back to the workflow run doing the
// finalization.
func runURL(runID string) string {
	if runID == "" {
		return ""
	}
	return fmt.Sprintf("https://github.com/conda-forge/conda-forge-webservices/actions/runs/%s", runID)
}
