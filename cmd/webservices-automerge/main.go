/*
Copyright 2026 conda-forge contributors.
SPDX-License-Identifier: Apache-2.0
*/

// webservices-automerge merges the open pull request whose head matches a
// commit, once the feedstock's automerge policy and the commit's checks allow.
// It reads with a standard session and merges with an elevated one; a commit
// with no matching pull request exits zero.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/abuturkyi/conda-forge-webservices/automerge"
	"github.com/abuturkyi/conda-forge-webservices/forge"
	"github.com/chainguard-dev/clog"
	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/pflag"
)

type config struct {
	Token      string `env:"GH_TOKEN,required"`
	AdminToken string `env:"GH_ADMIN_TOKEN,required"`
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
		repo string
		sha  string
	)

	flagSet := pflag.NewFlagSet("webservices-automerge", pflag.ContinueOnError)
	flagSet.StringVar(&repo, "repo", "", "feedstock repository name, e.g. zlib-feedstock")
	flagSet.StringVar(&sha, "sha", "", "head commit of the pull request to merge")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}

	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return fmt.Errorf("processing config: %w", err)
	}

	clog.InfoContextf(ctx, "task `automerge` for conda-forge/%s@%s", repo, sha)

	reader, err := forge.New(ctx, cfg.Token)
	if err != nil {
		return err
	}
	merger, err := forge.NewElevated(ctx, cfg.AdminToken)
	if err != nil {
		return err
	}

	trigger, err := automerge.New(reader, merger)
	if err != nil {
		return err
	}
	return trigger.Run(ctx, "conda-forge", repo, sha)
}
