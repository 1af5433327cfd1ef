/*
Copyright 2026 conda-forge contributors.
SPDX-License-Identifier: Apache-2.0
*/

package feedstockops

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
)

// ImagePuller provisions the tool container image immediately before use. It
// resolves the tag against the registry first so a stale local image does not
// mask a retag, then pulls through the container runtime.
type ImagePuller struct {
	image   string
	runtime string
}

// NewImagePuller builds a puller for the given "name:tag" reference.
func NewImagePuller(image string) (*ImagePuller, error) {
	if image == "" {
		return nil, errors.New("container image cannot be empty")
	}
	return &ImagePuller{image: image, runtime: "docker"}, nil
}

// Pull fetches the image. Failures are returned for logging but callers are
// expected to tolerate them: an interrupted pull must not silently skip the
// task, so the subsequent tool invocation is relied on to surface the real
// error.
func (p *ImagePuller) Pull(ctx context.Context) error {
	ref, err := name.ParseReference(p.image)
	if err != nil {
		return fmt.Errorf("parsing image reference %q: %w", p.image, err)
	}

	desc, err := remote.Head(ref, remote.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("resolving %s: %w", p.image, err)
	}
	clog.InfoContextf(ctx, "Pulling %s (digest %s)", p.image, desc.Digest)

	cmd := exec.CommandContext(ctx, p.runtime, "pull", p.image)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("pulling %s: %w\n%s", p.image, err, out)
	}
	return nil
}
