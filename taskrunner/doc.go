/*
Copyright 2026 conda-forge contributors.
SPDX-License-Identifier: Apache-2.0
*/

// Package taskrunner executes one maintenance task (rerender, version update,
// or lint) against a freshly cloned pull request branch and captures the
// outcome as a task result artifact.
//
// This is the untrusted half of the pipeline: it runs repository-supplied
// build logic inside the feedstock-ops container and never touches the forge
// API. Its only output is the artifact; every pull request mutation happens
// later in the trusted finalizer. Tool failures are recorded in the artifact
// rather than crashing the process, because the finalizer needs to tell "tool
// ran and reported a problem" apart from "pipeline infrastructure failed".
// The one exception is an unknown task kind, which is a configuration error
// and aborts before any artifact is written.
package taskrunner
