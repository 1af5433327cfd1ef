/*
Copyright 2026 conda-forge contributors.
SPDX-License-Identifier: Apache-2.0
*/

// Package feedstockops invokes the feedstock maintenance tools (rerender,
// version detection and bump, recipe lint) as opaque operations. The
// algorithms themselves live in the feedstock-ops container image; this
// package only provisions the image, runs one operation against a working
// tree, and decodes the structured outcome.
//
// All operations run repository-supplied build logic, so they execute inside
// the container sandbox and nothing they return is trusted beyond its shape.
package feedstockops
