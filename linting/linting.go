/*
Copyright 2026 conda-forge contributors.
SPDX-License-Identifier: Apache-2.0
*/

package linting

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/abuturkyi/conda-forge-webservices/forge"
)

// Status is the overall lint verdict for the in-scope recipes.
type Status string

const (
	// StatusGood means no lints and no hints.
	StatusGood Status = "good"
	// StatusMixed means hints only.
	StatusMixed Status = "mixed"
	// StatusBad means at least one lint, or a lint tool failure.
	StatusBad Status = "bad"
)

// CommitStatus maps the verdict onto the linter's commit status. The target
// URL points at the findings comment so the status links straight to the
// details.
func (s Status) CommitStatus(targetURL string) forge.CommitStatus {
	out := forge.CommitStatus{
		Context:   "conda-forge-linter",
		TargetURL: targetURL,
	}
	switch s {
	case StatusGood:
		out.State = "success"
		out.Description = "All recipes are excellent."
	case StatusMixed:
		out.State = "success"
		out.Description = "Some recipes have hints."
	default:
		out.State = "failure"
		out.Description = "Some recipes need some changes."
	}
	return out
}

// RecipesForLinting scopes the findings to the pull request: a recipe is in
// scope when the pull request touches the recipe file itself or any sibling
// in its directory. With no usable file list every found recipe stays in
// scope, erring toward reporting too much rather than too little.
func RecipesForLinting(changedFiles []string, lints, hints map[string][]string) []string {
	keys := map[string]struct{}{}
	for key := range lints {
		keys[key] = struct{}{}
	}
	for key := range hints {
		keys[key] = struct{}{}
	}

	var recipes []string
	for key := range keys {
		if len(changedFiles) == 0 || touches(changedFiles, key) {
			recipes = append(recipes, key)
		}
	}
	sort.Strings(recipes)
	return recipes
}

func touches(changedFiles []string, recipe string) bool {
	recipeDir := path.Dir(recipe)
	for _, f := range changedFiles {
		if f == recipe || path.Dir(f) == recipeDir {
			return true
		}
	}
	return false
}

// Errored reports whether any in-scope recipe failed to lint. A recipe with
// no entry in the error map counts as errored: silence from the tool about a
// recipe it should have covered is itself suspect.
func Errored(errorsByRecipe map[string]bool, recipes []string) bool {
	for _, recipe := range recipes {
		errored, ok := errorsByRecipe[recipe]
		if !ok || errored {
			return true
		}
	}
	return false
}

// BuildComment renders the findings comment for the in-scope recipes and
// returns the overall verdict.
func BuildComment(lints, hints map[string][]string, recipes []string) (string, Status) {
	var sb strings.Builder
	sb.WriteString("Hi! This is the friendly automated conda-forge-linting service.\n\n")

	anyLints, anyHints := false, false
	var sections []string
	for _, recipe := range recipes {
		var sec strings.Builder
		if len(lints[recipe]) > 0 {
			anyLints = true
			fmt.Fprintf(&sec, "For **%s**, I found some lint:\n\n", recipe)
			for _, l := range lints[recipe] {
				fmt.Fprintf(&sec, "* %s\n", l)
			}
		}
		if len(hints[recipe]) > 0 {
			anyHints = true
			if sec.Len() > 0 {
				sec.WriteString("\n")
			}
			fmt.Fprintf(&sec, "For **%s**, I have some suggestions:\n\n", recipe)
			for _, h := range hints[recipe] {
				fmt.Fprintf(&sec, "* %s\n", h)
			}
		}
		if sec.Len() > 0 {
			sections = append(sections, sec.String())
		}
	}

	status := StatusGood
	switch {
	case anyLints:
		status = StatusBad
		sb.WriteString("I wanted to let you know that I linted all conda-recipes in your PR and found some lint.\n\n")
	case anyHints:
		status = StatusMixed
		sb.WriteString("I wanted to let you know that I linted all conda-recipes in your PR and found it was in an excellent condition, but it could be improved.\n\n")
	default:
		sb.WriteString("I just wanted to let you know that I linted all conda-recipes in your PR and found it was in an excellent condition.\n")
	}

	sb.WriteString(strings.Join(sections, "\n"))
	return sb.String(), status
}

// FailureComment is posted when the lint tool itself failed: this is most
// likely a tool bug, though a malformed recipe file can trigger it too.
func FailureComment(runURL string) string {
	var sb strings.Builder
	sb.WriteString("Hi! This is the friendly automated conda-forge-linting service.\n\n")
	sb.WriteString("I failed to even lint the recipe, probably because of a conda-smithy bug :cry:. ")
	sb.WriteString("This likely indicates a problem in your `meta.yaml`, though. ")
	sb.WriteString("To get a traceback to help figure out what's going on, install conda-smithy and run ")
	sb.WriteString("`conda smithy recipe-lint --conda-forge .` from the recipe directory.")
	if runURL != "" {
		fmt.Fprintf(&sb, " You can also examine the [workflow logs](%s) for more detail.", runURL)
	}
	return sb.String()
}
