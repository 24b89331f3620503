// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// --- Global Command Variables ---
var (
	configPath      string
	scopeDir        string
	targetFiles     int
	modelOverride   string
	noBuildCheck    bool
	keepOnFailure   bool
	visibilityNames []string
	verbose         bool

	rootCmd = &cobra.Command{
		Use:   "codescribe",
		Short: "A cli that documents C# codebases with a local AI model",
		Long: `CodeScribe automates the tedious part of XML documentation: it
admits under-documented C# files from a repository, generates doc
comments one member at a time through a local or OpenAI-compatible
model, verifies every batch against the compiler, and opens a pull
request with the results.`,
	}

	docsCmd = &cobra.Command{
		Use:   "docs [repository]",
		Short: "Run a documentation batch against a repository and open a PR",
		Args:  cobra.ExactArgs(1),
		RunE:  runDocsCommand, // Defined in cmd_docs.go
	}

	planCmd = &cobra.Command{
		Use:   "plan [repository]",
		Short: "Show which files a documentation batch would touch, without writing anything",
		Args:  cobra.ExactArgs(1),
		RunE:  runPlanCommand, // Defined in cmd_plan.go
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the codescribe version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("codescribe %s\n", Version)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the config file (default ~/.codescribe/codescribe.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	for _, cmd := range []*cobra.Command{docsCmd, planCmd} {
		cmd.Flags().StringVar(&scopeDir, "scope", "", "restrict work to a subdirectory of the repository")
		cmd.Flags().StringVar(&modelOverride, "model", "", "override the configured model")
		cmd.Flags().StringSliceVar(&visibilityNames, "visibility", nil, "accessibility levels to document (overrides config)")
	}
	docsCmd.Flags().IntVar(&targetFiles, "target", 0, "stop after this many files are modified (0 = all admitted)")
	docsCmd.Flags().BoolVar(&noBuildCheck, "no-build-check", false, "skip the compile verification gate")
	docsCmd.Flags().BoolVar(&keepOnFailure, "keep-on-failure", false, "keep broken edits as soft warnings instead of reverting")

	rootCmd.AddCommand(docsCmd, planCmd, versionCmd)
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
