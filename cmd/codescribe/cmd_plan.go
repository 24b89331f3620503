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
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// runPlanCommand is the dry run: checkout, admission, report. No AI
// calls, no edits, no branches.
func runPlanCommand(cmd *cobra.Command, args []string) error {
	a, closeApp, err := newApp()
	if err != nil {
		return err
	}
	defer closeApp()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := buildWorkload(args[0], a.cfg)

	repoPath, err := a.git.CloneOrPull(ctx, w.Repository, a.cfg.WorkDir)
	if err != nil {
		return fmt.Errorf("checkout: %w", err)
	}

	admitted, err := a.scheduler.Admit(ctx, repoPath, w)
	if err != nil {
		return fmt.Errorf("scheduling: %w", err)
	}

	tty := isatty.IsTerminal(os.Stdout.Fd())
	bold, reset := "", ""
	if tty {
		bold, reset = "\033[1m", "\033[0m"
	}

	if len(admitted) == 0 {
		fmt.Println("No files admitted; the repository is sufficiently documented.")
		return nil
	}

	fmt.Printf("%s%d files admitted for documentation:%s\n", bold, len(admitted), reset)
	for _, file := range admitted {
		fmt.Printf("  %s\n", file)
	}
	if w.Options.TargetFileCount > 0 && w.Options.TargetFileCount < len(admitted) {
		fmt.Printf("\nA batch would stop after %d modified files (batch.target_files).\n", w.Options.TargetFileCount)
	}
	return nil
}
