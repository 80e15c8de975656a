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
	"runtime"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/trawl/services/miner/api"
)

// Build metadata, overridable at link time:
//
//	go build -ldflags "-X main.buildCommit=$(git rev-parse --short HEAD)"
var (
	buildVersion = api.ServiceVersion
	buildCommit  = ""
	buildDate    = ""
)

// versionCmd prints build information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the trawl version",
	Args:  cobra.NoArgs,
	Run:   runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// runVersion prints the version line plus build metadata when present.
func runVersion(cmd *cobra.Command, args []string) {
	fmt.Printf("trawl version %s\n", buildVersion)
	if buildCommit != "" {
		fmt.Printf("  commit:  %s\n", buildCommit)
	}
	if buildDate != "" {
		fmt.Printf("  built:   %s\n", buildDate)
	}
	fmt.Printf("  go:      %s\n", runtime.Version())
	fmt.Printf("  os/arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}
