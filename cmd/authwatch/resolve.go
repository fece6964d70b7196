// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tomtom215/authwatch/internal/paths"
)

func newResolveCmd(a *app) *cobra.Command {
	var kind string
	var root string

	cmd := &cobra.Command{
		Use:   "resolve NAME",
		Short: "Print the raw-data path of a Month_Day_Year file name",
		Example: `  authwatch resolve --kind rsa March_05_2024
  authwatch resolve --kind auth --root /data/raw Mar_5_2024.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if root == "" {
				root = a.cfg.Report.RawDataRoot
			}
			path, err := paths.Resolve(root, paths.Kind(kind), args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(a.out, path)
			return err
		},
	}

	cmd.Flags().StringVar(&kind, "kind", string(paths.KindAuth), "data kind: rsa or auth")
	cmd.Flags().StringVar(&root, "root", "", "raw-data root (default: report.raw_data_root)")
	return cmd
}
