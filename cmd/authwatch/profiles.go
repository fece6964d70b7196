// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tomtom215/authwatch/internal/store"
)

func newProfilesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Inspect stored account profiles",
	}
	cmd.AddCommand(newProfilesListCmd(a), newProfilesShowCmd(a))
	return cmd
}

func newProfilesListCmd(a *app) *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List profiles, trained first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 0 || offset < 0 {
				return errors.New("--limit and --offset must not be negative")
			}
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeStore(st)

			items, total, err := st.ListProfiles(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "USER_ID\tSET\tEVENTS\tMODEL")
			for _, p := range items {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", p.UserID, p.Set, p.EventCount, p.ModelKind)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			_, err = fmt.Fprintf(a.out, "%d of %d profiles\n", len(items), total)
			return err
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum profiles to print (0 for all)")
	cmd.Flags().IntVar(&offset, "offset", 0, "profiles to skip")
	return cmd
}

// profileView is the printed form of one profile. Raw events are omitted.
type profileView struct {
	UserID       string `json:"user_id"`
	Set          string `json:"set"`
	EventCount   int    `json:"event_count"`
	ModelKind    string `json:"model_kind"`
	HiddenStates []int  `json:"hidden_states,omitempty"`
	FittedAt     string `json:"fitted_at,omitempty"`
}

func newProfilesShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show USER_ID",
		Short: "Show one profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeStore(st)

			p, set, err := st.GetProfile(cmd.Context(), args[0])
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("profile %q not found", args[0])
			}
			if err != nil {
				return err
			}

			view := profileView{
				UserID:       p.UserID,
				Set:          string(set),
				EventCount:   len(p.Events),
				ModelKind:    string(p.Model.Kind),
				HiddenStates: p.Model.HiddenStates,
			}
			if p.Model.Fitted() {
				view.FittedAt = p.Model.FittedAt.Format("2006-01-02T15:04:05Z07:00")
			}
			data, err := json.MarshalIndent(view, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(a.out, string(data))
			return err
		},
	}
}
