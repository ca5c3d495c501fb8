package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newBlastCmd(opts *options) *cobra.Command {
	var group string
	cmd := &cobra.Command{
		Use:   "blast <text...>",
		Short: "Send a campaign to a group or to every contact",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx, done, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer done()

			rec, err := c.Blast(ctx, strings.Join(args, " "), group)
			if err != nil {
				return err
			}
			return opts.print(cmd, rec, func(w *tabwriter.Writer) {
				fmt.Fprintf(w, "Dispatched %s (%s) to %d recipients\n", rec.ID, rec.CampaignLabel, len(rec.Recipients))
			})
		},
	}
	cmd.Flags().StringVarP(&group, "group", "g", "", "campaign group id (default: all contacts)")
	return cmd
}

func newHistoryCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List dispatched campaigns, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx, done, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer done()

			recs, err := c.History(ctx)
			if err != nil {
				return err
			}
			return opts.print(cmd, recs, func(w *tabwriter.Writer) {
				fmt.Fprintln(w, "ID\tCAMPAIGN\tRECIPIENTS\tSENT\tMESSAGE")
				for _, r := range recs {
					fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", r.ID, r.CampaignLabel, len(r.Recipients), formatMillis(r.DispatchedAt), truncate(r.Message, 40))
				}
			})
		},
	}
}

func newResendCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "resend <id>",
		Short: "Dispatch a past campaign again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx, done, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer done()

			rec, err := c.Resend(ctx, args[0])
			if err != nil {
				return err
			}
			return opts.print(cmd, rec, func(w *tabwriter.Writer) {
				fmt.Fprintf(w, "Dispatched %s (%s) to %d recipients\n", rec.ID, rec.CampaignLabel, len(rec.Recipients))
			})
		},
	}
}

func newGroupsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "groups",
		Short: "List campaign groups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx, done, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer done()

			groups, err := c.Groups(ctx)
			if err != nil {
				return err
			}
			return opts.print(cmd, groups, func(w *tabwriter.Writer) {
				fmt.Fprintln(w, "ID\tNAME\tMEMBERS")
				for _, g := range groups {
					fmt.Fprintf(w, "%s\t%s\t%d\n", g.ID, g.Name, len(g.Members))
				}
			})
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "create <name> <member...>",
		Short: "Create a campaign group",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx, done, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer done()

			g, err := c.CreateGroup(ctx, args[0], args[1:])
			if err != nil {
				return err
			}
			return opts.print(cmd, g, func(w *tabwriter.Writer) {
				fmt.Fprintf(w, "Created %s (%s) with %d members\n", g.ID, g.Name, len(g.Members))
			})
		},
	})
	return cmd
}

func newLogCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "log",
		Short: "Show the transaction log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx, done, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer done()

			entries, err := c.TxLog(ctx)
			if err != nil {
				return err
			}
			return opts.print(cmd, entries, func(w *tabwriter.Writer) {
				for _, e := range entries {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.UpdatedAt.Format("15:04:05"), e.Status, e.ID, e.Message)
				}
			})
		},
	}
}
