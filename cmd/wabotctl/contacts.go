package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newContactsCmd(opts *options) *cobra.Command {
	var query string
	var sync bool
	cmd := &cobra.Command{
		Use:   "contacts",
		Short: "List cached contacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx, done, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer done()

			if sync {
				if err := c.SyncContacts(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.ErrOrStderr(), "contact sync requested")
			}
			contacts, err := c.Contacts(ctx, query)
			if err != nil {
				return err
			}
			return opts.print(cmd, contacts, func(w *tabwriter.Writer) {
				fmt.Fprintln(w, "ID\tNAME\tUNREAD\tLAST MESSAGE")
				for _, ct := range contacts {
					fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", ct.JID, ct.DisplayName(), ct.UnreadCount, truncate(ct.LastMessagePreview, 40))
				}
			})
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "filter by name or phone")
	cmd.Flags().BoolVar(&sync, "sync", false, "request a directory sync first")
	return cmd
}

func newMessagesCmd(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "messages <jid>",
		Short: "Show the most recent messages of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx, done, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer done()

			msgs, err := c.Messages(ctx, args[0], limit)
			if err != nil {
				return err
			}
			return opts.print(cmd, msgs, func(w *tabwriter.Writer) {
				for _, m := range msgs {
					dir := "<"
					if m.FromMe {
						dir = ">"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", formatMillis(m.Timestamp), dir, m.Status, m.Body)
				}
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "number of messages")
	return cmd
}

func newSendCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "send <jid-or-phone> <text...>",
		Short: "Queue a manual message",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx, done, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer done()

			msg, err := c.Send(ctx, args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			return opts.print(cmd, msg, func(w *tabwriter.Writer) {
				fmt.Fprintf(w, "Queued %s to %s\n", msg.MsgID, msg.ChatJID)
			})
		},
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
