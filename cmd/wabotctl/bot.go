package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newBotCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Show the auto-reply configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx, done, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer done()

			bot, err := c.Bot(ctx)
			if err != nil {
				return err
			}
			return opts.print(cmd, bot, func(w *tabwriter.Writer) {
				fmt.Fprintf(w, "Business:\t%s\n", bot.BusinessName)
				fmt.Fprintf(w, "Auto-reply:\t%t\n", bot.AutoReplyEnabled)
				fmt.Fprintf(w, "Knowledge:\t%d items\n", len(bot.KnowledgeBase))
				for _, k := range bot.KnowledgeBase {
					fmt.Fprintf(w, "  %s\t[%s]\t%s\n", k.ID, k.Category, truncate(k.Content, 50))
				}
			})
		},
	}
	cmd.AddCommand(newBotToggleCmd(opts, "enable", true), newBotToggleCmd(opts, "disable", false))
	cmd.AddCommand(&cobra.Command{
		Use:   "key <api-key>",
		Short: "Store the generative model API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx, done, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer done()
			return c.SetCredentials(ctx, args[0])
		},
	})
	return cmd
}

func newBotToggleCmd(opts *options, use string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: use + " automatic replies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx, done, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer done()

			bot, err := c.Bot(ctx)
			if err != nil {
				return err
			}
			bot.AutoReplyEnabled = enabled
			if err := c.SetBot(ctx, *bot); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "auto-reply %sd\n", use)
			return nil
		},
	}
}
