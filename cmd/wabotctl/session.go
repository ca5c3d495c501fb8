package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"github.com/matheus3301/wabot/internal/client"
	"github.com/matheus3301/wabot/internal/session"
)

type statusView struct {
	Daemon  string         `json:"daemon"`
	Session string         `json:"session_health"`
	API     *client.Status `json:"api,omitempty"`
	Error   string         `json:"error,omitempty"`
}

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon health and session status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx, done, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer done()

			view := statusView{Daemon: "UNREACHABLE", Session: "UNKNOWN"}
			if s, err := c.Health(ctx, ""); err == nil {
				view.Daemon = s
				if s, err := c.Health(ctx, session.HealthService); err == nil {
					view.Session = s
				}
			}
			st, err := c.Status(ctx)
			if err != nil {
				view.Error = err.Error()
			} else {
				view.API = st
			}
			return opts.print(cmd, view, func(w *tabwriter.Writer) {
				fmt.Fprintf(w, "Daemon:\t%s\n", view.Daemon)
				fmt.Fprintf(w, "Session:\t%s\n", view.Session)
				if view.API == nil {
					fmt.Fprintf(w, "API:\t%s\n", view.Error)
					return
				}
				s := view.API.Session
				fmt.Fprintf(w, "Status:\t%s\n", s.Status)
				fmt.Fprintf(w, "Endpoint:\t%s\n", s.Endpoint)
				if s.Resetting {
					fmt.Fprintf(w, "Resetting:\tyes\n")
				}
				if s.LastError != "" {
					fmt.Fprintf(w, "Last error:\t%s\n", s.LastError)
				}
				fmt.Fprintf(w, "Contacts:\t%d\n", view.API.Contacts)
				fmt.Fprintf(w, "Messages:\t%d\n", view.API.Messages)
				fmt.Fprintf(w, "Syncing:\t%t\n", view.API.Syncing)
				if view.API.Dropped > 0 {
					fmt.Fprintf(w, "Dropped events:\t%d\n", view.API.Dropped)
				}
			})
		},
	}
}

func newQRCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "qr",
		Short: "Print the pending pairing QR code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx, done, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer done()

			code, err := c.QR(ctx)
			if err != nil {
				return err
			}
			if opts.json {
				return opts.print(cmd, map[string]string{"code": code}, nil)
			}
			q, err := qrcode.New(code, qrcode.Low)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), q.ToSmallString(false))
			return nil
		},
	}
}

func newOpenCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "open <endpoint>",
		Short: "Connect to a backend (whatsmeow: or ws://...)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx, done, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer done()

			snap, err := c.Open(ctx, args[0])
			if err != nil {
				return err
			}
			return opts.print(cmd, snap, func(w *tabwriter.Writer) {
				fmt.Fprintf(w, "Opening %s (%s)\n", snap.Endpoint, snap.Status)
			})
		},
	}
}

func newSwitchCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "switch",
		Short: "Log out and pair a different account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx, done, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer done()

			snap, err := c.Switch(ctx)
			if err != nil {
				return err
			}
			return opts.print(cmd, snap, func(w *tabwriter.Writer) {
				fmt.Fprintln(w, "Account switch started; run `wabotctl qr` once the new code is ready.")
			})
		},
	}
}
