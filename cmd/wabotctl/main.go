package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/matheus3301/wabot/internal/client"
	"github.com/matheus3301/wabot/internal/config"
	"github.com/matheus3301/wabot/internal/session"
	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

type options struct {
	instance string
	addr     string
	json     bool
	timeout  time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:          "wabotctl",
		Short:        "Operate a running wabotd",
		SilenceUsage: true,
	}
	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.instance, "instance", "", "instance name (overrides config default)")
	pf.StringVar(&opts.addr, "addr", "", "operator API address (default: config daemon.http_addr)")
	pf.BoolVar(&opts.json, "json", false, "output in JSON format")
	pf.DurationVar(&opts.timeout, "timeout", 10*time.Second, "request timeout")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newStatusCmd(opts))
	cmd.AddCommand(newQRCmd(opts))
	cmd.AddCommand(newOpenCmd(opts))
	cmd.AddCommand(newSwitchCmd(opts))
	cmd.AddCommand(newContactsCmd(opts))
	cmd.AddCommand(newMessagesCmd(opts))
	cmd.AddCommand(newSendCmd(opts))
	cmd.AddCommand(newBlastCmd(opts))
	cmd.AddCommand(newHistoryCmd(opts))
	cmd.AddCommand(newResendCmd(opts))
	cmd.AddCommand(newGroupsCmd(opts))
	cmd.AddCommand(newLogCmd(opts))
	cmd.AddCommand(newBotCmd(opts))
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "wabotctl %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

// connect resolves the instance and returns a client plus a request context.
func (o *options) connect(cmd *cobra.Command) (*client.Client, context.Context, func(), error) {
	name := session.Resolve(o.instance)
	if err := session.ValidateName(name); err != nil {
		return nil, nil, nil, err
	}
	addr := o.addr
	if addr == "" {
		cfg, err := config.LoadOrDefault(session.ConfigPath())
		if err != nil {
			return nil, nil, nil, fmt.Errorf("load config: %w", err)
		}
		addr = cfg.Daemon.HTTPAddr
	}
	c, err := client.New(addr, session.SocketPath(name))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("cannot connect to daemon for instance %q: %w", name, err)
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
	return c, ctx, func() {
		cancel()
		_ = c.Close()
	}, nil
}

// print writes v as JSON when --json is set, otherwise runs text.
func (o *options) print(cmd *cobra.Command, v any, text func(w *tabwriter.Writer)) error {
	out := cmd.OutOrStdout()
	if o.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	text(w)
	return w.Flush()
}

func formatMillis(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Format("2006-01-02 15:04")
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
