package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/focusguard/backend/internal/client"
	"github.com/focusguard/backend/internal/middleware"
)

type globals struct {
	server  string
	token   string
	timeout time.Duration
}

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:           "focusctl",
		Short:         "Command-line access to a FocusGuard server",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&g.server, "server", envOr("FOCUSGUARD_SERVER", "http://localhost:8080"), "API base URL")
	root.PersistentFlags().StringVar(&g.token, "token", os.Getenv("FOCUSGUARD_TOKEN"), "bearer token")
	root.PersistentFlags().DurationVar(&g.timeout, "timeout", 30*time.Second, "overall request timeout")

	root.AddCommand(
		checkCmd(g),
		stateCmd(g),
		sitesCmd(g),
		sessionCmd(g),
		usageCmd(g),
		tokenCmd(),
	)
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (g *globals) client() *client.Client {
	return client.New(g.server, g.token)
}

func (g *globals) ctx(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), g.timeout)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func checkCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "check <url>",
		Short: "Ask whether a URL is blocked right now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := g.ctx(cmd)
			defer cancel()

			res, err := g.client().Check(ctx, args[0])
			if err != nil {
				return err
			}
			d := res.Decision
			if !d.Blocked {
				msg := "allowed"
				if d.RemainingSeconds != nil {
					msg += fmt.Sprintf(" (%s left today)", time.Duration(*d.RemainingSeconds)*time.Second)
				}
				fmt.Fprintln(cmd.OutOrStdout(), msg)
				return nil
			}
			line := fmt.Sprintf("blocked: %s via %s", d.Reason, d.MatchedDomain)
			if d.Until != nil {
				line += " until " + d.Until.Local().Format(time.Kitchen)
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
			return nil
		},
	}
}

func stateCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Print the current blocking snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := g.ctx(cmd)
			defer cancel()

			snap, err := g.client().State(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, snap)
		},
	}
}

func sitesCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{Use: "sites", Short: "Manage blocked sites"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List blocked sites",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := g.ctx(cmd)
			defer cancel()

			sites, err := g.client().ListSites(ctx)
			if err != nil {
				return err
			}
			for _, s := range sites {
				mode := "scheduled"
				if s.Always {
					mode = "always"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", s.ID, s.Domain, mode)
			}
			return nil
		},
	}

	var always bool
	add := &cobra.Command{
		Use:   "add <domain>",
		Short: "Block a domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := g.ctx(cmd)
			defer cancel()

			site, err := g.client().AddSite(ctx, args[0], always)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s)\n", site.Domain, site.ID)
			return nil
		},
	}
	add.Flags().BoolVar(&always, "always", false, "block even outside sessions and schedules")

	rm := &cobra.Command{
		Use:   "rm <site-id>",
		Short: "Unblock a site",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := g.ctx(cmd)
			defer cancel()
			return g.client().DeleteSite(ctx, args[0])
		},
	}

	cmd.AddCommand(list, add, rm)
	return cmd
}

func sessionCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{Use: "session", Short: "Start, end and inspect focus sessions"}

	var label string
	start := &cobra.Command{
		Use:   "start <minutes>",
		Short: "Start a focus session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			minutes, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("minutes must be a number: %w", err)
			}
			ctx, cancel := g.ctx(cmd)
			defer cancel()

			sess, err := g.client().StartSession(ctx, minutes, label)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session %s running until %s\n", sess.ID, sess.EndsAt.Local().Format(time.Kitchen))
			return nil
		},
	}
	start.Flags().StringVar(&label, "label", "", "what the session is for")

	end := &cobra.Command{
		Use:   "end [session-id]",
		Short: "End a session (the active one by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := g.ctx(cmd)
			defer cancel()
			c := g.client()

			id := ""
			if len(args) == 1 {
				id = args[0]
			} else {
				active, err := c.ActiveSession(ctx)
				if err != nil {
					return err
				}
				id = active.ID
			}

			sess, err := c.EndSession(ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session %s %s\n", sess.ID, sess.Status)
			return nil
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the active session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := g.ctx(cmd)
			defer cancel()

			sess, err := g.client().ActiveSession(ctx)
			if client.IsStatus(err, 404) {
				fmt.Fprintln(cmd.OutOrStdout(), "no active session")
				return nil
			}
			if err != nil {
				return err
			}
			left := time.Until(sess.EndsAt).Round(time.Second)
			fmt.Fprintf(cmd.OutOrStdout(), "session %s: %s left\n", sess.ID, left)
			return nil
		},
	}

	cmd.AddCommand(start, end, status)
	return cmd
}

func usageCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{Use: "usage", Short: "Report and inspect time spent on sites"}

	report := &cobra.Command{
		Use:   "report <domain> <seconds>",
		Short: "Record time spent on a domain",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			secs, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("seconds must be a number: %w", err)
			}
			ctx, cancel := g.ctx(cmd)
			defer cancel()

			res, err := g.client().ReportUsage(ctx, args[0], secs)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %ds today\n", res.Entry.Domain, res.Entry.Seconds)
			if res.Decision.Blocked {
				fmt.Fprintf(cmd.OutOrStdout(), "now blocked: %s\n", res.Decision.Reason)
			}
			return nil
		},
	}

	var day string
	show := &cobra.Command{
		Use:   "show",
		Short: "Show usage for a day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := g.ctx(cmd)
			defer cancel()

			sum, err := g.client().UsageSummary(ctx, day)
			if err != nil {
				return err
			}
			return printJSON(cmd, sum)
		},
	}
	show.Flags().StringVar(&day, "day", "", "day as YYYY-MM-DD (default today)")

	cmd.AddCommand(report, show)
	return cmd
}

func tokenCmd() *cobra.Command {
	var secret string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint a development HS256 token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return fmt.Errorf("--secret or JWT_SECRET is required")
			}
			tok, err := middleware.NewToken(secret, args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("JWT_SECRET"), "HMAC secret shared with the server")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
