package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/pagemark/internal/models"
	"github.com/jmylchreest/pagemark/internal/pagerange"
)

func newProbeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Show the server's provider configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cl := a.newClient()
			env, err := cl.ProbeConfig(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "server\t%s\n", cl.BaseURL())
			fmt.Fprintf(tw, "configured\t%t\n", env.IsConfigured)
			fmt.Fprintf(tw, "base url\t%s\n", orNone(env.BaseURL))
			fmt.Fprintf(tw, "model\t%s\n", orNone(env.ModelID))
			fmt.Fprintf(tw, "api key\t%s\n", presence(env.HasAPIKey))
			fmt.Fprintf(tw, "access token\t%s\n", requirement(env.RequiresAuth))
			fmt.Fprintf(tw, "rate limit\t%s\n", describeLimit(env.RateLimit))
			if err := tw.Flush(); err != nil {
				return err
			}

			if env.RequiresAuth && a.cfg.AccessToken == "" {
				a.ui.Warn("server requires an access token; set PAGEMARK_ACCESS_TOKEN")
			}
			return nil
		},
	}
}

func newPagesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "pages <range> <max>",
		Short:   "Show how a page range is interpreted",
		Example: `  pagemark pages "5-3, 9, 12" 10`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			maxPage, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("max must be a number: %w", err)
			}

			idx := pagerange.Parse(args[0], maxPage)
			zero := make([]string, len(idx))
			for i, v := range idx {
				zero[i] = strconv.Itoa(v)
			}
			fmt.Fprintf(a.out, "pages:   %s\n", orNone(pagerange.Format(idx)))
			fmt.Fprintf(a.out, "indices: [%s]\n", strings.Join(zero, " "))
			fmt.Fprintf(a.out, "count:   %d\n", len(idx))
			return nil
		},
	}
}

func describeLimit(rl *models.RateLimitConfig) string {
	if !rl.Enabled() {
		return "none"
	}
	var parts []string
	if rl.MaxRequests > 0 {
		if rl.RequestWindowSeconds > 0 {
			parts = append(parts, fmt.Sprintf("%d requests / %ds", rl.MaxRequests, rl.RequestWindowSeconds))
		} else {
			parts = append(parts, fmt.Sprintf("%d requests (no window, inactive)", rl.MaxRequests))
		}
	}
	if rl.MaxInputTokensPerMinute > 0 {
		parts = append(parts, fmt.Sprintf("%d input tokens / min", rl.MaxInputTokensPerMinute))
	}
	if rl.MaxOutputTokensPerMinute > 0 {
		parts = append(parts, fmt.Sprintf("%d output tokens / min", rl.MaxOutputTokensPerMinute))
	}
	return strings.Join(parts, ", ")
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func presence(ok bool) string {
	if ok {
		return "set"
	}
	return "not set"
}

func requirement(ok bool) string {
	if ok {
		return "required"
	}
	return "not required"
}
