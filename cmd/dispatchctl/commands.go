package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/dispatch-engine/internal/auth"
	"github.com/spec-kit/dispatch-engine/internal/bootstrap"
	"github.com/spec-kit/dispatch-engine/internal/catalog"
	"github.com/spec-kit/dispatch-engine/internal/config"
	"github.com/spec-kit/dispatch-engine/internal/domain"
	"github.com/spec-kit/dispatch-engine/internal/jobs"
	"github.com/spec-kit/dispatch-engine/internal/observability"
	"github.com/spec-kit/dispatch-engine/internal/service"
)

func processCmd() *cobra.Command {
	var (
		channel string
		caller  domain.CallerContext
		rules   string
		asJSON  bool
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "process <text>",
		Short: "Run one request through the pipeline and print the decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if rules != "" {
				cfg.Rules.Path = rules
			}
			logger := zap.NewNop()
			if verbose {
				if logger, err = observability.NewLogger(cfg.Logger); err != nil {
					return err
				}
				defer logger.Sync() //nolint:errcheck
			}

			engine, err := bootstrap.New(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer engine.Close()

			res, err := engine.Dispatch.Process(cmd.Context(), service.ProcessInput{
				Text:    args[0],
				Channel: domain.Channel(strings.ToLower(channel)),
				Caller:  caller,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(out)
			tw.AppendRow(table.Row{"action", res.Action})
			tw.AppendRow(table.Row{"intent", fmt.Sprintf("%s (%s)", res.Intent, res.Domain)})
			if res.StructuredData.Reason != "" {
				tw.AppendRow(table.Row{"reason", res.StructuredData.Reason})
			}
			if len(res.MissingFields) > 0 {
				tw.AppendRow(table.Row{"missing", strings.Join(res.MissingFields, ", ")})
			}
			tw.AppendRow(table.Row{"request", res.RequestID})
			tw.AppendRow(table.Row{"say", res.SpeakText})
			tw.Render()
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&channel, "channel", string(domain.ChannelChat), "inbound channel: voice, chat or system")
	f.StringVar(&caller.RequestID, "request-id", "", "request id (generated when empty)")
	f.StringVar(&caller.Phone, "phone", "", "caller-id phone")
	f.StringVar(&caller.Email, "email", "", "caller email")
	f.StringVar(&caller.Name, "name", "", "caller name")
	f.StringVar(&caller.CustomerTier, "tier", "", "customer tier hint")
	f.StringVar(&caller.ServiceType, "service-type", "", "service type override")
	f.StringVar(&rules, "rules", "", "rule tables file (defaults to RULES_PATH or the embedded tables)")
	f.BoolVar(&asJSON, "json", false, "print the full result as JSON")
	f.BoolVarP(&verbose, "verbose", "v", false, "log pipeline events to stderr")
	return cmd
}

func tokenCmd() *cobra.Command {
	var (
		client string
		scopes string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a caller token for a transport client",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			granted, err := auth.ParseScopes(scopes)
			if err != nil {
				return err
			}
			if len(granted) == 0 {
				return errors.New("at least one scope is required")
			}
			minutes := cfg.Auth.TokenTTLMinutes
			if ttl > 0 {
				minutes = int(ttl.Minutes())
			}
			tm := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, minutes)
			token, exp, err := tm.GenerateToken(client, granted)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", exp.UTC().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&client, "client", "", "client id recorded in the token")
	cmd.Flags().StringVar(&scopes, "scopes", string(auth.ScopeProcess), "comma separated scopes")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to AUTH_TOKEN_TTL_MINUTES)")
	_ = cmd.MarkFlagRequired("client")
	return cmd
}

func rulesCmd() *cobra.Command {
	rules := &cobra.Command{Use: "rules", Short: "Inspect rule tables"}

	var file string
	validate := &cobra.Command{
		Use:   "validate",
		Short: "Check a rule tables document against every table invariant",
		RunE: func(cmd *cobra.Command, args []string) error {
			tables, err := catalog.LoadFile(file)
			if err != nil {
				var verr *catalog.ValidationError
				if errors.As(err, &verr) {
					for _, p := range verr.Problems {
						fmt.Fprintln(cmd.ErrOrStderr(), "  -", p)
					}
					return fmt.Errorf("%s: %d problem(s)", file, len(verr.Problems))
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (version %s)\n", file, tables.Version)
			return nil
		},
	}
	validate.Flags().StringVarP(&file, "file", "f", "", "rule tables YAML file")
	_ = validate.MarkFlagRequired("file")

	defaults := &cobra.Command{
		Use:   "defaults",
		Short: "Print the embedded default rule tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := cmd.OutOrStdout().Write(catalog.DefaultYAML())
			return err
		},
	}

	rules.AddCommand(validate, defaults)
	return rules
}

func jobsCmd() *cobra.Command {
	group := &cobra.Command{Use: "jobs", Short: "Inspect the scheduled job queue"}

	var (
		limit int
		at    string
	)
	due := &cobra.Command{
		Use:   "due",
		Short: "List jobs whose run time has passed",
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("--at: %w", err)
				}
				now = t
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			engine, err := bootstrap.New(cmd.Context(), cfg, zap.NewNop())
			if err != nil {
				return err
			}
			defer engine.Close()

			list, err := engine.Jobs.Due(cmd.Context(), now, limit)
			if err != nil {
				return err
			}
			renderJobs(cmd.OutOrStdout(), list)
			return nil
		},
	}
	due.Flags().IntVar(&limit, "limit", 50, "maximum jobs to list (0 for all)")
	due.Flags().StringVar(&at, "at", "", "RFC 3339 cutoff instead of now")

	group.AddCommand(due)
	return group
}

func renderJobs(out io.Writer, list []jobs.Job) {
	if len(list) == 0 {
		fmt.Fprintln(out, "no jobs due")
		return
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.AppendHeader(table.Row{"id", "type", "run at"})
	for _, j := range list {
		tw.AppendRow(table.Row{j.ID, j.Type, j.RunAt.UTC().Format(time.RFC3339)})
	}
	tw.Render()
}
