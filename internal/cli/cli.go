// Package cli is the harvester command line.
//
// Usage:
//
//	harvester serve                     start the HTTP façade
//	harvester run -f "job platforms.txt" scrape every source without approval pauses
//	harvester run -u https://boards.greenhouse.io/acme
//	harvester plan -f "job platforms.txt" show which strategy handles each source
//
// Configuration comes from the environment, an optional .env file and the
// YAML file given with --config.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"job-harvester/internal/app"
	"job-harvester/internal/config"
	"job-harvester/internal/domain/harvest"
	"job-harvester/internal/platforms"
	"job-harvester/internal/scraper"
	"job-harvester/internal/task"

	"github.com/spf13/cobra"
)

var cliDefaults = map[string]string{
	"APP_NAME":  "harvester",
	"APP_ENV":   "cli",
	"HTTP_PORT": "8080",
}

type runSummary struct {
	TaskID  string          `json:"task_id"`
	Status  string          `json:"status"`
	Total   int             `json:"total"`
	Results []sourceSummary `json:"results"`
	Logs    []string        `json:"logs,omitempty"`
}

type sourceSummary struct {
	URL           string        `json:"url"`
	Status        string        `json:"status"`
	Platform      string        `json:"platform"`
	TotalFound    int           `json:"total_found"`
	FilteredCount int           `json:"filtered_count"`
	Error         string        `json:"error,omitempty"`
	Jobs          []harvest.Job `json:"jobs,omitempty"`
}

// BuildCLI returns the root command. opts are passed to every container the
// commands build.
func BuildCLI(opts ...app.Option) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "harvester",
		Short:         "Approval-gated job listing harvester",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configFile != "" {
				return os.Setenv("HARVESTER_CONFIG", configFile)
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file path")

	rootCmd.AddCommand(buildServeCommand(opts))
	rootCmd.AddCommand(buildRunCommand(opts))
	rootCmd.AddCommand(buildPlanCommand())

	return rootCmd
}

func buildServeCommand(opts []app.Option) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API, websocket stream and metrics endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			addr, err := app.ListenAddr(cfg.App.HTTPPort)
			if err != nil {
				return err
			}

			a, cleanup, err := app.Bootstrap(cfg, log.Default(), opts...)
			if err != nil {
				return fmt.Errorf("failed to bootstrap app: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return app.Serve(ctx, a, addr, cleanup)
		},
	}
}

func buildRunCommand(opts []app.Option) *cobra.Command {
	var file string
	var urls []string
	var withJobs bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Scrape sources once, approving every site, and print a JSON summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWithDefaults(cliDefaults)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			sources, err := resolveSources(urls, file, cfg.Harvest.PlatformsFile)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runOnce(ctx, cfg, sources, withJobs, cmd.OutOrStdout(), append([]app.Option{app.WithoutRedis()}, opts...))
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "platforms file (defaults to PLATFORMS_FILE)")
	cmd.Flags().StringSliceVarP(&urls, "url", "u", nil, "source url, repeatable; overrides the platforms file")
	cmd.Flags().BoolVar(&withJobs, "jobs", false, "include job records in the summary")

	return cmd
}

func buildPlanCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the strategy and platform chosen for each source",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWithDefaults(cliDefaults)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			sources, err := resolveSources(nil, file, cfg.Harvest.PlatformsFile)
			if err != nil {
				return err
			}

			plan := scraper.NewDefaultSelector(scraper.Options{Logger: log.New(io.Discard, "", 0)}).Plan(sources)
			return writeJSON(cmd.OutOrStdout(), map[string]any{"total_urls": len(plan), "plan": plan})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "platforms file (defaults to PLATFORMS_FILE)")
	return cmd
}

func resolveSources(urls []string, file, fallback string) ([]string, error) {
	var out []string
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	if len(out) > 0 {
		return out, nil
	}
	if file == "" {
		file = fallback
	}
	sources, err := platforms.ParseFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read platforms file: %w", err)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no sources found in %s", file)
	}
	return sources, nil
}

func runOnce(ctx context.Context, cfg config.Config, sources []string, withJobs bool, out io.Writer, opts []app.Option) error {
	c, err := app.NewContainer(cfg, log.Default(), opts...)
	if err != nil {
		return err
	}
	c.Start(ctx)
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), app.ShutdownTimeout)
		defer cancel()
		_ = c.Close(sctx)
	}()

	id, err := c.Orchestrator.StartTask(sources)
	if err != nil {
		return err
	}
	if err := c.Orchestrator.ApproveAll(id); err != nil && !errors.Is(err, task.ErrTerminal) {
		return err
	}

	t, err := c.Orchestrator.Wait(ctx, id)
	if err != nil {
		return err
	}

	summary := runSummary{TaskID: t.ID, Status: string(t.Status), Total: t.Total, Logs: t.Logs}
	for _, r := range t.Results {
		s := sourceSummary{
			URL:           r.URL,
			Status:        string(r.Status),
			Platform:      r.Platform,
			TotalFound:    r.TotalFound,
			FilteredCount: r.FilteredCount,
			Error:         r.Error,
		}
		if withJobs {
			s.Jobs = r.Jobs
		}
		summary.Results = append(summary.Results, s)
	}
	if err := writeJSON(out, summary); err != nil {
		return err
	}
	if t.Status == harvest.TaskFailed {
		return errors.New("task failed")
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
