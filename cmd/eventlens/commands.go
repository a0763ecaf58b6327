package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/malbeclabs/eventlens/pkg/cache"
	"github.com/malbeclabs/eventlens/pkg/logger"
	"github.com/malbeclabs/eventlens/pkg/pipeline"
	"github.com/malbeclabs/eventlens/pkg/rowset"
)

func newChatCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive session reading questions from stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := newLogger(cfg)

			if cfg.MetricsAddr != "" {
				go func() {
					if err := <-startMetricsServer(ctx, log, cfg.MetricsAddr); err != nil {
						log.Error("metrics server failed", "error", err)
					}
				}()
			}

			a, err := newApp(ctx, log, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			return chatLoop(ctx, a.pipeline, uuid.NewString(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func newAskCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a single question and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := newLogger(cfg)

			a, err := newApp(ctx, log, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.pipeline.HandleTurn(ctx, uuid.NewString(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			return printTurn(cmd.OutOrStdout(), res)
		},
	}
}

// turnHandler is the part of the pipeline the chat loop drives.
type turnHandler interface {
	HandleTurnWithProgress(ctx context.Context, sessionID, userText string, onProgress pipeline.ProgressCallback) (*pipeline.TurnResult, error)
}

// chatLoop answers one question per input line until EOF or ctx is done.
func chatLoop(ctx context.Context, h turnHandler, sessionID string, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "exit" || line == "quit" {
			return nil
		}
		if line != "" {
			res, err := h.HandleTurnWithProgress(ctx, sessionID, line, nil)
			switch {
			case errors.Is(err, pipeline.ErrTurnCancelled):
				return nil
			case err != nil:
				return err
			}
			if err := printTurn(out, res); err != nil {
				return err
			}
		}
		fmt.Fprint(out, "> ")
	}
	return scanner.Err()
}

func printTurn(out io.Writer, res *pipeline.TurnResult) error {
	for _, ev := range res.Events {
		switch ev.Type {
		case pipeline.EventText:
			fmt.Fprintln(out, ev.Text)
		case pipeline.EventVisualization:
			data, err := ev.Visualization.JSON()
			if err != nil {
				return fmt.Errorf("failed to encode visualization: %w", err)
			}
			fmt.Fprintf(out, "[%s] %s\n", ev.Visualization.Component, data)
		}
	}
	fmt.Fprintln(out)
	return nil
}

func newMigrateCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the cache schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := newLogger(cfg)

			if cfg.CacheBackend != backendPostgres {
				log.Info("cache backend has no schema, nothing to migrate", "cache_backend", cfg.CacheBackend)
				return nil
			}

			store, closeStore, err := openStore(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to open cache store: %w", err)
			}
			defer func() { _ = closeStore() }()

			execer, ok := store.(cache.Execer)
			if !ok {
				return fmt.Errorf("cache backend %s does not support migrations", cfg.CacheBackend)
			}
			return cache.RunMigrations(ctx, log, execer)
		},
	}
}

func newCacheCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the result cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show <key>",
		Short: "Show the cache entry for a fingerprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := newLogger(cfg)

			store, closeStore, err := openStore(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to open cache store: %w", err)
			}
			defer func() { _ = closeStore() }()

			c, err := newCache(log, store, cfg.Settings)
			if err != nil {
				return err
			}
			return showEntry(ctx, cmd.OutOrStdout(), c, args[0], time.Now())
		},
	})
	return cmd
}

func showEntry(ctx context.Context, out io.Writer, c *cache.Cache, key string, now time.Time) error {
	entry, err := c.Lookup(ctx, key)
	if err != nil {
		return err
	}
	if entry == nil {
		fmt.Fprintf(out, "no cache entry for %q\n", key)
		return nil
	}

	lastUpdated, age := "never", "-"
	if entry.LastUpdated != nil {
		lastUpdated = logger.FormatRFC3339Millis(*entry.LastUpdated)
		age = now.Sub(*entry.LastUpdated).Truncate(time.Second).String()
	}

	table := tablewriter.NewWriter(out)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Field", "Value"})
	table.AppendBulk([][]string{
		{"key", entry.Key},
		{"query", entry.QueryText},
		{"use_count", strconv.Itoa(entry.UseCount)},
		{"last_updated", lastUpdated},
		{"age", age},
		{"servable", strconv.FormatBool(c.GetValid(ctx, key) != nil)},
	})
	table.Render()

	if entry.SerializedRows == nil {
		return nil
	}
	rows, err := rowset.Unmarshal([]byte(*entry.SerializedRows))
	if err != nil {
		fmt.Fprintf(out, "\nstored rows are not readable: %v\n", err)
		return nil
	}
	fmt.Fprintf(out, "\n%d cached rows\n%s\n", rows.Len(), rows.Markdown())
	return nil
}
