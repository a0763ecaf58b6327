package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/malbeclabs/eventlens/pkg/logger"
	"github.com/malbeclabs/eventlens/pkg/metrics"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultMetricsShutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env file if it exists
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	cfg := &Config{}

	rootCmd := &cobra.Command{
		Use:           "eventlens",
		Short:         "Conversational analytics over click events",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return cfg.Validate()
		},
	}
	bindFlags(rootCmd.PersistentFlags(), cfg)

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Show version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Printf("version: %s, commit: %s, date: %s\n", version, commit, date)
			},
		},
		newChatCmd(cfg),
		newAskCmd(cfg),
		newMigrateCmd(cfg),
		newCacheCmd(cfg),
	)
	return rootCmd
}

// newLogger logs to stderr so answers on stdout stay clean.
func newLogger(cfg *Config) *slog.Logger {
	return logger.NewWithWriter(os.Stderr, cfg.Verbose)
}

// startMetricsServer serves /metrics on addr until ctx is done.
func startMetricsServer(ctx context.Context, log *slog.Logger, addr string) <-chan error {
	errCh := make(chan error, 1)
	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)

	go func() {
		defer close(errCh)

		listener, err := net.Listen("tcp", addr)
		if err != nil {
			errCh <- err
			return
		}
		defer listener.Close()

		log.Info("prometheus metrics server listening", "address", listener.Addr().String())

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		httpSrv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		go func() {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), defaultMetricsShutdownTimeout)
			defer cancel()
			_ = httpSrv.Shutdown(sctx)
		}()

		err = httpSrv.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			return
		}
		if err != nil {
			errCh <- err
		}
	}()

	return errCh
}
