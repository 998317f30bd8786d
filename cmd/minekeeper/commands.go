package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/minekeeper/minekeeper"
	"github.com/minekeeper/minekeeper/pkg/client"
)

func addAPIFlags(cmd *cobra.Command, flags *APIFlags) {
	cmd.Flags().StringVar(&flags.URL, "api-url", "", "daemon URL (default http://localhost:8080/api)")
	cmd.Flags().DurationVar(&flags.Timeout, "api-timeout", 10*time.Second, "request timeout")
}

func newClient(flags *APIFlags) *client.Client {
	cfg := client.DefaultConfig()
	if flags.URL != "" {
		cfg.BaseURL = flags.URL
	}
	if flags.Timeout > 0 {
		cfg.Timeout = flags.Timeout
	}
	return client.New(cfg)
}

func runServe(flags *ServeFlags, args []string) error {
	configPath := flags.ConfigPath
	if len(args) > 0 {
		configPath = args[0]
	}
	if configPath == "" {
		return fmt.Errorf("config file required. Use --config=config.toml or provide as argument")
	}

	cfg, err := minekeeper.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	if flags.Daemonize {
		return daemonize(flags.PidFile, flags.LogFile)
	}
	if flags.PidFile != "" {
		if err := writePidFile(flags.PidFile, os.Getpid()); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = removePidFile(flags.PidFile) }()
	}

	log := minekeeper.NewLogger(cfg.Log.Level, cfg.Log.Color)
	slog.SetDefault(log)

	if err := minekeeper.RegisterMetricsDefault(); err != nil {
		log.Warn("failed to register metrics", "error", err)
	}

	sup, err := minekeeper.New(cfg.SupervisorSpec(), log)
	if err != nil {
		return fmt.Errorf("failed to create supervisor: %w", err)
	}

	sink, err := minekeeper.NewHistorySink(cfg.History)
	if err != nil {
		return fmt.Errorf("failed to create history sink: %w", err)
	}
	if sink != nil {
		sup.SetHistory(sink)
		defer func() { _ = sink.Close() }()
	}

	srv := minekeeper.NewHTTPServer(cfg.HTTP.Listen, cfg.HTTP.BasePath, sup, cfg.Endpoints)
	log.Info("control API listening", "addr", cfg.HTTP.Listen, "base_path", cfg.HTTP.BasePath)

	if cfg.Production {
		log.Info("production mode, starting server at boot")
		if err := sup.Start(); err != nil {
			log.Error("auto-start failed", "error", err)
		}
	}

	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigC
	log.Info("signal received, shutting down", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownCeiling)
	defer cancel()
	if err := shutdownAll(ctx, srv, sup); err != nil {
		log.Error("supervisor shutdown failed", "error", err)
		return err
	}
	log.Info("shutdown complete")
	return nil
}

// shutdownAll drains the HTTP server and stops the supervisor concurrently:
// a slow connection drain must not eat into the child's graceful window.
func shutdownAll(ctx context.Context, srv *http.Server, sup *minekeeper.Supervisor) error {
	httpDone := make(chan struct{})
	go func() {
		defer close(httpDone)
		_ = srv.Shutdown(ctx)
	}()
	err := sup.Shutdown(ctx)
	<-httpDone
	return err
}

func runStatus(cmd *cobra.Command, flags *APIFlags) error {
	ctx, cancel := requestContext(flags)
	defer cancel()

	st, err := newClient(flags).Status(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "name:      %s\n", st.Server.Name)
	_, _ = fmt.Fprintf(out, "state:     %s\n", st.Server.State)
	_, _ = fmt.Fprintf(out, "ready:     %t\n", st.Server.Ready)
	_, _ = fmt.Fprintf(out, "restarts:  %d\n", st.Server.Restarts)
	if st.Server.Running {
		_, _ = fmt.Fprintf(out, "pid:       %d\n", st.Server.PID)
		_, _ = fmt.Fprintf(out, "uptime:    %s\n", (time.Duration(st.Server.UptimeSeconds) * time.Second).String())
		if st.Server.RSSBytes > 0 {
			_, _ = fmt.Fprintf(out, "rss:       %.1f MiB\n", float64(st.Server.RSSBytes)/(1024*1024))
		}
	}
	_, _ = fmt.Fprintf(out, "java:      %s:%d\n", st.Endpoints.Host, st.Endpoints.JavaPort)
	if st.Endpoints.BedrockPort != 0 {
		_, _ = fmt.Fprintf(out, "bedrock:   %s:%d\n", st.Endpoints.Host, st.Endpoints.BedrockPort)
	}
	return nil
}

func runStart(cmd *cobra.Command, flags *APIFlags) error {
	ctx, cancel := requestContext(flags)
	defer cancel()
	if err := newClient(flags).Start(ctx); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "server starting")
	return nil
}

func runStop(cmd *cobra.Command, flags *APIFlags) error {
	ctx, cancel := requestContext(flags)
	defer cancel()
	if err := newClient(flags).Stop(ctx); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "server stopping")
	return nil
}

func runCmd(cmd *cobra.Command, flags *APIFlags, command string) error {
	ctx, cancel := requestContext(flags)
	defer cancel()
	if err := newClient(flags).Command(ctx, command); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "command dispatched")
	return nil
}

func runHealth(cmd *cobra.Command, flags *APIFlags) error {
	ctx, cancel := requestContext(flags)
	defer cancel()
	if !newClient(flags).IsReachable(ctx) {
		return fmt.Errorf("daemon is not reachable")
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "daemon is alive")
	return nil
}

func requestContext(flags *APIFlags) (context.Context, context.CancelFunc) {
	timeout := flags.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(context.Background(), timeout)
}
