package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot assembles the CLI: the serve daemon plus client commands that talk
// to a running daemon over its HTTP API.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	serveFlags := &ServeFlags{}
	apiFlags := &APIFlags{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(globalFlags, serveFlags),
		createStatusCommand(apiFlags),
		createStartCommand(apiFlags),
		createStopCommand(apiFlags),
		createCmdCommand(apiFlags),
		createHealthCommand(apiFlags),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "minekeeper",
		Short: "Minecraft server supervisor daemon",
		Long: `Minekeeper runs one Minecraft server as a supervised child process:
it detects readiness from console output, recovers from crashes with a
bounded restart budget, and exposes an HTTP control API.

Examples:
  minekeeper serve --config=minekeeper.toml   # Start the daemon
  minekeeper status                           # Query the local daemon
  minekeeper cmd "say restarting in 5 min"    # Forward a console command
  minekeeper status --api-url=http://mc-host:8080/api`,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file")
	return root
}

func createServeCommand(globalFlags *GlobalFlags, serveFlags *ServeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the minekeeper daemon",
		Long: `Start the daemon that supervises the Minecraft server.
All configuration is loaded from the TOML config file.

Examples:
  minekeeper serve config.toml
  minekeeper serve --config=config.toml --daemonize`,
		RunE: func(cmd *cobra.Command, args []string) error {
			serveFlags.ConfigPath = globalFlags.ConfigPath
			return runServe(serveFlags, args)
		},
	}
	cmd.Flags().BoolVar(&serveFlags.Daemonize, "daemonize", false, "run as daemon in background")
	cmd.Flags().StringVar(&serveFlags.PidFile, "pidfile", "", "write the daemon PID to this file")
	cmd.Flags().StringVar(&serveFlags.LogFile, "logfile", "", "redirect daemon logs to file")
	return cmd
}

func createStatusCommand(flags *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the supervised server's lifecycle status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, flags)
		},
	}
	addAPIFlags(cmd, flags)
	return cmd
}

func createStartCommand(flags *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Launch the supervised server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd, flags)
		},
	}
	addAPIFlags(cmd, flags)
	return cmd
}

func createStopCommand(flags *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the supervised server gracefully",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop(cmd, flags)
		},
	}
	addAPIFlags(cmd, flags)
	return cmd
}

func createCmdCommand(flags *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cmd <console command>",
		Short: "Forward a console command to the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCmd(cmd, flags, args[0])
		},
	}
	addAPIFlags(cmd, flags)
	return cmd
}

func createHealthCommand(flags *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check whether the daemon is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealth(cmd, flags)
		},
	}
	addAPIFlags(cmd, flags)
	return cmd
}
