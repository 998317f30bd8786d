package main

import "time"

// GlobalFlags holds persistent flags shared across subcommands.
type GlobalFlags struct {
	ConfigPath string
}

// ServeFlags holds flags for the serve subcommand.
type ServeFlags struct {
	ConfigPath string
	Daemonize  bool
	PidFile    string
	LogFile    string
}

// APIFlags holds daemon connection flags for client subcommands.
type APIFlags struct {
	URL     string
	Timeout time.Duration
}
