// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package cmd contains the serve and client commands of logdispatch.
package cmd

import (
	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"
)

const (
	serveCmdUsage = "serve"
	serveCmdShort = "start the remote logging dispatch server"
	serveCmdLong  = `Start the remote logging dispatch server.
	Clients connect over JSON-RPC 2.0, on a TCP or unix socket or on a websocket,
	to create loggers, write log records, mirror values on the server console,
	change log levels and announce logger resources. Each connection can subscribe
	to log level and logger resource changes.

	Logger resources listed in the resources files are announced at startup.
	The status server exposes the health probes and the loggers known to the server.`

	serveCmdExample = `# Serve on the default address, writing file loggers under ./logs
	logdispatch serve

	# Serve on a unix socket and on a websocket, announcing the resources of a file
	logdispatch serve --rpc-network unix --rpc-address /run/logdispatch.sock \
		--ws-address :7071 --resources-file resources.yaml`

	clientCmdUsage = "client"
	clientCmdShort = "connect to a logdispatch server"
	clientCmdLong  = `Connect to a logdispatch server.
	Without commands an interactive shell is opened, otherwise every command
	passed with --exec is run in order and the client exits at the first failure.
	Type 'help' in the shell for the list of commands.`

	clientCmdExample = `# Open an interactive shell on the default address
	logdispatch client

	# Create a logger and write a record to it
	logdispatch client -e "create file:///tmp/main.log json" -e "log file:///tmp/main.log info hello"`
)

// ServeCmd returns the "serve" cli command starting the dispatch server.
func ServeCmd() *cobra.Command {
	flags := &serveFlags{}
	cmd := &cobra.Command{
		Use:     serveCmdUsage,
		Short:   heredoc.Doc(serveCmdShort),
		Long:    heredoc.Doc(serveCmdLong),
		Example: heredoc.Doc(serveCmdExample),

		SilenceErrors: true,
		SilenceUsage:  true,

		Args:              noArgs,
		ValidArgsFunction: cobra.NoFileCompletions,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.toOptions(cmd)
			if err != nil {
				return handleError(cmd, err)
			}

			if err := opts.validate(); err != nil {
				return handleError(cmd, err)
			}

			if err := opts.execute(cmd.Context()); err != nil {
				return handleError(cmd, err)
			}

			return nil
		},
	}

	flags.addFlags(cmd)
	return cmd
}

// ClientCmd returns the "client" cli command connecting to a dispatch server.
func ClientCmd() *cobra.Command {
	flags := &clientFlags{}
	cmd := &cobra.Command{
		Use:     clientCmdUsage,
		Short:   heredoc.Doc(clientCmdShort),
		Long:    heredoc.Doc(clientCmdLong),
		Example: heredoc.Doc(clientCmdExample),

		SilenceErrors: true,
		SilenceUsage:  true,

		Args:              noArgs,
		ValidArgsFunction: cobra.NoFileCompletions,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := flags.toOptions(cmd)
			if err := opts.validate(); err != nil {
				return handleError(cmd, err)
			}

			if err := opts.execute(cmd.Context()); err != nil {
				return handleError(cmd, err)
			}

			return nil
		},
	}

	flags.addFlags(cmd)
	return cmd
}
