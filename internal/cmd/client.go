// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mia-platform/logdispatch/internal/client"
	"github.com/mia-platform/logdispatch/internal/logger"
	"github.com/mia-platform/logdispatch/internal/transport"
)

const (
	networkFlagName  = "network"
	networkFlagUsage = "Network of the server, one of tcp, tcp4, tcp6 or unix"
	defaultNetwork   = "tcp"

	addressFlagName  = "address"
	addressFlagUsage = "Address, or socket path, of the server"
	defaultAddress   = "127.0.0.1:7070"

	websocketURLFlagName  = "websocket-url"
	websocketURLFlagUsage = "If set, connects to this websocket url, for example ws://127.0.0.1:7071/rpc, instead of the rpc address"

	execFlagName  = "exec"
	execFlagShort = "e"
	execFlagUsage = "Command to execute instead of opening the shell. Can be specified multiple times."

	clientLoggerName = "logdispatch:client"
)

// clientFlags holds the flags for the "client" command.
type clientFlags struct {
	network      string
	address      string
	websocketURL string
	commands     []string
}

// addFlags adds the cli flags to the cobra command.
func (f *clientFlags) addFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.network, networkFlagName, defaultNetwork, networkFlagUsage)
	flags.StringVar(&f.address, addressFlagName, defaultAddress, addressFlagUsage)
	flags.StringVar(&f.websocketURL, websocketURLFlagName, "", websocketURLFlagUsage)
	flags.StringArrayVarP(&f.commands, execFlagName, execFlagShort, nil, execFlagUsage)
}

// toOptions converts the client flags to clientOptions.
func (f *clientFlags) toOptions(cmd *cobra.Command) *clientOptions {
	return &clientOptions{
		transport: transport.Config{
			Network: f.network,
			Address: f.address,
		},
		websocketURL: strings.TrimSpace(f.websocketURL),
		commands:     f.commands,
		out:          cmd.OutOrStdout(),
	}
}

// clientOptions holds the options set for the current client function.
type clientOptions struct {
	transport    transport.Config
	websocketURL string
	commands     []string
	out          io.Writer
}

// validate validates the client options and returns an error if something is wrong.
func (o *clientOptions) validate() error {
	if o.websocketURL != "" {
		if !strings.HasPrefix(o.websocketURL, "ws://") && !strings.HasPrefix(o.websocketURL, "wss://") {
			return fmt.Errorf("%w: %s must start with ws:// or wss://", errInvalidFlag, websocketURLFlagName)
		}
		return nil
	}

	if err := transport.ValidateConfig(&o.transport); err != nil {
		return fmt.Errorf("%w: %w", errInvalidFlag, err)
	}
	return nil
}

// execute connects to the server and runs the commands, or the interactive shell when there are none.
func (o *clientOptions) execute(ctx context.Context) error {
	log := logger.Named(ctx, clientLoggerName)

	c, err := o.dial(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if len(o.commands) == 0 {
		shell, err := client.NewShell(c)
		if err != nil {
			return err
		}
		return shell.Run(ctx)
	}

	shell := client.NewShellWithWriter(c, o.out)
	for _, line := range o.commands {
		log.Debug("executing command", "line", line)
		quit, err := shell.Execute(ctx, line)
		if err != nil {
			return err
		}
		if quit {
			break
		}
	}

	return nil
}

func (o *clientOptions) dial(ctx context.Context) (*client.Client, error) {
	if o.websocketURL != "" {
		return client.DialWebsocket(ctx, o.websocketURL)
	}
	return client.Dial(ctx, o.transport.Network, o.transport.Address)
}
